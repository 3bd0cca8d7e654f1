package models

import "errors"

// Error taxonomy. Callers wrap these with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrXmlRead                 = errors.New("xml read error")
	ErrXmlParse                = errors.New("xml parse error")
	ErrInvalidAccessKey        = errors.New("invalid access key")
	ErrUnsupportedDocumentType = errors.New("unsupported document type")
	// ErrMissingRequiredField is returned alongside ErrInvalidAccessKey when a
	// document has no access key at all.
	ErrMissingRequiredField    = errors.New("missing required field")
	ErrEncoding                = errors.New("encoding error")
	ErrDuplicateDocument       = errors.New("duplicate document")
	ErrDatabase                = errors.New("database error")
	ErrNotFound                = errors.New("not found")
)

// IsDocumentError reports whether err comes from the payload itself rather
// than from a collaborator (storage, filesystem).
func IsDocumentError(err error) bool {
	return errors.Is(err, ErrXmlParse) ||
		errors.Is(err, ErrInvalidAccessKey) ||
		errors.Is(err, ErrUnsupportedDocumentType) ||
		errors.Is(err, ErrMissingRequiredField) ||
		errors.Is(err, ErrEncoding)
}
