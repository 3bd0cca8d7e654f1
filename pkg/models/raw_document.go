package models

import (
	"fmt"
	"io"
	"time"
)

// RawDocument is the original XML payload of an ingested document, as kept by archives.
type RawDocument struct {
	Reader       io.ReadSeeker
	DocumentType DocumentType
	AccessKey    string
	ReceivedAt   time.Time
}

// Id is the archive-relative name of the payload, e.g. "NFe/3524...7890.xml".
func (r RawDocument) Id() string {
	return fmt.Sprintf("%s/%s.xml", r.DocumentType, r.AccessKey)
}
