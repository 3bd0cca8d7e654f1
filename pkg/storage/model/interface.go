package model

import (
	"context"
	"io"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
)

// Repository is what the ingestion pipeline needs from a document store.
type Repository interface {
	// FindByAccessKey returns the stored id of the document with the given key.
	FindByAccessKey(ctx context.Context, docType models.DocumentType, key string) (id string, found bool, err error)
	// Insert stores doc and returns its id. A document whose access key is
	// already stored yields models.ErrDuplicateDocument.
	Insert(ctx context.Context, doc models.Document) (string, error)
	InsertValidation(ctx context.Context, result models.ValidationResult) error
	Ping(ctx context.Context) error
}

type ListFilter struct {
	// Type restricts the listing to one document type. Empty means all.
	Type   models.DocumentType
	Limit  int
	Offset int
}

// Reader serves the query side of the HTTP API.
type Reader interface {
	// FindSummary returns models.ErrNotFound when no document has the key.
	FindSummary(ctx context.Context, key string) (*models.DocumentSummary, error)
	// FindValidation returns the most recent validation for key, or models.ErrNotFound.
	FindValidation(ctx context.Context, key string) (*models.ValidationResult, error)
	ListValidations(ctx context.Context, key string) ([]models.ValidationResult, error)
	// ListDocuments is ordered by creation time, newest first.
	ListDocuments(ctx context.Context, filter ListFilter) ([]models.DocumentSummary, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

type Store interface {
	Repository
	Reader
	io.Closer
}

// Searcher is implemented by stores with free-text search.
type Searcher interface {
	Search(ctx context.Context, term string, size int) ([]models.DocumentSummary, error)
}

// Storer archives the raw payload of a document.
type Storer interface {
	Store(ctx context.Context, doc models.RawDocument) error
}

// Retriever returns os.ErrNotExist when the payload is not archived.
type Retriever interface {
	Retrieve(ctx context.Context, docType models.DocumentType, key string) (*models.RawDocument, error)
}

// Lister enumerates archived payloads. Readers are not populated.
type Lister interface {
	List(ctx context.Context) ([]models.RawDocument, error)
}

type Archive interface {
	Storer
	Retriever
	Lister
}
