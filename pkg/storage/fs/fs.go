// Package fs archives raw payloads on the local filesystem as <dir>/<type>/<key>.xml.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage/fs")

type Fs struct {
	dir string
}

var _ model.Archive = (*Fs)(nil)

func New(dir string) (*Fs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create storage directory: %w", err)
	}
	return &Fs{dir: dir}, nil
}

func (f *Fs) path(docType models.DocumentType, key string) string {
	return filepath.Join(f.dir, string(docType), key+".xml")
}

// Store writes the payload and rewinds doc.Reader. An already archived
// key yields an error wrapping os.ErrExist.
func (f *Fs) Store(_ context.Context, doc models.RawDocument) error {
	if !doc.DocumentType.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrUnsupportedDocumentType, doc.DocumentType)
	}
	if err := os.MkdirAll(filepath.Join(f.dir, string(doc.DocumentType)), 0o755); err != nil {
		return err
	}

	p := f.path(doc.DocumentType, doc.AccessKey)
	out, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, doc.Reader); err != nil {
		out.Close()
		os.Remove(p)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if _, err := doc.Reader.Seek(0, io.SeekStart); err != nil {
		return err
	}
	log.Debugf("created file %s", p)
	return nil
}

func (f *Fs) Retrieve(_ context.Context, docType models.DocumentType, key string) (*models.RawDocument, error) {
	p := f.path(docType, key)
	in, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	info, err := in.Stat()
	if err != nil {
		in.Close()
		return nil, err
	}
	return &models.RawDocument{
		Reader:       in,
		DocumentType: docType,
		AccessKey:    key,
		ReceivedAt:   info.ModTime(),
	}, nil
}

func (f *Fs) List(_ context.Context) ([]models.RawDocument, error) {
	var docs []models.RawDocument
	for _, docType := range []models.DocumentType{models.NotaFiscal, models.ConhecimentoTransporte} {
		entries, err := os.ReadDir(filepath.Join(f.dir, string(docType)))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".xml") {
				continue
			}
			doc := models.RawDocument{
				DocumentType: docType,
				AccessKey:    strings.TrimSuffix(e.Name(), ".xml"),
			}
			if info, err := e.Info(); err == nil {
				doc.ReceivedAt = info.ModTime()
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}
