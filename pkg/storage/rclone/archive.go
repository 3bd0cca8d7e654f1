package rclone

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rclone/rclone/backend/local"
	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/config/configmap"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/crypt"
	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage/rclone")

// Archive stores every payload as <type>/<key>.xml on an rclone fs.Fs.
type Archive struct {
	f      fs.Fs
	cipher *crypt.Cipher
}

var _ model.Archive = (*Archive)(nil)

type Option func(*Archive)

// WithCipher encrypts payloads before upload and decrypts them on retrieval.
func WithCipher(c *crypt.Cipher) Option {
	return func(a *Archive) {
		a.cipher = c
	}
}

func New(f fs.Fs, opts ...Option) *Archive {
	a := &Archive{f: f}
	for _, o := range opts {
		o(a)
	}
	return a
}

// NewLocal is an Archive on rclone's local backend rooted at dir.
func NewLocal(ctx context.Context, dir string, opts ...Option) (*Archive, error) {
	f, err := local.NewFs(ctx, "local", dir, configmap.Simple{})
	if err != nil {
		return nil, err
	}
	return New(f, opts...), nil
}

func (a *Archive) Store(ctx context.Context, doc models.RawDocument) (err error) {
	if !doc.DocumentType.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrUnsupportedDocumentType, doc.DocumentType)
	}
	remote := doc.Id()
	if _, err := a.f.NewObject(ctx, remote); err == nil {
		return fmt.Errorf("%s: %w", remote, os.ErrExist)
	}

	defer func() {
		if _, seekErr := doc.Reader.Seek(0, io.SeekStart); err == nil {
			err = seekErr
		}
	}()

	var reader io.ReadSeeker = doc.Reader
	if a.cipher != nil {
		reader, err = a.cipher.Encrypt(doc.Reader)
		if err != nil {
			return err
		}
	}

	size, err := reader.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return err
	}

	modTime := doc.ReceivedAt
	if modTime.IsZero() {
		modTime = time.Now()
	}
	obj, err := a.f.Put(ctx, reader, newPayloadInfo(a.f, remote, modTime, size))
	if err != nil {
		return err
	}
	log.Debugf("stored %s (%d bytes)", obj.Remote(), obj.Size())
	return nil
}

func (a *Archive) Retrieve(ctx context.Context, docType models.DocumentType, key string) (*models.RawDocument, error) {
	raw := models.RawDocument{DocumentType: docType, AccessKey: key}
	obj, err := a.f.NewObject(ctx, raw.Id())
	if err != nil {
		if errors.Is(err, fs.ErrorObjectNotFound) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}

	objReader, err := obj.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer objReader.Close()

	if a.cipher != nil {
		raw.Reader, err = a.cipher.Decrypt(objReader)
		if err != nil {
			return nil, err
		}
	} else {
		buffer := bytes.NewBuffer(nil)
		if _, err := io.Copy(buffer, objReader); err != nil {
			return nil, err
		}
		raw.Reader = bytes.NewReader(buffer.Bytes())
	}
	raw.ReceivedAt = obj.ModTime(ctx)
	return &raw, nil
}

func (a *Archive) List(ctx context.Context) ([]models.RawDocument, error) {
	var docs []models.RawDocument
	for _, docType := range []models.DocumentType{models.NotaFiscal, models.ConhecimentoTransporte} {
		entries, err := a.f.List(ctx, string(docType))
		if errors.Is(err, fs.ErrorDirNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			obj, ok := e.(fs.Object)
			if !ok {
				continue
			}
			name := path.Base(obj.Remote())
			if !strings.HasSuffix(name, ".xml") {
				continue
			}
			docs = append(docs, models.RawDocument{
				DocumentType: docType,
				AccessKey:    strings.TrimSuffix(name, ".xml"),
				ReceivedAt:   obj.ModTime(ctx),
			})
		}
	}
	return docs, nil
}
