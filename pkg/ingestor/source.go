package ingestor

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
)

// DocumentsSource yields raw payloads one at a time.
type DocumentsSource interface {
	Scan() bool
	// Name identifies the current payload in outcomes and logs.
	Name() string
	Current() (io.Reader, error)
	Err() error
}

// DirSource yields every *.xml file under the given roots, in lexical order.
// A root may also be a single file.
type DirSource struct {
	files []string
	idx   int
}

var _ DocumentsSource = (*DirSource)(nil)

func NewDirSource(roots ...string) (*DirSource, error) {
	var files []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".xml") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return &DirSource{files: files}, nil
}

func (s *DirSource) Scan() bool {
	if s.idx+1 <= len(s.files) {
		s.idx++
		return true
	}
	return false
}

func (s *DirSource) Name() string {
	if s.idx == 0 {
		return ""
	}
	return s.files[s.idx-1]
}

func (s *DirSource) Current() (io.Reader, error) {
	return os.Open(s.Name())
}

func (s *DirSource) Err() error {
	return nil
}

type archive interface {
	model.Lister
	model.Retriever
}

// ArchiveSource replays every payload kept by an archive.
type ArchiveSource struct {
	ctx     context.Context
	archive archive
	docs    []models.RawDocument
	idx     int
	err     error
}

var _ DocumentsSource = (*ArchiveSource)(nil)

func NewArchiveSource(ctx context.Context, a archive) *ArchiveSource {
	docs, err := a.List(ctx)
	return &ArchiveSource{ctx: ctx, archive: a, docs: docs, err: err}
}

func (s *ArchiveSource) Scan() bool {
	if s.err != nil || s.idx >= len(s.docs) {
		return false
	}
	s.idx++
	return true
}

func (s *ArchiveSource) Name() string {
	if s.idx == 0 {
		return ""
	}
	return s.docs[s.idx-1].Id()
}

func (s *ArchiveSource) Current() (io.Reader, error) {
	d := s.docs[s.idx-1]
	raw, err := s.archive.Retrieve(s.ctx, d.DocumentType, d.AccessKey)
	if err != nil {
		return nil, err
	}
	return raw.Reader, nil
}

func (s *ArchiveSource) Err() error {
	return s.err
}
