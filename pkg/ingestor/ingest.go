// Package ingestor runs raw fiscal XML through detection, parsing and
// validation, and persists the result idempotently by access key.
package ingestor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/accel"
	"github.com/denysvitali/fiscal-ingest/pkg/metrics"
	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/parsers"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
	"github.com/denysvitali/fiscal-ingest/pkg/validator"
)

var log = logrus.StandardLogger().WithField("package", "ingestor")

type Config struct {
	Repository model.Repository
	// Archive receives the raw payload of newly inserted documents. Optional.
	Archive     model.Storer
	Metrics     metrics.Sink
	Accelerator accel.Accelerator
	Validator   *validator.Validator
	// Clock is used by the parsers for missing emission dates.
	Clock func() time.Time
}

type Ingestor struct {
	repo      model.Repository
	archive   model.Storer
	metrics   metrics.Sink
	acc       accel.Accelerator
	validator *validator.Validator
	nfe       *parsers.NFeParser
	cte       *parsers.CTeParser
}

func New(config Config) (*Ingestor, error) {
	if config.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	i := &Ingestor{
		repo:      config.Repository,
		archive:   config.Archive,
		metrics:   config.Metrics,
		acc:       config.Accelerator,
		validator: config.Validator,
	}
	if i.metrics == nil {
		i.metrics = metrics.Nop{}
	}
	if i.acc == nil {
		i.acc = accel.Default()
	}
	if i.validator == nil {
		i.validator = validator.New()
	}
	opts := []parsers.Option{parsers.WithAccelerator(i.acc)}
	if config.Clock != nil {
		opts = append(opts, parsers.WithClock(config.Clock))
	}
	i.nfe = parsers.NewNFeParser(opts...)
	i.cte = parsers.NewCTeParser(opts...)
	return i, nil
}

// Ping makes sure the repository is reachable.
func (i *Ingestor) Ping(ctx context.Context) error {
	log.Debugf("pinging repository")
	if err := i.repo.Ping(ctx); err != nil {
		return dbError(err)
	}
	return nil
}

var messages = map[models.DocumentType][2]string{
	models.NotaFiscal:             {"NF-e processada com sucesso", "NF-e já existente"},
	models.ConhecimentoTransporte: {"CT-e processado com sucesso", "CT-e já existente"},
}

func message(docType models.DocumentType, duplicate bool) string {
	m := messages[docType]
	if duplicate {
		return m[1]
	}
	return m[0]
}

func dbError(err error) error {
	if errors.Is(err, models.ErrDatabase) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrDatabase, err)
}

// ProcessFile reads path and processes its content.
func (i *Ingestor) ProcessFile(ctx context.Context, path string) (*models.ProcessingResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrXmlRead, err)
	}
	return i.Process(ctx, b)
}

// Process ingests one payload. Document errors (see models.IsDocumentError)
// are returned before storage is touched; storage failures wrap models.ErrDatabase.
func (i *Ingestor) Process(ctx context.Context, payload []byte) (*models.ProcessingResult, error) {
	payload = bytes.TrimSpace(payload)
	xml, err := parsers.DecodePayload(payload, i.acc)
	if err != nil {
		return nil, err
	}

	docType, ok := parsers.DetectDocumentType([]byte(xml), i.acc)
	if !ok {
		return nil, fmt.Errorf("%w: nenhum marcador NF-e ou CT-e encontrado", models.ErrUnsupportedDocumentType)
	}
	log.Debugf("detected %s", docType)

	doc, err := i.parse(docType, xml)
	if err != nil {
		return nil, err
	}

	validation := i.validator.Validate(xml, docType)

	duplicate, err := i.persist(ctx, doc)
	if err != nil {
		return nil, err
	}
	if duplicate {
		i.metrics.DocumentDuplicate(docType)
		log.Infof("%s %s already stored", docType.Label(), doc.Key())
	} else {
		i.metrics.DocumentProcessed(docType)
		log.Infof("%s %s stored", docType.Label(), doc.Key())
		i.archiveRaw(ctx, docType, doc.Key(), payload)
	}

	i.recordValidation(ctx, validation)

	return &models.ProcessingResult{
		DocumentType: docType,
		AccessKey:    doc.Key(),
		Success:      true,
		Message:      message(docType, duplicate),
		Validation:   &validation,
		Duplicate:    duplicate,
	}, nil
}

func (i *Ingestor) parse(docType models.DocumentType, xml string) (models.Document, error) {
	switch docType {
	case models.NotaFiscal:
		doc, err := i.nfe.Parse(xml)
		if err != nil {
			return nil, err
		}
		return doc, nil
	case models.ConhecimentoTransporte:
		doc, err := i.cte.Parse(xml)
		if err != nil {
			return nil, err
		}
		return doc, nil
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedDocumentType, docType)
}

// persist reports whether doc was already stored. The lookup only saves a
// round trip: the repository's uniqueness constraint decides.
func (i *Ingestor) persist(ctx context.Context, doc models.Document) (bool, error) {
	_, found, err := i.repo.FindByAccessKey(ctx, doc.Type(), doc.Key())
	if err != nil {
		return false, dbError(err)
	}
	if found {
		return true, nil
	}
	_, err = i.repo.Insert(ctx, doc)
	if errors.Is(err, models.ErrDuplicateDocument) {
		return true, nil
	}
	if err != nil {
		return false, dbError(err)
	}
	return false, nil
}

func (i *Ingestor) archiveRaw(ctx context.Context, docType models.DocumentType, key string, payload []byte) {
	if i.archive == nil {
		return
	}
	err := i.archive.Store(ctx, models.RawDocument{
		Reader:       bytes.NewReader(payload),
		DocumentType: docType,
		AccessKey:    key,
		ReceivedAt:   time.Now(),
	})
	if err != nil {
		log.Warnf("unable to archive %s %s: %v", docType.Label(), key, err)
	}
}

func (i *Ingestor) recordValidation(ctx context.Context, validation models.ValidationResult) {
	if err := i.repo.InsertValidation(ctx, validation); err != nil {
		log.Warnf("unable to save validation for %s: %v", validation.AccessKey, err)
		return
	}
	i.metrics.ValidationSaved()
}
