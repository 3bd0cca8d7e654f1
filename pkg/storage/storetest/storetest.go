// Package storetest holds the behaviour every model.Store implementation must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
)

const (
	NFeKey = "35240911222333000181550010000123451234567890"
	CTeKey = "35240911222333000181570010000123451234567898"
	// OtherNFeKey is a second valid NF-e key.
	OtherNFeKey = "35240911223344000156550010000123451234567890"
)

// Clock returns a func that starts at start and advances one second per call,
// so stores that order by creation time sort deterministically.
func Clock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Second)
		return t
	}
}

// Start is the instant Clock is seeded with by the suite's constructors.
var Start = time.Date(2024, 9, 17, 10, 0, 0, 0, time.UTC)

func NotaFiscal(key string) *models.NotaFiscalDocument {
	issued := time.Date(2024, 9, 15, 13, 30, 0, 0, time.UTC)
	return &models.NotaFiscalDocument{
		AccessKey: key,
		Number:    "12345",
		Series:    "1",
		IssuedAt:  issued,
		Operation: models.OperationSaida,
		Issuer:    models.Party{TaxID: "11222333000181", Name: "Metalurgica Paulista Ltda", Address: models.NewAddress()},
		Recipient: models.Party{TaxID: "11144477735", Name: "Joao da Silva", Address: models.NewAddress()},
		Totals:    models.Totals{ProductsValue: 900, TotalValue: 1000, ICMSValue: 162},
		Status:    models.StatusCompleted,
	}
}

func Conhecimento(key string) *models.ConhecimentoTransporteDocument {
	return &models.ConhecimentoTransporteDocument{
		AccessKey:   key,
		Number:      "12345",
		Series:      "1",
		IssuedAt:    time.Date(2024, 9, 16, 11, 0, 0, 0, time.UTC),
		ServiceType: models.ServiceNormal,
		Issuer:      models.Party{TaxID: "11222333000181", Name: "Transportes Rapidos SA", Address: models.NewAddress()},
		Sender:      models.Party{Name: "Metalurgica Paulista Ltda", Address: models.NewAddress()},
		Recipient:   models.Party{Name: "Comercial Curitiba Ltda", Address: models.NewAddress()},
		Service:     models.ServiceValues{TotalValue: 500, ReceivableValue: 500},
		Modal:       models.ModalRodoviario,
		Status:      models.StatusCompleted,
	}
}

func validation(key string, valid bool, code string) models.ValidationResult {
	r := models.ValidationResult{
		AccessKey:    key,
		DocumentType: models.NotaFiscal,
		IsValid:      valid,
		ValidatedAt:  Start,
	}
	if !valid {
		r.Errors = []models.ValidationError{{Code: code, Message: "erro", Severity: models.SeverityHigh}}
	}
	return r
}

// Run exercises newStore against the model.Store contract.
func Run(t *testing.T, newStore func(t *testing.T) model.Store) {
	t.Run("InsertAndFind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.Insert(ctx, NotaFiscal(NFeKey))
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		got, found, err := s.FindByAccessKey(ctx, models.NotaFiscal, NFeKey)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, id, got)

		_, found, err = s.FindByAccessKey(ctx, models.ConhecimentoTransporte, NFeKey)
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = s.FindByAccessKey(ctx, models.NotaFiscal, OtherNFeKey)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("DuplicateInsert", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Insert(ctx, NotaFiscal(NFeKey))
		require.NoError(t, err)
		_, err = s.Insert(ctx, NotaFiscal(NFeKey))
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrDuplicateDocument)
	})

	t.Run("FindSummary", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		doc := Conhecimento(CTeKey)
		_, err := s.Insert(ctx, doc)
		require.NoError(t, err)

		sum, err := s.FindSummary(ctx, CTeKey)
		require.NoError(t, err)
		assert.Equal(t, models.ConhecimentoTransporte, sum.DocumentType)
		assert.Equal(t, CTeKey, sum.AccessKey)
		assert.Equal(t, "12345", sum.Number)
		assert.Equal(t, "Transportes Rapidos SA", sum.Issuer)
		assert.Equal(t, "Comercial Curitiba Ltda", sum.Recipient)
		assert.InDelta(t, 500.0, sum.TotalValue, 0.001)
		assert.WithinDuration(t, doc.IssuedAt, sum.IssuedAt, 0)

		_, err = s.FindSummary(ctx, NFeKey)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("Validations", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.FindValidation(ctx, NFeKey)
		assert.ErrorIs(t, err, models.ErrNotFound)

		require.NoError(t, s.InsertValidation(ctx, validation(NFeKey, false, "CFOP_INVALID")))
		require.NoError(t, s.InsertValidation(ctx, validation(NFeKey, true, "")))
		require.NoError(t, s.InsertValidation(ctx, validation(OtherNFeKey, false, "NCM_INVALID")))

		latest, err := s.FindValidation(ctx, NFeKey)
		require.NoError(t, err)
		assert.True(t, latest.IsValid)
		assert.Empty(t, latest.Errors)

		all, err := s.ListValidations(ctx, NFeKey)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.False(t, all[0].IsValid)
		require.Len(t, all[0].Errors, 1)
		assert.Equal(t, "CFOP_INVALID", all[0].Errors[0].Code)
		assert.True(t, all[1].IsValid)
	})

	t.Run("ListDocuments", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, doc := range []models.Document{
			NotaFiscal(NFeKey),
			Conhecimento(CTeKey),
			NotaFiscal(OtherNFeKey),
		} {
			_, err := s.Insert(ctx, doc)
			require.NoError(t, err)
		}

		all, err := s.ListDocuments(ctx, model.ListFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, OtherNFeKey, all[0].AccessKey)
		assert.Equal(t, CTeKey, all[1].AccessKey)
		assert.Equal(t, NFeKey, all[2].AccessKey)

		nfes, err := s.ListDocuments(ctx, model.ListFilter{Type: models.NotaFiscal})
		require.NoError(t, err)
		require.Len(t, nfes, 2)
		for _, d := range nfes {
			assert.Equal(t, models.NotaFiscal, d.DocumentType)
		}

		page, err := s.ListDocuments(ctx, model.ListFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, CTeKey, page[0].AccessKey)
	})

	t.Run("Stats", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.Stats{}, *stats)

		for _, doc := range []models.Document{
			NotaFiscal(NFeKey),
			Conhecimento(CTeKey),
			NotaFiscal(OtherNFeKey),
		} {
			_, err := s.Insert(ctx, doc)
			require.NoError(t, err)
		}

		stats, err = s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalDocuments)
		assert.Equal(t, int64(2), stats.NotasFiscais)
		assert.Equal(t, int64(1), stats.Ctes)
		assert.Equal(t, int64(3), stats.ProcessedToday)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
