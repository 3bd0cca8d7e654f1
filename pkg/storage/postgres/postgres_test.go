package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/postgres"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/storetest"
)

func newMockPostgres(t *testing.T) (*postgres.Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return postgres.NewWithPool(mock, postgres.WithClock(storetest.Clock(storetest.Start))), mock
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS notas_fiscais`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Insert(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO notas_fiscais`).
		WithArgs(pgxmock.AnyArg(), storetest.NFeKey, "12345", "1", pgxmock.AnyArg(),
			"Metalurgica Paulista Ltda", "Joao da Silva", 1000.0, pgxmock.AnyArg(), storetest.Start).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := s.Insert(context.Background(), storetest.NotaFiscal(storetest.NFeKey))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Insert_Duplicate(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO conhecimentos_transporte`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := s.Insert(context.Background(), storetest.Conhecimento(storetest.CTeKey))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDuplicateDocument)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Insert_Failure(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO notas_fiscais`).
		WillReturnError(errors.New("connection reset"))

	_, err := s.Insert(context.Background(), storetest.NotaFiscal(storetest.NFeKey))
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrDuplicateDocument)
	assert.Contains(t, err.Error(), "insert document")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindByAccessKey(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT id FROM notas_fiscais WHERE chave_acesso = \$1`).
		WithArgs(storetest.NFeKey).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow("doc-1"))
	mock.ExpectQuery(`SELECT id FROM conhecimentos_transporte WHERE chave_acesso = \$1`).
		WithArgs(storetest.CTeKey).
		WillReturnError(pgx.ErrNoRows)

	id, found, err := s.FindByAccessKey(context.Background(), models.NotaFiscal, storetest.NFeKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "doc-1", id)

	_, found, err = s.FindByAccessKey(context.Background(), models.ConhecimentoTransporte, storetest.CTeKey)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindByAccessKey_UnsupportedType(t *testing.T) {
	s, mock := newMockPostgres(t)

	_, _, err := s.FindByAccessKey(context.Background(), models.DocumentType("MDFe"), storetest.NFeKey)
	assert.ErrorIs(t, err, models.ErrUnsupportedDocumentType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindSummary(t *testing.T) {
	s, mock := newMockPostgres(t)
	issued := time.Date(2024, 9, 15, 13, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE chave_acesso = \$1 LIMIT 1`).
		WithArgs(storetest.NFeKey).
		WillReturnRows(mock.NewRows([]string{
			"doc_type", "chave_acesso", "numero", "serie", "data_emissao", "emitente", "destinatario", "valor_total",
		}).AddRow("NFe", storetest.NFeKey, "12345", "1", issued, "Metalurgica Paulista Ltda", "Joao da Silva", 1000.0))
	mock.ExpectQuery(`WHERE chave_acesso = \$1 LIMIT 1`).
		WithArgs(storetest.CTeKey).
		WillReturnError(pgx.ErrNoRows)

	sum, err := s.FindSummary(context.Background(), storetest.NFeKey)
	require.NoError(t, err)
	assert.Equal(t, models.NotaFiscal, sum.DocumentType)
	assert.Equal(t, "Metalurgica Paulista Ltda", sum.Issuer)
	assert.Equal(t, issued, sum.IssuedAt)
	assert.InDelta(t, 1000.0, sum.TotalValue, 0.001)

	_, err = s.FindSummary(context.Background(), storetest.CTeKey)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindValidation(t *testing.T) {
	s, mock := newMockPostgres(t)

	body, err := json.Marshal(models.ValidationResult{
		AccessKey:    storetest.NFeKey,
		DocumentType: models.NotaFiscal,
		IsValid:      false,
		Errors:       []models.ValidationError{{Code: "CFOP_INVALID", Field: "CFOP", Severity: models.SeverityHigh}},
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT validation_json FROM validacoes WHERE chave_acesso = \$1 ORDER BY seq DESC LIMIT 1`).
		WithArgs(storetest.NFeKey).
		WillReturnRows(mock.NewRows([]string{"validation_json"}).AddRow(body))
	mock.ExpectQuery(`SELECT validation_json FROM validacoes`).
		WithArgs(storetest.CTeKey).
		WillReturnError(pgx.ErrNoRows)

	got, err := s.FindValidation(context.Background(), storetest.NFeKey)
	require.NoError(t, err)
	assert.False(t, got.IsValid)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "CFOP_INVALID", got.Errors[0].Code)

	_, err = s.FindValidation(context.Background(), storetest.CTeKey)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertValidation(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO validacoes`).
		WithArgs(pgxmock.AnyArg(), storetest.NFeKey, "NFe", true, pgxmock.AnyArg(), storetest.Start).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertValidation(context.Background(), models.ValidationResult{
		AccessKey:    storetest.NFeKey,
		DocumentType: models.NotaFiscal,
		IsValid:      true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListDocuments(t *testing.T) {
	s, mock := newMockPostgres(t)
	issued := time.Date(2024, 9, 16, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`ORDER BY created_at DESC, chave_acesso`).
		WithArgs("CTe", 50, 0).
		WillReturnRows(mock.NewRows([]string{
			"doc_type", "chave_acesso", "numero", "serie", "data_emissao", "emitente", "destinatario", "valor_total",
		}).AddRow("CTe", storetest.CTeKey, "12345", "1", issued, "Transportes Rapidos SA", "Comercial Curitiba Ltda", 500.0))

	docs, err := s.ListDocuments(context.Background(), model.ListFilter{Type: models.ConhecimentoTransporte, Limit: 50})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, models.ConhecimentoTransporte, docs[0].DocumentType)
	assert.Equal(t, storetest.CTeKey, docs[0].AccessKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Stats(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notas_fiscais`).
		WithArgs(storetest.Start.Truncate(24 * time.Hour)).
		WillReturnRows(mock.NewRows([]string{"nfe", "cte", "today"}).AddRow(int64(7), int64(3), int64(2)))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Stats{TotalDocuments: 10, NotasFiscais: 7, Ctes: 3, ProcessedToday: 2}, *stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Ping(t *testing.T) {
	s, mock := newMockPostgres(t)

	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
