// Package sqlite is a Store on an embedded SQLite database (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage/sqlite")

// timeLayout sorts lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ model.Store = (*SQLite)(nil)

type Option func(*SQLite)

// WithClock sets the time source used for created_at columns.
func WithClock(now func() time.Time) Option {
	return func(s *SQLite) {
		s.now = now
	}
}

// New opens the database at dsn and configures WAL mode.
func New(dsn string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	s := &SQLite{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS notas_fiscais (
	id           TEXT PRIMARY KEY,
	chave_acesso TEXT NOT NULL UNIQUE,
	numero       TEXT NOT NULL,
	serie        TEXT NOT NULL,
	data_emissao TEXT NOT NULL,
	emitente     TEXT NOT NULL,
	destinatario TEXT NOT NULL,
	valor_total  REAL NOT NULL,
	payload      TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conhecimentos_transporte (
	id           TEXT PRIMARY KEY,
	chave_acesso TEXT NOT NULL UNIQUE,
	numero       TEXT NOT NULL,
	serie        TEXT NOT NULL,
	data_emissao TEXT NOT NULL,
	emitente     TEXT NOT NULL,
	destinatario TEXT NOT NULL,
	valor_total  REAL NOT NULL,
	payload      TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS validacoes (
	id              TEXT PRIMARY KEY,
	chave_acesso    TEXT NOT NULL,
	document_type   TEXT NOT NULL,
	is_valid        INTEGER NOT NULL,
	validation_json TEXT NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notas_fiscais_created_at ON notas_fiscais(created_at);
CREATE INDEX IF NOT EXISTS idx_conhecimentos_transporte_created_at ON conhecimentos_transporte(created_at);
CREATE INDEX IF NOT EXISTS idx_validacoes_chave_acesso ON validacoes(chave_acesso);
`

func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func tableFor(docType models.DocumentType) (string, error) {
	switch docType {
	case models.NotaFiscal:
		return "notas_fiscais", nil
	case models.ConhecimentoTransporte:
		return "conhecimentos_transporte", nil
	}
	return "", fmt.Errorf("%w: %q", models.ErrUnsupportedDocumentType, docType)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLite) FindByAccessKey(ctx context.Context, docType models.DocumentType, key string) (string, bool, error) {
	table, err := tableFor(docType)
	if err != nil {
		return "", false, err
	}
	var id string
	err = s.db.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE chave_acesso = ?`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "sqlite: find %s", key)
	}
	return id, true, nil
}

func (s *SQLite) Insert(ctx context.Context, doc models.Document) (string, error) {
	table, err := tableFor(doc.Type())
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal document")
	}
	id := uuid.NewString()
	sum := doc.Summary()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, chave_acesso, numero, serie, data_emissao, emitente, destinatario, valor_total, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sum.AccessKey, sum.Number, sum.Series, formatTime(sum.IssuedAt), sum.Issuer, sum.Recipient,
		sum.TotalValue, string(payload), formatTime(s.now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", models.ErrDuplicateDocument, sum.AccessKey)
		}
		return "", eris.Wrap(err, "sqlite: insert document")
	}
	log.Debugf("inserted %s %s as %s", doc.Type(), sum.AccessKey, id)
	return id, nil
}

func (s *SQLite) InsertValidation(ctx context.Context, result models.ValidationResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal validation")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO validacoes (id, chave_acesso, document_type, is_valid, validation_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), result.AccessKey, string(result.DocumentType), result.IsValid, string(body), formatTime(s.now()),
	)
	return eris.Wrap(err, "sqlite: insert validation")
}

const summaryColumns = `doc_type, chave_acesso, numero, serie, data_emissao, emitente, destinatario, valor_total`

const documentsView = `(
	SELECT 'NFe' AS doc_type, chave_acesso, numero, serie, data_emissao, emitente, destinatario, valor_total, created_at FROM notas_fiscais
	UNION ALL
	SELECT 'CTe' AS doc_type, chave_acesso, numero, serie, data_emissao, emitente, destinatario, valor_total, created_at FROM conhecimentos_transporte
)`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (*models.DocumentSummary, error) {
	var (
		sum      models.DocumentSummary
		docType  string
		issuedAt string
	)
	err := row.Scan(&docType, &sum.AccessKey, &sum.Number, &sum.Series, &issuedAt, &sum.Issuer, &sum.Recipient, &sum.TotalValue)
	if err != nil {
		return nil, err
	}
	sum.DocumentType = models.DocumentType(docType)
	sum.IssuedAt = parseTime(issuedAt)
	return &sum, nil
}

func (s *SQLite) FindSummary(ctx context.Context, key string) (*models.DocumentSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM `+documentsView+` WHERE chave_acesso = ? LIMIT 1`, key)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find summary %s", key)
	}
	return sum, nil
}

func (s *SQLite) FindValidation(ctx context.Context, key string) (*models.ValidationResult, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT validation_json FROM validacoes WHERE chave_acesso = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find validation %s", key)
	}
	var result models.ValidationResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal validation")
	}
	return &result, nil
}

func (s *SQLite) ListValidations(ctx context.Context, key string) ([]models.ValidationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT validation_json FROM validacoes WHERE chave_acesso = ? ORDER BY created_at, rowid`, key)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list validations %s", key)
	}
	defer rows.Close()

	var out []models.ValidationResult
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan validation")
		}
		var result models.ValidationResult
		if err := json.Unmarshal([]byte(body), &result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal validation")
		}
		out = append(out, result)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate validations")
}

func (s *SQLite) ListDocuments(ctx context.Context, filter model.ListFilter) ([]models.DocumentSummary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM `+documentsView+`
		 WHERE (? = '' OR doc_type = ?)
		 ORDER BY created_at DESC, chave_acesso
		 LIMIT ? OFFSET ?`,
		string(filter.Type), string(filter.Type), limit, filter.Offset)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var out []models.DocumentSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		out = append(out, *sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate documents")
}

func (s *SQLite) Stats(ctx context.Context) (*models.Stats, error) {
	today := formatTime(s.now().UTC().Truncate(24 * time.Hour))
	var stats models.Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM notas_fiscais),
		(SELECT COUNT(*) FROM conhecimentos_transporte),
		(SELECT COUNT(*) FROM notas_fiscais WHERE created_at >= ?) +
		(SELECT COUNT(*) FROM conhecimentos_transporte WHERE created_at >= ?)`,
		today, today,
	).Scan(&stats.NotasFiscais, &stats.Ctes, &stats.ProcessedToday)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	stats.TotalDocuments = stats.NotasFiscais + stats.Ctes
	return &stats, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
