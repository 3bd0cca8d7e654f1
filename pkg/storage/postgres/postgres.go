// Package postgres is a Store on PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage/postgres")

const uniqueViolation = "23505"

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type Postgres struct {
	pool Pool
	now  func() time.Time
}

var _ model.Store = (*Postgres)(nil)

type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

type Option func(*Postgres)

func WithClock(now func() time.Time) Option {
	return func(p *Postgres) {
		p.now = now
	}
}

// New connects to connString and verifies the connection.
func New(ctx context.Context, connString string, poolCfg *PoolConfig, opts ...Option) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			cfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			cfg.MinConns = poolCfg.MinConns
		}
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	log.Debugf("connected to %s/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Database)
	return NewWithPool(pool, opts...), nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool Pool, opts ...Option) *Postgres {
	p := &Postgres{pool: pool, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

const migration = `
CREATE TABLE IF NOT EXISTS notas_fiscais (
	id           TEXT PRIMARY KEY,
	chave_acesso TEXT NOT NULL UNIQUE,
	numero       TEXT NOT NULL,
	serie        TEXT NOT NULL,
	data_emissao TIMESTAMPTZ NOT NULL,
	emitente     TEXT NOT NULL,
	destinatario TEXT NOT NULL,
	valor_total  NUMERIC(15,2) NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conhecimentos_transporte (
	id           TEXT PRIMARY KEY,
	chave_acesso TEXT NOT NULL UNIQUE,
	numero       TEXT NOT NULL,
	serie        TEXT NOT NULL,
	data_emissao TIMESTAMPTZ NOT NULL,
	emitente     TEXT NOT NULL,
	destinatario TEXT NOT NULL,
	valor_total  NUMERIC(15,2) NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS validacoes (
	id              TEXT PRIMARY KEY,
	seq             BIGSERIAL,
	chave_acesso    TEXT NOT NULL,
	document_type   TEXT NOT NULL,
	is_valid        BOOLEAN NOT NULL,
	validation_json JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_notas_fiscais_created_at ON notas_fiscais(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_conhecimentos_transporte_created_at ON conhecimentos_transporte(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_validacoes_chave_acesso ON validacoes(chave_acesso, seq DESC);
`

func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, migration)
	return eris.Wrap(err, "postgres: migrate")
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return eris.Wrap(p.pool.Ping(ctx), "postgres: ping")
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
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (p *Postgres) FindByAccessKey(ctx context.Context, docType models.DocumentType, key string) (string, bool, error) {
	table, err := tableFor(docType)
	if err != nil {
		return "", false, err
	}
	var id string
	err = p.pool.QueryRow(ctx, `SELECT id FROM `+table+` WHERE chave_acesso = $1`, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "postgres: find %s", key)
	}
	return id, true, nil
}

func (p *Postgres) Insert(ctx context.Context, doc models.Document) (string, error) {
	table, err := tableFor(doc.Type())
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal document")
	}
	id := uuid.NewString()
	sum := doc.Summary()
	_, err = p.pool.Exec(ctx,
		`INSERT INTO `+table+` (id, chave_acesso, numero, serie, data_emissao, emitente, destinatario, valor_total, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, sum.AccessKey, sum.Number, sum.Series, sum.IssuedAt, sum.Issuer, sum.Recipient,
		sum.TotalValue, payload, p.now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", models.ErrDuplicateDocument, sum.AccessKey)
		}
		return "", eris.Wrap(err, "postgres: insert document")
	}
	return id, nil
}

func (p *Postgres) InsertValidation(ctx context.Context, result models.ValidationResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal validation")
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO validacoes (id, chave_acesso, document_type, is_valid, validation_json, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), result.AccessKey, string(result.DocumentType), result.IsValid, body, p.now().UTC(),
	)
	return eris.Wrap(err, "postgres: insert validation")
}

const documentsView = `(
	SELECT 'NFe' AS doc_type, chave_acesso, numero, serie, data_emissao, emitente, destinatario, valor_total::float8 AS valor_total, created_at FROM notas_fiscais
	UNION ALL
	SELECT 'CTe' AS doc_type, chave_acesso, numero, serie, data_emissao, emitente, destinatario, valor_total::float8 AS valor_total, created_at FROM conhecimentos_transporte
) AS documentos`

const summaryColumns = `doc_type, chave_acesso, numero, serie, data_emissao, emitente, destinatario, valor_total`

func scanSummary(row pgx.Row) (*models.DocumentSummary, error) {
	var (
		sum     models.DocumentSummary
		docType string
	)
	err := row.Scan(&docType, &sum.AccessKey, &sum.Number, &sum.Series, &sum.IssuedAt, &sum.Issuer, &sum.Recipient, &sum.TotalValue)
	if err != nil {
		return nil, err
	}
	sum.DocumentType = models.DocumentType(docType)
	return &sum, nil
}

func (p *Postgres) FindSummary(ctx context.Context, key string) (*models.DocumentSummary, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM `+documentsView+` WHERE chave_acesso = $1 LIMIT 1`, key)
	sum, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find summary %s", key)
	}
	return sum, nil
}

func (p *Postgres) FindValidation(ctx context.Context, key string) (*models.ValidationResult, error) {
	var body []byte
	err := p.pool.QueryRow(ctx,
		`SELECT validation_json FROM validacoes WHERE chave_acesso = $1 ORDER BY seq DESC LIMIT 1`,
		key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find validation %s", key)
	}
	var result models.ValidationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal validation")
	}
	return &result, nil
}

func (p *Postgres) ListValidations(ctx context.Context, key string) ([]models.ValidationResult, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT validation_json FROM validacoes WHERE chave_acesso = $1 ORDER BY seq`, key)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list validations %s", key)
	}
	defer rows.Close()

	var out []models.ValidationResult
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan validation")
		}
		var result models.ValidationResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal validation")
		}
		out = append(out, result)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate validations")
}

func (p *Postgres) ListDocuments(ctx context.Context, filter model.ListFilter) ([]models.DocumentSummary, error) {
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+summaryColumns+` FROM `+documentsView+`
		 WHERE ($1 = '' OR doc_type = $1)
		 ORDER BY created_at DESC, chave_acesso
		 LIMIT $2 OFFSET $3`,
		string(filter.Type), limit, filter.Offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var out []models.DocumentSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		out = append(out, *sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate documents")
}

func (p *Postgres) Stats(ctx context.Context) (*models.Stats, error) {
	today := p.now().UTC().Truncate(24 * time.Hour)
	var stats models.Stats
	err := p.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM notas_fiscais),
		(SELECT COUNT(*) FROM conhecimentos_transporte),
		(SELECT COUNT(*) FROM notas_fiscais WHERE created_at >= $1) +
		(SELECT COUNT(*) FROM conhecimentos_transporte WHERE created_at >= $1)`,
		today,
	).Scan(&stats.NotasFiscais, &stats.Ctes, &stats.ProcessedToday)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	stats.TotalDocuments = stats.NotasFiscais + stats.Ctes
	return &stats, nil
}
