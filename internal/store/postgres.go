package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS faturas (
	id                UUID PRIMARY KEY,
	operadora         VARCHAR(50) NOT NULL,
	numero_contrato   VARCHAR(50),
	nome_fornecedor   VARCHAR(255),
	valor_total       NUMERIC(10,2),
	valores_multa     VARCHAR(100),
	valores_juros     VARCHAR(100),
	valores_retencoes NUMERIC(10,2),
	forma_pagamento   VARCHAR(100),
	codigo_barras     VARCHAR(60),
	numero_cnpj       VARCHAR(20),
	numero_nf         VARCHAR(50),
	numero_serie      VARCHAR(20),
	data_emissao      DATE,
	valor_nf          NUMERIC(10,2),
	base_calculo_icms NUMERIC(10,2),
	valor_aliquota    VARCHAR(20),
	valor_icms        NUMERIC(10,2),
	data_vencimento   DATE,
	data_contabil     DATE,
	numero_fatura     VARCHAR(50),
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_faturas_identidade
	ON faturas (COALESCE(numero_fatura,''), COALESCE(numero_contrato,''), COALESCE(numero_cnpj,''));
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const postgresExistsQuery = `SELECT EXISTS (
	SELECT 1 FROM faturas
	WHERE COALESCE(numero_fatura,'') = $1
	  AND COALESCE(numero_contrato,'') = $2
	  AND COALESCE(numero_cnpj,'') = $3
)`

func (s *PostgresStore) Exists(ctx context.Context, invoiceNumber, contractNumber, cnpj string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, postgresExistsQuery, invoiceNumber, contractNumber, cnpj).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: check invoice exists")
	}
	return exists, nil
}

const postgresInsertQuery = `INSERT INTO faturas (
	id, operadora, numero_contrato, nome_fornecedor, valor_total,
	valores_multa, valores_juros, valores_retencoes, forma_pagamento,
	codigo_barras, numero_cnpj, numero_nf, numero_serie, data_emissao,
	valor_nf, base_calculo_icms, valor_aliquota, valor_icms,
	data_vencimento, data_contabil, numero_fatura, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

func (s *PostgresStore) Insert(ctx context.Context, inv *model.Invoice) (Outcome, error) {
	key := inv.Key()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx, postgresExistsQuery, key.InvoiceNumber, key.ContractNumber, key.CNPJ).Scan(&exists); err != nil {
		return "", eris.Wrap(err, "postgres: check invoice exists")
	}
	if exists {
		return OutcomeAlreadyExists, nil
	}

	id := inv.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := inv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.Exec(ctx, postgresInsertQuery,
		id, string(inv.Operator), inv.ContractNumber, inv.SupplierName, inv.TotalAmount,
		inv.FineValue, inv.InterestValue, inv.Withholdings, inv.PaymentMethod,
		inv.Barcode, inv.CNPJ, inv.NFNumber, inv.NFSeries, inv.IssueDate,
		inv.NFValue, inv.ICMSBase, inv.ICMSRate, inv.ICMSValue,
		inv.DueDate, inv.AccountingDate, inv.InvoiceNumber, createdAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert invoice")
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "postgres: commit tx")
	}

	return OutcomeInserted, nil
}
