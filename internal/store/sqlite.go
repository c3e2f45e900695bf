package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// runs without a postgres instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
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
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS faturas (
	id                TEXT PRIMARY KEY,
	operadora         TEXT NOT NULL,
	numero_contrato   TEXT,
	nome_fornecedor   TEXT,
	valor_total       REAL,
	valores_multa     TEXT,
	valores_juros     TEXT,
	valores_retencoes REAL,
	forma_pagamento   TEXT,
	codigo_barras     TEXT,
	numero_cnpj       TEXT,
	numero_nf         TEXT,
	numero_serie      TEXT,
	data_emissao      DATE,
	valor_nf          REAL,
	base_calculo_icms REAL,
	valor_aliquota    TEXT,
	valor_icms        REAL,
	data_vencimento   DATE,
	data_contabil     DATE,
	numero_fatura     TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_faturas_identidade
	ON faturas (COALESCE(numero_fatura,''), COALESCE(numero_contrato,''), COALESCE(numero_cnpj,''));
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteExistsQuery = `SELECT EXISTS (
	SELECT 1 FROM faturas
	WHERE COALESCE(numero_fatura,'') = ?
	  AND COALESCE(numero_contrato,'') = ?
	  AND COALESCE(numero_cnpj,'') = ?
)`

func (s *SQLiteStore) Exists(ctx context.Context, invoiceNumber, contractNumber, cnpj string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, sqliteExistsQuery, invoiceNumber, contractNumber, cnpj).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: check invoice exists")
	}
	return exists, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, inv *model.Invoice) (Outcome, error) {
	key := inv.Key()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var exists bool
	if err := tx.QueryRowContext(ctx, sqliteExistsQuery, key.InvoiceNumber, key.ContractNumber, key.CNPJ).Scan(&exists); err != nil {
		return "", eris.Wrap(err, "sqlite: check invoice exists")
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

	_, err = tx.ExecContext(ctx, `INSERT INTO faturas (
		id, operadora, numero_contrato, nome_fornecedor, valor_total,
		valores_multa, valores_juros, valores_retencoes, forma_pagamento,
		codigo_barras, numero_cnpj, numero_nf, numero_serie, data_emissao,
		valor_nf, base_calculo_icms, valor_aliquota, valor_icms,
		data_vencimento, data_contabil, numero_fatura, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(inv.Operator), inv.ContractNumber, inv.SupplierName, inv.TotalAmount,
		inv.FineValue, inv.InterestValue, inv.Withholdings, inv.PaymentMethod,
		inv.Barcode, inv.CNPJ, inv.NFNumber, inv.NFSeries, inv.IssueDate,
		inv.NFValue, inv.ICMSBase, inv.ICMSRate, inv.ICMSValue,
		inv.DueDate, inv.AccountingDate, inv.InvoiceNumber, createdAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert invoice")
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit tx")
	}

	return OutcomeInserted, nil
}
