// Package store persists canonical invoice records with deduplication on
// the (invoice number, contract number, CNPJ) identity.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
)

// Outcome is the result of an insert attempt.
type Outcome string

const (
	OutcomeInserted      Outcome = "inserted"
	OutcomeAlreadyExists Outcome = "already_exists"
)

// Store defines the persistence gateway for extracted invoices.
type Store interface {
	// Exists reports whether an invoice with the given dedup identity is
	// already stored. Nil extraction fields are compared as empty strings.
	Exists(ctx context.Context, invoiceNumber, contractNumber, cnpj string) (bool, error)

	// Insert stores the invoice unless a record with the same dedup
	// identity already exists. The existence check and the insert run in
	// one transaction.
	Insert(ctx context.Context, inv *model.Invoice) (Outcome, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a store backend.
type Config struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
