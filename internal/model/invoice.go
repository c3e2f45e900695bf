package model

import (
	"time"
)

// Operator identifies the telecom carrier that issued an invoice.
type Operator string

const (
	OperatorVivo    Operator = "VIVO"
	OperatorClaro   Operator = "CLARO"
	OperatorUnknown Operator = "DESCONHECIDA"
)

// FolderName returns the directory name used under the download base for
// this operator.
func (o Operator) FolderName() string {
	switch o {
	case OperatorVivo:
		return "Vivo"
	case OperatorClaro:
		return "Claro"
	default:
		return "Desconhecida"
	}
}

// Invoice is the canonical record extracted from one invoice PDF. Every
// field except Operator is optional: extraction rules that find no match
// leave the field nil rather than failing the whole document.
type Invoice struct {
	ID             string     `json:"id"`
	Operator       Operator   `json:"operadora"`
	ContractNumber *string    `json:"numero_contrato"`
	SupplierName   *string    `json:"nome_fornecedor"`
	TotalAmount    *float64   `json:"valor_total"`
	FineValue      *string    `json:"valores_multa"`
	InterestValue  *string    `json:"valores_juros"`
	Withholdings   *float64   `json:"valores_retencoes"`
	PaymentMethod  *string    `json:"forma_pagamento"`
	Barcode        *string    `json:"codigo_barras"`
	CNPJ           *string    `json:"numero_cnpj"`
	NFNumber       *string    `json:"numero_nf"`
	NFSeries       *string    `json:"numero_serie"`
	IssueDate      *time.Time `json:"data_emissao"`
	NFValue        *float64   `json:"valor_nf"`
	ICMSBase       *float64   `json:"base_calculo_icms"`
	ICMSRate       *string    `json:"valor_aliquota"`
	ICMSValue      *float64   `json:"valor_icms"`
	DueDate        *time.Time `json:"data_vencimento"`
	AccountingDate *time.Time `json:"data_contabil"`
	InvoiceNumber  *string    `json:"numero_fatura"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DedupKey is the identity used for deduplication: two records sharing the
// same key are the same invoice and must not be stored twice.
type DedupKey struct {
	InvoiceNumber  string
	ContractNumber string
	CNPJ           string
}

// Key returns the deduplication identity of the invoice. Nil fields map to
// empty strings, matching how the store compares them.
func (inv *Invoice) Key() DedupKey {
	return DedupKey{
		InvoiceNumber:  deref(inv.InvoiceNumber),
		ContractNumber: deref(inv.ContractNumber),
		CNPJ:           deref(inv.CNPJ),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr returns a pointer to v. Convenience for building optional fields.
func Ptr[T any](v T) *T { return &v }
