// Package extract turns invoice PDF plaintext into canonical records using
// operator-specific labeled-field rules. Every rule is independent and
// optional: a rule that finds no match leaves its field nil, and no rule
// failure aborts extraction of the remaining fields.
package extract

import (
	"strings"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
)

// ClassifyOperator identifies the issuing carrier by case-insensitive
// substring match. Unrecognized text yields OperatorUnknown; it never fails.
func ClassifyOperator(text string) model.Operator {
	folded := strings.ToLower(StripAccents(text))
	switch {
	case strings.Contains(folded, "telefonica") || strings.Contains(folded, "vivo"):
		return model.OperatorVivo
	case strings.Contains(folded, "claro"):
		return model.OperatorClaro
	default:
		return model.OperatorUnknown
	}
}

// Extract applies the rule set for the given operator to the PDF plaintext.
// Multi-page documents are expected as concatenated page text.
func Extract(op model.Operator, text string) model.Invoice {
	switch op {
	case model.OperatorVivo:
		return extractVivo(text)
	case model.OperatorClaro:
		return extractClaro(text)
	default:
		return model.Invoice{Operator: model.OperatorUnknown}
	}
}
