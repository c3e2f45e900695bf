package extract

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
)

// Vivo invoices keep a line-oriented layout; most labels sit at the start
// of their own line. Patterns are written against accent-folded text.
var (
	vivoSupplierRe   = regexp.MustCompile(`(?i)telefonica|vivo`)
	vivoDueRe        = regexp.MustCompile(`(?i)VENCIMENTO\s*(\d{2}/\d{2}/\d{4})`)
	vivoTotalRe      = regexp.MustCompile(`(?i)TOTAL GERAL\s*([\d.,]+)`)
	vivoFineRe       = regexp.MustCompile(`(\d+)% de multa`)
	vivoInterestRe   = regexp.MustCompile(`(\d+)% de juros ao mes`)
	vivoBarcodeRe    = regexp.MustCompile(`(\d{44})`)
	vivoBankRe       = regexp.MustCompile(`(?i)Banco\s+(\w+)`)
	vivoCNPJRe       = regexp.MustCompile(`\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}`)
	vivoNFFSTRe      = regexp.MustCompile(`NFFST:\s*(\S+)`)
	vivoNFCOMRe      = regexp.MustCompile(`(?i)N[º°]?\s*NFCOM\s+(\d+)`)
	vivoSeriesRe     = regexp.MustCompile(`(?i)Serie:\s*(\S+)`)
	vivoSeriesAltRe  = regexp.MustCompile(`(?i)SERIE\s+(\d+)`)
	vivoNFValueRe    = regexp.MustCompile(`TOTAL GERAL NOTA FISCAL\s*([\d.,]+)`)
	vivoNFValueAltRe = regexp.MustCompile(`(?i)VALOR TOTAL NF\s*([\d.,]+)`)
	vivoICMSBaseRe   = regexp.MustCompile(`Base de Calculo:\s*R\$ ([\d.,]+)`)
	vivoICMSBaseAlt  = regexp.MustCompile(`(?i)BASE DE CALCULO\s*([\d.,]+)`)
	vivoICMSRateRe   = regexp.MustCompile(`ICMS:\s*(\d+)%`)
	vivoICMSRateAlt  = regexp.MustCompile(`(\d{1,2},\d{2}%)`)
	vivoICMSValueRe  = regexp.MustCompile(`Valor ICMS:\s*R\$ ([\d.,]+)`)
	vivoICMSValueAlt = regexp.MustCompile(`(?i)VALOR ICMS\s*([\d.,]+)`)
)

var ptTitle = cases.Title(language.BrazilianPortuguese)

func extractVivo(text string) model.Invoice {
	inv := model.Invoice{Operator: model.OperatorVivo}

	folded := StripAccents(text)
	lines := strings.Split(folded, "\n")

	if v, ok := afterLabel(lines, "Numero da Conta:"); ok {
		inv.ContractNumber = model.Ptr(v)
	}
	for _, line := range lines {
		if vivoSupplierRe.MatchString(line) {
			inv.SupplierName = model.Ptr(strings.TrimSpace(line))
			break
		}
	}
	if v, ok := afterLabel(lines, "Numero da Fatura:"); ok {
		inv.InvoiceNumber = model.Ptr(v)
	}
	if v, ok := afterLabel(lines, "Data de Emissao:"); ok {
		if d, err := ParseDate(v); err == nil {
			inv.IssueDate = &d
		}
	}
	if v, ok := firstGroup(vivoDueRe, folded); ok {
		if d, err := ParseDate(v); err == nil {
			inv.DueDate = &d
		}
	}
	if v, ok := firstGroup(vivoTotalRe, folded); ok {
		if amount, err := ParseMoney(v); err == nil {
			inv.TotalAmount = &amount
		}
	}
	if v, ok := firstGroup(vivoFineRe, folded); ok {
		inv.FineValue = model.Ptr(v + "%")
	}
	if v, ok := firstGroup(vivoInterestRe, folded); ok {
		inv.InterestValue = model.Ptr(v + "% ao mês")
	}
	if v, ok := firstGroup(vivoBarcodeRe, strings.ReplaceAll(folded, " ", "")); ok {
		inv.Barcode = model.Ptr(v)
	}

	inv.PaymentMethod = vivoPaymentMethod(lines, inv.Barcode)

	if v := vivoCNPJRe.FindString(folded); v != "" {
		inv.CNPJ = model.Ptr(v)
	}
	if v, ok := firstOf(folded, vivoNFFSTRe, vivoNFCOMRe); ok {
		inv.NFNumber = model.Ptr(v)
	}
	if v, ok := firstOf(folded, vivoSeriesRe, vivoSeriesAltRe); ok {
		inv.NFSeries = model.Ptr(v)
	}
	if v, ok := firstOf(folded, vivoNFValueRe, vivoNFValueAltRe); ok {
		if amount, err := ParseMoney(v); err == nil {
			inv.NFValue = &amount
		}
	}
	if v, ok := firstOf(folded, vivoICMSBaseRe, vivoICMSBaseAlt); ok {
		if amount, err := ParseMoney(v); err == nil {
			inv.ICMSBase = &amount
		}
	}
	if v, ok := firstGroup(vivoICMSRateRe, folded); ok {
		inv.ICMSRate = model.Ptr(v + "%")
	} else if v, ok := firstGroup(vivoICMSRateAlt, folded); ok {
		inv.ICMSRate = model.Ptr(v)
	}
	if v, ok := firstOf(folded, vivoICMSValueRe, vivoICMSValueAlt); ok {
		if amount, err := ParseMoney(v); err == nil {
			inv.ICMSValue = &amount
		}
	}

	return inv
}

// afterLabel returns the trimmed remainder of the first line containing the
// label.
func afterLabel(lines []string, label string) (string, bool) {
	for _, line := range lines {
		if idx := strings.Index(line, label); idx >= 0 {
			v := strings.TrimSpace(line[idx+len(label):])
			if v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// firstOf tries each pattern in order and returns the first capture found.
func firstOf(text string, res ...*regexp.Regexp) (string, bool) {
	for _, re := range res {
		if v, ok := firstGroup(re, text); ok {
			return v, true
		}
	}
	return "", false
}

func vivoPaymentMethod(lines []string, barcode *string) *string {
	for _, line := range lines {
		if strings.Contains(strings.ToUpper(line), "DEBITO AUTOMATICO") {
			method := "Débito Automático"
			if bank, ok := firstGroup(vivoBankRe, line); ok {
				method += fmt.Sprintf(" (%s)", ptTitle.String(strings.ToLower(bank)))
			}
			return model.Ptr(method)
		}
	}
	if barcode != nil {
		return model.Ptr(fmt.Sprintf("Boleto (código de barras: %s)", *barcode))
	}
	return nil
}
