package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
)

// Claro invoices lose their layout under text extraction, so the whole
// document is flattened to one whitespace-collapsed string before matching.
var (
	claroContractRe   = regexp.MustCompile(`(?i)Codigo[:\s]*(\d+/\d+)`)
	claroInvoiceRe    = regexp.MustCompile(`(?i)Numero[:\s]*(\d+)`)
	claroNFNumberRe   = regexp.MustCompile(`(?i)Numero[:\s]*(\d{6,})`)
	claroSupplierRe   = regexp.MustCompile(`(?i)(Claro\s+NXT\s+Telecomunicacoes\s+S\.?A\.?)`)
	claroIssueRe      = regexp.MustCompile(`(?i)Emissao[:\s]*(\d{2}/\d{2}/\d{4})`)
	claroDueRe        = regexp.MustCompile(`(?i)Vencimento[:\s]*(\d{2}/\d{2}/\d{4})`)
	claroTotalRe      = regexp.MustCompile(`(?i)Valor total[:\s]*([\d.,]+)`)
	claroInterestRe   = regexp.MustCompile(`(?i)juros .*?([\d.,]+)%`)
	claroCNPJRe       = regexp.MustCompile(`(?i)CNPJ[:\s]*([\d./-]+)`)
	claroNFValueRe    = regexp.MustCompile(`(?i)VALOR\s*DA\s*NOTA\s*FISCAL[:\s]*([\d.,]+)`)
	claroNFValueAltRe = regexp.MustCompile(`(?i)VALOR\s*DA\s*NOTA\s*FISCAL[:\s]*.*?(\d+[.,]\d+)`)
	claroSeriesRe     = regexp.MustCompile(`(?i)SERIE[:\s]*([A-Z0-9]+)`)
	claroICMSValueRe  = regexp.MustCompile(`(?i)ICMS.*?Valor[:\s]*([\d.,]+)`)
	claroICMSBaseRe   = regexp.MustCompile(`(?i)Base de Calculo[:\s]*([\d.,]+)`)
	claroICMSRateRe   = regexp.MustCompile(`(?i)Aliquota[:\s]*([\d.,]+)%`)
)

func extractClaro(text string) model.Invoice {
	inv := model.Invoice{
		Operator: model.OperatorClaro,
		// Claro invoices carry a fixed contractual late fee.
		FineValue: model.Ptr("2%"),
	}

	flat := CollapseWhitespace(StripAccents(text))

	if v, ok := firstGroup(claroContractRe, flat); ok {
		inv.ContractNumber = model.Ptr(v)
	}
	if v, ok := firstGroup(claroInvoiceRe, flat); ok {
		inv.InvoiceNumber = model.Ptr(v)
	}
	if v, ok := firstGroup(claroNFNumberRe, flat); ok {
		inv.NFNumber = model.Ptr(v)
	}
	if v, ok := firstGroup(claroSupplierRe, flat); ok {
		inv.SupplierName = model.Ptr(v)
	}
	if v, ok := firstGroup(claroIssueRe, flat); ok {
		if d, err := ParseDate(v); err == nil {
			inv.IssueDate = &d
		}
	}
	if v, ok := firstGroup(claroDueRe, flat); ok {
		if d, err := ParseDate(v); err == nil {
			inv.DueDate = &d
		}
	}
	if v, ok := firstGroup(claroTotalRe, flat); ok {
		if amount, err := ParseMoney(v); err == nil {
			inv.TotalAmount = &amount
		}
	}
	if v, ok := firstGroup(claroInterestRe, flat); ok {
		inv.InterestValue = model.Ptr(v + "% ao mês")
	}
	if strings.Contains(strings.ToUpper(flat), "DEBITO AUTOMATICO") {
		inv.PaymentMethod = model.Ptr("Débito Automático")
	}
	if v, ok := firstGroup(claroCNPJRe, flat); ok {
		inv.CNPJ = model.Ptr(v)
	}
	if v, ok := firstOf(flat, claroNFValueRe, claroNFValueAltRe); ok {
		// The NF value field uses plain comma decimals, no thousand dots.
		if amount, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64); err == nil {
			inv.NFValue = &amount
		}
	}
	if v, ok := firstGroup(claroSeriesRe, flat); ok {
		inv.NFSeries = model.Ptr(v)
	}
	if v, ok := firstGroup(claroICMSValueRe, flat); ok {
		if amount, err := ParseMoney(v); err == nil {
			inv.ICMSValue = &amount
		}
	}
	if v, ok := firstGroup(claroICMSBaseRe, flat); ok {
		if amount, err := ParseMoney(v); err == nil {
			inv.ICMSBase = &amount
		}
	}
	if v, ok := firstGroup(claroICMSRateRe, flat); ok {
		inv.ICMSRate = model.Ptr(v + "%")
	}

	return inv
}
