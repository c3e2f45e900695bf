package harvest

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
)

// UnitStatus tracks a pending unit through the run.
type UnitStatus string

const (
	UnitPending UnitStatus = "pending"
	UnitSuccess UnitStatus = "success"
	UnitFailed  UnitStatus = "failed"
	// UnitSkipped marks a unit whose canonical target file already existed.
	UnitSkipped UnitStatus = "skipped"
	// UnitNoInvoices marks the "no invoices available" terminal business
	// outcome; it is informational and excluded from retry.
	UnitNoInvoices UnitStatus = "no_invoices"
)

// Unit is one schedulable work item discovered during the traversal, with
// its outcome. Units are never silently discarded: every terminal failure
// is also written to the ledger.
type Unit struct {
	ID       string
	Account  string
	Page     int
	Position int
	Status   UnitStatus
	Reason   string
}

var accountKeySeparators = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// AccountKey normalizes an account identifier (e.g. a CNPJ like
// "12.345.678/0001-90") into a filesystem-safe directory name.
func AccountKey(account string) string {
	return strings.Trim(accountKeySeparators.ReplaceAllString(account, "-"), "-")
}

// CanonicalFileName derives the deterministic invoice filename used both to
// store downloads and to detect already-processed units.
func CanonicalFileName(op model.Operator, code string, due time.Time) string {
	return fmt.Sprintf("%s_%s_%s.pdf", strings.ToLower(string(op)), code, due.Format("02012006"))
}
