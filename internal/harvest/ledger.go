package harvest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
)

const failureTimeLayout = "2006-01-02 15:04:05"

// FailureRecord is one append-only ledger entry. Vivo entries key on the
// client (CNPJ), Claro entries on the contract; the ledger never mutates or
// deletes entries.
type FailureRecord struct {
	Client   string `json:"cliente,omitempty"`
	Contract string `json:"contrato,omitempty"`
	Page     *int   `json:"pagina"`
	Position *int   `json:"posicao"`
	Date     string `json:"data"`
	Reason   string `json:"erro"`
}

// Ledger is the per-operator failure audit file at
// <downloadRoot>/<operator>_failures.json, rewritten to disk on every
// append so that process termination never loses recorded failures.
type Ledger struct {
	path string
	mu   sync.Mutex
}

// NewLedger opens (creating if needed) the failure ledger for an operator.
func NewLedger(downloadRoot string, op model.Operator) (*Ledger, error) {
	if err := os.MkdirAll(downloadRoot, 0o755); err != nil {
		return nil, eris.Wrapf(err, "ledger: create download root %s", downloadRoot)
	}
	path := filepath.Join(downloadRoot, strings.ToLower(string(op))+"_failures.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return nil, eris.Wrapf(err, "ledger: initialize %s", path)
		}
	}
	return &Ledger{path: path}, nil
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Append stamps the record with the current local time (unless already
// dated) and flushes the full array back to disk.
func (l *Ledger) Append(rec FailureRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Date == "" {
		rec.Date = time.Now().Format(failureTimeLayout)
	}

	records, err := l.read()
	if err != nil {
		return err
	}
	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return eris.Wrap(err, "ledger: marshal failures")
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return eris.Wrapf(err, "ledger: write %s", l.path)
	}
	return nil
}

// Records returns every failure recorded so far.
func (l *Ledger) Records() ([]FailureRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *Ledger) read() ([]FailureRecord, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ledger: read %s", l.path)
	}
	var records []FailureRecord
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, eris.Wrapf(err, "ledger: decode %s", l.path)
		}
	}
	return records, nil
}
