package harvest

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Report is the structured per-run summary returned by the orchestrator.
// It replaces module-level counters with explicit state that travels with
// the run.
type Report struct {
	Operator         string    `yaml:"operadora"`
	StartedAt        time.Time `yaml:"inicio"`
	FinishedAt       time.Time `yaml:"fim"`
	Accounts         int       `yaml:"contas"`
	Units            int       `yaml:"unidades"`
	Succeeded        int       `yaml:"sucessos"`
	Failed           int       `yaml:"falhas"`
	Skipped          int       `yaml:"ja_baixadas"`
	NoInvoices       int       `yaml:"sem_faturas"`
	RetryRounds      int       `yaml:"rodadas_retentativa"`
	ExtractionErrors int       `yaml:"erros_extracao"`
}

// WriteFile writes the report as YAML.
func (r *Report) WriteFile(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "report: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}
