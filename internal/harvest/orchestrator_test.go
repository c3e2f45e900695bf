package harvest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/portal"
)

// portalSim simulates a whole operator portal behind every capability
// interface at once: accounts, paginated listings, downloads landing in the
// staging directory, and session state.
type portalSim struct {
	staging  string
	accounts []string
	// pages maps account → listing pages → units. An account with zero
	// pages renders the "no invoices" empty listing.
	pages map[string][][]portal.UnitRef

	location    string
	selected    string
	pageIdx     int
	pendingSwap bool

	// failuresLeft counts StartDownload calls per unit that must fail
	// before one succeeds.
	failuresLeft map[string]int
	noInvoices   map[string]bool
	unselectable map[string]bool
	started      map[string]int
	logins       int
}

func newPortalSim(staging string, accounts ...string) *portalSim {
	return &portalSim{
		staging:      staging,
		accounts:     accounts,
		pages:        make(map[string][][]portal.UnitRef),
		location:     "https://portal.example/faturas",
		failuresLeft: make(map[string]int),
		noInvoices:   make(map[string]bool),
		unselectable: make(map[string]bool),
		started:      make(map[string]int),
	}
}

func (s *portalSim) Navigate(ctx context.Context, url string) error {
	s.location = url
	s.pageIdx = 0
	s.pendingSwap = false
	return nil
}

func (s *portalSim) Location(ctx context.Context) (string, error) { return s.location, nil }

func (s *portalSim) FormVisible(ctx context.Context) (bool, error) { return false, nil }

func (s *portalSim) PerformLogin(ctx context.Context, username, password string) error {
	s.logins++
	s.location = "https://portal.example/faturas"
	return nil
}

func (s *portalSim) Open(ctx context.Context) error { return nil }

func (s *portalSim) Accounts(ctx context.Context) ([]string, error) { return s.accounts, nil }

func (s *portalSim) Select(ctx context.Context, account string) (bool, error) {
	for _, a := range s.accounts {
		if a == account && !s.unselectable[a] {
			s.selected = account
			s.pageIdx = 0
			s.pendingSwap = false
			return true, nil
		}
	}
	return false, nil
}

func (s *portalSim) Close(ctx context.Context) error { return nil }

func (s *portalSim) AwaitStable(ctx context.Context) error {
	if len(s.pages[s.selected]) == 0 {
		return portal.ErrRenderTimeout
	}
	return nil
}

func (s *portalSim) FirstRowMarker(ctx context.Context) (string, error) {
	if s.pendingSwap {
		s.pageIdx++
		s.pendingSwap = false
	}
	return fmt.Sprintf("%s-page-%d", s.selected, s.pageIdx), nil
}

func (s *portalSim) NextEnabled(ctx context.Context) (bool, error) {
	return s.pageIdx < len(s.pages[s.selected])-1, nil
}

func (s *portalSim) ClickNext(ctx context.Context) error {
	s.pendingSwap = true
	return nil
}

func (s *portalSim) Units(ctx context.Context) ([]portal.UnitRef, error) {
	return s.pages[s.selected][s.pageIdx], nil
}

func (s *portalSim) StartDownload(ctx context.Context, unit portal.UnitRef) (portal.StartResult, error) {
	s.started[unit.ID]++
	if s.noInvoices[unit.ID] {
		return portal.StartResult{Started: false}, nil
	}
	if s.failuresLeft[unit.ID] > 0 {
		s.failuresLeft[unit.ID]--
		return portal.StartResult{}, eris.New("stale element reference")
	}
	path := filepath.Join(s.staging, unit.ID+".pdf")
	if err := os.WriteFile(path, []byte("%PDF "+unit.ID), 0o644); err != nil {
		return portal.StartResult{}, err
	}
	return portal.StartResult{Started: true}, nil
}

type recordingProcessor struct {
	paths []string
	err   error
}

func (p *recordingProcessor) ProcessFile(ctx context.Context, path string) error {
	p.paths = append(p.paths, path)
	return p.err
}

type harness struct {
	sim       *portalSim
	orch      *Orchestrator
	processor *recordingProcessor
	ledger    *Ledger
	baseDir   string
}

func newHarness(t *testing.T, sim *portalSim, retryRounds int) *harness {
	t.Helper()

	baseDir := t.TempDir()
	ledger, err := NewLedger(baseDir, model.OperatorVivo)
	require.NoError(t, err)

	downloads := NewDownloads(sim.staging)
	downloads.pollInterval = 2 * time.Millisecond

	guard := portal.NewSessionGuard(sim, sim, portal.Credentials{
		LoginURL: "https://portal.example/login", Username: "u", Password: "p",
	})
	walker := portal.NewWalker(sim, sim, portal.WalkerConfig{
		MarkerTimeout: 100 * time.Millisecond,
		PollInterval:  2 * time.Millisecond,
	})
	processor := &recordingProcessor{}

	orch := NewOrchestrator(
		Config{
			Operator:         model.OperatorVivo,
			BaseDir:          baseDir,
			ListingURL:       "https://portal.example/faturas",
			MaxAttempts:      3,
			RetryRounds:      retryRounds,
			DownloadTimeout:  2 * time.Second,
			ActionsPerSecond: 1000,
		},
		guard, sim, sim, walker, downloads, ledger, processor,
	)
	orch.retry.InitialBackoff = time.Millisecond
	orch.retry.MaxBackoff = 5 * time.Millisecond

	return &harness{sim: sim, orch: orch, processor: processor, ledger: ledger, baseDir: baseDir}
}

func unitRef(id string, pos int) portal.UnitRef {
	return portal.UnitRef{ID: id, Position: pos, CanonicalName: "vivo_" + id + "_01022026.pdf"}
}

func TestRunHappyPathTwoPages(t *testing.T) {
	sim := newPortalSim(t.TempDir(), "12.345.678/0001-90")
	sim.pages["12.345.678/0001-90"] = [][]portal.UnitRef{
		{unitRef("0011", 1), unitRef("0012", 2)},
		{unitRef("0013", 1)},
	}
	h := newHarness(t, sim, 1)

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Accounts)
	assert.Equal(t, 3, report.Units)
	assert.Equal(t, 3, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.RetryRounds)

	accountDir := filepath.Join(h.baseDir, "Vivo", "12-345-678-0001-90")
	for _, id := range []string{"0011", "0012", "0013"} {
		assert.FileExists(t, filepath.Join(accountDir, "vivo_"+id+"_01022026.pdf"))
	}
	assert.Len(t, h.processor.paths, 3)

	records, err := h.ledger.Records()
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.FileExists(t, filepath.Join(h.baseDir, "vivo_run_report.yaml"))
}

func TestRunTransientFailureRecoversWithinBudget(t *testing.T) {
	sim := newPortalSim(t.TempDir(), "ACC1")
	sim.pages["ACC1"] = [][]portal.UnitRef{{unitRef("0021", 1)}}
	sim.failuresLeft["0021"] = 2
	h := newHarness(t, sim, 1)

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 3, sim.started["0021"])

	records, err := h.ledger.Records()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRunPersistentFailureRecoversInRetryRound(t *testing.T) {
	sim := newPortalSim(t.TempDir(), "ACC1")
	sim.pages["ACC1"] = [][]portal.UnitRef{
		{unitRef("0031", 1), unitRef("0032", 2)},
	}
	// 0031 burns the whole first-pass budget and two more attempts in the
	// retry round before succeeding.
	sim.failuresLeft["0031"] = 5
	h := newHarness(t, sim, 3)

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 1, report.RetryRounds)
	assert.Equal(t, 6, sim.started["0031"])
	// The already-succeeded companion unit is not re-downloaded.
	assert.Equal(t, 1, sim.started["0032"])

	records, err := h.ledger.Records()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, "ACC1", records[0].Client)
	require.NotNil(t, records[0].Page)
	assert.Equal(t, 1, *records[0].Page)
	require.NotNil(t, records[0].Position)
	assert.Equal(t, 1, *records[0].Position)
}

func TestRunAttemptBudgetIsBounded(t *testing.T) {
	sim := newPortalSim(t.TempDir(), "ACC1")
	sim.pages["ACC1"] = [][]portal.UnitRef{{unitRef("0041", 1)}}
	sim.failuresLeft["0041"] = 1000
	h := newHarness(t, sim, 3)

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	// 3 attempts on the first pass plus 3 per retry round, never more.
	assert.Equal(t, 12, sim.started["0041"])
	assert.Equal(t, 3, report.RetryRounds)
}

func TestRunSkipsAlreadyDownloadedUnit(t *testing.T) {
	sim := newPortalSim(t.TempDir(), "ACC1")
	sim.pages["ACC1"] = [][]portal.UnitRef{{unitRef("0051", 1)}}
	h := newHarness(t, sim, 1)

	accountDir := filepath.Join(h.baseDir, "Vivo", "ACC1")
	require.NoError(t, os.MkdirAll(accountDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(accountDir, "vivo_0051_01022026.pdf"), []byte("%PDF"), 0o644))

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Succeeded)
	assert.Zero(t, sim.started["0051"])
	assert.Empty(t, h.processor.paths)
}

func TestRunNoInvoicesIsTerminalNonFailure(t *testing.T) {
	sim := newPortalSim(t.TempDir(), "ACC1")
	sim.pages["ACC1"] = [][]portal.UnitRef{{unitRef("0061", 1)}}
	sim.noInvoices["0061"] = true
	h := newHarness(t, sim, 3)

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.NoInvoices)
	assert.Zero(t, report.Failed)
	// Never retried: the outcome is terminal.
	assert.Equal(t, 1, sim.started["0061"])
	assert.Zero(t, report.RetryRounds)

	records, err := h.ledger.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Reason, "nenhuma fatura")
}

func TestRunEmptyAccountListing(t *testing.T) {
	sim := newPortalSim(t.TempDir(), "ACC1")
	sim.pages["ACC1"] = nil
	h := newHarness(t, sim, 1)

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Units)
	records, err := h.ledger.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Reason, "Nenhuma fatura disponível")
}

func TestRunExtractionFailureKeepsDownload(t *testing.T) {
	sim := newPortalSim(t.TempDir(), "ACC1")
	sim.pages["ACC1"] = [][]portal.UnitRef{{unitRef("0071", 1)}}
	h := newHarness(t, sim, 1)
	h.processor.err = eris.New("pdftotext failed")

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	// The download stands; only the extraction error is accounted.
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.ExtractionErrors)
	assert.FileExists(t, filepath.Join(h.baseDir, "Vivo", "ACC1", "vivo_0071_01022026.pdf"))

	records, err := h.ledger.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Reason, "extração")
}

func TestRunMissingAccountIsLedgeredAndRunContinues(t *testing.T) {
	sim := newPortalSim(t.TempDir(), "GHOST", "ACC2")
	// GHOST appears in the snapshot but disappears from the rendered list
	// before it can ever be selected.
	sim.unselectable["GHOST"] = true
	sim.pages["ACC2"] = [][]portal.UnitRef{{unitRef("0081", 1)}}
	h := newHarness(t, sim, 0)

	report, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Accounts)
	assert.Equal(t, 1, report.Succeeded)

	records, err := h.ledger.Records()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Contains(t, records[0].Reason, "falha ao selecionar conta")
	assert.Equal(t, "GHOST", records[0].Client)
}
