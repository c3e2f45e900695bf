// Package harvest contains the invoice-harvesting orchestration engine: a
// single sequential state machine that walks every account and listing
// page of a portal session, drives idempotent downloads with bounded
// retries, and records every failure for later inspection.
package harvest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/portal"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/resilience"
)

// errNoInvoices flags the "no invoices available" UI state for a unit: a
// terminal business outcome, never retried.
var errNoInvoices = eris.New("harvest: no invoices available for unit")

// Processor consumes each downloaded file immediately after it lands in
// its target location.
type Processor interface {
	ProcessFile(ctx context.Context, path string) error
}

// Config tunes one orchestrator run.
type Config struct {
	Operator model.Operator
	// BaseDir is the target root; files land under
	// <BaseDir>/<Operator>/<AccountKey>.
	BaseDir string
	// ListingURL is the known-good listing state retry rounds restart
	// from. Pagination position is not stable across reloads, so recovery
	// always re-walks from page 1.
	ListingURL string
	// MaxAttempts is the per-unit and per-account-selection attempt
	// budget. Default: 3.
	MaxAttempts int
	// RetryRounds bounds the full re-attempt passes over failed units
	// after the first pass. Default: 3.
	RetryRounds int
	// DownloadTimeout bounds the wait for a browser download to land.
	// Default: 60s.
	DownloadTimeout time.Duration
	// ActionsPerSecond paces portal interactions. Default: 2.
	ActionsPerSecond float64
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryRounds <= 0 {
		c.RetryRounds = 3
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 60 * time.Second
	}
	if c.ActionsPerSecond <= 0 {
		c.ActionsPerSecond = 2
	}
	return c
}

// Orchestrator drives the whole traversal for one operator. All portal and
// filesystem access is sequential: the browser session and the staging
// directory are shared mutable context with no safe concurrent access.
type Orchestrator struct {
	cfg       Config
	guard     *portal.SessionGuard
	accounts  portal.AccountList
	listing   portal.Listing
	walker    *portal.Walker
	downloads *Downloads
	ledger    *Ledger
	processor Processor
	pace      *rate.Limiter
	retry     resilience.RetryConfig
	log       *zap.Logger

	units  map[string]*Unit
	report *Report
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(
	cfg Config,
	guard *portal.SessionGuard,
	accounts portal.AccountList,
	listing portal.Listing,
	walker *portal.Walker,
	downloads *Downloads,
	ledger *Ledger,
	processor Processor,
) *Orchestrator {
	cfg = cfg.withDefaults()
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.MaxAttempts
	return &Orchestrator{
		cfg:       cfg,
		guard:     guard,
		accounts:  accounts,
		listing:   listing,
		walker:    walker,
		downloads: downloads,
		ledger:    ledger,
		processor: processor,
		pace:      rate.NewLimiter(rate.Limit(cfg.ActionsPerSecond), 1),
		retry:     retryCfg,
		log:       zap.L().With(zap.String("component", "harvest"), zap.String("operator", string(cfg.Operator))),
		units:     make(map[string]*Unit),
	}
}

// Run executes one full harvest: a first pass over every account in the
// snapshot taken at account-list open time, then bounded retry rounds over
// the units that failed. No unit failure terminates the outer account
// loop; only total session death aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	o.report = &Report{
		Operator:  string(o.cfg.Operator),
		StartedAt: time.Now().UTC(),
	}

	if _, err := o.guard.EnsureLoggedIn(ctx); err != nil {
		return o.finish(), eris.Wrap(err, "harvest: initial login")
	}

	if err := o.accounts.Open(ctx); err != nil {
		return o.finish(), eris.Wrap(err, "harvest: open account list")
	}
	// Snapshot once: accounts appearing later in the same run are out of
	// scope.
	accounts, err := o.accounts.Accounts(ctx)
	if err != nil {
		return o.finish(), eris.Wrap(err, "harvest: list accounts")
	}
	o.report.Accounts = len(accounts)
	o.log.Info("accounts discovered", zap.Int("count", len(accounts)))

	for _, account := range accounts {
		if ctx.Err() != nil {
			return o.finish(), ctx.Err()
		}
		o.runAccount(ctx, account)
	}
	_ = o.accounts.Close(ctx)

	for round := 1; round <= o.cfg.RetryRounds; round++ {
		pending := o.accountsWithFailedUnits()
		if len(pending) == 0 {
			break
		}
		o.report.RetryRounds = round
		o.log.Info("starting retry round",
			zap.Int("round", round),
			zap.Int("accounts", len(pending)),
		)

		if err := o.walker.Restart(ctx, o.cfg.ListingURL); err != nil {
			o.log.Warn("retry round restart failed", zap.Error(err))
			break
		}
		if err := o.accounts.Open(ctx); err != nil {
			o.log.Warn("retry round could not reopen account list", zap.Error(err))
			break
		}
		for _, account := range pending {
			if ctx.Err() != nil {
				return o.finish(), ctx.Err()
			}
			o.resetFailedUnits(account)
			o.runAccount(ctx, account)
		}
	}

	return o.finish(), ctx.Err()
}

// runAccount selects the account (with bounded retries, reopening the list
// when the rendered reference went stale) and harvests its listing. On
// exhaustion the account is recorded to the ledger and abandoned; the run
// continues with the next account.
func (o *Orchestrator) runAccount(ctx context.Context, account string) {
	log := o.log.With(zap.String("account", account))

	var lastErr error
	selected := false
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if err := o.pace.Wait(ctx); err != nil {
			return
		}

		relogged, err := o.guard.EnsureLoggedIn(ctx)
		if err != nil {
			lastErr = err
			if errors.Is(err, portal.ErrRecoveryExhausted) {
				break
			}
			continue
		}
		if relogged {
			// Re-login lands on the home page; the account list must be
			// rendered again before selection.
			if err := o.accounts.Open(ctx); err != nil {
				lastErr = err
				continue
			}
		}

		ok, err := o.accounts.Select(ctx, account)
		if err != nil {
			lastErr = err
		} else if !ok {
			lastErr = eris.Errorf("harvest: account %s not present in rendered list", account)
		} else {
			selected = true
			break
		}

		log.Warn("account selection failed, reopening list",
			zap.Int("attempt", attempt), zap.Error(lastErr))
		if err := o.accounts.Open(ctx); err != nil {
			log.Warn("could not reopen account list", zap.Error(err))
		}
	}

	if !selected {
		reason := "falha ao selecionar conta"
		if lastErr != nil {
			reason += ": " + lastErr.Error()
		}
		o.recordFailure(account, nil, nil, reason)
		log.Warn("account abandoned", zap.Error(lastErr))
		return
	}

	if err := o.harvestAccount(ctx, account); err != nil {
		page := o.walker.Page()
		o.recordFailure(account, &page, nil, err.Error())
		log.Warn("account harvest aborted", zap.Error(err))
	}
}

// harvestAccount walks the account's listing page by page, processing each
// pending unit in DOM order.
func (o *Orchestrator) harvestAccount(ctx context.Context, account string) error {
	targetDir := filepath.Join(o.cfg.BaseDir, o.cfg.Operator.FolderName(), AccountKey(account))
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return eris.Wrapf(err, "harvest: create target dir %s", targetDir)
	}

	o.walker.Reset()
	if err := o.walker.AwaitStable(ctx); err != nil {
		if errors.Is(err, portal.ErrRenderTimeout) {
			// Legitimate business outcome: the account has nothing to list.
			o.recordFailure(account, nil, nil, "Nenhuma fatura disponível nesta conta")
			return nil
		}
		return eris.Wrap(err, "harvest: initial listing render")
	}

	for {
		if _, err := o.guard.EnsureLoggedIn(ctx); err != nil {
			return eris.Wrap(err, "harvest: session check before page scan")
		}

		units, err := o.listing.Units(ctx)
		if err != nil {
			return eris.Wrapf(err, "harvest: enumerate units on page %d", o.walker.Page())
		}
		for _, ref := range units {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.processUnit(ctx, account, targetDir, ref)
		}

		more, err := o.walker.Advance(ctx)
		if err != nil {
			page := o.walker.Page()
			o.recordFailure(account, &page, nil, "erro ao navegar para a próxima página: "+err.Error())
			return nil
		}
		if !more {
			return nil
		}
	}
}

// processUnit attempts one unit's download with the configured attempt
// budget, classifying the outcome. A unit whose canonical file already
// exists is skipped before any portal interaction.
func (o *Orchestrator) processUnit(ctx context.Context, account, targetDir string, ref portal.UnitRef) {
	unit := o.unit(account, ref)
	if unit.Status == UnitSuccess || unit.Status == UnitSkipped || unit.Status == UnitNoInvoices {
		return
	}

	if ref.CanonicalName != "" {
		if _, err := os.Stat(filepath.Join(targetDir, ref.CanonicalName)); err == nil {
			unit.Status = UnitSkipped
			o.log.Debug("unit already downloaded",
				zap.String("account", account), zap.String("file", ref.CanonicalName))
			return
		}
	}

	retryCfg := o.retry
	retryCfg.ShouldRetry = func(err error) bool {
		return !errors.Is(err, errNoInvoices) && !errors.Is(err, portal.ErrRecoveryExhausted)
	}
	retryCfg.OnRetry = resilience.RetryLogger("harvest", "download "+ref.ID)

	err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		if err := o.pace.Wait(ctx); err != nil {
			return err
		}
		if _, err := o.guard.EnsureLoggedIn(ctx); err != nil {
			return err
		}
		return o.attemptDownload(ctx, account, targetDir, ref)
	})

	page := unit.Page
	position := unit.Position
	switch {
	case err == nil:
		unit.Status = UnitSuccess
	case errors.Is(err, errNoInvoices):
		unit.Status = UnitNoInvoices
		o.recordFailure(account, &page, &position, "nenhuma fatura disponível para esta unidade")
	default:
		unit.Status = UnitFailed
		unit.Reason = err.Error()
		o.recordFailure(account, &page, &position, err.Error())
	}
}

// attemptDownload runs one download attempt end to end: trigger, wait for
// the file, move it into place, and hand it to the extraction pipeline.
func (o *Orchestrator) attemptDownload(ctx context.Context, account, targetDir string, ref portal.UnitRef) error {
	before, err := o.downloads.Snapshot()
	if err != nil {
		return err
	}

	res, err := o.listing.StartDownload(ctx, ref)
	if err != nil {
		return eris.Wrapf(err, "harvest: start download for %s", ref.ID)
	}
	if !res.Started {
		return errNoInvoices
	}

	if res.Archive {
		return o.collectArchive(ctx, account, targetDir, ref, before)
	}
	return o.collectFile(ctx, account, targetDir, ref, before)
}

func (o *Orchestrator) collectFile(ctx context.Context, account, targetDir string, ref portal.UnitRef, before map[string]struct{}) error {
	name, err := o.downloads.WaitForNewFile(ctx, before, ".pdf", o.cfg.DownloadTimeout)
	if err != nil {
		return err
	}

	targetName := ref.CanonicalName
	if targetName == "" {
		targetName = name
	}
	return o.moveAndProcess(ctx, account, filepath.Join(o.downloads.StagingDir(), name), targetDir, targetName)
}

func (o *Orchestrator) collectArchive(ctx context.Context, account, targetDir string, ref portal.UnitRef, before map[string]struct{}) error {
	zipName, err := o.downloads.WaitForNewFile(ctx, before, ".zip", o.cfg.DownloadTimeout)
	if err != nil {
		return err
	}
	zipPath := filepath.Join(o.downloads.StagingDir(), zipName)

	extracted, err := o.downloads.ExtractArchive(zipPath, o.downloads.StagingDir())
	if err != nil {
		return err
	}
	if err := os.Remove(zipPath); err != nil {
		o.log.Warn("could not remove archive", zap.String("path", zipPath), zap.Error(err))
	}

	moved := 0
	for _, name := range extracted {
		if !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		// The first PDF gets the canonical business name; any companions
		// keep their archive names and rely on the suffix collision policy.
		targetName := name
		if moved == 0 && ref.CanonicalName != "" {
			targetName = ref.CanonicalName
		}
		if err := o.moveAndProcess(ctx, account, filepath.Join(o.downloads.StagingDir(), name), targetDir, targetName); err != nil {
			return err
		}
		moved++
	}
	if moved == 0 {
		return eris.Errorf("harvest: archive %s contained no PDF", zipName)
	}
	return nil
}

// moveAndProcess finalizes a downloaded file and hands it to the
// extraction pipeline. Extraction failure is ledgered but does not undo
// the download.
func (o *Orchestrator) moveAndProcess(ctx context.Context, account, src, targetDir, targetName string) error {
	// A canonical-named file appearing between the pre-check and the move
	// means the invoice was processed already; drop the duplicate.
	dest := filepath.Join(targetDir, targetName)
	if _, err := os.Stat(dest); err == nil {
		o.log.Info("target file already present, discarding duplicate", zap.String("dest", dest))
		return os.Remove(src)
	}

	finalPath, err := o.downloads.MoveFile(src, targetDir, targetName, false)
	if err != nil {
		return err
	}

	if err := o.processor.ProcessFile(ctx, finalPath); err != nil {
		o.report.ExtractionErrors++
		o.recordFailure(account, nil, nil, "falha na extração de "+filepath.Base(finalPath)+": "+err.Error())
	}
	return nil
}

func (o *Orchestrator) unit(account string, ref portal.UnitRef) *Unit {
	key := account + "\x00" + ref.ID
	if u, ok := o.units[key]; ok {
		return u
	}
	u := &Unit{
		ID:       ref.ID,
		Account:  account,
		Page:     o.walker.Page(),
		Position: ref.Position,
		Status:   UnitPending,
	}
	o.units[key] = u
	return u
}

// accountsWithFailedUnits returns, in stable order of first failure, the
// accounts that still own failed units. The intentional "no invoices"
// state is excluded from retry.
func (o *Orchestrator) accountsWithFailedUnits() []string {
	seen := make(map[string]bool)
	var accounts []string
	for _, u := range o.units {
		if u.Status == UnitFailed && !seen[u.Account] {
			seen[u.Account] = true
			accounts = append(accounts, u.Account)
		}
	}
	return accounts
}

// resetFailedUnits re-arms an account's failed units for another pass.
func (o *Orchestrator) resetFailedUnits(account string) {
	for _, u := range o.units {
		if u.Account == account && u.Status == UnitFailed {
			u.Status = UnitPending
			u.Reason = ""
		}
	}
}

// recordFailure appends to the ledger, keyed by client for Vivo and by
// contract for Claro, matching the audit-file format consumers expect.
func (o *Orchestrator) recordFailure(account string, page, position *int, reason string) {
	rec := FailureRecord{Page: page, Position: position, Reason: reason}
	if o.cfg.Operator == model.OperatorClaro {
		rec.Contract = account
	} else {
		rec.Client = account
	}
	if err := o.ledger.Append(rec); err != nil {
		o.log.Error("could not record failure", zap.Error(err), zap.String("reason", reason))
	}
}

// finish tallies unit outcomes into the report and writes the YAML summary
// next to the ledger.
func (o *Orchestrator) finish() *Report {
	r := o.report
	r.FinishedAt = time.Now().UTC()
	r.Units = len(o.units)
	r.Succeeded, r.Failed, r.Skipped, r.NoInvoices = 0, 0, 0, 0
	for _, u := range o.units {
		switch u.Status {
		case UnitSuccess:
			r.Succeeded++
		case UnitFailed:
			r.Failed++
		case UnitSkipped:
			r.Skipped++
		case UnitNoInvoices:
			r.NoInvoices++
		}
	}

	reportPath := filepath.Join(o.cfg.BaseDir, strings.ToLower(string(o.cfg.Operator))+"_run_report.yaml")
	if err := r.WriteFile(reportPath); err != nil {
		o.log.Warn("could not write run report", zap.Error(err))
	}
	return r
}
