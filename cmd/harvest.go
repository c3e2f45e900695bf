package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/config"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/extract"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/harvest"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/ocr"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/portal"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/store"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Download pending invoices from an operator portal",
}

var harvestClaroCmd = &cobra.Command{
	Use:   "claro",
	Short: "Harvest Claro contract invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest(cmd.Context(), model.OperatorClaro, cfg.Claro, "harvest-claro")
	},
}

var harvestVivoCmd = &cobra.Command{
	Use:   "vivo",
	Short: "Harvest Vivo account invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest(cmd.Context(), model.OperatorVivo, cfg.Vivo, "harvest-vivo")
	},
}

func runHarvest(parent context.Context, op model.Operator, pc config.PortalConfig, mode string) error {
	if err := cfg.Validate(mode); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config(cfg.Store))
	if err != nil {
		return eris.Wrap(err, "harvest: open store")
	}
	defer st.Close()

	if err := os.MkdirAll(cfg.Harvest.StagingDir, 0o755); err != nil {
		return eris.Wrapf(err, "harvest: create staging dir %s", cfg.Harvest.StagingDir)
	}

	creds := portal.Credentials{
		LoginURL: pc.LoginURL,
		Username: pc.Username,
		Password: pc.Password,
	}
	bindings, err := portal.NewBindings(ctx, strings.ToLower(string(op)), creds, cfg.Harvest.StagingDir)
	if err != nil {
		return err
	}
	defer func() {
		if bindings.Close != nil {
			_ = bindings.Close(context.Background())
		}
	}()

	ledger, err := harvest.NewLedger(cfg.Harvest.DownloadRoot, op)
	if err != nil {
		return err
	}

	guard := portal.NewSessionGuard(bindings.Browser, bindings.Login, creds)
	walker := portal.NewWalker(bindings.Browser, bindings.Listing, portal.WalkerConfig{})
	downloads := harvest.NewDownloads(cfg.Harvest.StagingDir)
	processor := extract.NewService(ocr.NewPdfToText(cfg.OCR.PdfToTextPath), st)

	orch := harvest.NewOrchestrator(
		harvest.Config{
			Operator:         op,
			BaseDir:          cfg.Harvest.DownloadRoot,
			ListingURL:       pc.ListingURL,
			MaxAttempts:      cfg.Harvest.MaxAttempts,
			RetryRounds:      cfg.Harvest.RetryRounds,
			DownloadTimeout:  time.Duration(cfg.Harvest.DownloadTimeoutSecs) * time.Second,
			ActionsPerSecond: cfg.Harvest.ActionsPerSecond,
		},
		guard, bindings.Accounts, bindings.Listing, walker, downloads, ledger, processor,
	)

	report, runErr := orch.Run(ctx)
	zap.L().Info("harvest finished",
		zap.String("operator", report.Operator),
		zap.Int("accounts", report.Accounts),
		zap.Int("units", report.Units),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("already_downloaded", report.Skipped),
		zap.Int("no_invoices", report.NoInvoices),
		zap.Int("retry_rounds", report.RetryRounds),
		zap.Int("extraction_errors", report.ExtractionErrors),
	)
	return runErr
}

func init() {
	harvestCmd.AddCommand(harvestClaroCmd, harvestVivoCmd)
	rootCmd.AddCommand(harvestCmd)
}
