package main

import (
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/extract"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/ocr"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/store"
)

var extractCmd = &cobra.Command{
	Use:   "extract <dir>",
	Short: "Re-run field extraction over an existing PDF tree",
	Long:  "Walks the directory recursively, extracts structured fields from every PDF, and persists the records. Duplicates are detected and skipped by the store.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, store.Config(cfg.Store))
		if err != nil {
			return eris.Wrap(err, "extract: open store")
		}
		defer st.Close()

		svc := extract.NewService(ocr.NewPdfToText(cfg.OCR.PdfToTextPath), st)

		var paths []string
		root := args[0]
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return eris.Wrapf(err, "extract: walk %s", root)
		}
		zap.L().Info("extraction batch starting",
			zap.Int("files", len(paths)), zap.Int("workers", cfg.Extract.Workers))

		// No browser involved, so files can be processed concurrently; the
		// store serializes duplicate detection per transaction.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Extract.Workers)

		var failed atomic.Int64
		for _, path := range paths {
			g.Go(func() error {
				if err := svc.ProcessFile(gctx, path); err != nil {
					failed.Add(1)
					zap.L().Warn("extraction failed", zap.String("file", path), zap.Error(err))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		zap.L().Info("extraction batch finished",
			zap.Int("files", len(paths)), zap.Int64("failed", failed.Load()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
