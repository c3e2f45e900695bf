package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/harvest"
	"github.com/MichaelHCSilva/Binario-Faturas/internal/model"
)

var failuresCmd = &cobra.Command{
	Use:   "failures <claro|vivo>",
	Short: "Print an operator's failure ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var op model.Operator
		switch args[0] {
		case "claro":
			op = model.OperatorClaro
		case "vivo":
			op = model.OperatorVivo
		default:
			return eris.Errorf("failures: unknown operator %q", args[0])
		}

		ledger, err := harvest.NewLedger(cfg.Harvest.DownloadRoot, op)
		if err != nil {
			return err
		}
		records, err := ledger.Records()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "    ")
		if err := enc.Encode(records); err != nil {
			return eris.Wrap(err, "failures: encode records")
		}
		fmt.Fprintf(os.Stderr, "%d failure(s) recorded in %s\n", len(records), ledger.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(failuresCmd)
}
