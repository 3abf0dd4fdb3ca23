package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/veille/internal/export"
	"github.com/sells-group/veille/internal/model"
	"github.com/sells-group/veille/internal/store"
)

var (
	exportOut    string
	exportCanton string
	exportDays   int
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write stored publications to an XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOut == "" {
			return eris.New("export: --out is required")
		}
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		filter, err := exportFilter(exportCanton, exportDays, exportLimit, time.Now())
		if err != nil {
			return err
		}

		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close() //nolint:errcheck

		pubs, err := st.ListPublications(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if err := export.WriteXLSX(exportOut, pubs); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("path", exportOut),
			zap.Int("publications", len(pubs)),
		)
		return nil
	},
}

// exportFilter converts the export flags into a store filter. Days <= 0
// exports regardless of publication date.
func exportFilter(canton string, days, limit int, now time.Time) (store.PublicationFilter, error) {
	filter := store.PublicationFilter{Limit: limit}
	if canton != "" {
		c, err := model.ParseCanton(canton)
		if err != nil {
			return filter, err
		}
		filter.Canton = c
	}
	if days > 0 {
		filter.Since = now.AddDate(0, 0, -days)
	}
	return filter, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output .xlsx path")
	exportCmd.Flags().StringVar(&exportCanton, "canton", "", "restrict to one canton")
	exportCmd.Flags().IntVar(&exportDays, "days", 0, "only publications from the last N days")
	exportCmd.Flags().IntVar(&exportLimit, "limit", store.MaxListLimit, "maximum rows to export")
	rootCmd.AddCommand(exportCmd)
}
