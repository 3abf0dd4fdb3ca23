package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	scrapeCanton  string
	scrapeDays    int
	scrapePersist bool
	scrapeJSON    bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run every scraper once and print the recent publications",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := runOpts(cfg, scrapeCanton, scrapeDays)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, cfg, scrapePersist, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.runOnce(ctx, opts)
		if err != nil {
			return err
		}
		return printSummary(cmd.OutOrStdout(), sum, scrapeJSON)
	},
}

func printSummary(w io.Writer, sum *runSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Fprintf(w, "scraped=%d unique=%d recent=%d new=%d notified=%d\n",
		sum.Scraped, sum.Unique, sum.Recent, sum.New, sum.Notified)
	for _, p := range sum.Publications {
		fmt.Fprintf(w, "%s  %-2s  %-24s  %-24s  %s\n",
			p.PublishedAt.Format("2006-01-02"), p.Canton, p.Type, p.Commune, p.Title)
	}
	return nil
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeCanton, "canton", "", "restrict to one canton (e.g. VD)")
	scrapeCmd.Flags().IntVar(&scrapeDays, "days", 0, "recency window in days (default from config)")
	scrapeCmd.Flags().BoolVar(&scrapePersist, "persist", false, "save to the store and publish new publications")
	scrapeCmd.Flags().BoolVar(&scrapeJSON, "json", false, "print the run summary as JSON")
	rootCmd.AddCommand(scrapeCmd)
}
