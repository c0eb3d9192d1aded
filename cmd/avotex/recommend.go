package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/vexmx/avotex/internal/recommend"
)

func newRecommendCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var summary, jsonOut bool

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Print the advisory entries for a grower's scan history",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID = strings.TrimSpace(userID)
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			logger := ctx.logger(cmd.ErrOrStderr())

			db, err := ctx.openStore(logger)
			if err != nil {
				return err
			}
			defer db.Close()

			w := cmd.OutOrStdout()
			if summary {
				scans, err := db.ListScans(cmd.Context(), userID)
				if err != nil {
					return fmt.Errorf("error retrieving scans: %w", err)
				}
				s := recommend.Summarize(scans)
				if jsonOut {
					return writeJSON(w, s)
				}
				printSummary(w, s)
				return nil
			}

			labels, err := db.ScanLabels(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("error retrieving scans: %w", err)
			}
			entries := recommend.Recommend(labels)
			if jsonOut {
				return writeJSON(w, entries)
			}
			for _, e := range entries {
				fmt.Fprintf(w, "[%s] %s\n", e.Severity, e.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id whose history is analysed")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print summary statistics instead of recommendations")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}

func printSummary(w io.Writer, s recommend.Summary) {
	fmt.Fprintf(w, "Total de escaneos: %d\n", s.Total)
	fmt.Fprintf(w, "Saludables: %.0f%%\n", s.HealthyPercentage)
	fmt.Fprintf(w, "Enfermedad más común: %s\n", s.MostFrequentDisease)
	if len(s.Counts) == 0 {
		return
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Diagnóstico", "Escaneos"})
	for _, c := range s.Counts {
		tw.AppendRow(table.Row{c.Label, strconv.Itoa(c.Count)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	fmt.Fprintln(w, tw.Render())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
