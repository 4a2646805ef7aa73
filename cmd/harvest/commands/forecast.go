package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/harvest/backend/internal/contracts"
	"github.com/wonny/harvest/backend/internal/export"
)

// forecastCmd represents the forecast command
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Run and inspect forecast batches",
	Long: `Run forecast batches and inspect the current forecasts.

Subcommands:
  full       - Retrain and forecast every segment
  selective  - Retrain and forecast the given commodity/municipality pairs
  show       - Print current forecasts
  export     - Write current forecasts to CSV

Example:
  go run ./cmd/harvest forecast full
  go run ./cmd/harvest forecast full --queue
  go run ./cmd/harvest forecast selective --pair 1:7 --pair 1:14
  go run ./cmd/harvest forecast show --commodity 1
  go run ./cmd/harvest forecast export --out ./exports`,
}

var (
	forecastFullCmd = &cobra.Command{
		Use:   "full",
		Short: "Run a full batch",
		RunE:  runForecastFull,
	}

	forecastSelectiveCmd = &cobra.Command{
		Use:   "selective",
		Short: "Run a selective batch",
		RunE:  runForecastSelective,
	}

	forecastShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print current forecasts",
		RunE:  runForecastShow,
	}

	forecastExportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export current forecasts to CSV",
		RunE:  runForecastExport,
	}
)

var (
	forecastQueue        bool
	forecastActor        string
	forecastPairs        []string
	forecastCommodity    int64
	forecastMunicipality int64
	forecastLimit        int
	forecastOut          string
)

func init() {
	rootCmd.AddCommand(forecastCmd)
	forecastCmd.AddCommand(forecastFullCmd)
	forecastCmd.AddCommand(forecastSelectiveCmd)
	forecastCmd.AddCommand(forecastShowCmd)
	forecastCmd.AddCommand(forecastExportCmd)

	forecastCmd.PersistentFlags().StringVar(&forecastActor, "actor", "cli", "recorded as the batch trigger")

	forecastFullCmd.Flags().BoolVar(&forecastQueue, "queue", false, "enqueue a job for the worker instead of running inline")
	forecastSelectiveCmd.Flags().StringArrayVar(&forecastPairs, "pair", nil, "commodity_id:municipality_id (repeatable)")
	_ = forecastSelectiveCmd.MarkFlagRequired("pair")

	for _, c := range []*cobra.Command{forecastShowCmd, forecastExportCmd} {
		c.Flags().Int64Var(&forecastCommodity, "commodity", 0, "filter by commodity id")
		c.Flags().Int64Var(&forecastMunicipality, "municipality", 0, "filter by municipality id")
	}
	forecastShowCmd.Flags().IntVar(&forecastLimit, "limit", 50, "maximum rows")
	forecastExportCmd.Flags().StringVar(&forecastOut, "out", ".", "output directory")
}

func runForecastFull(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if forecastQueue {
		res, err := a.dispatcher.TriggerFull(ctx, forecastActor, "manual full run")
		if err != nil {
			return err
		}
		fmt.Printf("✅ Queued %s job %s\n", res.Mode, res.JobID)
		return nil
	}

	report, err := a.coordinator.RunFull(ctx, contracts.RunOptions{
		Actor: forecastActor,
		Note:  "manual full run",
		Now:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("❌ full run failed: %w", err)
	}
	PrintBatchReport(report)
	return nil
}

func runForecastSelective(cmd *cobra.Command, args []string) error {
	pairs, err := parsePairs(forecastPairs)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.coordinator.RunSelective(ctx, pairs, contracts.RunOptions{
		Actor: forecastActor,
		Note:  "manual selective run",
		Now:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("❌ selective run failed: %w", err)
	}
	PrintBatchReport(report)
	return nil
}

func runForecastShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.results.Current(ctx, contracts.CurrentQuery{
		CommodityID:    forecastCommodity,
		MunicipalityID: forecastMunicipality,
		Limit:          forecastLimit,
	})
	if err != nil {
		return err
	}

	PrintSection(fmt.Sprintf("Current Forecasts (%d)", len(rows)))
	for _, r := range rows {
		units := "-"
		if r.PredictedUnits != nil {
			units = strconv.FormatFloat(*r.PredictedUnits, 'f', 2, 64)
		}
		fmt.Printf("  %-14s %-18s %-15s %12.2f kg %10s  #%d\n",
			r.CommodityName, r.MunicipalityName, export.MonthLabel(r.Year, r.Month), r.PredictedKG, units, r.BatchID)
	}
	return nil
}

func runForecastExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.results.Current(ctx, contracts.CurrentQuery{
		CommodityID:    forecastCommodity,
		MunicipalityID: forecastMunicipality,
	})
	if err != nil {
		return err
	}

	path := filepath.Join(forecastOut, export.Filename(time.Now()))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("✅ Wrote %d rows to %s\n", len(rows), path)
	return nil
}

// parsePairs reads "commodity:municipality" flags
func parsePairs(raw []string) ([]contracts.SegmentPair, error) {
	pairs := make([]contracts.SegmentPair, 0, len(raw))
	for _, s := range raw {
		c, m, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("invalid pair %q: want commodity_id:municipality_id", s)
		}
		cid, err := strconv.ParseInt(strings.TrimSpace(c), 10, 64)
		if err != nil || cid <= 0 {
			return nil, fmt.Errorf("invalid commodity id in %q", s)
		}
		mid, err := strconv.ParseInt(strings.TrimSpace(m), 10, 64)
		if err != nil || mid <= 0 {
			return nil, fmt.Errorf("invalid municipality id in %q", s)
		}
		pairs = append(pairs, contracts.SegmentPair{CommodityID: cid, MunicipalityID: mid})
	}
	return pairs, nil
}
