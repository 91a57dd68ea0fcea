package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"sma/internal/logging"
	"sma/internal/mapping"
	"sma/internal/metric"
	"sma/internal/pipeline"
)

var (
	assembleReportM2M   bool
	assembleMinCount    int
	assembleMetricsAddr string
)

var assembleCmd = &cobra.Command{
	Use:   "assemble <config>",
	Short: "Run a full mapping assembly from a configuration",
	Long: `Reads every configured source, applies pre-filters, runs the inference
engine (inversion, mutation, generalization, chaining), applies
post-filters, computes the equivalence graph, prioritizes, and
summarizes the landscape.

Raw, processed, and priority artifacts are materialized in the
artifact database so later commands (prioritize, landscape, export)
can re-run without repeating upstream work.

Examples:
  sma assemble disease.yaml
  sma assemble disease.yaml --report-m2m
  sma assemble disease.yaml --data-root ~/.data/sma`,
	Args: cobra.ExactArgs(1),
	RunE: runAssemble,
}

func init() {
	assembleCmd.Flags().BoolVar(&assembleReportM2M, "report-m2m", false,
		"Report many-to-many mappings after assembly")
	assembleCmd.Flags().IntVar(&assembleMinCount, "min-count", 0,
		"Hide source/target pairs with fewer mappings from the summary")
	assembleCmd.Flags().StringVar(&assembleMetricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address while the run is active")
	rootCmd.AddCommand(assembleCmd)
}

func runAssemble(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := loadConfiguration(args[0])
	if err != nil {
		return err
	}

	store, err := openStore(logger, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	normalizer, err := loadNormalizer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []pipeline.DriverOption{
		pipeline.WithStore(store),
		pipeline.WithNormalizer(normalizer),
	}
	if assembleMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics := metric.NewMetrics()
		if err := metrics.Register(reg); err != nil {
			return err
		}
		server := metric.Serve(assembleMetricsAddr, reg, logger)
		defer func() { _ = server.Shutdown(context.Background()) }()
		opts = append(opts, pipeline.WithMetrics(metrics))
	}

	driver := pipeline.NewDriver(cfg, logger, opts...)
	result, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	if err := cfg.WriteResolved(filepath.Join(cfg.DataRoot, cfg.Key+".configuration.yaml")); err != nil {
		logger.Warn("could not record resolved configuration", logging.Fields{"error": err.Error()})
	}

	fmt.Printf("run %s\n", result.RunID)
	fmt.Printf("  raw:       %d mappings\n", len(result.Raw))
	fmt.Printf("  processed: %d mappings (%d inference rounds)\n", len(result.Processed), result.Inference.Rounds)
	fmt.Printf("  priority:  %d mappings\n", len(result.Priority))
	if !result.Inference.FixedPoint {
		fmt.Printf("  note: inference budget exhausted; %d mappings produced in the last round\n",
			result.Inference.LastRoundNew)
	}
	if result.Landscape != nil {
		fmt.Printf("  landscape: %d unique entities over %d terms (reduction %.1f%%)\n",
			result.Landscape.UniqueEntities, result.Landscape.TotalTerms,
			100*result.Landscape.ReductionRatio)
	}

	fmt.Println("\nsource/target pairs:")
	for _, row := range mapping.CountSourceTarget(result.Processed) {
		if row.Count < assembleMinCount {
			continue
		}
		fmt.Printf("  %-16s %-16s %d\n", row.SourcePrefix, row.TargetPrefix, row.Count)
	}

	if assembleReportM2M {
		m2m := mapping.ManyToMany(result.Processed)
		fmt.Printf("\nmany-to-many mappings: %d\n", len(m2m))
		for _, m := range m2m {
			fmt.Printf("  %s\n", m.Key())
		}
	}
	return nil
}
