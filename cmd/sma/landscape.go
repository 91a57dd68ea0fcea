package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sma/internal/landscape"
	"sma/internal/mapping"
	"sma/internal/storage"
)

var landscapeOutDir string

var landscapeCmd = &cobra.Command{
	Use:   "landscape <config>",
	Short: "Analyze vocabulary coverage from materialized artifacts",
	Long: `Computes the landscape over the configuration's priority prefixes:
pairwise overlaps before and after inference, gains, the unique-entity
estimate, and per-combination component counts.

Requires the raw and processed artifacts from a previous assemble run.

Examples:
  sma landscape disease.yaml
  sma landscape disease.yaml --out analysis/`,
	Args: cobra.ExactArgs(1),
	RunE: runLandscape,
}

func init() {
	landscapeCmd.Flags().StringVar(&landscapeOutDir, "out", "",
		"Directory for counts.tsv, raw_counts.tsv, and stats.json")
	rootCmd.AddCommand(landscapeCmd)
}

func runLandscape(cmd *cobra.Command, args []string) error {
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

	raw, err := store.MustLoadArtifact(cfg.Key, storage.StageRaw)
	if err != nil {
		return err
	}
	processed, err := store.MustLoadArtifact(cfg.Key, storage.StageProcessed)
	if err != nil {
		return err
	}

	analyzer := landscape.New(cfg.Priority, landscape.TermCounts(cfg.TermCounts), logger)
	result := analyzer.Analyze(mapping.NewIndex(raw), mapping.NewIndex(processed))

	fmt.Printf("unique entities: %d of %d terms (reduction %.2f%%)\n",
		result.UniqueEntities, result.TotalTerms, 100*result.ReductionRatio)
	fmt.Println("\noverlap (processed):")
	printMatrix(result.Prefixes, result.Overlap)
	fmt.Println("\ncombinations:")
	for _, c := range result.Combinations {
		fmt.Printf("  %-40s %d\n", strings.Join(c.Prefixes, "|"), c.Count)
	}

	if landscapeOutDir != "" {
		dir := cfg.ResolvePath(landscapeOutDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := writeMatrixTSV(filepath.Join(dir, "counts.tsv"), result.Prefixes, result.Overlap); err != nil {
			return err
		}
		if err := writeMatrixTSV(filepath.Join(dir, "raw_counts.tsv"), result.Prefixes, result.RawOverlap); err != nil {
			return err
		}
		stats, err := json.MarshalIndent(map[string]interface{}{
			"raw_term_count":    result.TotalTerms,
			"unique_term_count": result.UniqueEntities,
			"reduction":         result.ReductionRatio,
			"distribution":      result.Distribution,
			"combinations":      result.Combinations,
		}, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, "stats.json"), stats, 0o644); err != nil {
			return err
		}
		fmt.Printf("\nwrote %s\n", dir)
	}
	return nil
}

func printMatrix(prefixes []string, matrix [][]int) {
	fmt.Printf("  %-12s", "")
	for _, p := range prefixes {
		fmt.Printf("%12s", p)
	}
	fmt.Println()
	for i, p := range prefixes {
		fmt.Printf("  %-12s", p)
		for j := range prefixes {
			fmt.Printf("%12d", matrix[i][j])
		}
		fmt.Println()
	}
}

func writeMatrixTSV(path string, prefixes []string, matrix [][]int) error {
	var b strings.Builder
	b.WriteString("source_prefix")
	for _, p := range prefixes {
		b.WriteString("\t")
		b.WriteString(p)
	}
	b.WriteString("\n")
	for i, p := range prefixes {
		b.WriteString(p)
		for j := range prefixes {
			b.WriteString("\t")
			b.WriteString(strconv.Itoa(matrix[i][j]))
		}
		b.WriteString("\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
