package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sma/internal/graph"
	"sma/internal/mapping"
	"sma/internal/priority"
	"sma/internal/sources"
	"sma/internal/storage"
)

var prioritizeOut string

var prioritizeCmd = &cobra.Command{
	Use:   "prioritize <config>",
	Short: "Recompute the priority star graph from the processed artifact",
	Long: `Loads the materialized processed artifact and reduces each equivalence
component to a star graph rooted at its highest-priority member,
without re-running acquisition or inference.

Examples:
  sma prioritize disease.yaml
  sma prioritize disease.yaml --out priority.tsv.gz`,
	Args: cobra.ExactArgs(1),
	RunE: runPrioritize,
}

func init() {
	prioritizeCmd.Flags().StringVar(&prioritizeOut, "out", "",
		"Write the priority mapping as a tabular file (.gz compresses)")
	rootCmd.AddCommand(prioritizeCmd)
}

func runPrioritize(cmd *cobra.Command, args []string) error {
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

	processed, err := store.MustLoadArtifact(cfg.Key, storage.StageProcessed)
	if err != nil {
		return err
	}

	g := graph.BuildEquivalence(mapping.NewIndex(processed), nil)
	prioritized := priority.New(cfg.Priority, logger).Prioritize(g)

	if err := store.SaveArtifact(cfg.Key, storage.StagePriority, "recomputed", prioritized); err != nil {
		return err
	}
	if prioritizeOut != "" {
		path := cfg.ResolvePath(prioritizeOut)
		if err := sources.WriteTabularFile(path, mapping.NewIndex(prioritized)); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
	}
	fmt.Printf("%d priority mappings over %d components\n", len(prioritized), len(g.Components()))
	return nil
}
