package main

import (
	"github.com/spf13/cobra"

	"sma/internal/logging"
	"sma/internal/pipeline"
	"sma/internal/registry"
	"sma/internal/storage"
	"sma/internal/version"
	"sma/internal/vocab"
)

var (
	// dataRootFlag anchors relative artifact paths and the artifact
	// database.
	dataRootFlag string
	// registryFlag points at a prefix-normalization registry file.
	registryFlag string
	logLevelFlag string
	logJSONFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "sma",
	Short: "SMA - Semantic Mapping Assembler",
	Long: `SMA assembles semantic mappings from heterogeneous sources, enriches
them with logically entailed mappings, filters them by confidence, and
produces a canonical one-to-one prioritization that downstream
applications use to standardize identifiers across vocabularies.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("SMA version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&dataRootFlag, "data-root", ".",
		"Directory for artifacts and the artifact database")
	rootCmd.PersistentFlags().StringVar(&registryFlag, "registry", "",
		"Prefix-normalization registry file (TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info",
		"Log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().BoolVar(&logJSONFlag, "log-json", false,
		"Emit logs as JSON lines")
}

func newLogger() *logging.Logger {
	format := logging.HumanFormat
	if logJSONFlag {
		format = logging.JSONFormat
	}
	return logging.NewLogger(logging.Config{
		Format: format,
		Level:  logging.LogLevel(logLevelFlag),
	})
}

// loadConfiguration reads and validates a configuration, overriding
// its data root from the CLI flag when the document leaves it unset.
func loadConfiguration(path string) (*pipeline.Configuration, error) {
	cfg, err := pipeline.LoadConfiguration(path, vocab.NewPredicateTable())
	if err != nil {
		return nil, err
	}
	if cfg.DataRoot == "" {
		cfg.DataRoot = dataRootFlag
	}
	return cfg, nil
}

func openStore(logger *logging.Logger, cfg *pipeline.Configuration) (*storage.DB, error) {
	return storage.Open(cfg.DataRoot, logger)
}

func loadNormalizer() (*registry.Registry, error) {
	if registryFlag == "" {
		return nil, nil
	}
	return registry.Load(registryFlag)
}
