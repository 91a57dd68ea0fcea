package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config>",
	Short: "Validate a configuration without running any stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfiguration(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s): %d inputs, %d priority prefixes, %d mutations\n",
			cfg.Name, cfg.Key, len(cfg.Inputs), len(cfg.Priority), len(cfg.Mutations))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
