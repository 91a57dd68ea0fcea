package main

import (
	"os"

	"sma/internal/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger := logging.NewLogger(logging.Config{Format: logging.HumanFormat, Level: logging.ErrorLevel})
		logger.Error("command failed", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
}
