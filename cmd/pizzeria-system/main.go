package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "pizzeria-system",
	Short: "Pizzeria kitchen simulator and telemetry tracker",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: probe working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log verbosity: debug|info|warn|error")
	rootCmd.AddCommand(simulateCmd, trackerCmd)

	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("fatal")
		os.Exit(1)
	}
}
