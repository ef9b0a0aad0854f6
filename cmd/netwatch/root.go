// Package main implements the netwatch CLI: flag parsing, wiring the
// config loader, log sink, and monitor facade together, and process
// lifecycle.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"netwatch/internal/config"
	"netwatch/internal/logging"
	"netwatch/pkg/netwatch"
)

// Execute runs the root command; main's only job is to call this and
// translate a non-nil error into exit code 1.
func Execute() error {
	return rootCmd.Execute()
}

var (
	interfaceName string
	filter        string
	logFile       string
	logLevel      string
	configPath    string
	storePath     string
)

var rootCmd = &cobra.Command{
	Use:          "netwatch",
	Short:        "netwatch captures, decodes, and records live network traffic",
	Version:      "0.1.0",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&interfaceName, "interface", "i", "", "capture interface name")
	rootCmd.PersistentFlags().StringVarP(&filter, "filter", "f", "", "BPF filter expression")
	rootCmd.PersistentFlags().StringVarP(&logFile, "log-file", "l", "netwatch.log", "log file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warning, error, or fatal")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&storePath, "store", "o", "netwatch.db", "SQLite database path")

	rootCmd.SilenceErrors = true
}

func run(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("netwatch: load config: %w", err)
		}
		applyConfigDefaults(cfg)
	}

	log, err := logging.New(logging.Config{Path: logFile, Level: logLevel})
	if err != nil {
		return fmt.Errorf("netwatch: %w", err)
	}

	mon, err := netwatch.Open(netwatch.Config{
		Interface: interfaceName,
		Filter:    filter,
		StorePath: storePath,
	}, log)
	if err != nil {
		return fmt.Errorf("netwatch: %w", err)
	}
	defer mon.Close()

	if err := mon.Start(); err != nil {
		return fmt.Errorf("netwatch: %w", err)
	}
	log.Infof("capture started on interface=%q filter=%q", interfaceName, filter)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping")
	mon.Stop()
	return nil
}

// applyConfigDefaults fills in any flag the caller left at its default
// from the [capture]/[logging]/[storage] sections of the config file.
// A flag counts as left at its default when its value equals the
// default, so a flag passed on the command line with its default value
// is still replaced by the config file's value.
func applyConfigDefaults(cfg *config.Config) {
	if interfaceName == "" {
		interfaceName = cfg.String("capture", "interface", "")
	}
	if filter == "" {
		filter = cfg.String("capture", "filter", "")
	}
	if logFile == "netwatch.log" {
		logFile = cfg.String("logging", "file", logFile)
	}
	if logLevel == "info" {
		logLevel = cfg.String("logging", "level", logLevel)
	}
	if storePath == "netwatch.db" {
		storePath = cfg.String("storage", "path", storePath)
	}
}
