// Package main is the entry point for the modguard binary. It provides a
// CLI for checking module dependency boundaries in domain-driven monorepos.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modguard/modguard/pkg/checker"
	"github.com/modguard/modguard/pkg/config"
	"github.com/modguard/modguard/pkg/logging"
	"github.com/modguard/modguard/pkg/report"
	"github.com/modguard/modguard/pkg/telemetry"
)

const (
	defaultConfigPath = "modguard.yaml"
	defaultLogLevel   = "info"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// errViolationsFound distinguishes a failed check (exit 1) from loading and
// configuration errors (exit 2).
var errViolationsFound = errors.New("violations found")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errViolationsFound) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "modguard",
		Short: "Module dependency boundary checker",
		Long: `modguard enforces layering and domain visibility rules over the declared
modules of a monorepo.

Modules are tagged with a domain, a layer (feature, ui, api, domain, util)
and a visibility. An import is valid when it targets a same-or-lower layer
within the same domain, or a module marked shared in any domain.

Example:
  modguard check --config modguard.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "Enable plain text console logging")

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newCheckCmd() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run the boundary check once and exit",
		RunE:  runCheck,
	}
	checkCmd.Flags().StringP("format", "f", "text", "Report format (text, json)")
	return checkCmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-run the check on config changes and serve the report over HTTP",
		RunE:  runWatch,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the modguard version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "modguard "+version)
		},
	}
}

func setupLogger(cmd *cobra.Command) (*slog.Logger, error) {
	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}
	pretty, err := cmd.Flags().GetBool("pretty")
	if err != nil {
		return nil, fmt.Errorf("failed to get pretty flag: %w", err)
	}

	logger := logging.NewLogger(logging.Config{Level: level, Pretty: pretty})
	slog.SetDefault(logger)
	return logger, nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	logger, err := setupLogger(cmd)
	if err != nil {
		return err
	}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	formatName, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	c, err := checker.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	rep, err := c.Run(ctx)
	if err != nil {
		return err
	}

	if err := report.Write(cmd.OutOrStdout(), rep, format); err != nil {
		return err
	}
	if !rep.Clean() {
		return errViolationsFound
	}
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	logger, err := setupLogger(cmd)
	if err != nil {
		return err
	}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	provider, err := config.NewFileProvider(configPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Error("failed to close config provider", "error", err)
		}
	}()

	cfg := provider.Current()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "modguard",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return err
	}

	server := checker.NewServer(provider, telemetry.NewPromMetrics(), logger)
	if err := server.Start(ctx, cfg.Server.Address); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("failed to flush traces", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}
