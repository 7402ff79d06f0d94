// brp-mcp: Bevy Remote Protocol MCP server
//
// An MCP server that lets AI coding tools inspect and change running Bevy
// apps over BRP, and watch entities change over time.
//
// Usage:
//
//	brp-mcp serve              # Start MCP server (stdio transport)
//	brp-mcp watch get <entity> # Stream component changes to the terminal
//	brp-mcp watch list <entity>
//	brp-mcp history            # Show recent watches
//	brp-mcp config init        # Write a config file with the defaults
//	brp-mcp version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HendryAvila/bevy-brp-mcp/internal/config"
	"github.com/HendryAvila/bevy-brp-mcp/internal/logging"
	brpserver "github.com/HendryAvila/bevy-brp-mcp/internal/server"
	"github.com/HendryAvila/bevy-brp-mcp/internal/updater"
)

var dataDirFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:           "brp-mcp",
		Short:         "MCP server for the Bevy Remote Protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Directory holding config.toml and the watch history (default ~/.bevy-brp-mcp)")

	rootCmd.AddCommand(
		serveCmd(),
		watchCmd(),
		historyCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// dataDir resolves the --data-dir flag.
func dataDir() string {
	if dataDirFlag != "" {
		return dataDirFlag
	}
	return config.DefaultDataDir()
}

// loadConfig reads the config for the resolved data dir.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(dataDir())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ---------------------------------------------------------------------------
// serveCmd
// ---------------------------------------------------------------------------

func serveCmd() *cobra.Command {
	var noUpdateCheck bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			s, comps, cleanup := brpserver.New(cfg, logger)
			defer cleanup()

			ctx, cancel := signalContext()
			defer cancel()

			// Version check logs to stderr so it doesn't interfere with
			// MCP's stdio transport on stdout.
			if !noUpdateCheck {
				go checkForUpdates(ctx, logger)
			}

			logger.Info("serving MCP on stdio",
				zap.String("version", brpserver.Version),
				zap.String("host", cfg.Host),
				zap.Int("default_port", cfg.DefaultPort),
				zap.String("log_dir", cfg.LogDir),
			)

			stdio := server.NewStdioServer(s)
			stdio.SetErrorLogger(zap.NewStdLog(logger.Named("stdio")))
			serveErr := stdio.Listen(ctx, os.Stdin, os.Stdout)

			// Drain watches before the history closes so their final
			// states are recorded.
			drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
			defer drainCancel()
			if err := comps.Watches.Shutdown(drainCtx); err != nil {
				logger.Warn("watches still running at exit", zap.Error(err))
			}

			if serveErr != nil && ctx.Err() == nil {
				return fmt.Errorf("serving stdio: %w", serveErr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noUpdateCheck, "no-update-check", false, "Skip the background check for a newer release")
	return cmd
}

// checkForUpdates logs a notice if a newer release exists. Best-effort:
// network failures are silently ignored.
func checkForUpdates(ctx context.Context, logger *zap.Logger) {
	result := updater.Check(ctx, brpserver.Version)
	if result.UpdateAvailable {
		logger.Info("update available",
			zap.String("current", result.CurrentVersion),
			zap.String("latest", result.LatestVersion),
			zap.String("release", result.ReleaseURL),
		)
	}
}

// ---------------------------------------------------------------------------
// versionCmd
// ---------------------------------------------------------------------------

func versionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("brp-mcp v%s\n", brpserver.Version)
			if !check {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			result := updater.Check(ctx, brpserver.Version)
			switch {
			case result.UpdateAvailable:
				fmt.Printf("Update available: v%s -> v%s\n  %s\n", result.CurrentVersion, result.LatestVersion, result.ReleaseURL)
			case result.LatestVersion == "":
				fmt.Println("Could not determine the latest release.")
			default:
				fmt.Println("Already at the latest version.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Also check GitHub for a newer release")
	return cmd
}

// ---------------------------------------------------------------------------
// configCmd
// ---------------------------------------------------------------------------

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration",
	}
	cmd.AddCommand(configShowCmd(), configInitCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("config file:     %s\n", config.Path(cfg.DataDir))
			fmt.Printf("host:            %s\n", cfg.Host)
			fmt.Printf("default_port:    %d\n", cfg.DefaultPort)
			fmt.Printf("log_dir:         %s\n", cfg.LogDir)
			fmt.Printf("max_watches:     %d\n", cfg.MaxWatches)
			fmt.Printf("stop_timeout:    %s\n", cfg.StopTimeout)
			fmt.Printf("request_timeout: %s\n", cfg.RequestTimeout)
			fmt.Printf("connect_timeout: %s\n", cfg.ConnectTimeout)
			fmt.Printf("log_level:       %s\n", cfg.LogLevel)
			fmt.Printf("history:         %t (%s)\n", cfg.History, cfg.HistoryPath())
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write config.toml with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := dataDir()
			path := config.Path(dir)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig(dir).Save(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
