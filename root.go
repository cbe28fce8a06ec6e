// Command hivecore is a CLI for a multi-cloud storage aggregator: it keeps
// OAuth credentials for linked provider accounts, mirrors object metadata
// into a local index, and uploads folder trees into a reserved application
// folder on each account.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cloudhive/hivecore/internal/config"
	"github.com/cloudhive/hivecore/internal/credential"
	"github.com/cloudhive/hivecore/internal/hive"
	"github.com/cloudhive/hivecore/internal/ingest"
	"github.com/cloudhive/hivecore/internal/provider"
	"github.com/cloudhive/hivecore/internal/provider/gdrive"
	"github.com/cloudhive/hivecore/internal/quota"
	"github.com/cloudhive/hivecore/internal/rootfolder"
	"github.com/cloudhive/hivecore/internal/store"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "hivecore",
		Short:   "Multi-cloud storage aggregator CLI",
		Long:    "Link cloud storage accounts, ingest files and folder trees, and query the aggregated metadata index.",
		Version: version,
		// Silence Cobra's default error/usage printing; errors are handled in main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(flagConfigPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			resolvedCfg = cfg

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLinkCmd())
	cmd.AddCommand(newAccountsCmd())
	cmd.AddCommand(newUnlinkCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newQuotaCmd())

	return cmd
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. When no format is
// configured and stderr is not a terminal, JSON output is used so piped
// logs stay machine-parseable.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	format := "text"

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = resolvedCfg.Logging.LogFormat
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	if format == "json" || !isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// app bundles the wired service graph for one command invocation.
type app struct {
	store   *store.SQLiteStore
	service *hive.Service
	quotas  *quota.Refresher
	logger  *slog.Logger
}

// newApp opens the store and wires the full service graph from the
// resolved configuration. The caller must Close() it.
func newApp(cmd *cobra.Command) (*app, error) {
	logger := buildLogger()

	st, err := store.Open(resolvedCfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	adapter := gdrive.New(gdrive.Options{
		HTTPClient:   &http.Client{Timeout: resolvedCfg.NetworkTimeout()},
		UserAgent:    resolvedCfg.Network.UserAgent,
		ClientID:     resolvedCfg.Providers.Google.ClientID,
		ClientSecret: resolvedCfg.Providers.Google.ClientSecret,
	}, logger)

	registry := provider.NewRegistry(adapter)

	tokens := credential.NewOrchestrator(st, registry, logger)
	roots := rootfolder.NewResolver(st, tokens, registry, logger)
	quotas := quota.NewRefresher(st, tokens, registry, logger)
	pipeline := ingest.NewPipeline(st, tokens, roots, registry, quotas, logger)
	service := hive.NewService(st, pipeline, quotas, registry.Names(), logger)

	return &app{store: st, service: service, quotas: quotas, logger: logger}, nil
}

// Close releases the app's store.
func (a *app) Close() error {
	return a.store.Close()
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
