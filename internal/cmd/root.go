// Package cmd holds the gostint-tui command tree. With no subcommand the
// interactive terminal UI starts; the subcommands cover the same operations
// for scripts.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/goethite/gostint-tui/internal/config"
	"github.com/goethite/gostint-tui/internal/observability"
	"github.com/goethite/gostint-tui/internal/tui"
	"github.com/goethite/gostint-tui/internal/ui"
)

type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var versionInfo = VersionInfo{Version: "dev", Commit: "none", BuildDate: "unknown"}

func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile string
	cfg     *config.Config
)

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"gostint-url": "gostint.url",
	"vault-url":   "vault.url",
	"role":        "vault.role",
	"token":       "token",
	"log-level":   "log.level",
	"log-file":    "log.file",
}

var rootCmd = &cobra.Command{
	Use:   "gostint-tui",
	Short: "Submit and follow gostint jobs through vault",
	Long: `gostint-tui submits container jobs to gostint. Each job is encrypted with
vault transit and handed over through a one-time cubbyhole, so your vault
token never reaches gostint.

Run without a subcommand for the interactive terminal UI.

Examples:
  gostint-tui                              # interactive UI
  gostint-tui submit -f job.yaml --wait    # submit and follow a job
  gostint-tui jobs list                    # newest jobs first`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
	RunE:              runUI,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.gostint/config.yaml)")
	pf.String("gostint-url", "", "gostint API base URL")
	pf.String("vault-url", "", "vault address (asked from gostint when empty)")
	pf.String("role", "", "gostint AppRole name")
	pf.String("token", "", "vault token for non-interactive commands (or VAULT_TOKEN)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-file", "", "log file used by the interactive UI")
}

func Execute() error {
	return rootCmd.Execute()
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for flag, key := range flagKeys {
		f := cmd.Root().PersistentFlags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig(cmd *cobra.Command, args []string) error {
	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(cmd, v); err != nil {
		return err
	}
	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded

	logger, err := observability.NewConsoleLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	observability.CLILogger = logger
	return nil
}

func connectOptions() tui.ConnectOptions {
	return tui.ConnectOptions{Timeout: cfg.Gostint.Timeout, RateLimit: cfg.Gostint.RateLimit}
}

func backends() tui.Backends {
	return tui.Backends{GostintURL: cfg.Gostint.URL, VaultURL: cfg.Vault.URL}
}

// login builds a session from the configured token for the one-shot commands.
func login(ctx context.Context) (tui.Session, *tui.Clients, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return tui.Session{}, nil, errors.New("a vault token is required: use --token or VAULT_TOKEN")
	}
	auth := &tui.Authenticator{Options: connectOptions(), Logger: observability.CLILogger}
	return auth.Login(ctx, token, backends())
}

func runUI(cmd *cobra.Command, args []string) error {
	logger, err := observability.NewFileLogger(observability.LogConfig{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting terminal UI",
		zap.String("version", versionInfo.Version),
		zap.String("gostint", cfg.Gostint.URL),
		zap.String("vault", cfg.Vault.URL))

	return ui.Run(ui.Options{
		Backends:     backends(),
		Role:         cfg.Vault.Role,
		ListRefresh:  cfg.UI.ListRefresh,
		PollInterval: cfg.UI.PollInterval,
		Connect:      connectOptions(),
		ProfilePath:  cfg.UI.Profile,
		Logger:       logger,
	})
}
