// Package cli implements the redmem CLI commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/redstack/redmem/internal/approval"
	"github.com/redstack/redmem/internal/config"
	"github.com/redstack/redmem/internal/store"
)

var (
	cfgPath string
	dbPath  string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "redmem",
	Short: "Memory and world-state service for the Red agent",
	Long: "redmem answers two questions for every other component: what is true\n" +
		"about the world right now, and what do we remember, with what provenance.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (YAML)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path override")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

// openStore opens the store with the approval verifier wired when a
// usable secret is configured. Without one, canonical writes are denied;
// with strict invariants on, startup fails instead.
func openStore(cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	var verifier store.ApprovalVerifier
	if secret := cfg.Approval.SigningSecret; secret != "" {
		v, err := approval.NewVerifier(secret)
		if err != nil {
			return nil, fmt.Errorf("approval verifier: %w", err)
		}
		verifier = v
	} else if cfg.StrictInvariants {
		return nil, fmt.Errorf("strict invariants: approval signing secret is required")
	} else if logger != nil {
		logger.Warn("no approval signing secret configured, canonical writes disabled")
	}

	return store.New(cfg.Store.DBPath, store.Options{
		Verifier:   verifier,
		MirrorPath: cfg.Store.AuditMirrorPath,
		Logger:     logger,
	})
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
