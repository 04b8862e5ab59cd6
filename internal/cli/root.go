package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global configuration shared by all commands,
// resolved from flags, RECEIPTS_* environment variables, an optional
// YAML config file, and defaults in that order.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	StoreRoot  string // audit pack store root directory
	IndexPath  string // SQLite index path; empty means <store>/index.db
	ConfigFile string // explicit config file path
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the receipts CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "Verification and audit for numeric claims in narratives",
		Long: `Receipts checks the numeric claims a narrative makes against structured
source records: citation coverage, claim-to-record binding, derived-value
math, cross-source agreement, sanity rules, and privacy guards. Every
pass can be committed as a tamper-evident audit pack and found again
through a searchable index.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := readConfigFile(v, opts.ConfigFile); err != nil {
				return err
			}

			// Config and environment values apply where the flag was
			// not set.
			opts.Verbose = v.GetBool("verbose")
			opts.Format = v.GetString("format")
			opts.StoreRoot = v.GetString("store")
			opts.IndexPath = v.GetString("index")

			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.StoreRoot, "store", "receipts", "audit pack store root")
	cmd.PersistentFlags().StringVar(&opts.IndexPath, "index", "", "SQLite index path (default <store>/index.db)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default $HOME/.receipts/config.yaml)")

	// Environment overrides: RECEIPTS_FORMAT, RECEIPTS_STORE, RECEIPTS_INDEX.
	v.SetEnvPrefix("RECEIPTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range []string{"verbose", "format", "store", "index"} {
		_ = v.BindPFlag(name, cmd.PersistentFlags().Lookup(name))
	}

	// Add subcommands
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))

	return cmd
}

// readConfigFile loads settings from YAML. An explicit --config path
// must be readable; the searched default location may be absent.
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	v.AddConfigPath(filepath.Join(home, ".receipts"))
	v.SetConfigType("yaml")
	v.SetConfigName("config")
	_ = v.ReadInConfig()
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
