package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/smdedupe/internal/config"
	"github.com/dbsmedya/smdedupe/internal/database"
	"github.com/dbsmedya/smdedupe/internal/logger"
	"github.com/dbsmedya/smdedupe/internal/store"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

const defaultConfigFile = "smdedupe.yaml"

// CLI flags that override config file values
var (
	cfgFile     string
	dbPath      string
	comparePath string
	presetName  string
	logLevel    string
	logFormat   string
	groupColumn string
	includeNull bool
	tagSearch   bool
	noDupes     bool
	timeoutSecs float64
	batchSize   int
	noColor     bool
)

var rootCmd = &cobra.Command{
	Use:   "smdedupe",
	Short: "Sound metadata database duplicate finder",
	Long: `Find and remove duplicate records in a Soundminer-style sound metadata
database (SMDB), and rewrite column text in bulk.

Detectors:
  - Duplicate filenames, keeping one record per group by tie-break rules
  - AudioSuite tags and other filename substrings
  - Filenames already present in a second database

Detectors run concurrently against a read-only view of the database;
writes wait for running scans to finish.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.Disable()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile,
		"Path to configuration file (defaults apply when the default file is absent)")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "",
		"Override database.path (primary SMDB file)")
	rootCmd.PersistentFlags().StringVar(&comparePath, "compare", "",
		"Compare against this SMDB file (enables the comparison search)")
	rootCmd.PersistentFlags().StringVarP(&presetName, "preset", "p", "",
		"Use a named preset for tags and tie-break order")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	rootCmd.PersistentFlags().StringVarP(&groupColumn, "group-by", "g", "",
		"Only treat records as duplicates when this column also matches")
	rootCmd.PersistentFlags().BoolVar(&includeNull, "include-null-group", false,
		"Process records with an empty group value together instead of skipping them")
	rootCmd.PersistentFlags().BoolVarP(&tagSearch, "tags", "t", false,
		"Enable the tag search")
	rootCmd.PersistentFlags().BoolVar(&noDupes, "no-duplicates", false,
		"Disable the duplicate filename search")
	rootCmd.PersistentFlags().Float64Var(&timeoutSecs, "timeout", 0,
		"Override per-detector scan timeout in seconds")
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0,
		"Override removal batch size (records per DELETE statement)")

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"Disable coloured output")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() config.Overrides {
	return config.Overrides{
		Database:    dbPath,
		Compare:     comparePath,
		Preset:      presetName,
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		GroupColumn: groupColumn,
		IncludeNull: includeNull,
		Tags:        tagSearch,
		NoDupes:     noDupes,
		Timeout:     timeoutSecs,
		BatchSize:   batchSize,
	}
}

// loadConfig reads the config file, applies CLI overrides and validates the
// result. A missing file is only an error when it was named explicitly.
func loadConfig() (*config.Config, error) {
	configFile := GetConfigFile()

	var cfg *config.Config
	if _, err := os.Stat(configFile); err == nil {
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else if errors.Is(err, os.ErrNotExist) && configFile == defaultConfigFile {
		cfg = config.DefaultConfig()
	} else {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ApplyOverrides(GetCLIOverrides()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads configuration and builds the logger.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// workspace holds the open databases for one command.
type workspace struct {
	manager   *database.Manager
	primary   *store.Gateway
	secondary *store.Gateway
}

// openWorkspace connects the primary database and, when comparison is
// enabled, the comparison database. Both are checked for the metadata table.
func openWorkspace(ctx context.Context, cfg *config.Config, log *logger.Logger) (*workspace, error) {
	ws := &workspace{manager: database.NewManager(cfg)}

	if err := ws.manager.ConnectPrimary(ctx); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	primary, err := store.NewGateway(ws.manager.Primary, cfg.Database.Table, cfg.Database.Path, log)
	if err != nil {
		ws.Close()
		return nil, err
	}
	if err := primary.Preflight(ctx); err != nil {
		ws.Close()
		return nil, err
	}
	ws.primary = primary

	if cfg.Compare.Enabled {
		if err := ws.manager.ConnectCompare(ctx); err != nil {
			ws.Close()
			return nil, fmt.Errorf("failed to open comparison database: %w", err)
		}
		secondary, err := store.NewGateway(ws.manager.Compare, cfg.Database.Table, cfg.Compare.Path, log)
		if err != nil {
			ws.Close()
			return nil, err
		}
		ws.secondary = secondary
	}

	log.Debugw("Databases opened",
		"primary", cfg.Database.Path,
		"compare", cfg.Compare.Path,
	)
	return ws, nil
}

// Close closes every open database.
func (ws *workspace) Close() error {
	return ws.manager.Close()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(log *logger.Logger) (context.Context, context.CancelFunc) {
	return database.ShutdownContext(context.Background(), func(sig os.Signal) {
		log.Warnw("Received shutdown signal, stopping", "signal", sig.String())
	})
}
