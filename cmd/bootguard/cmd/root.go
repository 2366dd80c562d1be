package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/bootguard/internal/metrics"
	"github.com/psantana5/bootguard/pkg/engine"
	"github.com/psantana5/bootguard/pkg/logging"
	"github.com/psantana5/bootguard/pkg/store"
)

var (
	cfgFile      string
	baseDir      string
	outputFormat string
	logLevel     string
	logJSON      bool
	dbType       string
	dbDSN        string
	dbPath       string
	crashLogDir  string
	appVersion   = "dev"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bootguard",
	Short: "Startup resilience engine",
	Long: `bootguard validates an application's startup environment, repairs
missing or corrupted configuration, decides when to fall back to safe
mode and keeps crash analytics over time.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bootguard/config)")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "application data directory to guard (default from config or $HOME/.bootguard/data)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&dbType, "db-type", "", "analytics database: sqlite, postgres or memory (default sqlite)")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db-dsn", "", "analytics database DSN (postgres)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "analytics database file (sqlite)")
	rootCmd.PersistentFlags().StringVar(&crashLogDir, "crash-dir", "", "platform crash dump directory (default /var/crash)")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".bootguard")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	viper.BindEnv("base_dir", "BOOTGUARD_BASE_DIR")
	viper.BindEnv("db_type", "BOOTGUARD_DB_TYPE")
	viper.BindEnv("db_dsn", "BOOTGUARD_DB_DSN")
	viper.BindEnv("db_path", "BOOTGUARD_DB_PATH")
	viper.BindEnv("crash_dir", "BOOTGUARD_CRASH_DIR")
	viper.BindEnv("api_key", "BOOTGUARD_API_KEY")

	// A missing config file is fine; env bindings still resolve.
	viper.ReadInConfig()

	// Flags win, then config file / environment, then the built-in
	// defaults.
	if baseDir == "" {
		baseDir = viper.GetString("base_dir")
	}
	if dbType == "" {
		dbType = viper.GetString("db_type")
	}
	if dbDSN == "" {
		dbDSN = viper.GetString("db_dsn")
	}
	if dbPath == "" {
		dbPath = viper.GetString("db_path")
	}
	if crashLogDir == "" {
		crashLogDir = viper.GetString("crash_dir")
	}
	if crashLogDir == "" {
		crashLogDir = "/var/crash"
	}

	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}
		baseDir = filepath.Join(home, ".bootguard", "data")
	}
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// IsYAMLOutput returns true if YAML output is requested
func IsYAMLOutput() bool {
	return outputFormat == "yaml"
}

func newLogger() *logging.Logger {
	return logging.NewLogger(logging.ParseLevel(logLevel), logJSON)
}

// openStore opens the configured analytics backend. A caller that does
// not need persistence passes requirePersistence=false and gets a nil
// store when none is configured.
func openStore() (store.Store, error) {
	cfg := store.Config{
		Type:            dbType,
		DSN:             dbDSN,
		Path:            dbPath,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
	if cfg.Type == "sqlite" || cfg.Type == "" {
		if cfg.Path == "" {
			cfg.Path = filepath.Join(baseDir, "bootguard.db")
		}
	}
	return store.NewStore(cfg)
}

// buildEngine assembles an engine over the configured store. The
// returned closer shuts the store down; the caller defers it.
func buildEngine(log *logging.Logger, met *metrics.Metrics) (*engine.Engine, func() error, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open analytics store: %w", err)
	}
	return buildEngineWithStore(st, log, met)
}

func buildEngineWithStore(st store.Store, log *logging.Logger, met *metrics.Metrics) (*engine.Engine, func() error, error) {
	eng := engine.New(engine.Options{
		BaseDir:     baseDir,
		AppVersion:  appVersion,
		CrashLogDir: crashLogDir,
		Backend:     st,
		Logger:      log,
		Metrics:     met,
	})
	if err := eng.Analytics().Load(); err != nil {
		log.Warn("Failed to load analytics history", map[string]interface{}{"error": err.Error()})
	}
	return eng, st.Close, nil
}
