package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/BTreeMap/ScriptCord/internal/store"
	"github.com/BTreeMap/ScriptCord/internal/util"
)

// Default configuration constants
const (
	// DefaultConfigDir is searched for the first non-empty *.yml or *.yaml
	DefaultConfigDir = "."
	// DefaultStateDir holds data.json and the lock file
	DefaultStateDir = "."
	// DefaultLogFile receives a copy of every log line
	DefaultLogFile = "bot.log"
	// DefaultLogLevel applies when neither a level nor debug is set
	DefaultLogLevel = "info"
)

func main() {
	initializeLogger(os.Stdout, nil, slog.LevelInfo)

	config := loadEnvironmentConfig()
	cmd := newRootCmd(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("ScriptCord failed to run", "error", err)
		stop()
		os.Exit(1)
	}
	slog.Info("ScriptCord exited successfully")
}

// Config holds environment configuration
type Config struct {
	Token      string
	ConfigDir  string
	StateDir   string
	StateDSN   string
	LogFile    string
	LogLevel   string
	Debug      bool
	StatusAddr string
	InviteQR   bool
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Token:      os.Getenv("TOKEN"),
		ConfigDir:  util.GetenvDefault("SCRIPTCORD_CONFIG_DIR", DefaultConfigDir),
		StateDir:   util.GetenvDefault("SCRIPTCORD_STATE_DIR", DefaultStateDir),
		StateDSN:   util.GetenvDefault("SCRIPTCORD_STATE_DSN", ""),
		LogFile:    util.GetenvDefault("SCRIPTCORD_LOG_FILE", DefaultLogFile),
		LogLevel:   util.GetenvDefault("SCRIPTCORD_LOG_LEVEL", DefaultLogLevel),
		Debug:      util.ParseBoolEnv("SCRIPTCORD_DEBUG", false),
		StatusAddr: util.GetenvDefault("SCRIPTCORD_STATUS_ADDR", ""),
		InviteQR:   util.ParseBoolEnv("SCRIPTCORD_INVITE_QR", false),
	}

	slog.Debug("environment variables loaded",
		"TOKEN_SET", config.Token != "",
		"SCRIPTCORD_CONFIG_DIR", config.ConfigDir,
		"SCRIPTCORD_STATE_DIR", config.StateDir,
		"SCRIPTCORD_STATE_DSN_SET", config.StateDSN != "",
		"SCRIPTCORD_LOG_FILE", config.LogFile,
		"SCRIPTCORD_LOG_LEVEL", config.LogLevel,
		"SCRIPTCORD_DEBUG", config.Debug,
		"SCRIPTCORD_STATUS_ADDR", config.StatusAddr)

	return config
}

// newRootCmd builds the command; every environment value can be overridden by
// a flag.
func newRootCmd(config Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ScriptCord",
		Short:         "ScriptCord runs a Discord bot described by a YAML file",
		Long:          "ScriptCord reads the first YAML file in the configuration directory and executes its action lists against Discord events.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// config holds the flag values by now
			settings := resolveSettings(config)
			closeLog, err := setupLogging(settings)
			if err != nil {
				return err
			}
			defer closeLog()
			return run(cmd.Context(), settings)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&config.Token, "token", config.Token, "Discord bot token (overrides $TOKEN)")
	flags.StringVar(&config.ConfigDir, "config-dir", config.ConfigDir, "directory holding the bot YAML (overrides $SCRIPTCORD_CONFIG_DIR)")
	flags.StringVar(&config.StateDir, "state-dir", config.StateDir, "directory for data.json and the lock file (overrides $SCRIPTCORD_STATE_DIR)")
	flags.StringVar(&config.StateDSN, "state-dsn", config.StateDSN, "state backend DSN: a .json path, SQLite file, postgres:// or redis:// URL (overrides $SCRIPTCORD_STATE_DSN)")
	flags.StringVar(&config.LogFile, "log-file", config.LogFile, "log file, empty to log to stdout only (overrides $SCRIPTCORD_LOG_FILE)")
	flags.StringVar(&config.LogLevel, "log-level", config.LogLevel, "debug, info, warn or error (overrides $SCRIPTCORD_LOG_LEVEL)")
	flags.BoolVar(&config.Debug, "debug", config.Debug, "shorthand for --log-level=debug (overrides $SCRIPTCORD_DEBUG)")
	flags.StringVar(&config.StatusAddr, "status-addr", config.StatusAddr, "listen address of the status API, empty to disable (overrides $SCRIPTCORD_STATUS_ADDR)")
	flags.BoolVar(&config.InviteQR, "invite-qr", config.InviteQR, "print the bot invite link as a QR code once connected (overrides $SCRIPTCORD_INVITE_QR)")

	return cmd
}

// resolveSettings fills derived defaults: the state DSN falls back to the
// JSON file inside the state directory.
func resolveSettings(config Config) Config {
	if config.StateDSN == "" {
		config.StateDSN = filepath.Join(config.StateDir, store.DefaultStateFile)
		slog.Debug("No state DSN provided, using JSON state file", "path", config.StateDSN)
	}
	if config.Debug {
		config.LogLevel = "debug"
	}
	return config
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(config Config) []store.Option {
	opts := []store.Option{store.WithDSN(config.StateDSN)}
	slog.Debug("Configuring state backend", "type", store.DetectDSNType(config.StateDSN))
	return opts
}

func validate(config Config) error {
	if config.Token == "" {
		return errors.New("a Discord token is required: set TOKEN or pass --token")
	}
	return nil
}
