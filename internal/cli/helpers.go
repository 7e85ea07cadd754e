package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/pkgconnect/internal/logger"
	"github.com/glorpus-work/pkgconnect/pkg/client"
	"github.com/glorpus-work/pkgconnect/pkg/config"
)

// These variables are bound to the root command's persistent flags.
var (
	ConfigPath   string
	EnvFile      string
	Verbose      bool
	OutputFormat string
)

// appFs is the filesystem commands read and write through.
var appFs afero.Fs = afero.NewOsFs()

// loadEnvFile loads KEY=VALUE pairs from the --env-file flag, or from ./.env when present.
// Variables already set in the environment win.
func loadEnvFile() error {
	path := EnvFile
	if path == "" {
		path = DefaultEnvFile
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	logger.Debug("Loaded environment file", logger.Fields{"path": path})
	return nil
}

// loadConfig reads the configuration file, overlays the environment and sets up logging.
func loadConfig() (*config.Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(appFs, getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}
	if Verbose {
		cfg.Settings.LogLevel = "debug"
	}

	logger.InitLogger(cfg.Settings.LogLevel, logger.OutputFormat(cfg.Settings.LogFormat))
	return cfg, nil
}

// newClient loads the configuration and returns an initialized client.
// Callers must Reset it when done.
func newClient(ctx context.Context) (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	c := client.New(cfg, client.WithFs(appFs), client.WithVersion(Version))
	if err := c.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}
	return c, nil
}

func getConfigPath() string {
	if ConfigPath != "" {
		return ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		// An empty path makes LoadConfig fail with a descriptive error.
		logger.Warn("Failed to get default config path, using empty path", logger.Fields{"error": err.Error()})
		return ""
	}
	return defaultPath
}

func jsonOutput() bool {
	return OutputFormat == OutputJSON
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
