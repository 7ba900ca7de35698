package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/sitesync/internal/paths"
	"github.com/mesh-intelligence/sitesync/pkg/types"
)

const configHeader = `# sitesync configuration.
# Credentials are read from AIRTABLE_API_KEY and AIRTABLE_BASE_ID when not set here.
`

// configFile is the structure written to config.yaml. The API key is never
// written.
type configFile struct {
	Airtable struct {
		BaseID         string `yaml:"base_id"`
		TimestampField string `yaml:"timestamp_field"`
	} `yaml:"airtable"`
	Tables []types.TableConfig `yaml:"tables"`
	Store  types.StoreConfig   `yaml:"store"`
}

func newInitCmd() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the configuration and data directories",
		Long: "Write a default config.yaml listing the portfolio tables and create the\n" +
			"snapshot directory. An existing config.yaml is left untouched.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, backend)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", types.BackendJSON, "snapshot backend (json, sqlite, pebble)")
	return cmd
}

func runInit(cmd *cobra.Command, backend string) error {
	if err := (types.StoreConfig{Backend: backend}).Validate(); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	configDir := flags.configDir
	if configDir == "" {
		configDir = os.Getenv(paths.EnvConfigDir)
	}
	if configDir == "" {
		configDir = paths.ProjectConfigDirName
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, configFileExt)
	written, err := writeConfigIfMissing(configPath, backend)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	dataDir, err := paths.ResolveDataDir(flags.dataDir, "")
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	out := cmd.OutOrStdout()
	if written {
		fmt.Fprintf(out, "Wrote %s\n", configPath)
	} else {
		fmt.Fprintf(out, "Kept existing %s\n", configPath)
	}
	fmt.Fprintf(out, "Data directory: %s\n", dataDir)
	return nil
}

// writeConfigIfMissing creates config.yaml with the default tables. It
// reports false when the file already exists.
func writeConfigIfMissing(path, backend string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	var cfg configFile
	cfg.Airtable.TimestampField = types.DefaultTimestampField
	cfg.Tables = types.DefaultTables
	cfg.Store = types.StoreConfig{Backend: backend}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	return true, os.WriteFile(path, append([]byte(configHeader), data...), 0o644)
}
