package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/sitesync/internal/airtable"
	"github.com/mesh-intelligence/sitesync/internal/paths"
	"github.com/mesh-intelligence/sitesync/internal/store"
	"github.com/mesh-intelligence/sitesync/internal/syncer"
	"github.com/mesh-intelligence/sitesync/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
	envPrefix      = "SITESYNC"

	cfgKeyAPIKey         = "airtable.api_key"
	cfgKeyBaseID         = "airtable.base_id"
	cfgKeyEndpoint       = "airtable.endpoint"
	cfgKeyTimestampField = "airtable.timestamp_field"
	cfgKeyTimeout        = "airtable.timeout"
	cfgKeyBackend        = "store.backend"
	cfgKeyDataDir        = "store.data_dir"
	cfgKeyConcurrency    = "concurrency"
	cfgKeyMaxIDs         = "max_ids_per_fetch"
	cfgKeyForceFull      = "force_full_sync"
	cfgKeyServeAddr      = "serve.addr"

	defaultServeAddr = ":8080"
)

// loadConfig reads config.yaml from configDir with environment overrides.
// A missing config.yaml is not an error: credentials may come entirely from
// the environment.
//
// Every nested key is reachable as SITESYNC_<SECTION>_<KEY>. The Airtable
// credentials additionally honour the unprefixed AIRTABLE_API_KEY and
// AIRTABLE_BASE_ID, and SITESYNC_FORCE_FULL_SYNC forces a full run.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyEndpoint, types.DefaultEndpoint)
	v.SetDefault(cfgKeyTimestampField, types.DefaultTimestampField)
	v.SetDefault(cfgKeyTimeout, types.DefaultTimeout)
	v.SetDefault(cfgKeyBackend, types.BackendJSON)
	v.SetDefault(cfgKeyDataDir, "")
	v.SetDefault(cfgKeyConcurrency, types.DefaultConcurrency)
	v.SetDefault(cfgKeyMaxIDs, types.DefaultMaxIDsPerFetch)
	v.SetDefault(cfgKeyForceFull, false)
	v.SetDefault(cfgKeyServeAddr, defaultServeAddr)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(cfgKeyAPIKey, envPrefix+"_AIRTABLE_API_KEY", "AIRTABLE_API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv(cfgKeyBaseID, envPrefix+"_AIRTABLE_BASE_ID", "AIRTABLE_BASE_ID"); err != nil {
		return nil, err
	}

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// decodeConfig unmarshals v into a Config. An empty table list selects
// types.DefaultTables.
func decodeConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Tables) == 0 {
		cfg.Tables = append([]types.TableConfig(nil), types.DefaultTables...)
	}
	return cfg.WithDefaults(), nil
}

// app is the state shared by commands that touch the snapshot.
type app struct {
	v   *viper.Viper
	cfg types.Config
	log *zap.Logger
}

// setup resolves directories, loads configuration and builds the logger.
func setup() (*app, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeConfig(v)
	if err != nil {
		return nil, err
	}
	dataDir, err := paths.ResolveDataDir(flags.dataDir, cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.Store.DataDir = dataDir

	log, err := newLogger(flags.verbose)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log.Debug("config loaded",
		zap.String("config_dir", configDir),
		zap.String("data_dir", dataDir),
		zap.String("backend", cfg.Store.Backend),
		zap.Strings("tables", cfg.TableNames()))
	return &app{v: v, cfg: cfg, log: log}, nil
}

// newSyncer builds the Airtable client, opens the store and wires both into
// a Syncer. Credentials are checked before the store is opened. The caller
// closes the returned store.
func (a *app) newSyncer() (*syncer.Syncer, types.Store, error) {
	client, err := airtable.New(a.cfg.Airtable, airtable.WithLogger(a.log.Named("airtable")))
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(a.cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	s, err := syncer.New(a.cfg, client, st, syncer.WithLogger(a.log.Named("sync")))
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return s, st, nil
}
