package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"opdag/backend/dag"
	"opdag/backend/replica"
	"opdag/backend/storage/badger"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "OPDAG_"

// Config is the file and environment form of a replica's settings.
type Config struct {
	// ReplicaID is generated from IDScheme when empty.
	ReplicaID        string `yaml:"replica_id" env:"REPLICA_ID"`
	IDScheme         string `yaml:"id_scheme" env:"ID_SCHEME"`
	PredecessorOrder string `yaml:"predecessor_order" env:"PREDECESSOR_ORDER"`
	MaxDepth         int    `yaml:"max_depth" env:"MAX_DEPTH"`
	LogLevel         string `yaml:"log_level" env:"LOG_LEVEL"`

	// StorePath is the snapshot database directory. Empty keeps snapshots in
	// memory.
	StorePath string `yaml:"store_path" env:"STORE_PATH"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		IDScheme:         string(replica.IDSchemeXID),
		PredecessorOrder: string(dag.OrderIDAscending),
		LogLevel:         zerolog.InfoLevel.String(),
	}
}

// Load starts from Default, applies the YAML file at path if path is not
// empty, then the OPDAG_ environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, xerrors.Errorf("failed to read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, xerrors.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, xerrors.Errorf("failed to parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	err := dec.Decode(cfg)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Validate checks every enumerated setting.
func (c Config) Validate() error {
	switch replica.IDScheme(c.IDScheme) {
	case replica.IDSchemeXID, replica.IDSchemeUUID:
	default:
		return xerrors.Errorf("unknown id_scheme %q", c.IDScheme)
	}
	if _, err := dag.ParsePredecessorOrder(c.PredecessorOrder); err != nil {
		return err
	}
	if c.MaxDepth < 0 {
		return xerrors.Errorf("max_depth must not be negative, got %d", c.MaxDepth)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return xerrors.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// Replica converts the settings into a replica configuration logging to out.
func (c Config) Replica(out io.Writer) (replica.Configuration, error) {
	order, err := dag.ParsePredecessorOrder(c.PredecessorOrder)
	if err != nil {
		return replica.Configuration{}, err
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return replica.Configuration{}, xerrors.Errorf("invalid log_level: %w", err)
	}

	return replica.Configuration{
		ReplicaID:        c.ReplicaID,
		IDScheme:         replica.IDScheme(c.IDScheme),
		PredecessorOrder: order,
		MaxDepth:         c.MaxDepth,
		LogOutput:        out,
		LogLevel:         level,
	}, nil
}

// Storage returns the snapshot database settings.
func (c Config) Storage(logger *zerolog.Logger) badger.Config {
	if c.StorePath == "" {
		cfg := badger.InMemoryConfig()
		cfg.Logger = logger
		return cfg
	}
	return badger.Config{Path: c.StorePath, SyncWrites: true, Logger: logger}
}
