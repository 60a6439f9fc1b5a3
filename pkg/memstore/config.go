package memstore

import (
	"github.com/BurntSushi/toml"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

const DefaultConfig = `
# In-memory chunk store configuration.

[store]
# node tag placed in the high 16 bits of every chunk id; 65535 is reserved
node-id = 1
# first address handed out; 0 is the null address and never allocated
base-address = 4096
# upper bound on live bytes, 0 for unbounded
max-bytes = 0

[snapshot]
# none, fastest, default, better, best
level = "better"
`

var ErrInvalidConfig = errors.New("config error")

type Config struct {
	Store    StoreConfig    `toml:"store"`
	Snapshot SnapshotConfig `toml:"snapshot"`
}

type StoreConfig struct {
	NodeID      uint16 `toml:"node-id"`
	BaseAddress uint64 `toml:"base-address"`
	MaxBytes    uint64 `toml:"max-bytes"`
}

type SnapshotConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads a TOML config file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg, err := ParseConfig("")
	if err != nil {
		return cfg, err
	}
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "decode config %s", path)
	}
	return cfg, cfg.Validate()
}

// ParseConfig decodes data on top of DefaultConfig.
func ParseConfig(data string) (Config, error) {
	var cfg Config
	if _, err := toml.Decode(DefaultConfig, &cfg); err != nil {
		return cfg, errors.Wrap(err, "decode default config")
	}
	if _, err := toml.Decode(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Store.NodeID == 0xFFFF {
		return errors.Wrap(ErrInvalidConfig, "node-id 65535 is reserved for direct ids")
	}
	if c.Store.BaseAddress == 0 {
		return errors.Wrap(ErrInvalidConfig, "base-address must be non-zero")
	}
	if c.Store.BaseAddress >= 1<<48 {
		return errors.Wrap(ErrInvalidConfig, "base-address exceeds 48 bits")
	}
	if _, err := c.Snapshot.encoderLevel(); err != nil {
		return err
	}
	return nil
}

// encoderLevel maps the configured level; 0 means store uncompressed.
func (s SnapshotConfig) encoderLevel() (zstd.EncoderLevel, error) {
	switch s.Level {
	case "", "none":
		return 0, nil
	}
	ok, lvl := zstd.EncoderLevelFromString(s.Level)
	if !ok {
		return 0, errors.Wrapf(ErrInvalidConfig, "unknown snapshot level %q", s.Level)
	}
	return lvl, nil
}
