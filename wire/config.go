package wire

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the optional magwire.toml project configuration: default
// flags a CLI or embedding host can read instead of hardcoding them.
type Config struct {
	Codec CodecConfig `toml:"codec"`
	Cache CacheConfig `toml:"cache"`

	// Dir is the directory containing the loaded magwire.toml (set by
	// Load/FindAndLoad, not read from the file itself).
	Dir string `toml:"-"`
}

// CodecConfig carries advisory defaults for the codec. CompressionThreshold
// and CanonicalizationThreshold are recorded for a host's own bookkeeping;
// the wire format's actual inline/shared-reference cutoff (7 bytes, §4.4)
// is a format invariant both ends must agree on and is not configurable,
// so these two fields are read but not consulted by this package.
type CodecConfig struct {
	CompressionThreshold     int `toml:"compression-threshold"`
	CanonicalizationThreshold int `toml:"canonicalization-threshold"`
}

// CacheConfig controls the optional SQLite-backed known-object cache
// (cache.go). PersistentCache off is the original spec's behavior: an
// in-memory, process-lifetime-only known-object table.
type CacheConfig struct {
	PersistentCache bool   `toml:"persistent"`
	Path            string `toml:"path"`
}

const configFileName = "magwire.toml"

// Load parses a magwire.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(c.Dir, "magwire-cache.sqlite")
	}

	return &c, nil
}

// FindAndLoad walks up from startDir looking for a magwire.toml file, then
// loads and returns it. Returns nil, nil if no config file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, configFileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}
