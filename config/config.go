// Package config loads cache settings from YAML or JSON.
//
//	size_limit: 67108864
//	compaction_percentage: 0.1
//	expiration_scan_frequency: 30s
//	shards: 64
//	callback_workers: 4
//	callback_queue: 4096
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/IvanBrykalov/memorycache/cache"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format selects the parser for Parse.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// Config mirrors the file-configurable subset of cache.Options.
// ExpirationScanFrequency accepts Go durations ("30s"); the string
// "on_access" selects cache.ScanOnAccess.
type Config struct {
	SizeLimit               int64   `koanf:"size_limit"`
	CompactionPercentage    float64 `koanf:"compaction_percentage"`
	ExpirationScanFrequency string  `koanf:"expiration_scan_frequency"`
	Shards                  int     `koanf:"shards"`
	CallbackWorkers         int     `koanf:"callback_workers"`
	CallbackQueue           int     `koanf:"callback_queue"`
}

// Load reads path and parses it by extension (.yaml, .yml or .json).
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f = YAML
	case ".json":
		f = JSON
	default:
		return Config{}, fmt.Errorf("config: unsupported file extension %q", filepath.Ext(path))
	}
	return Parse(data, f)
}

// Parse decodes data in the given format.
func Parse(data []byte, f Format) (Config, error) {
	var parser koanf.Parser
	switch f {
	case YAML:
		parser = yaml.Parser()
	case JSON:
		parser = json.Parser()
	default:
		return Config{}, fmt.Errorf("config: unknown format %q", f)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// ScanFrequency converts the configured string to a duration (0 if unset).
func (c Config) ScanFrequency() (time.Duration, error) {
	switch s := strings.TrimSpace(c.ExpirationScanFrequency); s {
	case "":
		return 0, nil
	case "on_access":
		return cache.ScanOnAccess, nil
	default:
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("config: expiration_scan_frequency: %w", err)
		}
		return d, nil
	}
}

// Apply copies cfg onto opt, leaving code-only fields (clock, hasher,
// sizer, metrics, logger, policy) untouched. Range checks happen in
// cache.New.
func Apply[K comparable, V any](cfg Config, opt cache.Options[K, V]) (cache.Options[K, V], error) {
	freq, err := cfg.ScanFrequency()
	if err != nil {
		return opt, err
	}
	opt.SizeLimit = cfg.SizeLimit
	opt.CompactionPercentage = cfg.CompactionPercentage
	opt.ExpirationScanFrequency = freq
	opt.Shards = cfg.Shards
	opt.CallbackWorkers = cfg.CallbackWorkers
	opt.CallbackQueue = cfg.CallbackQueue
	return opt, nil
}
