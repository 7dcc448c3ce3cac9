// Package config loads cppsbom settings from a YAML file and CPPSBOM_*
// environment variables.
//
// Precedence, lowest first: built-in defaults, the config file, the
// environment. Command-line flags are applied on top by the CLI.
package config

import (
	"time"

	"github.com/matzehuels/cppsbom/pkg/cache"
	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/errors"
	"github.com/matzehuels/cppsbom/pkg/sbom"
	"github.com/matzehuels/cppsbom/pkg/store"
)

// Config is the full set of file/environment settings.
type Config struct {
	Output         string        `mapstructure:"output" yaml:"output"`
	Format         string        `mapstructure:"format" yaml:"format"`
	ConanGraph     bool          `mapstructure:"conan_graph" yaml:"conan_graph"`
	DockerImage    string        `mapstructure:"docker_image" yaml:"docker_image"`
	ConanTimeout   time.Duration `mapstructure:"conan_timeout" yaml:"conan_timeout"`
	Ldd            bool          `mapstructure:"ldd" yaml:"ldd"`
	LddResults     string        `mapstructure:"ldd_results" yaml:"ldd_results"`
	CMakeConfigure bool          `mapstructure:"cmake_configure" yaml:"cmake_configure"`
	ExcludeDirs    []string      `mapstructure:"exclude_dirs" yaml:"exclude_dirs"`

	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`
	Serve   ServeConfig   `mapstructure:"serve" yaml:"serve"`
}

// CacheConfig selects the scan cache backend. An empty URL means the local
// file cache; redis:// URLs select Redis.
type CacheConfig struct {
	URL string        `mapstructure:"url" yaml:"url"`
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// ArchiveConfig points at the MongoDB SBOM archive. Archiving is off when
// URI is empty.
type ArchiveConfig struct {
	URI      string `mapstructure:"uri" yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`
}

// ServeConfig configures the HTTP API.
type ServeConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	Root string `mapstructure:"root" yaml:"root"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Output:       "sbom.json",
		Format:       sbom.FormatCycloneDX,
		DockerImage:  deps.DefaultDockerImage,
		ConanTimeout: deps.DefaultToolTimeout,
		Cache:        CacheConfig{TTL: cache.DefaultTTL},
		Archive:      ArchiveConfig{Database: store.DefaultDatabase},
		Serve:        ServeConfig{Addr: ":8080", Root: "."},
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if !sbom.ValidFormats[c.Format] {
		return errors.New(errors.ErrCodeInvalidFormat, "format: invalid value %q (must be one of: %v)", c.Format, sbom.Formats)
	}
	if c.ConanTimeout <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "conan_timeout: must be positive, got %s", c.ConanTimeout)
	}
	if c.Cache.TTL <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "cache.ttl: must be positive, got %s", c.Cache.TTL)
	}
	if c.Output == "" {
		return errors.New(errors.ErrCodeInvalidInput, "output: must not be empty")
	}
	return nil
}
