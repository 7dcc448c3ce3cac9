package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/matzehuels/cppsbom/pkg/errors"
)

const (
	// FileName is the project-level config file looked up in the scanned
	// directory when no explicit path is given.
	FileName = ".cppsbom.yaml"

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "CPPSBOM"
)

// Loader reads configuration through a private viper instance.
type Loader struct {
	v    *viper.Viper
	file string
}

// NewLoader creates a loader with defaults and environment lookup
// registered. Unmarshal only sees environment values for keys viper already
// knows, so every key is given a default or an explicit binding.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("output", d.Output)
	v.SetDefault("format", d.Format)
	v.SetDefault("conan_graph", d.ConanGraph)
	v.SetDefault("docker_image", d.DockerImage)
	v.SetDefault("conan_timeout", d.ConanTimeout)
	v.SetDefault("ldd", d.Ldd)
	v.SetDefault("ldd_results", d.LddResults)
	v.SetDefault("cmake_configure", d.CMakeConfigure)
	_ = v.BindEnv("exclude_dirs")
	v.SetDefault("cache.url", d.Cache.URL)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("archive.uri", d.Archive.URI)
	v.SetDefault("archive.database", d.Archive.Database)
	v.SetDefault("serve.addr", d.Serve.Addr)
	v.SetDefault("serve.root", d.Serve.Root)

	return &Loader{v: v}
}

// Load reads path, or FileName inside dir when path is empty, merges the
// environment and validates the result. A missing project file is not an
// error; a missing explicit path is.
func (l *Loader) Load(path, dir string) (*Config, error) {
	if path == "" {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "config file %s", path)
	}

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read config %s", path)
		}
		l.file = path
	}

	cfg := Default()
	if err := l.v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		if path != "" {
			return nil, errors.Wrap(errors.GetCode(err), err, "%s", path)
		}
		return nil, err
	}
	return cfg, nil
}

// ConfigFile returns the file the last Load read, or "" when only defaults
// and the environment were used.
func (l *Loader) ConfigFile() string {
	return l.file
}

// decodeHook composes the hooks needed for durations and for comma
// separated lists coming from the environment.
func decodeHook(dc *mapstructure.DecoderConfig) {
	dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// Load is a convenience function that creates a new Loader and loads
// configuration.
func Load(path, dir string) (*Config, error) {
	return NewLoader().Load(path, dir)
}
