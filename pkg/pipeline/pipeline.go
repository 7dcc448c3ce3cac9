// Package pipeline provides the scan pipeline shared by the CLI and the
// HTTP server.
//
// The pipeline consists of two stages:
//
//  1. Scan: run the detection strategies against a project directory and
//     merge their findings (cached by project fingerprint)
//  2. Render: serialize the merged result as CycloneDX, tree JSON, DOT or SVG
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Dir:    "./myproject",
//	    Format: sbom.FormatCycloneDX,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("sbom.json", result.Artifact, 0o644)
package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/cppsbom/pkg/cache"
	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/core/deps/ldd"
	"github.com/matzehuels/cppsbom/pkg/errors"
	"github.com/matzehuels/cppsbom/pkg/sbom"
	"github.com/matzehuels/cppsbom/pkg/scanner"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultOutput is the file written when no output path is given.
	DefaultOutput = "sbom.json"

	// DefaultFormat is the default output format.
	DefaultFormat = sbom.FormatCycloneDX
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for one pipeline run.
// This struct supports JSON serialization for API requests.
type Options struct {
	// Scan options
	Dir            string        `json:"dir"`
	Strategies     []string      `json:"strategies,omitempty"` // empty: all registered strategies
	ConanGraph     bool          `json:"conan_graph,omitempty"`
	DockerImage    string        `json:"docker_image,omitempty"`
	CMakeConfigure bool          `json:"cmake_configure,omitempty"`
	Ldd            bool          `json:"ldd,omitempty"`
	LddResults     string        `json:"ldd_results,omitempty"`
	ToolTimeout    time.Duration `json:"tool_timeout,omitempty"`
	ExcludeDirs    []string      `json:"exclude_dirs,omitempty"`
	Refresh        bool          `json:"refresh,omitempty"`

	// Render options
	Format string `json:"format,omitempty"`

	// Runtime options (not serialized)
	Logger   *log.Logger   `json:"-"`
	Runner   deps.Runner   `json:"-"`
	SBOM     sbom.Options  `json:"-"`
	CacheTTL time.Duration `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Scan is the merged scan result.
	Scan *scanner.Result

	// Artifact is the rendered document in Format.
	Artifact []byte
	Format   string

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks which stages hit the cache.
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Components int
	Direct     int
	Transitive int
	ScanTime   time.Duration
	RenderTime time.Duration
}

// CacheInfo tracks cache hits for each pipeline stage.
type CacheInfo struct {
	ScanHit bool // Whether the scan result came from cache
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !sbom.ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidFormat, "invalid format: %q (must be one of: %v)", format, sbom.Formats)
	}
	return nil
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := o.ValidateForScan(); err != nil {
		return err
	}
	if o.Format == "" {
		o.Format = DefaultFormat
	}
	if err := ValidateFormat(o.Format); err != nil {
		return err
	}
	o.validated = true
	return nil
}

// ValidateForScan checks required fields for scanning.
func (o *Options) ValidateForScan() error {
	if o.Dir == "" {
		return errors.New(errors.ErrCodeInvalidInput, "dir is required")
	}
	if _, err := scanner.Select(o.Strategies...); err != nil {
		return err
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = cache.DefaultTTL
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

// DepsOptions returns the options handed to every strategy.
func (o *Options) DepsOptions() deps.Options {
	opts := deps.Options{
		ConanGraph:     o.ConanGraph,
		DockerImage:    o.DockerImage,
		CMakeConfigure: o.CMakeConfigure,
		Ldd:            o.Ldd,
		LddResults:     o.LddResults,
		ToolTimeout:    o.ToolTimeout,
		ExcludeDirs:    o.ExcludeDirs,
		Runner:         o.Runner,
	}
	if o.Logger != nil {
		opts.Logger = o.Logger.Debugf
	}
	return opts.WithDefaults()
}

// ScanKeyOpts returns cache key options for a scan of root with the given
// project fingerprint. Inputs read from outside root, the ldd results file
// and the Docker image, are part of the key.
func (o *Options) ScanKeyOpts(root, fingerprint string) cache.ScanKeyOpts {
	key := cache.ScanKeyOpts{
		Fingerprint: fingerprint,
		Strategies:  o.Strategies,
		ConanGraph:  o.ConanGraph,
		CMake:       o.CMakeConfigure,
		Ldd:         o.Ldd || o.LddResults != "",
		LddResults:  fileStamp(ldd.ResultsFile(root, o.DepsOptions())),
	}
	if o.ConanGraph {
		key.DockerImage = o.DepsOptions().DockerImage
	}
	return key
}

// fileStamp identifies the content of path by its size and modification
// time. A missing file stamps as its path alone.
func fileStamp(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	info, err := os.Stat(path)
	if err != nil {
		return path
	}
	return fmt.Sprintf("%s:%d:%d", path, info.Size(), info.ModTime().UnixNano())
}
