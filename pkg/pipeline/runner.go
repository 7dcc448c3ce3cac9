package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/cppsbom/pkg/cache"
	"github.com/matzehuels/cppsbom/pkg/sbom"
	"github.com/matzehuels/cppsbom/pkg/scanner"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API use this to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  cache.Instrument(c, "scan"),
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete scan → render pipeline with caching.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	result := &Result{Format: opts.Format}

	// Stage 1: Scan
	scanStart := time.Now()
	res, hit, err := r.ScanWithCacheInfo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	result.Scan = res
	result.Stats.ScanTime = time.Since(scanStart)
	result.Stats.Components = len(res.Components)
	result.Stats.Direct = len(res.Tree.Direct)
	result.Stats.Transitive = len(res.Tree.Transitive)
	result.CacheInfo.ScanHit = hit

	r.Logger.Info("scanned project",
		"components", result.Stats.Components,
		"direct", result.Stats.Direct,
		"cached", hit,
		"duration", result.Stats.ScanTime)

	// Stage 2: Render
	renderStart := time.Now()
	artifact, err := sbom.Render(ctx, res, opts.Format, opts.SBOM)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	result.Artifact = artifact
	result.Stats.RenderTime = time.Since(renderStart)

	r.Logger.Info("rendered output",
		"format", opts.Format,
		"bytes", len(artifact),
		"duration", result.Stats.RenderTime)

	return result, nil
}

// ScanWithCacheInfo scans the project with caching and returns cache hit info.
func (r *Runner) ScanWithCacheInfo(ctx context.Context, opts Options) (*scanner.Result, bool, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForScan(); err != nil {
		return nil, false, err
	}

	strategies, err := scanner.Select(opts.Strategies...)
	if err != nil {
		return nil, false, err
	}
	root, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, false, fmt.Errorf("resolve %s: %w", opts.Dir, err)
	}

	// A fingerprint failure only disables caching for this run
	var cacheKey string
	if fp, err := scanner.Fingerprint(ctx, root, strategies, opts.ExcludeDirs); err == nil {
		cacheKey = r.Keyer.ScanKey(root, opts.ScanKeyOpts(root, fp))
	} else if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	// Try cache first (unless refresh requested)
	if cacheKey != "" && !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, cacheKey); err == nil && hit {
			var cached scanner.Result
			if err := json.Unmarshal(data, &cached); err == nil {
				cached.BuildTree()
				return &cached, true, nil // Cache hit
			}
			// If deserialization fails, fall through to rescan
		}
	}

	s := scanner.New(opts.Logger, strategies...)
	res, err := s.Scan(ctx, root, opts.DepsOptions())
	if err != nil {
		return nil, false, err
	}

	// Cache the result
	if cacheKey != "" {
		if data, err := json.Marshal(res); err == nil {
			if err := r.Cache.Set(ctx, cacheKey, data, opts.CacheTTL); err != nil {
				r.Logger.Warn("cache write failed", "err", err)
			}
		}
	}

	return res, false, nil // Cache miss
}

// Scan is a convenience wrapper that calls ScanWithCacheInfo and discards the cache hit info.
func (r *Runner) Scan(ctx context.Context, opts Options) (*scanner.Result, error) {
	res, _, err := r.ScanWithCacheInfo(ctx, opts)
	return res, err
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

// Close releases the cache backend.
func (r *Runner) Close() error {
	return r.Cache.Close()
}
