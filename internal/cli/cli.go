package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/cppsbom/pkg/buildinfo"
	"github.com/matzehuels/cppsbom/pkg/cache"
	"github.com/matzehuels/cppsbom/pkg/config"
	"github.com/matzehuels/cppsbom/pkg/errors"
	"github.com/matzehuels/cppsbom/pkg/observability"
	"github.com/matzehuels/cppsbom/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "cppsbom"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	verbose    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "cppsbom generates CycloneDX SBOMs for C and C++ projects",
		Long: `cppsbom detects the third-party libraries of a C/C++ project from package
manager manifests, build system files, build outputs and binaries, and writes
them as a CycloneDX 1.4 software bill of materials.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := LogInfo
			if c.verbose {
				level = LogDebug
				observability.SetScanHooks(&logHooks{logger: c.Logger})
				observability.SetCacheHooks(&logHooks{logger: c.Logger})
			}
			c.SetLogLevel(level)
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: "+config.FileName+" in the project directory)")

	// Register all subcommands
	root.AddCommand(c.scanCommand())
	root.AddCommand(c.transcribeCommand())
	root.AddCommand(c.treeCommand())
	root.AddCommand(c.browseCommand())
	root.AddCommand(c.strategiesCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())
	registerCompletions(root)

	return root
}

// loadConfig reads --config, or the project file in dir.
func (c *CLI) loadConfig(dir string) (*config.Config, error) {
	l := config.NewLoader()
	cfg, err := l.Load(c.configPath, dir)
	if err != nil {
		return nil, err
	}
	if f := l.ConfigFile(); f != "" {
		c.Logger.Debug("loaded config", "file", f)
	}
	return cfg, nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context, noCache bool, cacheURL string) (*pipeline.Runner, error) {
	cache, err := newCache(ctx, noCache, cacheURL)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(cache, nil, c.Logger), nil
}

func newCache(ctx context.Context, noCache bool, cacheURL string) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	if strings.Contains(cacheURL, "://") && !strings.HasPrefix(cacheURL, "file://") {
		if err := errors.ValidateURL(cacheURL, "redis", "rediss"); err != nil {
			return nil, err
		}
		return cache.NewRedisCache(ctx, cacheURL)
	}
	if cacheURL != "" {
		return cache.NewFileCache(strings.TrimPrefix(cacheURL, "file://"))
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/cppsbom/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
