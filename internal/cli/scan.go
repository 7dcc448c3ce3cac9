package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/cppsbom/pkg/config"
	"github.com/matzehuels/cppsbom/pkg/pipeline"
	"github.com/matzehuels/cppsbom/pkg/sbom"
	"github.com/matzehuels/cppsbom/pkg/scanner"
	"github.com/matzehuels/cppsbom/pkg/store"
)

// scanFlags holds the detection flags shared by scan, tree and browse.
type scanFlags struct {
	dir            string
	strategies     []string
	conanGraph     bool
	dockerImage    string
	conanTimeout   time.Duration
	cmakeConfigure bool
	ldd            bool
	lddResults     string
	exclude        []string
	noCache        bool
	refresh        bool
	cacheURL       string
}

func (f *scanFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.dir, "dir", "d", ".", "project directory")
	fs.StringSliceVar(&f.strategies, "strategies", nil, "strategies to run (default: all; see 'cppsbom strategies')")
	fs.BoolVar(&f.conanGraph, "conan-graph", false, "resolve the full Conan graph with 'conan graph info' in Docker")
	fs.StringVar(&f.dockerImage, "docker-image", "", "image used for Conan graph resolution")
	fs.DurationVar(&f.conanTimeout, "conan-timeout", 0, "timeout for external tools")
	fs.BoolVar(&f.cmakeConfigure, "cmake-configure", false, "run cmake --graphviz to resolve CMake targets")
	fs.BoolVar(&f.ldd, "ldd", false, "run ldd on built binaries")
	fs.StringVar(&f.lddResults, "ldd-results", "", "read precomputed ldd results from this file")
	fs.StringSliceVar(&f.exclude, "exclude", nil, "additional directories to skip")
	fs.BoolVar(&f.noCache, "no-cache", false, "disable the scan cache")
	fs.BoolVar(&f.refresh, "refresh", false, "ignore cached results and rescan")
	fs.StringVar(&f.cacheURL, "cache-url", "", "cache backend (redis://... or a directory)")
}

// applyConfig fills every flag the user did not set from cfg.
func (f *scanFlags) applyConfig(fs *pflag.FlagSet, cfg *config.Config) {
	if !fs.Changed("conan-graph") {
		f.conanGraph = cfg.ConanGraph
	}
	if !fs.Changed("docker-image") {
		f.dockerImage = cfg.DockerImage
	}
	if !fs.Changed("conan-timeout") {
		f.conanTimeout = cfg.ConanTimeout
	}
	if !fs.Changed("cmake-configure") {
		f.cmakeConfigure = cfg.CMakeConfigure
	}
	if !fs.Changed("ldd") {
		f.ldd = cfg.Ldd
	}
	if !fs.Changed("ldd-results") {
		f.lddResults = cfg.LddResults
	}
	if !fs.Changed("exclude") {
		f.exclude = cfg.ExcludeDirs
	}
	if !fs.Changed("cache-url") {
		f.cacheURL = cfg.Cache.URL
	}
}

// options converts the flags to pipeline options.
func (f *scanFlags) options(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		Dir:            f.dir,
		Strategies:     f.strategies,
		ConanGraph:     f.conanGraph,
		DockerImage:    f.dockerImage,
		CMakeConfigure: f.cmakeConfigure,
		Ldd:            f.ldd,
		LddResults:     f.lddResults,
		ToolTimeout:    f.conanTimeout,
		ExcludeDirs:    f.exclude,
		Refresh:        f.refresh,
		CacheTTL:       cfg.Cache.TTL,
	}
}

// prepare loads the configuration for the project and merges it under the
// flags.
func (c *CLI) prepare(cmd *cobra.Command, f *scanFlags) (*config.Config, error) {
	cfg, err := c.loadConfig(f.dir)
	if err != nil {
		return nil, err
	}
	f.applyConfig(cmd.Flags(), cfg)
	return cfg, nil
}

// scan runs the scan stage only, behind a spinner.
func (c *CLI) scan(ctx context.Context, f *scanFlags, cfg *config.Config) (*scanner.Result, bool, error) {
	runner, err := c.newRunner(ctx, f.noCache, f.cacheURL)
	if err != nil {
		return nil, false, fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	opts := f.options(cfg)
	opts.Logger = c.Logger

	spinner := newSpinnerWithContext(ctx, "Scanning "+f.dir+"...")
	spinner.Start()
	res, hit, err := runner.ScanWithCacheInfo(ctx, opts)
	if err != nil {
		spinner.StopWithError("Scan failed")
		return nil, false, err
	}
	spinner.Stop()
	return res, hit, ctx.Err()
}

// =============================================================================
// scan
// =============================================================================

// scanCommand creates the scan command.
func (c *CLI) scanCommand() *cobra.Command {
	var (
		flags          scanFlags
		output         string
		format         string
		showStrategies bool
		archiveURI     string
		archiveDB      string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a project and write its SBOM",
		Long: `Scan a C/C++ project and write a CycloneDX SBOM.

All registered strategies run concurrently; their findings are merged, with
package manager data taking precedence over build files, build outputs,
binaries and header scanning.

Settings are read from ` + config.FileName + ` in the project directory (or
--config) and CPPSBOM_* environment variables; flags override both.`,
		Example: `  cppsbom scan
  cppsbom scan -d ./myproject -o sbom.json
  cppsbom scan --conan-graph --ldd -f tree -o -
  cppsbom scan -f svg -o deps.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.prepare(cmd, &flags)
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			if !fs.Changed("output") {
				output = cfg.Output
			}
			if !fs.Changed("format") {
				format = cfg.Format
			}
			if !fs.Changed("archive") {
				archiveURI = cfg.Archive.URI
			}
			if !fs.Changed("archive-db") {
				archiveDB = cfg.Archive.Database
			}
			if err := pipeline.ValidateFormat(format); err != nil {
				return err
			}

			opts := flags.options(cfg)
			opts.Format = format
			return c.runScan(cmd.Context(), &flags, opts, output, showStrategies, archiveURI, archiveDB)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVarP(&output, "output", "o", pipeline.DefaultOutput, "output file ('-' for stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", pipeline.DefaultFormat, "output format: "+strings.Join(sbom.Formats, ", "))
	cmd.Flags().BoolVar(&showStrategies, "show-strategies", false, "list the strategies that contributed")
	cmd.Flags().StringVar(&archiveURI, "archive", "", "MongoDB URI to archive the SBOM in")
	cmd.Flags().StringVar(&archiveDB, "archive-db", store.DefaultDatabase, "MongoDB database for --archive")

	return cmd
}

// runScan executes the pipeline and writes or archives the artifact.
func (c *CLI) runScan(ctx context.Context, flags *scanFlags, opts pipeline.Options, output string, showStrategies bool, archiveURI, archiveDB string) error {
	runner, err := c.newRunner(ctx, flags.noCache, flags.cacheURL)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	opts.Logger = c.Logger
	quiet := output == sbom.Stdout

	var spinner *Spinner
	if !quiet {
		spinner = newSpinnerWithContext(ctx, "Scanning "+opts.Dir+"...")
		spinner.Start()
	}
	result, err := runner.Execute(ctx, opts)
	if spinner != nil {
		if err != nil {
			spinner.StopWithError("Scan failed")
		} else {
			spinner.Stop()
		}
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := sbom.WriteFile(output, result.Artifact, os.Stdout); err != nil {
		return fmt.Errorf("write output %s: %w", output, err)
	}

	var archivedID string
	if archiveURI != "" {
		id, err := c.archive(ctx, archiveURI, archiveDB, opts.Dir, result)
		if err != nil {
			return err
		}
		archivedID = id
	}

	if quiet {
		return nil
	}

	printSuccess("SBOM complete")
	printFile(output)
	printStats(result.Stats.Components, result.Stats.Direct, result.CacheInfo.ScanHit)
	if showStrategies {
		printNewline()
		printStrategies(result.Scan.StrategiesUsed, result.Scan.StrategiesSkipped)
	}
	if archivedID != "" {
		printKeyValue("Archived", archivedID)
	}
	printNewline()
	printNextStep("Explore", "cppsbom browse -d "+opts.Dir)

	return nil
}

// archive stores the artifact in MongoDB and returns the record ID.
func (c *CLI) archive(ctx context.Context, uri, database, dir string, result *pipeline.Result) (string, error) {
	st, err := store.NewMongoStore(ctx, uri, database)
	if err != nil {
		return "", err
	}
	defer st.Close()

	project := result.Scan.RootName
	if project == "" {
		if abs, err := filepath.Abs(dir); err == nil {
			project = filepath.Base(abs)
		}
	}
	rec := &store.Record{
		Project:        project,
		ComponentCount: result.Stats.Components,
		Strategies:     result.Scan.StrategiesUsed,
		Format:         result.Format,
		Document:       result.Artifact,
	}
	if err := st.Save(ctx, rec); err != nil {
		return "", err
	}
	c.Logger.Debug("archived sbom", "id", rec.ID, "database", database)
	return rec.ID, nil
}

func joinOrDash(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ", ")
}
