// Package deps defines the data model shared by every detection strategy:
// Conan-style package references, requirements, detected components and the
// dependency tree assembled from them.
//
// Strategies live in subpackages (conan, vcpkg, cmake, ...) and implement
// [Strategy]. Parsers for individual manifest files implement
// [ManifestParser]. The scanner package runs strategies and merges their
// [Detection] results.
package deps

import (
	"context"
	"time"
)

// Strategy names. They double as the detectionSource recorded on components.
const (
	SourceConanGraph = "conan-graph"
	SourceConan      = "conan"
	SourceVcpkg      = "vcpkg"
	SourceCompileDB  = "compile_commands.json"
	SourceLinkerMap  = "linker-map"
	SourceBuildLogs  = "build-logs"
	SourceCMake      = "cmake"
	SourceMeson      = "meson"
	SourceBinary     = "binary-edges"
	SourceLdd        = "ldd"
	SourceHeaders    = "header-scan"
)

// Defaults applied by [Options.WithDefaults].
const (
	DefaultDockerImage  = "conanio/conan:latest"
	DefaultToolTimeout  = 5 * time.Minute
	DefaultLddResultsFn = "ldd-results.json"
)

// Options configures strategies. The zero value is passive: no external
// tool is ever invoked unless one of the active flags is set.
type Options struct {
	ConanGraph     bool          // run `conan graph info` through Docker
	DockerImage    string        // image used for the Conan graph (default: conanio/conan:latest)
	CMakeConfigure bool          // configure CMake to export compile_commands.json
	Ldd            bool          // invoke ldd on shared objects found in the tree
	LddResults     string        // path of a precomputed ldd-results.json
	ToolTimeout    time.Duration // deadline for each external tool (default: 5m)
	ExcludeDirs    []string      // extra directory names skipped while walking
	Runner         Runner        // executes external tools (default: ExecRunner)
	Logger         func(string, ...any)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.DockerImage == "" {
		opts.DockerImage = DefaultDockerImage
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	return opts
}

// Strategy detects components from one family of project artifacts.
//
// Detect must honour ctx cancellation and must be safe to run concurrently
// with other strategies. A strategy that finds nothing returns an empty
// Detection and a nil error.
type Strategy interface {
	// Name returns the strategy identifier, one of the Source* constants.
	Name() string

	// Manifests lists the file names or patterns the strategy reads.
	Manifests() []string

	// Detect scans the project rooted at root.
	Detect(ctx context.Context, root string, opts Options) (*Detection, error)
}

// Detection is the raw output of one strategy before merging.
type Detection struct {
	Components []Component

	// Direct lists names the project itself depends on, as opposed to names
	// that only appear as dependencies of other components.
	Direct []string

	// Edges maps a parent component name to the names it depends on.
	Edges map[string][]string

	// RootName and RootVersion identify the scanned project when a recipe
	// declares them.
	RootName    string
	RootVersion string
}

// AddEdge records parent -> child, ignoring self-loops and duplicates.
func (d *Detection) AddEdge(parent, child string) {
	if parent == "" || child == "" || NormalizeName(parent) == NormalizeName(child) {
		return
	}
	if d.Edges == nil {
		d.Edges = make(map[string][]string)
	}
	for _, c := range d.Edges[parent] {
		if c == child {
			return
		}
	}
	d.Edges[parent] = append(d.Edges[parent], child)
}

// Empty reports whether the detection found nothing.
func (d *Detection) Empty() bool {
	return d == nil || len(d.Components) == 0
}
