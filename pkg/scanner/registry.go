package scanner

import (
	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/core/deps/binary"
	"github.com/matzehuels/cppsbom/pkg/core/deps/buildlogs"
	"github.com/matzehuels/cppsbom/pkg/core/deps/cmake"
	"github.com/matzehuels/cppsbom/pkg/core/deps/compiledb"
	"github.com/matzehuels/cppsbom/pkg/core/deps/conan"
	"github.com/matzehuels/cppsbom/pkg/core/deps/headers"
	"github.com/matzehuels/cppsbom/pkg/core/deps/ldd"
	"github.com/matzehuels/cppsbom/pkg/core/deps/linkermap"
	"github.com/matzehuels/cppsbom/pkg/core/deps/meson"
	"github.com/matzehuels/cppsbom/pkg/core/deps/vcpkg"
)

// entry is one registered strategy with its merge rank and a short
// description for listings.
type entry struct {
	strategy    deps.Strategy
	rank        int
	description string
}

// registry lists the strategies in merge order.
var registry = []entry{
	{conan.GraphStrategy{}, 11, "resolved Conan graph (graph.json or conan graph info in Docker)"},
	{conan.Strategy{}, 10, "Conan recipes and lockfiles"},
	{vcpkg.Strategy{}, 10, "vcpkg manifests, lockfiles and installed status"},
	{compiledb.Strategy{}, 9, "external -I and -l flags in compile_commands.json"},
	{linkermap.Strategy{}, 8, "libraries and edges recorded in linker map files"},
	{buildlogs.Strategy{}, 7, "link commands in CMake link.txt, MSBuild .tlog, Ninja and Make files"},
	{cmake.Strategy{}, 6, "find_package, FetchContent and CMakeCache.txt"},
	{meson.Strategy{}, 5, "meson dependency() calls and subproject wraps"},
	{binary.Strategy{}, 4, "DT_NEEDED, PE imports, Mach-O load commands and /DEFAULTLIB"},
	{ldd.Strategy{}, 3, "resolved shared libraries from ldd"},
	{headers.Strategy{}, 1, "#include directives matched against known libraries"},
}

// Rank returns the merge priority of a detection source. Higher wins.
func Rank(source string) int {
	for _, r := range registry {
		if r.strategy.Name() == source {
			return r.rank
		}
	}
	return 0
}

// Info describes a registered strategy.
type Info struct {
	Name        string   `json:"name" yaml:"name"`
	Rank        int      `json:"rank" yaml:"rank"`
	Description string   `json:"description" yaml:"description"`
	Manifests   []string `json:"manifests" yaml:"manifests"`
}

// Infos describes every registered strategy in merge order.
func Infos() []Info {
	out := make([]Info, 0, len(registry))
	for _, r := range registry {
		out = append(out, Info{
			Name:        r.strategy.Name(),
			Rank:        r.rank,
			Description: r.description,
			Manifests:   r.strategy.Manifests(),
		})
	}
	return out
}
