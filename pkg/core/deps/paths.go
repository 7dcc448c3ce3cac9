package deps

import (
	"context"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/matzehuels/cppsbom/pkg/core/deps/fingerprints"
)

// skippedDirs are never descended into.
var skippedDirs = []string{"node_modules", "vendor", "__pycache__"}

// Walk calls fn for every regular file below root. Hidden directories,
// vendored trees and any directory whose name is in skip are not entered.
// Walk returns ctx.Err() once the context is cancelled; errors from fn stop
// the walk, unreadable entries are skipped.
func Walk(ctx context.Context, root string, skip []string, fn func(path string, d fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if path != root && SkipDir(d.Name(), skip...) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fn(path, d)
	})
}

// SkipDir reports whether a directory with this name is skipped while
// walking a project.
func SkipDir(name string, extra ...string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return lo.Contains(skippedDirs, name) || lo.Contains(extra, name)
}

// IsExternalPath reports whether path lies outside root. Relative paths are
// resolved against base, which defaults to root.
func IsExternalPath(path, root, base string) bool {
	if path == "" {
		return false
	}
	if base == "" {
		base = root
	}
	if !filepath.IsAbs(path) && !isWindowsAbs(path) {
		path = filepath.Join(base, path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	p := strings.ToLower(filepath.ToSlash(absPath))
	r := strings.TrimSuffix(strings.ToLower(filepath.ToSlash(absRoot)), "/")
	return p != r && !strings.HasPrefix(p, r+"/")
}

var windowsAbs = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

func isWindowsAbs(p string) bool { return windowsAbs.MatchString(p) }

var (
	// boost_1_82_0, openssl-3.1.4, zlib-1.2.11
	versionInSegment = regexp.MustCompile(`[-_](\d+)[._](\d+)(?:[._](\d+))?`)
	// boost_system-vc143-mt-x64-1_82.lib
	versionInLibName = regexp.MustCompile(`[-_](\d+)[._](\d+)(?:[._](\d+))?(?:\.lib|\.a)?$`)
	// /conan/data/fmt/10.1.1/... or /vcpkg/packages/fmt/10.1.1
	bareVersionSegment = regexp.MustCompile(`^v?(\d+)\.(\d+)(?:\.(\d+))?$`)
)

// ExtractVersionFromPath finds a version embedded in one of the path's
// segments, or returns "".
func ExtractVersionFromPath(path string) string {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if m := versionInSegment.FindStringSubmatch(part); m != nil {
			return joinVersion(m)
		}
		if m := bareVersionSegment.FindStringSubmatch(part); m != nil {
			return joinVersion(m)
		}
	}
	return ""
}

// ExtractVersionFromLibName finds a version at the end of a decorated
// library name, or returns "".
func ExtractVersionFromLibName(lib string) string {
	if m := versionInLibName.FindStringSubmatch(lib); m != nil {
		return joinVersion(m)
	}
	return ""
}

func joinVersion(m []string) string {
	v := m[1] + "." + m[2]
	if m[3] != "" {
		v += "." + m[3]
	}
	return v
}

// FromPaths maps include paths and link library names to fingerprinted
// libraries. Unrecognized inputs are dropped. The result is sorted by name.
func FromPaths(source string, includes, libs []string) []Component {
	seen := make(map[string]*Component)

	get := func(lib *fingerprints.Library) *Component {
		c, ok := seen[lib.Name]
		if !ok {
			c = &Component{
				Name:            lib.Name,
				Version:         UnknownVersion,
				PURL:            lib.PURL,
				DetectionSource: source,
				Description:     lib.Description,
			}
			seen[lib.Name] = c
		}
		return c
	}
	setVersion := func(c *Component, lib *fingerprints.Library, v string) {
		if v != "" && !c.HasVersion() {
			c.Version = v
			c.PURL = PURLWithVersion(lib.PURL, v)
		}
	}

	for _, inc := range lo.Uniq(includes) {
		if lib := fingerprints.Match(inc); lib != nil {
			c := get(lib)
			c.AddIncludePath(inc)
			setVersion(c, lib, ExtractVersionFromPath(inc))
		}
	}
	for _, l := range lo.Uniq(libs) {
		if lib := fingerprints.Match(l); lib != nil {
			c := get(lib)
			c.AddLinkLibrary(l)
			setVersion(c, lib, ExtractVersionFromLibName(l))
		}
	}

	out := make([]Component, 0, len(seen))
	for _, c := range seen {
		sort.Strings(c.IncludePaths)
		sort.Strings(c.LinkLibraries)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LibraryName reduces a library file name or linker token to its bare name:
// "libssl.so.3" -> "ssl", "zlibstatic.lib" -> "zlibstatic", "-lfoo" -> "foo".
func LibraryName(s string) string {
	base := filepath.Base(filepath.ToSlash(s))
	base = strings.TrimPrefix(base, "-l")
	if i := strings.Index(base, ".so"); i > 0 {
		base = base[:i]
	}
	for _, ext := range []string{".lib", ".a", ".dll", ".dylib"} {
		base = strings.TrimSuffix(base, ext)
	}
	if strings.HasPrefix(base, "lib") && len(base) > 3 {
		base = base[3:]
	}
	return base
}

// MatchLibrary maps a library file name or linker token ("libssl.so.3",
// "ssl.dll", "-lssl") to a fingerprinted library.
func MatchLibrary(file string) *fingerprints.Library {
	if lib := fingerprints.Match(LibraryName(file)); lib != nil {
		return lib
	}
	return fingerprints.Match(filepath.Base(filepath.ToSlash(file)))
}

// FromLibrary builds a component for a fingerprinted library. An empty
// version becomes UnknownVersion.
func FromLibrary(lib *fingerprints.Library, version, source string) Component {
	if version == "" {
		version = UnknownVersion
	}
	return Component{
		Name:            lib.Name,
		Version:         version,
		PURL:            PURLWithVersion(lib.PURL, version),
		DetectionSource: source,
		Description:     lib.Description,
	}
}
