// Package cmake detects dependencies from CMake project files: the
// CMakeCache.txt of a configured build tree and every CMakeLists.txt in
// the project.
package cmake

import (
	"bufio"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/core/deps/fingerprints"
)

// Strategy implements deps.Strategy for CMake.
type Strategy struct{}

func (Strategy) Name() string { return deps.SourceCMake }

func (Strategy) Manifests() []string {
	return []string{"CMakeCache.txt", "CMakeLists.txt"}
}

// CacheFiles returns the CMakeCache.txt files of the usual build
// directories below root: the root itself, build/, out/ and cmake-build-*.
func CacheFiles(root string) []string {
	dirs := []string{root, filepath.Join(root, "build"), filepath.Join(root, "out")}
	if matches, err := filepath.Glob(filepath.Join(root, "cmake-build-*")); err == nil {
		sort.Strings(matches)
		dirs = append(dirs, matches...)
	}
	var out []string
	for _, d := range dirs {
		p := filepath.Join(d, "CMakeCache.txt")
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func (s Strategy) Detect(ctx context.Context, root string, opts deps.Options) (*deps.Detection, error) {
	opts = opts.WithDefaults()
	col := deps.NewCollector(deps.SourceCMake)
	versions := make(map[string]string)
	var direct []string

	for _, path := range CacheFiles(root) {
		f, err := os.Open(path)
		if err != nil {
			opts.Logger("cmake: %v", err)
			continue
		}
		parseCache(f, root, col, versions)
		f.Close()
	}

	err := deps.Walk(ctx, root, opts.ExcludeDirs, func(path string, d fs.DirEntry) error {
		if !strings.EqualFold(d.Name(), "CMakeLists.txt") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			opts.Logger("cmake: %v", err)
			return nil
		}
		direct = append(direct, parseLists(string(data), col, versions)...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	det := &deps.Detection{Direct: direct}
	for _, c := range col.Components() {
		if !c.HasVersion() {
			deps.SetVersion(&c, versions[strings.ToLower(c.Name)])
		}
		det.Components = append(det.Components, c)
	}
	return det, nil
}

var (
	cacheDir     = regexp.MustCompile(`(?i)^([A-Za-z0-9_]+?)_(?:DIR|INCLUDE_DIRS?|ROOT):(?:PATH|STRING|FILEPATH)\s*=\s*(.*)$`)
	cacheLib     = regexp.MustCompile(`(?i)^([A-Za-z0-9_]+?)_(?:LIBRARIES|LIBRARY|LIB)(?:_RELEASE|_DEBUG)?:(?:FILEPATH|STRING|PATH)\s*=\s*(.*)$`)
	cacheVersion = regexp.MustCompile(`(?i)^([A-Za-z0-9_]+?)_VERSION(?:_STRING)?:(?:STRING|INTERNAL)\s*=\s*(.*)$`)
)

// ParseCache reads CMakeCache.txt entries. Directory entries count only
// when they point outside root; "-NOTFOUND" values are ignored.
func ParseCache(data []byte, root string) []deps.Component {
	col := deps.NewCollector(deps.SourceCMake)
	versions := make(map[string]string)
	parseCache(strings.NewReader(string(data)), root, col, versions)

	cs := col.Components()
	for i := range cs {
		deps.SetVersion(&cs[i], versions[strings.ToLower(cs[i].Name)])
	}
	return cs
}

func parseCache(r io.Reader, root string, col *deps.Collector, versions map[string]string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(line), "CMAKE_") {
			continue
		}

		if m := cacheVersion.FindStringSubmatch(line); m != nil {
			if v := strings.TrimSpace(m[2]); v != "" && !notFound(v) {
				recordVersion(versions, m[1], v)
			}
			continue
		}
		if m := cacheDir.FindStringSubmatch(line); m != nil {
			dir := strings.TrimSpace(m[2])
			if dir == "" || notFound(dir) || !deps.IsExternalPath(dir, root, "") {
				continue
			}
			if lib := matchPrefix(m[1], dir); lib != nil {
				c := col.Add(lib)
				c.AddIncludePath(filepath.ToSlash(dir))
				deps.SetVersion(c, deps.ExtractVersionFromPath(dir))
			}
			continue
		}
		if m := cacheLib.FindStringSubmatch(line); m != nil {
			for _, lib := range strings.Split(m[2], ";") {
				lib = strings.TrimSpace(lib)
				if lib == "" || notFound(lib) || lib == "optimized" || lib == "debug" {
					continue
				}
				if fp := matchPrefix(m[1], lib); fp != nil {
					c := col.Add(fp)
					c.AddLinkLibrary(filepath.Base(filepath.ToSlash(lib)))
					deps.SetVersion(c, deps.ExtractVersionFromLibName(filepath.Base(lib)))
				}
			}
		}
	}
}

// recordVersion stores v under the lowercased package prefix and, for
// fingerprinted prefixes ("OpenSSL" -> "openssl"), under the library name.
func recordVersion(versions map[string]string, prefix, v string) {
	key := strings.ToLower(prefix)
	if _, ok := versions[key]; !ok {
		versions[key] = v
	}
	if lib := fingerprints.Match(prefix); lib != nil {
		if _, ok := versions[strings.ToLower(lib.Name)]; !ok {
			versions[strings.ToLower(lib.Name)] = v
		}
	}
}

func matchPrefix(prefix, value string) *fingerprints.Library {
	if lib := fingerprints.Match(prefix); lib != nil {
		return lib
	}
	return fingerprints.Match(value)
}

func notFound(v string) bool {
	return strings.HasSuffix(strings.ToUpper(v), "-NOTFOUND")
}

var (
	findPackage  = regexp.MustCompile(`(?i)find_package\s*\(\s*([A-Za-z0-9_\-]+)(?:\s+([0-9][0-9.]*))?`)
	fetchContent = regexp.MustCompile(`(?i)FetchContent_Declare\s*\(\s*([A-Za-z0-9_\-]+)`)
	gitTag       = regexp.MustCompile(`(?i)GIT_TAG\s+([^\s)]+)`)
	urlVersion   = regexp.MustCompile(`(?i)URL\s+\S*?[-_/]v?(\d+\.\d+(?:\.\d+)?)`)
	linkToken    = regexp.MustCompile(`\b([A-Za-z][A-Za-z0-9_]+)::([A-Za-z0-9_]+)`)
	lineComment  = regexp.MustCompile(`(?m)#.*$`)
)

// ParseLists extracts dependencies from a CMakeLists.txt. It returns the
// components and the names the project asks for directly.
func ParseLists(content string) ([]deps.Component, []string) {
	col := deps.NewCollector(deps.SourceCMake)
	versions := make(map[string]string)
	direct := parseLists(content, col, versions)

	cs := col.Components()
	for i := range cs {
		deps.SetVersion(&cs[i], versions[strings.ToLower(cs[i].Name)])
	}
	return cs, direct
}

func parseLists(content string, col *deps.Collector, versions map[string]string) []string {
	content = lineComment.ReplaceAllString(content, "")
	var direct []string

	for _, m := range findPackage.FindAllStringSubmatch(content, -1) {
		if IsBuiltin(m[1]) {
			continue
		}
		c := col.AddPackage(m[1])
		deps.SetVersion(c, m[2])
		direct = append(direct, c.Name)
	}

	for _, loc := range fetchContent.FindAllStringSubmatchIndex(content, -1) {
		name := content[loc[2]:loc[3]]
		c := col.AddPackage(name)
		direct = append(direct, c.Name)

		block := content[loc[1]:]
		if end := strings.IndexByte(block, ')'); end >= 0 {
			block = block[:end]
		}
		if m := gitTag.FindStringSubmatch(block); m != nil {
			if v := tagVersion(m[1]); v != "" {
				recordVersion(versions, c.Name, v)
			}
		} else if m := urlVersion.FindStringSubmatch(block); m != nil {
			recordVersion(versions, c.Name, m[1])
		}
	}

	for _, m := range linkToken.FindAllStringSubmatch(content, -1) {
		if IsBuiltin(m[1]) {
			continue
		}
		if lib := fingerprints.Match(m[1]); lib != nil {
			col.Add(lib)
		}
	}
	return direct
}

// tagVersion turns "v1.2.3" or "release-1.12.1" into a version and rejects
// commit hashes and branch names.
func tagVersion(tag string) string {
	tag = strings.Trim(tag, `"'`)
	if i := strings.IndexAny(tag, "0123456789"); i >= 0 {
		v := tag[i:]
		if strings.Contains(v, ".") && len(v) < 20 && !strings.ContainsAny(v, "/ ") {
			return v
		}
	}
	return ""
}

var builtins = map[string]bool{
	"threads": true, "openmp": true, "mpi": true, "cuda": true,
	"cudatoolkit": true, "python": true, "python3": true, "python2": true,
	"pkgconfig": true, "gnuinstalldirs": true, "cmakepackageconfighelpers": true,
	"checkcxxcompilerflag": true, "checkccompilerflag": true,
	"checkincludefile": true, "checkincludefilecxx": true,
	"checkfunctionexists": true, "checklibraryexists": true,
	"checksymbolexists": true, "checktypesize": true,
	"externalproject": true, "fetchcontent": true,
	"ctest": true, "cpack": true, "installrequiredsystemlibraries": true,
	"generateexportheader": true, "writecompilerdetectionheader": true,
	"doxygen": true, "git": true, "perl": true, "cmake": true,
}

// IsBuiltin reports whether name is a CMake module or namespace that ships
// with CMake or the toolchain rather than a third-party package.
func IsBuiltin(name string) bool {
	return builtins[strings.ToLower(name)]
}
