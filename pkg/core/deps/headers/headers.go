// Package headers is the fallback strategy for projects without build
// artifacts: it reads #include directives from C and C++ sources and keeps
// those that name a fingerprinted third-party library.
package headers

import (
	"bufio"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/core/deps/fingerprints"
)

// skipDirs hold build output rather than sources.
var skipDirs = []string{"build", "out", "_build", "CMakeFiles", "cmake-build-debug", "cmake-build-release"}

// internalDirs are where a project keeps its own headers.
var internalDirs = []string{"include", "src", "lib"}

var sourceExts = map[string]bool{
	".cpp": true, ".cc": true, ".cxx": true, ".c++": true, ".c": true,
	".h": true, ".hpp": true, ".hxx": true, ".h++": true, ".hh": true,
	".inl": true, ".ipp": true, ".tpp": true,
}

// IsSource reports whether name has a C or C++ source or header extension.
func IsSource(name string) bool {
	return sourceExts[strings.ToLower(filepath.Ext(name))]
}

// Include is one #include directive.
type Include struct {
	Path   string
	Angled bool // <...> rather than "..."
}

var includeDirective = regexp.MustCompile(`^\s*#\s*include\s*([<"])([^>"]+)[>"]`)

// ParseIncludes returns the #include directives of a source file.
func ParseIncludes(r io.Reader) ([]Include, error) {
	var out []Include
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if m := includeDirective.FindStringSubmatch(sc.Text()); m != nil {
			out = append(out, Include{Path: strings.TrimSpace(m[2]), Angled: m[1] == "<"})
		}
	}
	return out, sc.Err()
}

// Strategy implements deps.Strategy for #include scanning.
type Strategy struct{}

func (Strategy) Name() string { return deps.SourceHeaders }

func (Strategy) Manifests() []string {
	return []string{"*.c", "*.cpp", "*.cc", "*.cxx", "*.h", "*.hpp"}
}

func (s Strategy) Detect(ctx context.Context, root string, opts deps.Options) (*deps.Detection, error) {
	opts = opts.WithDefaults()
	col := deps.NewCollector(deps.SourceHeaders)
	files := 0

	skip := append(append([]string(nil), skipDirs...), opts.ExcludeDirs...)
	err := deps.Walk(ctx, root, skip, func(path string, d fs.DirEntry) error {
		if !IsSource(d.Name()) {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		incs, err := ParseIncludes(f)
		if err != nil {
			opts.Logger("header-scan: %s: %v", path, err)
		}
		files++
		for _, inc := range incs {
			if lib := classify(inc, path, root); lib != nil {
				col.Add(lib).AddIncludePath(inc.Path)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	opts.Logger("header-scan: scanned %d files", files)

	det := &deps.Detection{Components: col.Components()}
	for _, c := range det.Components {
		det.Direct = append(det.Direct, c.Name)
	}
	return det, nil
}

// classify returns the library an include refers to, or nil for standard,
// project-internal and unrecognized headers. Quoted includes only count
// when they are absolute.
func classify(inc Include, source, root string) *fingerprints.Library {
	if !inc.Angled && !filepath.IsAbs(inc.Path) {
		return nil
	}
	if fingerprints.IsStdlibHeader(inc.Path) || ResolvesInside(inc.Path, source, root) {
		return nil
	}
	return fingerprints.Match(inc.Path)
}

// ResolvesInside reports whether include names a file of the project
// itself: next to the including source, at the project root, or under one
// of its include, src or lib directories.
func ResolvesInside(include, source, root string) bool {
	candidates := []string{filepath.Join(filepath.Dir(source), include), filepath.Join(root, include)}
	for _, dir := range internalDirs {
		candidates = append(candidates, filepath.Join(root, dir, include))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil && !deps.IsExternalPath(c, root, "") {
			return true
		}
	}
	return false
}

// versionDefine matches #define FOO_VERSION "1.2.3" and the underscore
// form #define BOOST_LIB_VERSION "1_82".
var versionDefine = regexp.MustCompile(`^\s*#\s*define\s+[A-Za-z0-9_]*VERSION[A-Za-z0-9_]*\s+"(\d+[._]\d+(?:[._]\d+)?)"`)

// versionFiles are checked first in an include directory.
var versionFiles = []string{"version.h", "version.hpp", "Version.h", "config.h", "config.hpp"}

// maxHintDepth bounds the search below an include directory.
const maxHintDepth = 3

// VersionHints fills unknown versions from version macros in the headers
// under each component's include paths. Components with a known version
// are left alone.
func VersionHints(components []deps.Component) {
	for i := range components {
		c := &components[i]
		if c.HasVersion() {
			continue
		}
		for _, inc := range c.IncludePaths {
			if v := DirVersion(inc); v != "" {
				deps.SetVersion(c, v)
				break
			}
		}
	}
}

// DirVersion looks for a version macro in path, which may be a header or
// a directory of headers.
func DirVersion(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	if !info.IsDir() {
		return FileVersion(path)
	}

	var candidates []string
	for _, vf := range versionFiles {
		candidates = append(candidates, filepath.Join(path, vf))
	}
	base := strings.Count(filepath.Clean(path), string(filepath.Separator))
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.Count(filepath.Clean(p), string(filepath.Separator))-base >= maxHintDepth {
				return filepath.SkipDir
			}
			return nil
		}
		lower := strings.ToLower(d.Name())
		if strings.Contains(lower, "version") || strings.Contains(lower, "config") {
			candidates = append(candidates, p)
		}
		return nil
	})

	for _, c := range candidates {
		if v := FileVersion(c); v != "" {
			return v
		}
	}
	return ""
}

// FileVersion returns the first version macro value in a header, or "".
func FileVersion(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if m := versionDefine.FindStringSubmatch(sc.Text()); m != nil {
			return strings.ReplaceAll(m[1], "_", ".")
		}
	}
	return ""
}
