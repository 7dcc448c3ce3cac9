// Package meson detects dependencies from Meson projects: dependency() and
// subproject() calls in meson.build files and the wrap files under
// subprojects/.
package meson

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

// Strategy implements deps.Strategy for Meson.
type Strategy struct{}

func (Strategy) Name() string { return deps.SourceMeson }

func (Strategy) Manifests() []string {
	return []string{"meson.build", "subprojects/*.wrap"}
}

func (s Strategy) Detect(ctx context.Context, root string, opts deps.Options) (*deps.Detection, error) {
	opts = opts.WithDefaults()
	col := deps.NewCollector(deps.SourceMeson)
	det := &deps.Detection{}

	err := deps.Walk(ctx, root, opts.ExcludeDirs, func(path string, d fs.DirEntry) error {
		name := strings.ToLower(d.Name())
		switch {
		case name == "meson.build":
			data, err := os.ReadFile(path)
			if err != nil {
				opts.Logger("meson: %v", err)
				return nil
			}
			det.Direct = append(det.Direct, parseBuild(string(data), col)...)
		case strings.HasSuffix(name, ".wrap"):
			data, err := os.ReadFile(path)
			if err != nil {
				opts.Logger("meson: %v", err)
				return nil
			}
			w, err := ParseWrap(strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())), data)
			if err != nil {
				opts.Logger("meson: skipping %s: %v", path, err)
				return nil
			}
			c := col.AddPackage(w.Name)
			deps.SetVersion(c, w.Version)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	det.Components = col.Components()
	return det, nil
}

var (
	dependencyCall = regexp.MustCompile(`dependency\s*\(\s*['"]([A-Za-z0-9_\-.+]+)['"]`)
	subprojectCall = regexp.MustCompile(`subproject\s*\(\s*['"]([A-Za-z0-9_\-.+]+)['"]`)
	versionKwarg   = regexp.MustCompile(`version\s*:\s*\[?\s*['"]\s*(?:[><=!]=?|==)?\s*(\d[^\s'"]*)['"]`)
	mesonComment   = regexp.MustCompile(`(?m)#.*$`)
)

// ParseBuild extracts dependencies from a meson.build file and returns the
// components and the names declared directly.
func ParseBuild(content string) ([]deps.Component, []string) {
	col := deps.NewCollector(deps.SourceMeson)
	direct := parseBuild(content, col)
	return col.Components(), direct
}

func parseBuild(content string, col *deps.Collector) []string {
	content = mesonComment.ReplaceAllString(content, "")
	var direct []string

	for _, loc := range dependencyCall.FindAllStringSubmatchIndex(content, -1) {
		name := content[loc[2]:loc[3]]
		if IsBuiltin(name) {
			continue
		}
		c := col.AddPackage(name)
		direct = append(direct, c.Name)

		// the version keyword, if any, sits inside the same call
		args := content[loc[1]:]
		if end := strings.IndexByte(args, ')'); end >= 0 {
			args = args[:end]
		}
		if m := versionKwarg.FindStringSubmatch(args); m != nil {
			deps.SetVersion(c, m[1])
		}
	}

	for _, m := range subprojectCall.FindAllStringSubmatch(content, -1) {
		if IsBuiltin(m[1]) {
			continue
		}
		direct = append(direct, col.AddPackage(m[1]).Name)
	}
	return direct
}

// Wrap is the information a .wrap file gives about a subproject.
type Wrap struct {
	Name     string
	Version  string
	Source   string
	Provides []string
}

var (
	wrapVersion    = regexp.MustCompile(`[-_]v?(\d+(?:\.\d+)+)`)
	wrapdbRevision = regexp.MustCompile(`-\d+$`)
)

// ParseWrap parses a Meson wrap file. The version comes from an explicit
// "version" key, the WrapDB "wrapdb_version", the unpacked "directory" or
// the "source_filename", in that order; wrap-git revisions that look like
// tags are used last.
func ParseWrap(name string, data []byte) (*Wrap, error) {
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, data)
	if err != nil {
		return nil, err
	}

	w := &Wrap{Name: strings.ToLower(name)}
	for _, sec := range f.Sections() {
		switch sec.Name() {
		case "wrap-file", "wrap-git", "wrap-hg", "wrap-svn":
		case "provide":
			for _, k := range sec.Keys() {
				if k.Name() == "dependency_names" || k.Name() == "program_names" {
					w.Provides = append(w.Provides, k.Strings(",")...)
				} else {
					w.Provides = append(w.Provides, k.Name())
				}
			}
			continue
		default:
			continue
		}

		if w.Source == "" {
			w.Source = first(sec.Key("source_url").String(), sec.Key("url").String())
		}
		if w.Version != "" {
			continue
		}
		switch {
		case sec.HasKey("version"):
			w.Version = sec.Key("version").String()
		case sec.HasKey("wrapdb_version"):
			w.Version = wrapdbRevision.ReplaceAllString(sec.Key("wrapdb_version").String(), "")
		default:
			for _, key := range []string{"directory", "source_filename", "revision"} {
				if m := wrapVersion.FindStringSubmatch("-" + sec.Key(key).String()); m != nil {
					w.Version = m[1]
					break
				}
			}
		}
	}
	return w, nil
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var builtins = map[string]bool{
	"threads": true, "dl": true, "m": true, "rt": true,
	"openmp": true, "mpi": true, "cuda": true, "appleframeworks": true,
	"intl": true, "iconv": true,
}

// IsBuiltin reports whether name is one of Meson's special dependencies
// provided by the toolchain.
func IsBuiltin(name string) bool {
	return builtins[strings.ToLower(name)]
}
