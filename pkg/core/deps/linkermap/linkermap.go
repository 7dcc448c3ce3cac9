// Package linkermap reads linker map files written by GNU ld (-Map) and
// MSVC link.exe (/MAP). Maps list every archive and shared object that went
// into a link. The GNU "Archive member included to satisfy reference"
// section also records which library pulled in which, giving dependency
// edges between libraries.
package linkermap

import (
	"bufio"
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/core/deps/fingerprints"
)

// Map is what a linker map says about libraries.
type Map struct {
	// Libraries are library paths, or bare .lib names in MSVC maps, with
	// forward slashes.
	Libraries []string

	// Edges maps a requesting library to the libraries it caused to be
	// linked. Object files of the project itself never appear as keys.
	Edges map[string][]string
}

func (m *Map) addLibrary(lib string) {
	for _, l := range m.Libraries {
		if l == lib {
			return
		}
	}
	m.Libraries = append(m.Libraries, lib)
}

func (m *Map) addEdge(parent, child string) {
	if m.Edges == nil {
		m.Edges = make(map[string][]string)
	}
	for _, c := range m.Edges[parent] {
		if c == child {
			return
		}
	}
	m.Edges[parent] = append(m.Edges[parent], child)
}

const libExt = `\.(?:lib|a|so(?:\.\d+)*)`

var (
	// LOAD c:/toolchain/lib/nofp\libgcc.a, or a path at the start of a line
	loadLine = regexp.MustCompile(`(?i)(?:^LOAD\s+|^\s*)((?:[a-z]:[\\/]|/)[^\s(]+` + libExt + `)`)

	// 0001:00000000  _deflate  00401000 f zlib.lib:deflate.obj
	msvcLib = regexp.MustCompile(`(?i)(?:^|[\s"])((?:[a-z]:[\\/])?[^\s":]+\.lib)\b`)

	// /usr/lib/libz.a(deflate.o)    /usr/lib/libssl.a(ssl_lib.o) (deflate)
	// with the requester optionally parenthesized
	satisfySingle = regexp.MustCompile(`^\s*([^\s(]+` + libExt + `)(?:\([^)]*\))?\s+\(?([^\s(]+)`)

	// c:/toolchain/lib/nofp\libgcc.a(_arm_addsubsf3.o) alone on its line;
	// the requester follows on the next, indented line
	satisfyChild = regexp.MustCompile(`(?i)^((?:[a-z]:[\\/]|/)[^\s(]+` + libExt + `)\([^)]*\)\s*$`)

	// the requester on the second line of a two-line entry
	requester = regexp.MustCompile(`^\s*([^\s(]+)`)

	isLibrary = regexp.MustCompile(`(?i)` + libExt + `$`)
)

func normalize(p string) string { return strings.ReplaceAll(p, `\`, "/") }

// Parse reads a linker map.
func Parse(r io.Reader) (*Map, error) {
	m := &Map{}
	var (
		inSatisfy bool
		pending   string
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if strings.Contains(line, "Archive member included") && strings.Contains(line, "satisfy") {
			inSatisfy, pending = true, ""
			continue
		}

		if inSatisfy && trimmed != "" {
			switch {
			case pending != "":
				child := pending
				pending = ""
				if sm := requester.FindStringSubmatch(trimmed); sm != nil {
					parent := stripMember(normalize(sm[1]))
					if isLibrary.MatchString(parent) {
						m.addLibrary(parent)
						m.addEdge(parent, child)
					}
				}
				continue
			case satisfyChild.MatchString(line):
				pending = normalize(satisfyChild.FindStringSubmatch(line)[1])
				m.addLibrary(pending)
				continue
			case satisfySingle.MatchString(line):
				sm := satisfySingle.FindStringSubmatch(line)
				child := normalize(sm[1])
				parent := stripMember(normalize(sm[2]))
				m.addLibrary(child)
				if isLibrary.MatchString(parent) {
					m.addLibrary(parent)
					m.addEdge(parent, child)
				}
				continue
			default:
				inSatisfy = false
			}
		}

		if lm := loadLine.FindStringSubmatch(line); lm != nil {
			m.addLibrary(normalize(lm[1]))
			continue
		}
		for _, mm := range msvcLib.FindAllStringSubmatch(line, -1) {
			m.addLibrary(normalize(mm[1]))
		}
	}
	return m, sc.Err()
}

// stripMember drops an archive member suffix: "libssl.a(ssl_lib.o)" -> "libssl.a".
func stripMember(p string) string {
	if i := strings.IndexByte(p, '('); i > 0 {
		return p[:i]
	}
	return p
}

// IsExternal reports whether an absolute library path lies outside root.
// The comparison is lexical so cross-compiler paths with ".." segments and
// drive letters are handled on any host. Relative paths and bare names are
// never external.
func IsExternal(lib, root string) bool {
	lib = strings.ToLower(normalize(lib))
	if !strings.HasPrefix(lib, "/") && !(len(lib) >= 3 && lib[1] == ':' && lib[2] == '/') {
		return false
	}
	r := strings.TrimSuffix(strings.ToLower(normalize(root)), "/") + "/"
	return !strings.HasPrefix(lib, r)
}

// Strategy implements deps.Strategy for linker maps.
type Strategy struct{}

func (Strategy) Name() string { return deps.SourceLinkerMap }

func (Strategy) Manifests() []string { return []string{"*.map"} }

func (s Strategy) Detect(ctx context.Context, root string, opts deps.Options) (*deps.Detection, error) {
	opts = opts.WithDefaults()
	col := deps.NewCollector(deps.SourceLinkerMap)
	det := &deps.Detection{}

	err := deps.Walk(ctx, root, opts.ExcludeDirs, func(p string, d fs.DirEntry) error {
		if !strings.EqualFold(path.Ext(d.Name()), ".map") {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			opts.Logger("linker-map: %v", err)
			return nil
		}
		defer f.Close()

		m, err := Parse(f)
		if err != nil {
			opts.Logger("linker-map: skipping %s: %v", p, err)
			return nil
		}
		opts.Logger("linker-map: %s lists %d libraries", p, len(m.Libraries))
		apply(m, root, col, det)
		return nil
	})
	if err != nil {
		return nil, err
	}
	det.Components = col.Components()
	return det, nil
}

func apply(m *Map, root string, col *deps.Collector, det *deps.Detection) {
	for _, lib := range m.Libraries {
		if strings.Contains(lib, "/") && !IsExternal(lib, root) {
			continue
		}
		fp := match(lib)
		if fp == nil {
			continue
		}
		c := col.Add(fp)
		base := path.Base(lib)
		c.AddLinkLibrary(base)
		deps.SetVersion(c, deps.ExtractVersionFromLibName(base))
		deps.SetVersion(c, deps.ExtractVersionFromPath(path.Dir(lib)))
	}

	for parent, children := range m.Edges {
		p := match(parent)
		if p == nil {
			continue
		}
		for _, child := range children {
			if c := match(child); c != nil {
				det.AddEdge(p.Name, c.Name)
			}
		}
	}
}

// match identifies a library by its file name, then by its full path.
func match(lib string) *fingerprints.Library {
	if fp := deps.MatchLibrary(path.Base(lib)); fp != nil {
		return fp
	}
	return fingerprints.Match(lib)
}
