package conan

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

// ConanfilePy parses conanfile.py recipes without executing them.
type ConanfilePy struct{}

func (ConanfilePy) Type() string              { return "conanfile.py" }
func (ConanfilePy) IncludesTransitive() bool  { return false }
func (ConanfilePy) Supports(name string) bool { return strings.EqualFold(name, "conanfile.py") }

func (p ConanfilePy) Parse(path string, opts deps.Options) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := ParseConanfilePy(data, opts.WithDefaults().Logger)
	return &deps.ManifestResult{Type: p.Type(), Manifest: m}, nil
}

var (
	pyAttribute = regexp.MustCompile(`(?m)^[ \t]*(requires|build_requires|tool_requires|test_requires|python_requires)[ \t]*=[ \t]*`)
	pyCall      = regexp.MustCompile(`self\.(requires|build_requires|tool_requires|test_requires)\s*\(\s*["']([^"']+)["']`)
	pyIdentity  = regexp.MustCompile(`(?m)^[ \t]*(name|version)[ \t]*=[ \t]*["']([^"']+)["']`)
	pyString    = regexp.MustCompile(`["']([^"']*)["']`)
)

var pyKinds = map[string]deps.RequirementKind{
	"requires":        deps.KindRuntime,
	"build_requires":  deps.KindBuild,
	"tool_requires":   deps.KindBuild,
	"test_requires":   deps.KindBuild,
	"python_requires": deps.KindPython,
}

type pyDecl struct {
	offset int
	kind   deps.RequirementKind
	ref    string
}

// ParseConanfilePy extracts the recipe identity and requirements from the
// source of a conanfile.py. Attribute declarations come first in file
// order, followed by self.requires(...) style calls in file order.
// Malformed references are reported through logf and skipped.
func ParseConanfilePy(data []byte, logf func(string, ...any)) *deps.Manifest {
	src := stripComments(string(data))
	m := &deps.Manifest{Type: "conanfile.py"}

	for _, id := range pyIdentity.FindAllStringSubmatch(src, -1) {
		switch {
		case id[1] == "name" && m.Name == "":
			m.Name = id[2]
		case id[1] == "version" && m.Version == "":
			m.Version = id[2]
		}
	}

	var attrs, calls []pyDecl
	for _, loc := range pyAttribute.FindAllStringSubmatchIndex(src, -1) {
		kind := pyKinds[src[loc[2]:loc[3]]]
		for _, ref := range attributeValues(src[loc[1]:]) {
			attrs = append(attrs, pyDecl{offset: loc[0], kind: kind, ref: ref})
		}
	}
	for _, loc := range pyCall.FindAllStringSubmatchIndex(src, -1) {
		calls = append(calls, pyDecl{
			offset: loc[0],
			kind:   pyKinds[src[loc[2]:loc[3]]],
			ref:    src[loc[4]:loc[5]],
		})
	}
	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].offset < attrs[j].offset })
	sort.SliceStable(calls, func(i, j int) bool { return calls[i].offset < calls[j].offset })

	seen := make(map[string]bool)
	for _, d := range append(attrs, calls...) {
		ref, err := deps.ParseReference(d.ref)
		if err != nil {
			logf("conanfile.py: %v", err)
			continue
		}
		appendRequirement(m, seen, ref, d.kind)
	}
	return m
}

// attributeValues returns the quoted strings of the Python value starting
// at src: a single string, a bare tuple of strings on one line, or a
// bracketed list or tuple spanning any number of lines. Brackets inside
// strings, as in version ranges, do not close the list.
func attributeValues(src string) []string {
	if src == "" {
		return nil
	}
	var body string
	switch src[0] {
	case '[', '(':
		end := closingBracket(src)
		if end < 0 {
			return nil
		}
		body = src[1:end]
	case '"', '\'':
		body, _, _ = strings.Cut(src, "\n")
	default:
		return nil
	}

	var out []string
	for _, m := range pyString.FindAllStringSubmatch(body, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// closingBracket returns the index of the bracket closing src[0], skipping
// string literals and nested brackets, or -1 when it is never closed.
func closingBracket(src string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripComments removes "#" comments that start outside string literals.
// A "#" inside a quoted reference introduces a revision and is kept.
func stripComments(src string) string {
	lines := strings.Split(src, "\n")
	for i, l := range lines {
		lines[i] = l[:commentStart(l)]
	}
	return strings.Join(lines, "\n")
}

// commentStart returns the offset of the comment on line, or len(line).
func commentStart(line string) int {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			return i
		}
	}
	return len(line)
}
