package conan

import (
	"bufio"
	"bytes"
	"os"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

// ConanfileTxt parses conanfile.txt files.
type ConanfileTxt struct{}

func (ConanfileTxt) Type() string              { return "conanfile.txt" }
func (ConanfileTxt) IncludesTransitive() bool  { return false }
func (ConanfileTxt) Supports(name string) bool { return strings.EqualFold(name, "conanfile.txt") }

func (p ConanfileTxt) Parse(path string, opts deps.Options) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseConanfileTxt(data, opts.WithDefaults().Logger)
	if err != nil {
		return nil, err
	}
	return &deps.ManifestResult{Type: p.Type(), Manifest: m}, nil
}

var txtSections = map[string]deps.RequirementKind{
	"[requires]":       deps.KindRuntime,
	"[build_requires]": deps.KindBuild,
	"[tool_requires]":  deps.KindBuild,
	"[test_requires]":  deps.KindBuild,
}

// ParseConanfileTxt parses the text of a conanfile.txt. Lines that are not
// valid references are reported through logf and skipped.
func ParseConanfileTxt(data []byte, logf func(string, ...any)) (*deps.Manifest, error) {
	m := &deps.Manifest{Type: "conanfile.txt"}
	seen := make(map[string]bool)

	var kind deps.RequirementKind
	sc := bufio.NewScanner(bytes.NewReader(data))
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			kind = txtSections[strings.ToLower(line)]
			continue
		}
		if kind == "" {
			continue
		}

		ref, err := deps.ParseReference(stripTrailingComment(line))
		if err != nil {
			logf("conanfile.txt:%d: %v", lineNo, err)
			continue
		}
		appendRequirement(m, seen, ref, kind)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// stripTrailingComment drops a " # ..." comment from a requirement line.
// A revision "#" follows the version directly, so only a "#" preceded by
// whitespace starts a comment. Whitespace inside a version range such as
// "[>=10.0 <11]" is kept.
func stripTrailingComment(line string) string {
	for i := 1; i < len(line); i++ {
		if line[i] == '#' && (line[i-1] == ' ' || line[i-1] == '\t') {
			return strings.TrimSpace(line[:i])
		}
	}
	return line
}

// appendRequirement adds ref unless the same name was already declared with
// the same kind.
func appendRequirement(m *deps.Manifest, seen map[string]bool, ref deps.Reference, kind deps.RequirementKind) {
	key := deps.NormalizeName(ref.Name) + "|" + string(kind)
	if seen[key] {
		return
	}
	seen[key] = true
	m.Requirements = append(m.Requirements, deps.Requirement{Ref: ref, Kind: kind})
}
