package deps

import (
	"strings"

	"github.com/samber/lo"
)

// UnknownVersion is the version recorded when no strategy could tell.
const UnknownVersion = "unknown"

// Component is one detected third-party library.
type Component struct {
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	PURL            string          `json:"purl,omitempty"`
	Revision        string          `json:"revision,omitempty"`
	Channel         string          `json:"channel,omitempty"`
	Kind            RequirementKind `json:"kind,omitempty"`
	DetectionSource string          `json:"detectionSource,omitempty"`
	IncludePaths    []string        `json:"includePaths,omitempty"`
	LinkLibraries   []string        `json:"linkLibraries,omitempty"`
	Description     string          `json:"description,omitempty"`
	License         string          `json:"license,omitempty"`
	Homepage        string          `json:"homepage,omitempty"`
	IsDirect        bool            `json:"isDirect"`
	Dependencies    []string        `json:"dependencies,omitempty"`
}

// NormalizeName folds a library name for comparison: lowercase with "_"
// and "." replaced by "-", so "nlohmann_json" and "nlohmann-json" collide.
func NormalizeName(name string) string {
	b := []byte(strings.ToLower(name))
	for i, c := range b {
		if c == '_' || c == '.' {
			b[i] = '-'
		}
	}
	return string(b)
}

// Key returns the deduplication key: normalized name and version.
// Two versions of the same library stay distinct.
func (c *Component) Key() string {
	return NormalizeName(c.Name) + "@" + c.Version
}

// HasVersion reports whether the version is known.
func (c *Component) HasVersion() bool {
	return c.Version != "" && c.Version != UnknownVersion
}

// DependencyType returns "direct" or "transitive".
func (c *Component) DependencyType() string {
	if c.IsDirect {
		return "direct"
	}
	return "transitive"
}

// Scope returns the CycloneDX scope: "excluded" for build-only components,
// "required" otherwise.
func (c *Component) Scope() string {
	if c.Kind.IsBuildOnly() {
		return "excluded"
	}
	return "required"
}

// AddIncludePath appends p unless already present.
func (c *Component) AddIncludePath(p ...string) {
	c.IncludePaths = lo.Uniq(append(c.IncludePaths, p...))
}

// AddLinkLibrary appends l unless already present.
func (c *Component) AddLinkLibrary(l ...string) {
	c.LinkLibraries = lo.Uniq(append(c.LinkLibraries, l...))
}

// AddDependency appends a child name unless already present or equal to
// the component itself.
func (c *Component) AddDependency(name ...string) {
	self := NormalizeName(c.Name)
	for _, n := range name {
		if n == "" || NormalizeName(n) == self {
			continue
		}
		if !lo.Contains(c.Dependencies, n) {
			c.Dependencies = append(c.Dependencies, n)
		}
	}
}
