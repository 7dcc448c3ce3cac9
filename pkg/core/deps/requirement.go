package deps

// RequirementKind tells whether a requirement ends up in the final artifact.
type RequirementKind string

const (
	// KindRuntime requirements are linked into the final artifact.
	KindRuntime RequirementKind = "runtime"
	// KindBuild requirements are used only while building.
	KindBuild RequirementKind = "build"
	// KindPython marks Conan python_requires, which only affect the recipe.
	KindPython RequirementKind = "python"
)

// IsBuildOnly reports whether the requirement never reaches the final
// artifact. The zero value is a runtime requirement.
func (k RequirementKind) IsBuildOnly() bool {
	return k == KindBuild || k == KindPython
}

// OrRuntime returns k, or KindRuntime when k is unset.
func (k RequirementKind) OrRuntime() RequirementKind {
	if k == "" {
		return KindRuntime
	}
	return k
}

// Requirement is one declared dependency of a manifest.
type Requirement struct {
	Ref  Reference       `json:"ref"`
	Kind RequirementKind `json:"kind"`
}

// Manifest is a parsed dependency declaration: the recipe identity, when
// the file states one, and its requirements in declaration order.
type Manifest struct {
	Type         string        `json:"type"`
	Name         string        `json:"name,omitempty"`
	Version      string        `json:"version,omitempty"`
	Requirements []Requirement `json:"requirements"`
}

// Runtime returns the runtime requirements in declaration order.
func (m *Manifest) Runtime() []Requirement {
	return m.filter(func(k RequirementKind) bool { return !k.IsBuildOnly() })
}

// BuildOnly returns the build-time requirements in declaration order.
func (m *Manifest) BuildOnly() []Requirement {
	return m.filter(RequirementKind.IsBuildOnly)
}

func (m *Manifest) filter(keep func(RequirementKind) bool) []Requirement {
	var out []Requirement
	for _, r := range m.Requirements {
		if keep(r.Kind) {
			out = append(out, r)
		}
	}
	return out
}
