package conan

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

// ConanLock parses conan.lock files, both the v1 node graph and the v2 flat
// reference lists.
type ConanLock struct{}

func (ConanLock) Type() string              { return "conan.lock" }
func (ConanLock) IncludesTransitive() bool  { return true }
func (ConanLock) Supports(name string) bool { return strings.EqualFold(name, "conan.lock") }

func (p ConanLock) Parse(path string, opts deps.Options) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	result, err := ParseLock(data, opts.WithDefaults().Logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return result, nil
}

type lockFile struct {
	// v1
	GraphLock *struct {
		Nodes map[string]lockNode `json:"nodes"`
	} `json:"graph_lock"`

	// v2
	Version        string   `json:"version"`
	Requires       []string `json:"requires"`
	BuildRequires  []string `json:"build_requires"`
	PythonRequires []string `json:"python_requires"`
}

type lockNode struct {
	Ref            string   `json:"ref"`
	Requires       []string `json:"requires"`
	BuildRequires  []string `json:"build_requires"`
	PythonRequires []string `json:"python_requires"`
}

// ParseLock parses the content of a conan.lock file.
func ParseLock(data []byte, logf func(string, ...any)) (*deps.ManifestResult, error) {
	var lf lockFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse conan.lock: %w", err)
	}
	if lf.GraphLock != nil && len(lf.GraphLock.Nodes) > 0 {
		return parseLockV1(lf.GraphLock.Nodes, logf), nil
	}
	return parseLockV2(&lf, logf), nil
}

func parseLockV2(lf *lockFile, logf func(string, ...any)) *deps.ManifestResult {
	m := &deps.Manifest{Type: "conan.lock"}
	seen := make(map[string]bool)
	add := func(refs []string, kind deps.RequirementKind) {
		for _, raw := range refs {
			ref, err := deps.ParseReference(cleanLockRef(raw))
			if err != nil {
				logf("conan.lock: %v", err)
				continue
			}
			appendRequirement(m, seen, ref, kind)
		}
	}
	add(lf.Requires, deps.KindRuntime)
	add(lf.BuildRequires, deps.KindBuild)
	add(lf.PythonRequires, deps.KindPython)

	// v2 locks carry the whole closure without edges, so every entry is
	// reported as a direct component.
	return &deps.ManifestResult{
		Type:               "conan.lock",
		IncludesTransitive: true,
		Manifest:           m,
		Components:         Transcribe(m),
	}
}

func parseLockV1(nodes map[string]lockNode, logf func(string, ...any)) *deps.ManifestResult {
	refs := make(map[string]deps.Reference, len(nodes))
	for id, n := range nodes {
		if id == "0" || n.Ref == "" {
			continue
		}
		ref, err := deps.ParseReference(cleanLockRef(n.Ref))
		if err != nil {
			logf("conan.lock node %s: %v", id, err)
			continue
		}
		refs[id] = ref
	}

	// a node is runtime when any requires edge reaches it
	kinds := make(map[string]deps.RequirementKind, len(refs))
	mark := func(ids []string, kind deps.RequirementKind) {
		for _, raw := range ids {
			id := nodeID(raw)
			if kinds[id] == deps.KindRuntime {
				continue
			}
			if kind == deps.KindRuntime || kinds[id] == "" {
				kinds[id] = kind
			}
		}
	}
	for _, n := range nodes {
		mark(n.Requires, deps.KindRuntime)
		mark(n.BuildRequires, deps.KindBuild)
		mark(n.PythonRequires, deps.KindPython)
	}

	m := &deps.Manifest{Type: "conan.lock"}
	seen := make(map[string]bool)
	direct := make(map[string]bool)
	if root, ok := nodes["0"]; ok {
		for _, group := range []struct {
			ids  []string
			kind deps.RequirementKind
		}{
			{root.Requires, deps.KindRuntime},
			{root.BuildRequires, deps.KindBuild},
			{root.PythonRequires, deps.KindPython},
		} {
			for _, raw := range group.ids {
				ref, ok := refs[nodeID(raw)]
				if !ok {
					continue
				}
				direct[nodeID(raw)] = true
				appendRequirement(m, seen, ref, group.kind)
			}
		}
	}

	ids := make([]string, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	components := make([]deps.Component, 0, len(ids))
	for _, id := range ids {
		c := componentFromRef(refs[id], kinds[id].OrRuntime(), deps.SourceConan)
		c.IsDirect = direct[id]
		n := nodes[id]
		for _, group := range [][]string{n.Requires, n.BuildRequires, n.PythonRequires} {
			for _, raw := range group {
				if child, ok := refs[nodeID(raw)]; ok {
					c.AddDependency(child.Name)
				}
			}
		}
		components = append(components, c)
	}

	return &deps.ManifestResult{
		Type:               "conan.lock",
		IncludesTransitive: true,
		Manifest:           m,
		Components:         components,
	}
}

// cleanLockRef strips the "%timestamp" suffix of v2 entries and any
// ":package_id" part.
func cleanLockRef(s string) string {
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// nodeID turns a v1 requirement entry ("2" or "2#rev") into a node id.
func nodeID(s string) string {
	id, _, _ := strings.Cut(s, "#")
	return id
}
