package scanner

import (
	"github.com/Masterminds/semver/v3"
	"github.com/samber/lo"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

// merger accumulates detections keyed by normalized name.
type merger struct {
	byKey  map[string]*deps.Component
	order  []string
	direct map[string]bool
	edges  map[string][]string
}

func newMerger() *merger {
	return &merger{
		byKey:  make(map[string]*deps.Component),
		direct: make(map[string]bool),
		edges:  make(map[string][]string),
	}
}

// add folds one strategy's detection into the merger.
func (m *merger) add(det *deps.Detection) {
	for _, c := range det.Components {
		m.addComponent(c)
	}
	for _, name := range det.Direct {
		m.direct[deps.NormalizeName(name)] = true
	}
	for parent, children := range det.Edges {
		key := deps.NormalizeName(parent)
		for _, child := range children {
			if !lo.Contains(m.edges[key], child) {
				m.edges[key] = append(m.edges[key], child)
			}
		}
	}
}

func (m *merger) addComponent(in deps.Component) {
	key := deps.NormalizeName(in.Name)
	cur, ok := m.byKey[key]
	if !ok {
		c := in
		c.IncludePaths = append([]string(nil), in.IncludePaths...)
		c.LinkLibraries = append([]string(nil), in.LinkLibraries...)
		c.Dependencies = append([]string(nil), in.Dependencies...)
		c.Kind = c.Kind.OrRuntime()
		m.byKey[key] = &c
		m.order = append(m.order, key)
		return
	}
	mergeInto(cur, in)
}

// mergeInto merges in into cur, which already holds at least one
// detection of the same library.
func mergeInto(cur *deps.Component, in deps.Component) {
	if preferVersion(cur, in) {
		cur.Version = in.Version
		cur.PURL = in.PURL
		cur.Revision = in.Revision
		cur.Channel = in.Channel
	}
	if Rank(in.DetectionSource) > Rank(cur.DetectionSource) {
		cur.DetectionSource = in.DetectionSource
	}
	if cur.Revision == "" && in.Revision != "" && cur.Version == in.Version {
		cur.Revision = in.Revision
	}
	if cur.Channel == "" && in.Channel != "" && cur.Version == in.Version {
		cur.Channel = in.Channel
	}
	if !in.Kind.OrRuntime().IsBuildOnly() {
		cur.Kind = deps.KindRuntime
	}

	cur.AddIncludePath(in.IncludePaths...)
	cur.AddLinkLibrary(in.LinkLibraries...)
	cur.AddDependency(in.Dependencies...)

	if cur.Description == "" {
		cur.Description = in.Description
	}
	if cur.License == "" {
		cur.License = in.License
	}
	if cur.Homepage == "" {
		cur.Homepage = in.Homepage
	}
}

// preferVersion reports whether in's version should replace cur's.
func preferVersion(cur *deps.Component, in deps.Component) bool {
	if !in.HasVersion() || in.Version == cur.Version {
		return false
	}
	if !cur.HasVersion() {
		return true
	}
	rc, ri := Rank(cur.DetectionSource), Rank(in.DetectionSource)
	if rc != ri {
		return ri > rc
	}
	return compareVersions(in.Version, cur.Version) > 0
}

// compareVersions compares two version strings as semantic versions.
// Versions that do not parse compare lexically after parsable ones.
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// components returns the merged components sorted by name.
func (m *merger) components() []deps.Component {
	out := make([]deps.Component, 0, len(m.order))
	for _, key := range sortedKeys(m.byKey) {
		out = append(out, *m.byKey[key])
	}
	return out
}

// link marks direct components and attaches the merged edges.
func (m *merger) link(components []deps.Component) {
	for i := range components {
		c := &components[i]
		key := deps.NormalizeName(c.Name)
		c.IsDirect = m.direct[key]
		c.AddDependency(m.edges[key]...)
	}
}
