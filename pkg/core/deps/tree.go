package deps

import (
	"fmt"
	"sort"
)

// TreeNode is one node of the recursive dependency tree. Every node embeds
// its component metadata and its full subtree, like npm's package-lock.json.
type TreeNode struct {
	Name            string      `json:"name"`
	Version         string      `json:"version"`
	PURL            string      `json:"purl,omitempty"`
	DependencyType  string      `json:"dependencyType"`
	Scope           string      `json:"scope,omitempty"`
	Description     string      `json:"description,omitempty"`
	DetectionSource string      `json:"detectionSource,omitempty"`
	Revision        string      `json:"revision,omitempty"`
	Channel         string      `json:"channel,omitempty"`
	IncludePaths    []string    `json:"includePaths,omitempty"`
	LinkLibraries   []string    `json:"linkLibraries,omitempty"`
	Children        []*TreeNode `json:"children,omitempty"`
}

// Level groups components by their breadth-first distance from the project.
type Level struct {
	Depth      int
	Label      string
	Components []*Component
}

// Tree is the dependency hierarchy of a scanned project.
type Tree struct {
	Direct     []*Component
	Transitive []*Component
	All        []*Component

	// ByName maps both the raw and the normalized name to the component.
	ByName map[string]*Component

	// Roots holds one node per direct component, sorted by name.
	Roots []*TreeNode

	// Levels holds the breadth-first layering. Level 0 is the direct
	// components; components unreachable from any direct component form a
	// final "Unattached" level.
	Levels []Level
}

// UnattachedLabel labels the level of components no direct component reaches.
const UnattachedLabel = "Unattached"

// BuildTree assembles the tree of the given components. The components are
// not modified; Tree entries point into the given slice.
func BuildTree(components []Component) *Tree {
	t := &Tree{ByName: make(map[string]*Component, len(components)*2)}

	for i := range components {
		c := &components[i]
		t.All = append(t.All, c)
		t.ByName[c.Name] = c
		t.ByName[NormalizeName(c.Name)] = c
		if c.IsDirect {
			t.Direct = append(t.Direct, c)
		} else {
			t.Transitive = append(t.Transitive, c)
		}
	}
	sortComponents(t.Direct)
	sortComponents(t.Transitive)

	t.Roots = make([]*TreeNode, 0, len(t.Direct))
	for _, c := range t.Direct {
		t.Roots = append(t.Roots, t.node(c, map[string]bool{}))
	}
	t.Levels = t.levels()
	return t
}

// Lookup returns the component for a raw or normalized name.
func (t *Tree) Lookup(name string) (*Component, bool) {
	if c, ok := t.ByName[name]; ok {
		return c, true
	}
	c, ok := t.ByName[NormalizeName(name)]
	return c, ok
}

// node builds the subtree of c. ancestors holds the keys on the current
// path; a child already on it is emitted as a leaf.
func (t *Tree) node(c *Component, ancestors map[string]bool) *TreeNode {
	n := newTreeNode(c)

	key := c.Key()
	ancestors[key] = true
	defer delete(ancestors, key)

	children := append([]string(nil), c.Dependencies...)
	sort.Strings(children)
	for _, name := range children {
		child, ok := t.Lookup(name)
		if !ok {
			n.Children = append(n.Children, placeholderNode(name))
			continue
		}
		if ancestors[child.Key()] {
			n.Children = append(n.Children, newTreeNode(child))
			continue
		}
		n.Children = append(n.Children, t.node(child, ancestors))
	}
	return n
}

func newTreeNode(c *Component) *TreeNode {
	return &TreeNode{
		Name:            c.Name,
		Version:         c.Version,
		PURL:            c.PURL,
		DependencyType:  c.DependencyType(),
		Scope:           c.Scope(),
		Description:     c.Description,
		DetectionSource: c.DetectionSource,
		Revision:        c.Revision,
		Channel:         c.Channel,
		IncludePaths:    c.IncludePaths,
		LinkLibraries:   c.LinkLibraries,
	}
}

func placeholderNode(name string) *TreeNode {
	return &TreeNode{
		Name:           name,
		Version:        UnknownVersion,
		PURL:           GenericPURL(name),
		DependencyType: "transitive",
	}
}

func (t *Tree) levels() []Level {
	var levels []Level
	visited := make(map[*Component]bool)

	frontier := append([]*Component(nil), t.Direct...)
	for _, c := range frontier {
		visited[c] = true
	}
	for depth := 0; len(frontier) > 0; depth++ {
		levels = append(levels, Level{Depth: depth, Label: levelLabel(depth), Components: frontier})

		var next []*Component
		for _, c := range frontier {
			for _, name := range c.Dependencies {
				child, ok := t.Lookup(name)
				if !ok || visited[child] {
					continue
				}
				visited[child] = true
				next = append(next, child)
			}
		}
		sortComponents(next)
		frontier = next
	}

	var rest []*Component
	for _, c := range t.All {
		if !visited[c] {
			rest = append(rest, c)
		}
	}
	if len(rest) > 0 {
		sortComponents(rest)
		levels = append(levels, Level{Depth: len(levels), Label: UnattachedLabel, Components: rest})
	}
	return levels
}

func levelLabel(depth int) string {
	if depth == 0 {
		return "Direct"
	}
	return fmt.Sprintf("Transitive (depth %d)", depth)
}

func sortComponents(cs []*Component) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Name != cs[j].Name {
			return cs[i].Name < cs[j].Name
		}
		return cs[i].Version < cs[j].Version
	})
}
