package conan

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

// GraphJSON parses the output of `conan graph info . --format=json`.
type GraphJSON struct{}

// GraphFiles are the locations checked for an existing graph, in order.
var GraphFiles = []string{"graph.json", "build/graph.json", "conan-graph.json"}

func (GraphJSON) Type() string             { return "graph.json" }
func (GraphJSON) IncludesTransitive() bool { return true }
func (GraphJSON) Supports(name string) bool {
	return strings.EqualFold(name, "graph.json") || strings.EqualFold(name, "conan-graph.json")
}

func (p GraphJSON) Parse(path string, opts deps.Options) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	result, err := ParseGraph(data, opts.WithDefaults().Logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return result, nil
}

type graphFile struct {
	Graph struct {
		Nodes map[string]graphNode `json:"nodes"`
	} `json:"graph"`
}

type graphNode struct {
	Ref          string               `json:"ref"`
	Name         string               `json:"name"`
	Version      string               `json:"version"`
	User         string               `json:"user"`
	Channel      string               `json:"channel"`
	Rrev         string               `json:"rrev"`
	Context      string               `json:"context"`
	License      json.RawMessage      `json:"license"`
	Description  string               `json:"description"`
	Homepage     string               `json:"homepage"`
	Dependencies map[string]graphEdge `json:"dependencies"`
}

type graphEdge struct {
	Ref    string `json:"ref"`
	Direct bool   `json:"direct"`
	Build  bool   `json:"build"`
}

func (n *graphNode) isConsumer(id string) bool {
	return id == "0" || n.Name == ""
}

// reference rebuilds the node's reference, preferring explicit fields over
// the ref string.
func (n *graphNode) reference() deps.Reference {
	ref, err := deps.ParseReference(n.Ref)
	if err != nil {
		ref = deps.Reference{}
	}
	if n.Name != "" {
		ref.Name = n.Name
	}
	if n.Version != "" {
		ref.Version = n.Version
	}
	if n.User != "" {
		ref.User = n.User
	}
	if n.Channel != "" {
		ref.Channel = n.Channel
	}
	if n.Rrev != "" {
		ref.Revision = n.Rrev
	}
	return ref
}

// license flattens a string or list license into one SPDX-style
// expression. Conan lists are conjunctive.
func (n *graphNode) license() string {
	if len(n.License) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(n.License, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(n.License, &list); err == nil {
		return strings.Join(list, " AND ")
	}
	return ""
}

// ParseGraph parses the content of a Conan graph.json.
func ParseGraph(data []byte, logf func(string, ...any)) (*deps.ManifestResult, error) {
	var gf graphFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parse graph.json: %w", err)
	}
	nodes := gf.Graph.Nodes

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	m := &deps.Manifest{Type: "graph.json"}
	names := make(map[string]string, len(nodes))
	for _, id := range ids {
		n := nodes[id]
		if n.isConsumer(id) {
			if m.Name == "" {
				m.Name, m.Version = n.Name, n.Version
			}
			continue
		}
		names[id] = n.Name
	}

	var components []deps.Component
	direct := make(map[string]bool)
	seen := make(map[string]bool)
	for _, id := range ids {
		n := nodes[id]
		if !n.isConsumer(id) {
			continue
		}
		for _, childID := range sortedEdgeIDs(n.Dependencies) {
			e := n.Dependencies[childID]
			child, ok := nodes[childID]
			if !ok || !e.Direct || child.isConsumer(childID) {
				continue
			}
			direct[childID] = true
			kind := deps.KindRuntime
			if e.Build || child.Context == "build" {
				kind = deps.KindBuild
			}
			appendRequirement(m, seen, child.reference(), kind)
		}
	}

	for _, id := range ids {
		n := nodes[id]
		if n.isConsumer(id) {
			continue
		}
		ref := n.reference()
		if err := ref.Validate(); err != nil {
			logf("graph.json node %s: %v", id, err)
			continue
		}
		kind := deps.KindRuntime
		if n.Context == "build" {
			kind = deps.KindBuild
		}
		c := componentFromRef(ref, kind, deps.SourceConanGraph)
		c.IsDirect = direct[id]
		c.License = n.license()
		c.Homepage = n.Homepage
		if n.Description != "" {
			c.Description = n.Description
		}
		for _, childID := range sortedEdgeIDs(n.Dependencies) {
			if n.Dependencies[childID].Build {
				continue
			}
			c.AddDependency(names[childID])
		}
		components = append(components, c)
	}

	return &deps.ManifestResult{
		Type:               "graph.json",
		IncludesTransitive: true,
		Manifest:           m,
		Components:         components,
	}, nil
}

func sortedEdgeIDs(edges map[string]graphEdge) []string {
	ids := make([]string, 0, len(edges))
	for id := range edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
