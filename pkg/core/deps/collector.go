package deps

import (
	"sort"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps/fingerprints"
)

// Collector accumulates components of one strategy by name. The first
// known version recorded for a name sticks.
type Collector struct {
	source string
	byName map[string]*Component
	order  []string
}

// NewCollector returns an empty collector stamping components with source.
func NewCollector(source string) *Collector {
	return &Collector{source: source, byName: make(map[string]*Component)}
}

// Add returns the component for lib, creating it on first use.
func (c *Collector) Add(lib *fingerprints.Library) *Component {
	if comp, ok := c.byName[lib.Name]; ok {
		return comp
	}
	comp := FromLibrary(lib, "", c.source)
	c.put(&comp)
	return &comp
}

// AddNamed returns the component called name, creating a generic one when
// it is not fingerprinted.
func (c *Collector) AddNamed(name string) *Component {
	if lib := fingerprints.Default().Find(name); lib != nil {
		return c.Add(lib)
	}
	if comp, ok := c.byName[name]; ok {
		return comp
	}
	comp := Component{
		Name:            name,
		Version:         UnknownVersion,
		PURL:            GenericPURL(name),
		DetectionSource: c.source,
	}
	c.put(&comp)
	return &comp
}

// AddPackage maps a package name as written in a build file ("OpenSSL",
// "libpng") to a fingerprinted library, falling back to a generic component
// named after the lowercased package.
func (c *Collector) AddPackage(pkg string) *Component {
	if lib := fingerprints.Match(pkg); lib != nil {
		return c.Add(lib)
	}
	return c.AddNamed(strings.ToLower(pkg))
}

func (c *Collector) put(comp *Component) {
	c.byName[comp.Name] = comp
	c.order = append(c.order, comp.Name)
}

// Get returns the component called name, if collected.
func (c *Collector) Get(name string) (*Component, bool) {
	comp, ok := c.byName[name]
	return comp, ok
}

// SetVersion records v for comp unless a version is already known.
func SetVersion(comp *Component, v string) {
	if v == "" || v == UnknownVersion || comp.HasVersion() {
		return
	}
	comp.Version = v
	comp.PURL = PURLWithVersion(comp.PURL, v)
}

// Len returns the number of collected components.
func (c *Collector) Len() int { return len(c.order) }

// Components returns the collected components sorted by name.
func (c *Collector) Components() []Component {
	out := make([]Component, 0, len(c.order))
	for _, name := range c.order {
		comp := *c.byName[name]
		sort.Strings(comp.IncludePaths)
		sort.Strings(comp.LinkLibraries)
		out = append(out, comp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
