// Package sbom serializes scan results.
//
// Four formats are supported:
//   - cyclonedx: a CycloneDX 1.4 JSON document with Package URLs
//   - tree: a recursive dependency tree, one JSON node per direct component
//   - dot: a Graphviz digraph of the component graph
//   - svg: the digraph rendered in-process by Graphviz
//
// Use [Write] to render a result into a file or, for "-", standard output.
package sbom

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"

	"github.com/matzehuels/cppsbom/pkg/buildinfo"
	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/scanner"
)

// Property names attached to components and metadata.
const (
	PropDependencyType  = "sbom:dependencyType"
	PropRequirementKind = "sbom:requirementKind"
	PropConanRevision   = "sbom:conan:revision"
	PropConanChannel    = "sbom:conan:channel"
	PropDetectionSource = "sbom:detectionSource"
	PropIncludePath     = "sbom:includePath"
	PropLinkLibrary     = "sbom:linkLibrary"
	PropHierarchyPrefix = "sbom:hierarchy:"
)

// Tool identifies the generator in the SBOM metadata.
type Tool struct {
	Vendor  string
	Name    string
	Version string
}

// DefaultTool describes this binary.
func DefaultTool() Tool {
	return Tool{Vendor: buildinfo.Vendor, Name: buildinfo.Name, Version: buildinfo.Version}
}

// Options controls CycloneDX generation. The zero value stamps the current
// time, a random serial number and [DefaultTool].
type Options struct {
	Tool         Tool
	Now          func() time.Time
	SerialNumber string
}

func (o Options) withDefaults() Options {
	if o.Tool.Name == "" {
		o.Tool = DefaultTool()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.SerialNumber == "" {
		o.SerialNumber = "urn:uuid:" + uuid.New().String()
	}
	return o
}

// BuildBOM converts a scan result to a CycloneDX document.
//
// Components are sorted by name and referenced by their purl. A reference
// declared both as a runtime and as a build requirement yields two
// components; the runtime one keeps the plain purl as bom-ref and the other
// gets "<purl>#<kind>", so every bom-ref stays unique. Each component's
// children are resolved to bom-refs; children that are not components
// themselves get a pkg:generic purl.
func BuildBOM(res *scanner.Result, opts Options) *cdx.BOM {
	opts = opts.withDefaults()
	if res.Tree == nil {
		res.BuildTree()
	}

	comps := append([]deps.Component(nil), res.Components...)
	sort.SliceStable(comps, func(i, j int) bool {
		if comps[i].Name != comps[j].Name {
			return comps[i].Name < comps[j].Name
		}
		return !comps[i].Kind.IsBuildOnly() && comps[j].Kind.IsBuildOnly()
	})

	refs := assignRefs(comps)
	byName := make(map[string]string, len(comps)*2)
	for _, c := range comps {
		ref := refs[refKey(c)]
		for _, n := range []string{c.Name, deps.NormalizeName(c.Name)} {
			if _, ok := byName[n]; !ok {
				byName[n] = ref
			}
		}
	}
	resolve := func(name string) string {
		if ref, ok := byName[name]; ok {
			return ref
		}
		if ref, ok := byName[deps.NormalizeName(name)]; ok {
			return ref
		}
		return deps.GenericPURL(name)
	}

	components := make([]cdx.Component, 0, len(comps))
	dependencies := make([]cdx.Dependency, 0, len(comps))
	emitted := make(map[string]bool, len(comps))
	for _, c := range comps {
		ref := refs[refKey(c)]
		if emitted[ref] {
			continue
		}
		emitted[ref] = true
		components = append(components, component(c, ref))

		children := make([]string, 0, len(c.Dependencies))
		for _, name := range c.Dependencies {
			children = append(children, resolve(name))
		}
		dependencies = append(dependencies, cdx.Dependency{Ref: ref, Dependencies: &children})
	}
	sort.SliceStable(dependencies, func(i, j int) bool { return dependencies[i].Ref < dependencies[j].Ref })

	bom := cdx.NewBOM()
	bom.SerialNumber = opts.SerialNumber
	bom.Metadata = &cdx.Metadata{
		Timestamp: opts.Now().UTC().Format(time.RFC3339),
		Tools: &cdx.ToolsChoice{
			Tools: &[]cdx.Tool{{Vendor: opts.Tool.Vendor, Name: opts.Tool.Name, Version: opts.Tool.Version}},
		},
	}
	if res.RootName != "" {
		bom.Metadata.Component = &cdx.Component{
			BOMRef:     "root:" + res.RootName,
			Type:       cdx.ComponentTypeApplication,
			Name:       res.RootName,
			Version:    res.RootVersion,
			PackageURL: deps.PURLWithVersion("pkg:conan/"+res.RootName, res.RootVersion),
		}
	}
	if props := hierarchy(res.Tree, refs); len(props) > 0 {
		bom.Metadata.Properties = &props
	}
	bom.Components = &components
	bom.Dependencies = &dependencies
	return bom
}

func bomRef(c deps.Component) string {
	if c.PURL != "" {
		return c.PURL
	}
	return deps.GenericPURL(c.Name)
}

// refKey identifies a component within one document.
func refKey(c deps.Component) string {
	return c.Key() + "|" + string(c.Kind.OrRuntime())
}

// assignRefs gives every component of comps a unique bom-ref, keyed by
// refKey. The first component with a purl keeps it unchanged.
func assignRefs(comps []deps.Component) map[string]string {
	refs := make(map[string]string, len(comps))
	used := make(map[string]bool, len(comps))
	for _, c := range comps {
		k := refKey(c)
		if _, ok := refs[k]; ok {
			continue
		}
		base := bomRef(c)
		ref := base
		if used[ref] {
			ref = base + "#" + string(c.Kind.OrRuntime())
		}
		for n := 2; used[ref]; n++ {
			ref = fmt.Sprintf("%s#%d", base, n)
		}
		used[ref] = true
		refs[k] = ref
	}
	return refs
}

func component(c deps.Component, ref string) cdx.Component {
	out := cdx.Component{
		BOMRef:      ref,
		Type:        cdx.ComponentTypeLibrary,
		Name:        c.Name,
		Version:     c.Version,
		Description: c.Description,
		PackageURL:  c.PURL,
		Scope:       cdx.Scope(c.Scope()),
	}
	if lic := licenses(c.License); lic != nil {
		out.Licenses = lic
	}
	if c.Homepage != "" {
		out.ExternalReferences = &[]cdx.ExternalReference{{Type: cdx.ERTypeWebsite, URL: c.Homepage}}
	}

	props := []cdx.Property{
		{Name: PropDependencyType, Value: c.DependencyType()},
		{Name: PropRequirementKind, Value: string(c.Kind.OrRuntime())},
	}
	if c.Revision != "" {
		props = append(props, cdx.Property{Name: PropConanRevision, Value: c.Revision})
	}
	if c.Channel != "" && deps.IsProvenanceChannel(c.Channel) {
		props = append(props, cdx.Property{Name: PropConanChannel, Value: c.Channel})
	}
	if c.DetectionSource != "" {
		props = append(props, cdx.Property{Name: PropDetectionSource, Value: c.DetectionSource})
	}
	for _, p := range c.IncludePaths {
		props = append(props, cdx.Property{Name: PropIncludePath, Value: p})
	}
	for _, l := range c.LinkLibraries {
		props = append(props, cdx.Property{Name: PropLinkLibrary, Value: l})
	}
	out.Properties = &props
	return out
}

var spdxID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.+\-]*$`)

// licenses maps a license string to CycloneDX. Compound expressions
// ("MIT AND Zlib") stay expressions; single identifiers become licenses.
func licenses(s string) *cdx.Licenses {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil
	case strings.Contains(s, " AND ") || strings.Contains(s, " OR ") || strings.Contains(s, " WITH "):
		return &cdx.Licenses{{Expression: s}}
	case spdxID.MatchString(s):
		return &cdx.Licenses{{License: &cdx.License{ID: s}}}
	default:
		return &cdx.Licenses{{License: &cdx.License{Name: s}}}
	}
}

// hierarchy flattens the breadth-first levels into metadata properties of
// the form "sbom:hierarchy:<depth>" = "<label>: <purl>, <purl>".
func hierarchy(t *deps.Tree, refs map[string]string) []cdx.Property {
	if t == nil {
		return nil
	}
	props := make([]cdx.Property, 0, len(t.Levels))
	for _, lvl := range t.Levels {
		names := make([]string, 0, len(lvl.Components))
		for _, c := range lvl.Components {
			ref, ok := refs[refKey(*c)]
			if !ok {
				ref = bomRef(*c)
			}
			names = append(names, ref)
		}
		props = append(props, cdx.Property{
			Name:  fmt.Sprintf("%s%d", PropHierarchyPrefix, lvl.Depth),
			Value: lvl.Label + ": " + strings.Join(names, ", "),
		})
	}
	return props
}

// EncodeCycloneDX writes bom as indented CycloneDX 1.4 JSON.
func EncodeCycloneDX(w io.Writer, bom *cdx.BOM) error {
	enc := cdx.NewBOMEncoder(w, cdx.BOMFileFormatJSON)
	enc.SetPretty(true)
	enc.SetEscapeHTML(false)
	if err := enc.EncodeVersion(bom, cdx.SpecVersion1_4); err != nil {
		return fmt.Errorf("encode cyclonedx: %w", err)
	}
	return nil
}
