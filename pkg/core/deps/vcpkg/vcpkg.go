// Package vcpkg detects components declared or installed through the vcpkg
// package manager: vcpkg.json manifests, vcpkg-lock.json lock files and the
// classic-mode installed/vcpkg/status database.
package vcpkg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/core/deps/fingerprints"
)

// Strategy implements deps.Strategy for vcpkg.
type Strategy struct{}

func (Strategy) Name() string { return deps.SourceVcpkg }

func (Strategy) Manifests() []string {
	return []string{"vcpkg.json", "vcpkg-lock.json", "installed/vcpkg/status"}
}

func (s Strategy) Detect(ctx context.Context, root string, opts deps.Options) (*deps.Detection, error) {
	opts = opts.WithDefaults()
	det := &deps.Detection{}

	err := deps.Walk(ctx, root, opts.ExcludeDirs, func(path string, d fs.DirEntry) error {
		var (
			result *deps.ManifestResult
			err    error
		)
		switch {
		case strings.EqualFold(d.Name(), "vcpkg.json"):
			result, err = Manifest{}.Parse(path, opts)
		case strings.EqualFold(d.Name(), "vcpkg-lock.json"):
			result, err = Lock{}.Parse(path, opts)
		case d.Name() == "status" && isStatusPath(path):
			result, err = Status{}.Parse(path, opts)
		default:
			return nil
		}
		if err != nil {
			opts.Logger("vcpkg: skipping %s: %v", path, err)
			return nil
		}
		if m := result.Manifest; m != nil {
			if det.RootName == "" && m.Name != "" {
				det.RootName, det.RootVersion = m.Name, m.Version
			}
			for _, r := range m.Requirements {
				det.Direct = append(det.Direct, r.Ref.Name)
			}
		}
		det.Components = append(det.Components, result.Components...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return det, nil
}

func isStatusPath(path string) bool {
	return strings.HasSuffix(filepath.ToSlash(path), "installed/vcpkg/status")
}

// Manifest parses vcpkg.json.
type Manifest struct{}

func (Manifest) Type() string              { return "vcpkg.json" }
func (Manifest) IncludesTransitive() bool  { return false }
func (Manifest) Supports(name string) bool { return strings.EqualFold(name, "vcpkg.json") }

func (p Manifest) Parse(path string, _ deps.Options) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, components, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &deps.ManifestResult{Type: p.Type(), Manifest: m, Components: components}, nil
}

type manifestFile struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	VersionString string            `json:"version-string"`
	VersionSemver string            `json:"version-semver"`
	VersionDate   string            `json:"version-date"`
	Dependencies  []json.RawMessage `json:"dependencies"`
	Overrides     []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"overrides"`
}

type dependency struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	MinVersion string `json:"version>="`
	Host       bool   `json:"host"`
}

func (f *manifestFile) version() string {
	for _, v := range []string{f.Version, f.VersionSemver, f.VersionString, f.VersionDate} {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseManifest parses vcpkg.json content. Dependencies may be plain
// strings or objects; an override pins the version, otherwise "version"
// and then the "version>=" minimum are used. Host dependencies are
// build-only.
func ParseManifest(data []byte) (*deps.Manifest, []deps.Component, error) {
	var f manifestFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse vcpkg.json: %w", err)
	}

	overrides := make(map[string]string, len(f.Overrides))
	for _, o := range f.Overrides {
		overrides[o.Name] = o.Version
	}

	m := &deps.Manifest{Type: "vcpkg.json", Name: f.Name, Version: f.version()}
	var components []deps.Component
	for _, raw := range f.Dependencies {
		var dep dependency
		if err := json.Unmarshal(raw, &dep.Name); err != nil {
			if err := json.Unmarshal(raw, &dep); err != nil || dep.Name == "" {
				continue
			}
		}

		version := overrides[dep.Name]
		if version == "" {
			version = dep.Version
		}
		if version == "" {
			version = dep.MinVersion
		}
		kind := deps.KindRuntime
		if dep.Host {
			kind = deps.KindBuild
		}

		c := NewComponent(dep.Name, version, kind)
		c.IsDirect = true
		components = append(components, c)
		m.Requirements = append(m.Requirements, deps.Requirement{
			Ref:  deps.Reference{Name: dep.Name, Version: c.Version},
			Kind: kind,
		})
	}
	return m, components, nil
}

// Lock parses vcpkg-lock.json.
type Lock struct{}

func (Lock) Type() string              { return "vcpkg-lock.json" }
func (Lock) IncludesTransitive() bool  { return true }
func (Lock) Supports(name string) bool { return strings.EqualFold(name, "vcpkg-lock.json") }

func (p Lock) Parse(path string, _ deps.Options) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	components, err := ParseLock(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &deps.ManifestResult{Type: p.Type(), IncludesTransitive: true, Components: components}, nil
}

type lockEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ParseLock parses vcpkg-lock.json content in either the packages-map form,
// whose keys may carry a ":triplet" suffix, or the flat array form.
func ParseLock(data []byte) ([]deps.Component, error) {
	var byPackage struct {
		Packages map[string]lockEntry `json:"packages"`
	}
	if err := json.Unmarshal(data, &byPackage); err == nil && len(byPackage.Packages) > 0 {
		keys := make([]string, 0, len(byPackage.Packages))
		for k := range byPackage.Packages {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		seen := make(map[string]bool)
		var out []deps.Component
		for _, k := range keys {
			name := stripTriplet(k)
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, NewComponent(name, byPackage.Packages[k].Version, deps.KindRuntime))
		}
		return out, nil
	}

	var flat []lockEntry
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("parse vcpkg-lock.json: unrecognized format")
	}
	var out []deps.Component
	for _, e := range flat {
		if e.Name != "" {
			out = append(out, NewComponent(stripTriplet(e.Name), e.Version, deps.KindRuntime))
		}
	}
	return out, nil
}

// Status parses the classic-mode installed/vcpkg/status database.
type Status struct{}

func (Status) Type() string              { return "vcpkg-status" }
func (Status) IncludesTransitive() bool  { return true }
func (Status) Supports(name string) bool { return name == "status" }

func (p Status) Parse(path string, _ deps.Options) (*deps.ManifestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &deps.ManifestResult{Type: p.Type(), IncludesTransitive: true, Components: ParseStatus(data)}, nil
}

// ParseStatus parses dpkg-style stanzas and keeps packages whose status is
// "install ok installed". Feature stanzas ("Feature: ...") are folded into
// their package.
func ParseStatus(data []byte) []deps.Component {
	var (
		out       []deps.Component
		seen      = make(map[string]bool)
		name      string
		version   string
		installed bool
	)
	flush := func() {
		if installed && name != "" && !seen[name] {
			seen[name] = true
			out = append(out, NewComponent(name, version, deps.KindRuntime))
		}
		name, version, installed = "", "", false
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Package":
			name = stripTriplet(value)
		case "Version":
			version = value
		case "Status":
			installed = value == "install ok installed"
		}
	}
	flush()
	return out
}

// NewComponent builds a vcpkg component. Known libraries take their purl
// base from the fingerprint database, others get a generic purl.
func NewComponent(name, version string, kind deps.RequirementKind) deps.Component {
	if version == "" {
		version = deps.UnknownVersion
	}
	c := deps.Component{
		Name:            name,
		Version:         version,
		PURL:            deps.GenericPURL(name),
		Kind:            kind,
		DetectionSource: deps.SourceVcpkg,
	}
	if lib := fingerprints.Default().Find(name); lib != nil {
		c.PURL = lib.PURL
		c.Description = lib.Description
	}
	c.PURL = deps.PURLWithVersion(c.PURL, version)
	return c
}

// stripTriplet turns "boost-system:x64-windows" into "boost-system".
func stripTriplet(s string) string {
	name, _, _ := strings.Cut(strings.TrimSpace(s), ":")
	return name
}
