package deps

import (
	"fmt"
	"path/filepath"
	"sort"
)

// ManifestParser reads dependency information from one manifest format.
//
// Manifest files describe a project's dependencies and may be either:
//   - Declaration files (conanfile.txt, conanfile.py, vcpkg.json) listing
//     what the project asks for
//   - Lock or graph files (conan.lock, graph.json, vcpkg-lock.json) with
//     the full resolved closure
//
// Implementations are found in the strategy subpackages (e.g., conan.ConanfilePy).
type ManifestParser interface {
	// Parse reads the manifest file at path.
	//
	// Returns an error if the file cannot be read or is malformed. Single
	// malformed requirement entries are skipped and reported through
	// Options.Logger instead of failing the whole file.
	Parse(path string, opts Options) (*ManifestResult, error)

	// Supports reports whether this parser handles the given base filename.
	Supports(filename string) bool

	// Type returns the manifest type identifier (e.g., "conanfile.py").
	Type() string

	// IncludesTransitive reports whether this parser produces transitive deps.
	IncludesTransitive() bool
}

// ManifestResult holds the parsed dependency data from a manifest file.
type ManifestResult struct {
	// Type is the manifest type identifier (from ManifestParser.Type).
	Type string

	// IncludesTransitive indicates whether Components contains the full
	// resolved closure (lock and graph files) or only declarations.
	IncludesTransitive bool

	// Manifest carries the declared requirements in declaration order.
	// Lock and graph files fill it with the consumer's direct requirements.
	Manifest *Manifest

	// Components holds every package the file knows about, with
	// Dependencies and IsDirect set when the format records them.
	Components []Component
}

// DetectManifest finds a parser that supports the given file path.
//
// The path is matched against each parser's Supports method using the basename.
// Parsers are checked in order, and the first match is returned.
func DetectManifest(path string, parsers ...ManifestParser) (ManifestParser, error) {
	name := filepath.Base(path)
	for _, p := range parsers {
		if p.Supports(name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unsupported manifest: %s", name)
}

// ManifestInfo describes a file that a strategy reads.
type ManifestInfo struct {
	// Filename is the manifest file name or glob (e.g., "conanfile.py", "*.map").
	Filename string `json:"filename" yaml:"filename"`

	// Strategy is the name of the strategy that reads it.
	Strategy string `json:"strategy" yaml:"strategy"`
}

// KnownManifests lists every file the given strategies read, sorted by
// strategy then filename. A file read by several strategies appears once
// per strategy.
func KnownManifests(strategies []Strategy) []ManifestInfo {
	var result []ManifestInfo
	for _, s := range strategies {
		for _, f := range s.Manifests() {
			result = append(result, ManifestInfo{Filename: f, Strategy: s.Name()})
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Strategy != result[j].Strategy {
			return result[i].Strategy < result[j].Strategy
		}
		return result[i].Filename < result[j].Filename
	})
	return result
}
