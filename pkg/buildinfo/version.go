// Package buildinfo identifies the cppsbom binary. The SBOM writer stamps
// it into the CycloneDX tool metadata and the API reports it on /healthz.
//
// Version, Commit and Date are set via ldflags during release builds:
//
//	go build -ldflags "-X github.com/matzehuels/cppsbom/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/cppsbom/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/cppsbom/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import "fmt"

const (
	// Name is the tool name written to generated SBOMs.
	Name = "cppsbom"

	// Vendor is the tool vendor written to generated SBOMs.
	Vendor = "matzehuels"
)

var (
	// Version is the semantic version (e.g., "v1.2.3").
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// Info is the JSON form of the build information.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Current returns the build information of the running binary.
func Current() Info {
	return Info{Name: Name, Version: Version, Commit: Commit, Date: Date}
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}
