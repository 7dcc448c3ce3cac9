// Package pkg provides the libraries behind cppsbom, a software bill of
// materials generator for C and C++ projects.
//
// # Overview
//
// C and C++ have no single package manager, so cppsbom collects evidence
// from everything a project leaves behind: Conan and vcpkg manifests, CMake
// and Meson build files, compile databases, build logs, linker maps, the
// binaries themselves and, as a last resort, #include directives. The pkg
// directory is organized as:
//
//  1. [core/deps] - Data model and detection strategies (one subpackage each)
//  2. [scanner] - Concurrent strategy execution and merging
//  3. [sbom] - CycloneDX 1.4, tree JSON, DOT and SVG writers
//  4. [pipeline] - Scan and render with caching, shared by CLI and server
//  5. [cache], [store] - Scan cache (file, Redis) and SBOM archive (MongoDB)
//  6. [server] - HTTP API
//
// # Architecture
//
// The typical data flow through cppsbom:
//
//	project directory
//	         ↓
//	    [scanner] runs every [core/deps] strategy concurrently
//	         ↓
//	    merged components (highest-ranked source wins)
//	         ↓
//	    [sbom] writer
//	         ↓
//	    CycloneDX JSON / tree JSON / DOT / SVG
//
// # Quick Start
//
//	import (
//	    "context"
//	    "os"
//
//	    "github.com/matzehuels/cppsbom/pkg/pipeline"
//	)
//
//	runner := pipeline.NewRunner(nil, nil, nil)
//	result, err := runner.Execute(context.Background(), pipeline.Options{Dir: "."})
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("sbom.json", result.Artifact, 0o644)
//
// Transcribing a single Conan manifest without scanning:
//
//	res, err := pipeline.TranscribeManifest(pipeline.ManifestPy, data, nil)
//
// [core/deps]: https://pkg.go.dev/github.com/matzehuels/cppsbom/pkg/core/deps
// [scanner]: https://pkg.go.dev/github.com/matzehuels/cppsbom/pkg/scanner
// [sbom]: https://pkg.go.dev/github.com/matzehuels/cppsbom/pkg/sbom
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/cppsbom/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/cppsbom/pkg/cache
// [store]: https://pkg.go.dev/github.com/matzehuels/cppsbom/pkg/store
// [server]: https://pkg.go.dev/github.com/matzehuels/cppsbom/pkg/server
package pkg
