// Package conan reads Conan package manager files and transcribes their
// requirements into components.
//
// # Manifests
//
// Four formats are understood, each through a [deps.ManifestParser]:
//
//   - conanfile.txt: [requires], [build_requires], [tool_requires] and
//     [test_requires] sections
//   - conanfile.py: requires / build_requires / tool_requires /
//     python_requires attributes and self.requires(...) style calls
//   - conan.lock: lockfile v1 (graph_lock.nodes) and v2 (flat reference lists)
//   - graph.json: output of `conan graph info . --format=json`
//
// # Transcription
//
// [Transcribe] maps every requirement of a [deps.Manifest] to a component
// whose Package URL carries the full provenance:
//
//	openssl/3.1.4@conan/stable#deadbeef1234
//	  -> pkg:conan/openssl@3.1.4?channel=stable&rrev=deadbeef1234&user=conan
//
// Build-time requirements (build_requires, tool_requires, python_requires)
// keep their kind, which the SBOM writer turns into scope "excluded".
//
// # Strategies
//
// [Strategy] walks a project for the declaration and lock files.
// [GraphStrategy] reads an existing graph.json or, when enabled, runs
// `conan graph info` inside Docker.
package conan
