package conan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

// Strategy detects Conan requirements from conanfile.txt, conanfile.py and
// conan.lock files anywhere in the project.
type Strategy struct{}

func (Strategy) Name() string { return deps.SourceConan }

func (Strategy) Manifests() []string {
	return []string{"conanfile.txt", "conanfile.py", "conan.lock"}
}

// Parsers returns the manifest parsers the conan strategy walks for.
func Parsers() []deps.ManifestParser {
	return []deps.ManifestParser{ConanfileTxt{}, ConanfilePy{}, ConanLock{}}
}

func (s Strategy) Detect(ctx context.Context, root string, opts deps.Options) (*deps.Detection, error) {
	opts = opts.WithDefaults()
	det := &deps.Detection{}
	parsers := Parsers()

	err := deps.Walk(ctx, root, opts.ExcludeDirs, func(path string, d fs.DirEntry) error {
		p, err := deps.DetectManifest(path, parsers...)
		if err != nil {
			return nil
		}
		result, err := p.Parse(path, opts)
		if err != nil {
			opts.Logger("conan: skipping %s: %v", path, err)
			return nil
		}
		mergeResult(det, result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return det, nil
}

// mergeResult folds one parsed file into a detection. Declaration files
// contribute their transcription; lock files contribute the closure with
// its edges.
func mergeResult(det *deps.Detection, result *deps.ManifestResult) {
	m := result.Manifest
	if m != nil {
		if det.RootName == "" && m.Name != "" {
			det.RootName, det.RootVersion = m.Name, m.Version
		}
		for _, r := range m.Requirements {
			det.Direct = append(det.Direct, r.Ref.Name)
		}
	}

	components := result.Components
	if !result.IncludesTransitive {
		components = Transcribe(m)
	}
	for _, c := range components {
		for _, child := range c.Dependencies {
			det.AddEdge(c.Name, child)
		}
		det.Components = append(det.Components, c)
	}
}

// GraphStrategy reads the resolved Conan dependency graph. It prefers an
// existing graph file and otherwise, when Options.ConanGraph is set, runs
// `conan graph info` inside Docker.
type GraphStrategy struct{}

func (GraphStrategy) Name() string { return deps.SourceConanGraph }

func (GraphStrategy) Manifests() []string { return GraphFiles }

func (s GraphStrategy) Detect(ctx context.Context, root string, opts deps.Options) (*deps.Detection, error) {
	opts = opts.WithDefaults()

	for _, rel := range GraphFiles {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if _, err := os.Stat(path); err != nil {
			continue
		}
		result, err := GraphJSON{}.Parse(path, opts)
		if err != nil {
			opts.Logger("conan-graph: skipping %s: %v", path, err)
			continue
		}
		det := &deps.Detection{}
		mergeResult(det, result)
		return det, nil
	}

	if !opts.ConanGraph || !hasRecipe(root) {
		return &deps.Detection{}, nil
	}

	data, err := RunGraphInfo(ctx, root, opts)
	if err != nil {
		return nil, err
	}
	result, err := ParseGraph(data, opts.Logger)
	if err != nil {
		return nil, err
	}
	det := &deps.Detection{}
	mergeResult(det, result)
	return det, nil
}

func hasRecipe(root string) bool {
	for _, name := range []string{"conanfile.py", "conanfile.txt"} {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			return true
		}
	}
	return false
}

// RunGraphInfo runs `conan graph info . --format=json` on the project in
// a throwaway container and returns the JSON graph. The project is mounted
// read-only and the call is bounded by Options.ToolTimeout.
func RunGraphInfo(ctx context.Context, root string, opts deps.Options) ([]byte, error) {
	opts = opts.WithDefaults()
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.ToolTimeout)
	defer cancel()

	args := DockerArgs(toDockerPath(abs, runtime.GOOS), opts.DockerImage)
	opts.Logger("conan-graph: docker %s", strings.Join(args, " "))
	return opts.Runner.Run(ctx, abs, "docker", args...)
}

// DockerArgs builds the docker command line for a graph export.
func DockerArgs(projectDir, image string) []string {
	return []string{
		"run", "--rm",
		"-v", projectDir + ":/project:ro",
		"-w", "/project",
		image,
		"bash", "-c", "conan profile detect >/dev/null 2>&1; conan graph info . --format=json",
	}
}

// toDockerPath converts "C:\src\app" to "/c/src/app" for Docker Desktop on
// Windows; other paths are returned unchanged.
func toDockerPath(p, goos string) string {
	if goos != "windows" || len(p) < 2 || p[1] != ':' {
		return p
	}
	rest := strings.ReplaceAll(p[2:], `\`, "/")
	return "/" + strings.ToLower(p[:1]) + rest
}
