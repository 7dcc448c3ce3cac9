// Package compiledb reads JSON compilation databases (compile_commands.json)
// and reports the third-party libraries whose include directories and link
// flags appear in them.
package compiledb

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

// FileName is the conventional compilation database name.
const FileName = "compile_commands.json"

// candidates are checked before walking the tree, relative to the root.
var candidates = []string{
	FileName,
	"build/" + FileName,
	"out/" + FileName,
	"cmake-build-debug/" + FileName,
	"cmake-build-release/" + FileName,
	".build/" + FileName,
}

// Command is one entry of a compilation database.
type Command struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Command   string   `json:"command,omitempty"`
	Arguments []string `json:"arguments,omitempty"`
	Output    string   `json:"output,omitempty"`
}

// Flags extracts the command's include directories and libraries, from
// Arguments when present and from Command otherwise.
func (c Command) Flags() deps.Flags {
	if len(c.Arguments) > 0 {
		return deps.ParseArgs(c.Arguments)
	}
	return deps.ParseCommand(c.Command)
}

// Parse decodes a compilation database.
func Parse(data []byte) ([]Command, error) {
	var cmds []Command
	if err := json.Unmarshal(data, &cmds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}
	return cmds, nil
}

// Strategy implements deps.Strategy for compilation databases.
type Strategy struct{}

func (Strategy) Name() string { return deps.SourceCompileDB }

func (Strategy) Manifests() []string { return []string{FileName} }

func (s Strategy) Detect(ctx context.Context, root string, opts deps.Options) (*deps.Detection, error) {
	opts = opts.WithDefaults()

	files, err := Find(ctx, root, opts.ExcludeDirs)
	if err != nil {
		return nil, err
	}

	var evidence deps.Flags
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			opts.Logger("compiledb: %v", err)
			continue
		}
		cmds, err := Parse(data)
		if err != nil {
			opts.Logger("compiledb: skipping %s: %v", f, err)
			continue
		}
		opts.Logger("compiledb: %s has %d entries", f, len(cmds))
		for _, cmd := range cmds {
			evidence.Merge(cmd.Flags().External(root, cmd.Directory))
		}
	}

	if len(files) == 0 && opts.CMakeConfigure {
		configured, err := Configure(ctx, root, opts)
		if err != nil {
			return nil, err
		}
		evidence.Merge(configured)
	}

	det := &deps.Detection{Components: evidence.Components(deps.SourceCompileDB)}
	for _, c := range det.Components {
		det.Direct = append(det.Direct, c.Name)
	}
	return det, nil
}

// Find returns the compilation databases of the project: well-known build
// locations first, then any other found while walking the tree.
func Find(ctx context.Context, root string, skip []string) ([]string, error) {
	var found []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			found = append(found, p)
		}
	}

	for _, c := range candidates {
		p := filepath.Join(root, filepath.FromSlash(c))
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			add(p)
		}
	}
	err := deps.Walk(ctx, root, skip, func(path string, d fs.DirEntry) error {
		if d.Name() == FileName {
			add(path)
		}
		return nil
	})
	return found, err
}

// Configure runs a CMake configure step into a temporary build directory
// with CMAKE_EXPORT_COMPILE_COMMANDS enabled, then reads the generated
// database and the link.txt files CMake writes per target. Projects without
// a top-level CMakeLists.txt are left alone.
func Configure(ctx context.Context, root string, opts deps.Options) (deps.Flags, error) {
	var evidence deps.Flags
	if _, err := os.Stat(filepath.Join(root, "CMakeLists.txt")); err != nil {
		return evidence, nil
	}

	buildDir, err := os.MkdirTemp("", "cppsbom-cmake-")
	if err != nil {
		return evidence, err
	}
	defer os.RemoveAll(buildDir)

	ctx, cancel := context.WithTimeout(ctx, opts.ToolTimeout)
	defer cancel()

	opts.Logger("compiledb: configuring %s", root)
	if _, err := opts.Runner.Run(ctx, root, "cmake", "-S", root, "-B", buildDir, "-DCMAKE_EXPORT_COMPILE_COMMANDS=ON"); err != nil {
		return evidence, err
	}

	if data, err := os.ReadFile(filepath.Join(buildDir, FileName)); err == nil {
		cmds, err := Parse(data)
		if err != nil {
			return evidence, err
		}
		for _, cmd := range cmds {
			evidence.Merge(cmd.Flags().External(root, cmd.Directory))
		}
	}

	err = filepath.WalkDir(buildDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.EqualFold(d.Name(), "link.txt") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		evidence.Merge(deps.ParseCommand(string(data)).External(root, buildDir))
		return nil
	})
	return evidence, err
}
