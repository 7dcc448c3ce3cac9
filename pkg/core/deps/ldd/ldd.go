// Package ldd turns the runtime loader's view of shared objects into
// dependency edges. It reads an ldd-results.json file prepared ahead of time
// (typically inside a container that has the project's runtime installed),
// or, in active mode, runs ldd itself on the shared objects in the tree.
package ldd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

// EnvResults names the environment variable that points at a results file.
const EnvResults = "CPPSBOM_LDD_RESULTS"

// Results is the ldd-results.json document.
type Results struct {
	Results []Entry `json:"results"`
}

// Entry is the ldd output for one shared object.
type Entry struct {
	Library string `json:"library"`
	Deps    []Dep  `json:"deps"`
}

// Dep is one line of ldd output.
type Dep struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// ParseResults decodes an ldd-results.json document.
func ParseResults(data []byte) (*Results, error) {
	var r Results
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", deps.DefaultLddResultsFn, err)
	}
	return &r, nil
}

var (
	// libssl.so.3 => /lib/x86_64-linux-gnu/libssl.so.3 (0x00007f...)
	resolvedLine = regexp.MustCompile(`^(\S+)\s+=>\s+(\S+)?\s*(?:\(0x[0-9a-fA-F]+\))?$`)
	// /lib64/ld-linux-x86-64.so.2 (0x00007f...)
	directLine = regexp.MustCompile(`^(\S+)\s+\(0x[0-9a-fA-F]+\)$`)
)

// ParseOutput parses the text ldd prints for library. Unresolved
// libraries ("=> not found") are kept with an empty path.
func ParseOutput(library string, out []byte) Entry {
	e := Entry{Library: library}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if m := resolvedLine.FindStringSubmatch(line); m != nil {
			e.Deps = append(e.Deps, Dep{Name: m[1], Path: m[2]})
			continue
		}
		if strings.HasSuffix(line, "=> not found") {
			e.Deps = append(e.Deps, Dep{Name: strings.Fields(line)[0]})
			continue
		}
		if m := directLine.FindStringSubmatch(line); m != nil {
			e.Deps = append(e.Deps, Dep{Name: filepath.Base(m[1]), Path: m[1]})
		}
	}
	return e
}

var systemPrefixes = []string{
	"libc.so", "libm.so", "libdl.so", "libpthread.so", "librt.so",
	"libstdc++.so", "libgcc_s.so", "ld-linux", "ld-musl",
	"libgomp.so", "libquadmath.so", "libgfortran.so",
	"linux-vdso.so", "linux-gate.so",
	"libutil.so", "libresolv.so", "libnss", "libnsl.so",
}

// IsSystemLibrary reports whether a shared object belongs to the C runtime
// or the loader.
func IsSystemLibrary(name string) bool {
	lower := strings.ToLower(filepath.Base(name))
	for _, p := range systemPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Strategy implements deps.Strategy for ldd.
type Strategy struct{}

func (Strategy) Name() string { return deps.SourceLdd }

func (Strategy) Manifests() []string {
	return []string{deps.DefaultLddResultsFn, "build/" + deps.DefaultLddResultsFn}
}

func (s Strategy) Detect(ctx context.Context, root string, opts deps.Options) (*deps.Detection, error) {
	opts = opts.WithDefaults()

	var entries []Entry
	if path := ResultsFile(root, opts); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		r, err := ParseResults(data)
		if err != nil {
			return nil, err
		}
		opts.Logger("ldd: %s has %d entries", path, len(r.Results))
		entries = r.Results
	} else if opts.Ldd {
		var err error
		if entries, err = Run(ctx, root, opts); err != nil {
			return nil, err
		}
	}

	col := deps.NewCollector(deps.SourceLdd)
	det := &deps.Detection{}
	for _, e := range entries {
		Record(col, det, e)
	}
	det.Components = col.Components()
	return det, nil
}

// ResultsFile locates the results file: Options.LddResults, then the
// CPPSBOM_LDD_RESULTS variable, then the project root and its build
// directory. It returns "" when there is none.
func ResultsFile(root string, opts deps.Options) string {
	if opts.LddResults != "" {
		return opts.LddResults
	}
	if env := os.Getenv(EnvResults); env != "" {
		return env
	}
	for _, c := range []string{
		filepath.Join(root, deps.DefaultLddResultsFn),
		filepath.Join(root, "build", deps.DefaultLddResultsFn),
	} {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c
		}
	}
	return ""
}

// Run invokes ldd on every shared object in the tree. A failure on one
// file is logged and skipped; a missing ldd binary aborts.
func Run(ctx context.Context, root string, opts deps.Options) ([]Entry, error) {
	var entries []Entry
	err := deps.Walk(ctx, root, opts.ExcludeDirs, func(path string, d fs.DirEntry) error {
		name := d.Name()
		if !strings.HasSuffix(name, ".so") && !strings.Contains(name, ".so.") {
			return nil
		}
		runCtx, cancel := context.WithTimeout(ctx, opts.ToolTimeout)
		defer cancel()

		out, err := opts.Runner.Run(runCtx, root, "ldd", path)
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return err
			}
			opts.Logger("ldd: %s: %v", path, err)
			return nil
		}
		entries = append(entries, ParseOutput(path, out))
		return nil
	})
	return entries, err
}

// Record adds the library of e and its non-system dependencies to col,
// with an edge for each dependency that maps to a different component.
func Record(col *deps.Collector, det *deps.Detection, e Entry) {
	lib := deps.MatchLibrary(e.Library)
	if lib == nil {
		return
	}
	parent := col.Add(lib)
	parent.AddLinkLibrary(filepath.Base(e.Library))
	deps.SetVersion(parent, deps.ExtractVersionFromPath(filepath.Dir(e.Library)))

	for _, d := range e.Deps {
		if IsSystemLibrary(d.Name) {
			continue
		}
		childLib := deps.MatchLibrary(d.Name)
		if childLib == nil && d.Path != "" {
			childLib = deps.MatchLibrary(d.Path)
		}
		if childLib == nil || childLib.Name == lib.Name {
			continue
		}
		child := col.Add(childLib)
		child.AddLinkLibrary(d.Name)
		if d.Path != "" {
			deps.SetVersion(child, deps.ExtractVersionFromPath(filepath.Dir(d.Path)))
		}
		det.AddEdge(parent.Name, child.Name)
	}
}
