// Package binary reads the dependency records compiled into library files:
// DT_NEEDED entries of ELF shared objects, the import tables of PE DLLs,
// the load commands of Mach-O dylibs and the /DEFAULTLIB directives MSVC
// embeds in static .lib archives. Each record becomes an edge from the
// library to the library it needs.
package binary

import (
	"bytes"
	"context"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

// Format is a binary container format.
type Format int

const (
	Unknown Format = iota
	ELF
	PE
	MachO
	MSVCLib
)

func (f Format) String() string {
	switch f {
	case ELF:
		return "elf"
	case PE:
		return "pe"
	case MachO:
		return "macho"
	case MSVCLib:
		return "lib"
	}
	return "unknown"
}

// Classify returns the format implied by a file name: .so and versioned
// .so.N files are ELF, .dll is PE, .dylib is Mach-O and .lib is an MSVC
// archive.
func Classify(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".so") || strings.Contains(lower, ".so."):
		return ELF
	case strings.HasSuffix(lower, ".dll"):
		return PE
	case strings.HasSuffix(lower, ".dylib"):
		return MachO
	case strings.HasSuffix(lower, ".lib"):
		return MSVCLib
	}
	return Unknown
}

// Needed returns the libraries the file at path depends on.
func Needed(path string, format Format) ([]string, error) {
	switch format {
	case ELF:
		f, err := elf.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return f.DynString(elf.DT_NEEDED)
	case PE:
		f, err := pe.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return f.ImportedLibraries()
	case MachO:
		f, err := macho.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return f.ImportedLibraries()
	case MSVCLib:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return DefaultLibs(f)
	}
	return nil, nil
}

// scanLimit bounds how much of a static library is searched for
// directives; they live in the first members.
const scanLimit = 64 * 1024

var defaultLib = regexp.MustCompile(`(?i)[/-]DEFAULTLIB[:\s]+"?([A-Za-z0-9_\-.]+)"?`)

// DefaultLibs returns the /DEFAULTLIB directives in the head of an MSVC
// static library. Data that is neither an archive nor carries directives
// yields nothing.
func DefaultLibs(r io.Reader) ([]string, error) {
	chunk, err := io.ReadAll(io.LimitReader(r, scanLimit))
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(chunk, []byte("!<arch>")) && !bytes.Contains(chunk, []byte("DEFAULTLIB")) {
		return nil, nil
	}

	var libs []string
	seen := make(map[string]bool)
	for _, m := range defaultLib.FindAllSubmatch(chunk, -1) {
		name := string(m[1])
		if key := strings.ToLower(name); !seen[key] {
			seen[key] = true
			libs = append(libs, name)
		}
	}
	return libs, nil
}

// systemLibs are runtime and operating-system libraries that are never
// reported: the C and C++ runtimes, the Windows API and the dynamic loader.
var systemLibs = map[string]bool{
	"libcmt": true, "libcmtd": true, "msvcrt": true, "msvcrtd": true,
	"msvcprt": true, "msvcprtd": true, "libcpmt": true, "libcpmtd": true,
	"vcruntime": true, "vcruntimed": true, "ucrt": true, "ucrtd": true,
	"oldnames": true, "kernel32": true, "user32": true, "advapi32": true,
	"shell32": true, "ole32": true, "oleaut32": true, "uuid": true,
	"comdlg32": true, "winspool": true, "gdi32": true, "ws2_32": true,
	"ntdll": true, "ntoskrnl": true, "bcrypt": true, "crypt32": true,
	"c": true, "m": true, "dl": true, "rt": true, "pthread": true,
	"stdc++": true, "c++": true, "gcc_s": true, "system": true,
}

// IsSystemLibrary reports whether a needed library name belongs to the
// platform rather than to a third-party package.
func IsSystemLibrary(name string) bool {
	base := strings.ToLower(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if strings.HasPrefix(base, "ld-linux") || strings.HasPrefix(base, "api-ms-win-") || strings.HasPrefix(base, "linux-vdso") {
		return true
	}
	// Mach-O load commands name the system frameworks by absolute path
	if strings.HasPrefix(name, "/System/Library/") || strings.HasPrefix(base, "libsystem.") {
		return true
	}
	if i := strings.Index(base, ".so"); i > 0 {
		base = base[:i]
	}
	for _, ext := range []string{".dll", ".lib", ".dylib", ".a"} {
		base = strings.TrimSuffix(base, ext)
	}
	if systemLibs[base] {
		return true
	}
	if rest, ok := strings.CutPrefix(base, "lib"); ok && systemLibs[rest] {
		return true
	}
	// vcruntime140.dll, msvcp140.dll
	return strings.HasPrefix(base, "vcruntime") || strings.HasPrefix(base, "msvcp")
}

// Strategy implements deps.Strategy for compiled libraries. Binaries are
// read wherever they sit in the tree; prebuilt third-party libraries are
// commonly vendored into the project.
type Strategy struct{}

func (Strategy) Name() string { return deps.SourceBinary }

func (Strategy) Manifests() []string { return []string{"*.so", "*.so.*", "*.dll", "*.dylib", "*.lib"} }

func (s Strategy) Detect(ctx context.Context, root string, opts deps.Options) (*deps.Detection, error) {
	opts = opts.WithDefaults()
	col := deps.NewCollector(deps.SourceBinary)
	det := &deps.Detection{}

	err := deps.Walk(ctx, root, opts.ExcludeDirs, func(path string, d fs.DirEntry) error {
		format := Classify(d.Name())
		if format == Unknown {
			return nil
		}
		needed, err := Needed(path, format)
		if err != nil {
			opts.Logger("binary-edges: skipping %s: %v", path, err)
			return nil
		}
		if len(needed) > 0 {
			opts.Logger("binary-edges: %s (%s) needs %v", filepath.Base(path), format, needed)
		}
		Record(col, det, path, needed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	det.Components = col.Components()
	return det, nil
}

// Record adds the library at file and its needed libraries to col, and an
// edge for every needed library that maps to a different component. A file
// that is not a fingerprinted library contributes nothing.
func Record(col *deps.Collector, det *deps.Detection, file string, needed []string) {
	lib := deps.MatchLibrary(file)
	if lib == nil {
		return
	}
	parent := col.Add(lib)
	base := filepath.Base(file)
	parent.AddLinkLibrary(base)
	deps.SetVersion(parent, deps.ExtractVersionFromLibName(base))
	deps.SetVersion(parent, deps.ExtractVersionFromPath(filepath.Dir(file)))

	for _, n := range needed {
		if IsSystemLibrary(n) {
			continue
		}
		childLib := deps.MatchLibrary(n)
		if childLib == nil || childLib.Name == lib.Name {
			continue
		}
		child := col.Add(childLib)
		child.AddLinkLibrary(n)
		det.AddEdge(parent.Name, child.Name)
	}
}
