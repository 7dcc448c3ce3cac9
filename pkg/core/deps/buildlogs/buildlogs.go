// Package buildlogs reads the compiler and linker command lines that build
// systems leave behind: CMake link.txt files, MSBuild .tlog tracking logs,
// build.ninja and Makefiles.
package buildlogs

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

// Kind identifies the build artifact a log file came from.
type Kind int

const (
	Unknown Kind = iota
	LinkTxt
	Tlog
	Ninja
	Makefile
)

// Classify returns the artifact kind for a file name.
func Classify(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case lower == "link.txt":
		return LinkTxt
	case strings.HasSuffix(lower, ".tlog"):
		return Tlog
	case lower == "build.ninja":
		return Ninja
	case lower == "makefile" || lower == "gnumakefile":
		return Makefile
	}
	return Unknown
}

// Strategy implements deps.Strategy for build logs.
type Strategy struct{}

func (Strategy) Name() string { return deps.SourceBuildLogs }

func (Strategy) Manifests() []string {
	return []string{"CMakeFiles/*/link.txt", "*.tlog", "build.ninja", "Makefile", "GNUmakefile"}
}

func (s Strategy) Detect(ctx context.Context, root string, opts deps.Options) (*deps.Detection, error) {
	opts = opts.WithDefaults()

	var evidence deps.Flags
	err := deps.Walk(ctx, root, opts.ExcludeDirs, func(path string, d fs.DirEntry) error {
		kind := Classify(d.Name())
		if kind == Unknown {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			opts.Logger("build-logs: %v", err)
			return nil
		}
		defer f.Close()

		flags, err := Parse(kind, f)
		if err != nil {
			opts.Logger("build-logs: skipping %s: %v", path, err)
			return nil
		}
		evidence.Merge(flags.External(root, root))
		return nil
	})
	if err != nil {
		return nil, err
	}

	det := &deps.Detection{Components: evidence.Components(deps.SourceBuildLogs)}
	for _, c := range det.Components {
		det.Direct = append(det.Direct, c.Name)
	}
	return det, nil
}

// tlogLibrary matches absolute .lib paths in MSBuild tracking logs, which
// are upper-cased, one path per line and may be pipe separated.
var tlogLibrary = regexp.MustCompile(`(?i)[a-z]:[\\/][^|\r\n"]+\.lib\b`)

var ninjaEscapes = strings.NewReplacer("$:", ":", "$$", "$")

// Parse extracts include directories and libraries from one build log.
func Parse(kind Kind, r io.Reader) (deps.Flags, error) {
	var flags deps.Flags

	switch kind {
	case LinkTxt:
		data, err := io.ReadAll(r)
		if err != nil {
			return flags, err
		}
		return deps.ParseCommand(string(data)), nil
	case Tlog:
		data, err := io.ReadAll(r)
		if err != nil {
			return flags, err
		}
		// tracking logs are UTF-16LE; the paths we want are ASCII
		data = bytes.ReplaceAll(data, []byte{0}, nil)
		for _, m := range tlogLibrary.FindAllString(string(data), -1) {
			flags.LibraryFiles = append(flags.LibraryFiles, strings.TrimSpace(m))
		}
		flags.LibraryFiles = lo.Uniq(flags.LibraryFiles)
		return flags, nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSuffix(strings.TrimSpace(sc.Text()), `\`)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if kind == Ninja {
			line = ninjaEscapes.Replace(line)
		}
		flags.Merge(deps.ParseCommand(line))
	}
	return flags, sc.Err()
}
