package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

// Fingerprint digests the paths, sizes and modification times of every
// file below root that one of the strategies reads. Editing, adding or
// removing such a file changes the digest; other files do not.
func Fingerprint(ctx context.Context, root string, strategies []deps.Strategy, exclude []string) (string, error) {
	patterns := manifestPatterns(strategies)
	h := xxhash.New()
	files := 0

	err := deps.Walk(ctx, root, exclude, func(path string, d fs.DirEntry) error {
		if !matchesAny(d.Name(), patterns) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", filepath.ToSlash(rel), info.Size(), info.ModTime().UnixNano())
		files++
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x-%d", h.Sum64(), files), nil
}

// manifestPatterns reduces each manifest entry to its base-name pattern:
// "CMakeFiles/*/link.txt" becomes "link.txt".
func manifestPatterns(strategies []deps.Strategy) []string {
	seen := make(map[string]bool)
	var out []string
	for _, st := range strategies {
		for _, m := range st.Manifests() {
			p := m
			if i := strings.LastIndex(p, "/"); i >= 0 {
				p = p[i+1:]
			}
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
