package meson

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

const mesonBuild = `project('demo', 'cpp', version: '0.2.0')

thread_dep = dependency('threads')
zlib_dep = dependency('zlib', version: '>=1.2.13')
png_dep = dependency('libpng',
  version : '1.6.40',
  required : true)
# dependency('commented')
fmt_dep = dependency('fmt', fallback : ['fmt', 'fmt_dep'])
acme = subproject('acme-utils')

executable('demo', 'main.cpp', dependencies : [thread_dep, zlib_dep, png_dep, fmt_dep])
`

func TestParseBuild(t *testing.T) {
	cs, direct := ParseBuild(mesonBuild)

	got := make(map[string]string)
	for _, c := range cs {
		got[c.Name] = c.Version
	}
	want := map[string]string{
		"zlib":       "1.2.13",
		"libpng":     "1.6.40",
		"fmt":        deps.UnknownVersion,
		"acme-utils": deps.UnknownVersion,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("components = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(direct, []string{"zlib", "libpng", "fmt", "acme-utils"}) {
		t.Errorf("direct = %v", direct)
	}
}

func TestParseWrap(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		version string
		source  string
		provide []string
	}{
		{
			name: "wrapdb",
			data: `[wrap-file]
directory = zlib-1.3
source_url = http://zlib.net/fossils/zlib-1.3.tar.gz
source_filename = zlib-1.3.tar.gz
source_hash = ff0ba4c292013dbc27530b3a81e1f9a813cd39de01ca5e0f8bf355702efa593e
wrapdb_version = 1.3-4

[provide]
zlib = zlib_dep
`,
			version: "1.3",
			source:  "http://zlib.net/fossils/zlib-1.3.tar.gz",
			provide: []string{"zlib"},
		},
		{
			name: "directory only",
			data: `[wrap-file]
directory = libpng-1.6.40
source_filename = libpng-1.6.40.tar.xz

[provide]
dependency_names = libpng, png
`,
			version: "1.6.40",
			provide: []string{"libpng", "png"},
		},
		{
			name: "git tag",
			data: `[wrap-git]
url = https://github.com/fmtlib/fmt.git
revision = 10.1.1
`,
			version: "10.1.1",
			source:  "https://github.com/fmtlib/fmt.git",
		},
		{
			name: "git branch",
			data: `[wrap-git]
url = https://example.com/acme.git
revision = head
`,
			source: "https://example.com/acme.git",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ParseWrap("Pkg", []byte(tt.data))
			if err != nil {
				t.Fatalf("ParseWrap: %v", err)
			}
			if w.Name != "pkg" {
				t.Errorf("Name = %q", w.Name)
			}
			if w.Version != tt.version {
				t.Errorf("Version = %q, want %q", w.Version, tt.version)
			}
			if w.Source != tt.source {
				t.Errorf("Source = %q, want %q", w.Source, tt.source)
			}
			if !reflect.DeepEqual(w.Provides, tt.provide) {
				t.Errorf("Provides = %v, want %v", w.Provides, tt.provide)
			}
		})
	}
}

func TestStrategyDetect(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "subprojects"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"meson.build":              "zdep = dependency('zlib')\n",
		"subprojects/zlib.wrap":    "[wrap-file]\ndirectory = zlib-1.3.1\n",
		"subprojects/sqlite3.wrap": "[wrap-file]\nsource_filename = sqlite-amalgamation-3440200.zip\n",
	}
	for rel, content := range files {
		if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(rel)), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	det, err := Strategy{}.Detect(context.Background(), root, deps.Options{})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	got := make(map[string]string)
	for _, c := range det.Components {
		got[c.Name] = c.Version
	}
	if got["zlib"] != "1.3.1" {
		t.Errorf("zlib version = %q, want 1.3.1 from wrap", got["zlib"])
	}
	if _, ok := got["sqlite3"]; !ok {
		t.Errorf("sqlite3 wrap not reported: %v", got)
	}
	if !reflect.DeepEqual(det.Direct, []string{"zlib"}) {
		t.Errorf("Direct = %v", det.Direct)
	}
}
