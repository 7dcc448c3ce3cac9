package deps

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

func TestIsExternalPath(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"inside absolute", filepath.Join(root, "include"), false},
		{"root itself", root, false},
		{"relative inside", "include", false},
		{"outside", "/usr/include/boost", true},
		{"sibling with shared prefix", root + "-other/include", true},
		{"relative escaping", "../third_party/zlib", true},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExternalPath(tt.path, root, ""); got != tt.want {
				t.Errorf("IsExternalPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestExtractVersion(t *testing.T) {
	paths := map[string]string{
		"C:/local/boost_1_82_0/include":        "1.82.0",
		"/opt/openssl-3.1.4/include":           "3.1.4",
		"/home/u/.conan2/p/fmt/10.1.1/include": "10.1.1",
		"/usr/include":                         "",
		"/usr/lib/x86_64-linux-gnu":            "",
	}
	for in, want := range paths {
		if got := ExtractVersionFromPath(in); got != want {
			t.Errorf("ExtractVersionFromPath(%q) = %q, want %q", in, got, want)
		}
	}

	libs := map[string]string{
		"boost_system-vc143-mt-x64-1_82":     "1.82",
		"boost_system-vc143-mt-x64-1_82.lib": "1.82",
		"ssl":                                "",
	}
	for in, want := range libs {
		if got := ExtractVersionFromLibName(in); got != want {
			t.Errorf("ExtractVersionFromLibName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLibraryName(t *testing.T) {
	tests := map[string]string{
		"libssl.so.3":     "ssl",
		"/usr/lib/libz.a": "z",
		"zlibstatic.lib":  "zlibstatic",
		"-lfmt":           "fmt",
		"libpng16.so":     "png16",
		"KERNEL32.dll":    "KERNEL32",
	}
	for in, want := range tests {
		if got := LibraryName(in); got != want {
			t.Errorf("LibraryName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromPaths(t *testing.T) {
	comps := FromPaths(SourceCompileDB,
		[]string{"/opt/openssl-3.1.4/include", "/usr/include/boost", "/opt/unknown/include"},
		[]string{"ssl", "crypto", "boost_system-vc143-mt-x64-1_82"},
	)

	if len(comps) != 2 {
		t.Fatalf("components = %d, want 2: %+v", len(comps), comps)
	}
	boost, openssl := comps[0], comps[1]
	if boost.Name != "boost" || boost.Version != "1.82" || boost.PURL != "pkg:conan/boost@1.82" {
		t.Errorf("boost = %+v", boost)
	}
	if openssl.Name != "openssl" || openssl.Version != "3.1.4" {
		t.Errorf("openssl = %+v", openssl)
	}
	if !reflect.DeepEqual(openssl.LinkLibraries, []string{"crypto", "ssl"}) {
		t.Errorf("openssl libs = %v", openssl.LinkLibraries)
	}
	if openssl.DetectionSource != SourceCompileDB {
		t.Errorf("source = %q", openssl.DetectionSource)
	}
}

func TestWalkSkipsHiddenAndVendored(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{
		"a.txt",
		"src/b.txt",
		".git/c.txt",
		"node_modules/d.txt",
		"build/e.txt",
	} {
		p := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	err := Walk(context.Background(), root, []string{"build"}, func(path string, _ fs.DirEntry) error {
		rel, _ := filepath.Rel(root, path)
		got = append(got, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(got)
	if !reflect.DeepEqual(got, []string{"a.txt", "src/b.txt"}) {
		t.Errorf("walked %v", got)
	}
}

func TestWalkHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Walk(ctx, t.TempDir(), nil, func(string, fs.DirEntry) error { return nil })
	if err != context.Canceled {
		t.Errorf("Walk error = %v, want context.Canceled", err)
	}
}

func TestKnownManifests(t *testing.T) {
	got := KnownManifests([]Strategy{
		fakeStrategy{name: "vcpkg", files: []string{"vcpkg.json"}},
		fakeStrategy{name: "conan", files: []string{"conanfile.txt", "conan.lock"}},
	})
	want := []ManifestInfo{
		{Filename: "conan.lock", Strategy: "conan"},
		{Filename: "conanfile.txt", Strategy: "conan"},
		{Filename: "vcpkg.json", Strategy: "vcpkg"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("KnownManifests = %+v", got)
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.WithDefaults()
	if opts.DockerImage != DefaultDockerImage || opts.ToolTimeout != DefaultToolTimeout {
		t.Errorf("defaults not applied: %+v", opts)
	}
	if opts.Runner == nil || opts.Logger == nil {
		t.Error("Runner and Logger should be set")
	}

	custom := Options{DockerImage: "my/conan:2", ToolTimeout: 1}.WithDefaults()
	if custom.DockerImage != "my/conan:2" || custom.ToolTimeout != 1 {
		t.Errorf("custom values overwritten: %+v", custom)
	}
}

type fakeStrategy struct {
	name  string
	files []string
}

func (f fakeStrategy) Name() string        { return f.name }
func (f fakeStrategy) Manifests() []string { return f.files }
func (f fakeStrategy) Detect(context.Context, string, Options) (*Detection, error) {
	return &Detection{}, nil
}
