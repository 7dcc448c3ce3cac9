package ldd

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/errors"
)

const lddOutput = `	linux-vdso.so.1 (0x00007ffc3b5f2000)
	libssl.so.3 => /opt/openssl-3.1.4/lib/libssl.so.3 (0x00007f2a1c000000)
	libz.so.1 => /lib/x86_64-linux-gnu/libz.so.1 (0x00007f2a1bfe0000)
	libnghttp2.so.14 => not found
	libc.so.6 => /lib/x86_64-linux-gnu/libc.so.6 (0x00007f2a1bc00000)
	/lib64/ld-linux-x86-64.so.2 (0x00007f2a1c1f0000)
`

func TestParseOutput(t *testing.T) {
	e := ParseOutput("/opt/curl/lib/libcurl.so.4", []byte(lddOutput))

	want := []Dep{
		{Name: "linux-vdso.so.1", Path: "linux-vdso.so.1"},
		{Name: "libssl.so.3", Path: "/opt/openssl-3.1.4/lib/libssl.so.3"},
		{Name: "libz.so.1", Path: "/lib/x86_64-linux-gnu/libz.so.1"},
		{Name: "libnghttp2.so.14"},
		{Name: "libc.so.6", Path: "/lib/x86_64-linux-gnu/libc.so.6"},
		{Name: "ld-linux-x86-64.so.2", Path: "/lib64/ld-linux-x86-64.so.2"},
	}
	if !reflect.DeepEqual(e.Deps, want) {
		t.Errorf("Deps = %+v\nwant %+v", e.Deps, want)
	}
}

func TestIsSystemLibrary(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"libc.so.6", true},
		{"/lib64/ld-linux-x86-64.so.2", true},
		{"libstdc++.so.6", true},
		{"libnss_files.so.2", true},
		{"libssl.so.3", false},
		{"libz.so.1", false},
	}
	for _, tt := range tests {
		if got := IsSystemLibrary(tt.name); got != tt.want {
			t.Errorf("IsSystemLibrary(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

const results = `{
  "results": [
    {
      "library": "/opt/curl-8.4.0/lib/libcurl.so.4",
      "deps": [
        {"name": "libssl.so.3", "path": "/opt/openssl-3.1.4/lib/libssl.so.3"},
        {"name": "libcrypto.so.3", "path": "/opt/openssl-3.1.4/lib/libcrypto.so.3"},
        {"name": "libc.so.6", "path": "/lib/x86_64-linux-gnu/libc.so.6"}
      ]
    },
    {
      "library": "/opt/openssl-3.1.4/lib/libssl.so.3",
      "deps": [{"name": "libcrypto.so.3", "path": "/opt/openssl-3.1.4/lib/libcrypto.so.3"}]
    },
    {
      "library": "/work/app/build/libapp.so",
      "deps": [{"name": "libcurl.so.4"}]
    }
  ]
}`

func checkDetection(t *testing.T, det *deps.Detection) {
	t.Helper()
	got := make(map[string]string)
	for _, c := range det.Components {
		got[c.Name] = c.Version
	}
	want := map[string]string{"libcurl": "8.4.0", "openssl": "3.1.4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("components = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(det.Edges, map[string][]string{"libcurl": {"openssl"}}) {
		t.Errorf("Edges = %v", det.Edges)
	}
}

func TestStrategyResultsFile(t *testing.T) {
	t.Run("project root", func(t *testing.T) {
		root := t.TempDir()
		if err := os.WriteFile(filepath.Join(root, deps.DefaultLddResultsFn), []byte(results), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(EnvResults, "")

		det, err := Strategy{}.Detect(context.Background(), root, deps.Options{})
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		checkDetection(t, det)
	})

	t.Run("environment", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "elsewhere.json")
		if err := os.WriteFile(file, []byte(results), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(EnvResults, file)

		det, err := Strategy{}.Detect(context.Background(), t.TempDir(), deps.Options{})
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		checkDetection(t, det)
	})

	t.Run("malformed", func(t *testing.T) {
		root := t.TempDir()
		file := filepath.Join(root, "bad.json")
		if err := os.WriteFile(file, []byte("{"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := (Strategy{}).Detect(context.Background(), root, deps.Options{LddResults: file}); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("nothing", func(t *testing.T) {
		t.Setenv(EnvResults, "")
		det, err := Strategy{}.Detect(context.Background(), t.TempDir(), deps.Options{})
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if !det.Empty() {
			t.Errorf("got %d components without results or --ldd", len(det.Components))
		}
	})
}

type lddRunner struct {
	calls []string
}

func (r *lddRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New(errors.ErrCodeInternal, "no deadline")
	}
	r.calls = append(r.calls, name+" "+filepath.Base(args[0]))
	if filepath.Base(args[0]) == "libbroken.so" {
		return nil, errors.New(errors.ErrCodeExternalTool, "not a dynamic executable")
	}
	return []byte(lddOutput), nil
}

func TestStrategyActive(t *testing.T) {
	t.Setenv(EnvResults, "")
	root := t.TempDir()
	lib := filepath.Join(root, "lib")
	if err := os.MkdirAll(lib, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"libcurl.so.4", "libbroken.so", "README.md"} {
		if err := os.WriteFile(filepath.Join(lib, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	runner := &lddRunner{}
	det, err := Strategy{}.Detect(context.Background(), root, deps.Options{Ldd: true, Runner: runner})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !reflect.DeepEqual(runner.calls, []string{"ldd libbroken.so", "ldd libcurl.so.4"}) {
		t.Errorf("calls = %v", runner.calls)
	}
	if !reflect.DeepEqual(det.Edges, map[string][]string{"libcurl": {"openssl"}}) {
		t.Errorf("Edges = %v", det.Edges)
	}
}
