package compiledb

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func versions(cs []deps.Component) map[string]string {
	out := make(map[string]string)
	for _, c := range cs {
		out[c.Name] = c.Version
	}
	return out
}

const database = `[
  {
    "directory": "/work/app/build",
    "command": "/usr/bin/c++ -I/work/app/include -I../src -isystem /opt/boost_1_82_0/include -o main.o -c /work/app/src/main.cpp",
    "file": "/work/app/src/main.cpp"
  },
  {
    "directory": "/work/app/build",
    "arguments": ["clang++", "-I", "/usr/local/include/fmt-10.1.1", "-lssl", "-c", "net.cpp"],
    "file": "net.cpp"
  }
]`

func TestParse(t *testing.T) {
	cmds, err := Parse([]byte(database))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2", len(cmds))
	}

	f := cmds[1].Flags()
	if !reflect.DeepEqual(f.Includes, []string{"/usr/local/include/fmt-10.1.1"}) {
		t.Errorf("Includes = %q", f.Includes)
	}
	if !reflect.DeepEqual(f.Libraries, []string{"ssl"}) {
		t.Errorf("Libraries = %q", f.Libraries)
	}

	if _, err := Parse([]byte("{not json")); err == nil {
		t.Error("expected error for malformed database")
	}
}

func TestStrategyDetect(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "build/"+FileName, `[
  {
    "directory": "`+filepath.ToSlash(root)+`/build",
    "command": "c++ -I`+filepath.ToSlash(root)+`/include -I../third_party/json/include -isystem /opt/boost_1_82_0/include -c ../main.cpp",
    "file": "../main.cpp"
  }
]`)
	writeFile(t, root, "tools/gen/"+FileName, `[{"directory": "/tmp", "arguments": ["cc", "-I/opt/zlib-1.3/include", "-c", "a.c"], "file": "a.c"}]`)
	writeFile(t, root, ".cache/"+FileName, `[{"directory": "/tmp", "arguments": ["cc", "-I/opt/libpng/include", "-c", "a.c"], "file": "a.c"}]`)

	det, err := Strategy{}.Detect(context.Background(), root, deps.Options{})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	want := map[string]string{"boost": "1.82.0", "zlib": "1.3"}
	if got := versions(det.Components); !reflect.DeepEqual(got, want) {
		t.Errorf("components = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(det.Direct, []string{"boost", "zlib"}) {
		t.Errorf("Direct = %v", det.Direct)
	}
	for _, c := range det.Components {
		if c.DetectionSource != deps.SourceCompileDB {
			t.Errorf("%s source = %q", c.Name, c.DetectionSource)
		}
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, FileName, "[]")
	writeFile(t, root, "build/"+FileName, "[]")
	writeFile(t, root, "node_modules/x/"+FileName, "[]")

	found, err := Find(context.Background(), root, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	want := []string{filepath.Join(root, FileName), filepath.Join(root, "build", FileName)}
	if !reflect.DeepEqual(found, want) {
		t.Errorf("Find = %v, want %v", found, want)
	}
}

type configureRunner struct {
	name string
	args []string
}

func (r *configureRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	r.name, r.args = name, args
	buildDir := args[3]
	db := `[{"directory": "` + filepath.ToSlash(buildDir) + `", "command": "c++ -isystem /opt/openssl-3.1.4/include -c main.cpp", "file": "main.cpp"}]`
	if err := os.WriteFile(filepath.Join(buildDir, FileName), []byte(db), 0o644); err != nil {
		return nil, err
	}
	linkDir := filepath.Join(buildDir, "CMakeFiles", "app.dir")
	if err := os.MkdirAll(linkDir, 0o755); err != nil {
		return nil, err
	}
	return nil, os.WriteFile(filepath.Join(linkDir, "link.txt"), []byte("c++ main.o -o app /opt/sqlite-3.44.2/lib/libsqlite3.a\n"), 0o644)
}

func TestStrategyConfigure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "CMakeLists.txt", "project(app)\n")

	t.Run("passive", func(t *testing.T) {
		runner := &configureRunner{}
		det, err := Strategy{}.Detect(context.Background(), root, deps.Options{Runner: runner})
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if runner.name != "" || !det.Empty() {
			t.Errorf("passive scan ran %q and found %d components", runner.name, len(det.Components))
		}
	})

	t.Run("active", func(t *testing.T) {
		runner := &configureRunner{}
		det, err := Strategy{}.Detect(context.Background(), root, deps.Options{CMakeConfigure: true, Runner: runner})
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if runner.name != "cmake" || runner.args[0] != "-S" || runner.args[4] != "-DCMAKE_EXPORT_COMPILE_COMMANDS=ON" {
			t.Errorf("ran %s %v", runner.name, runner.args)
		}
		want := map[string]string{"openssl": "3.1.4", "sqlite3": "3.44.2"}
		if got := versions(det.Components); !reflect.DeepEqual(got, want) {
			t.Errorf("components = %v, want %v", got, want)
		}
		if _, err := os.Stat(runner.args[3]); !os.IsNotExist(err) {
			t.Error("temporary build directory was not removed")
		}
	})
}
