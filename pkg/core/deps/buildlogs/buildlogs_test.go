package buildlogs

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"link.txt", LinkTxt},
		{"Link.TXT", LinkTxt},
		{"link.read.1.tlog", Tlog},
		{"build.ninja", Ninja},
		{"Makefile", Makefile},
		{"GNUmakefile", Makefile},
		{"CMakeLists.txt", Unknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.name); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		input    string
		includes []string
		libs     []string
		files    []string
	}{
		{
			name:  "link.txt",
			kind:  LinkTxt,
			input: "/usr/bin/c++ -O2 CMakeFiles/app.dir/main.cpp.o -o app  /opt/boost_1_82_0/lib/libboost_system.a -lpthread -lssl\n",
			libs:  []string{"pthread", "ssl"},
			files: []string{"/opt/boost_1_82_0/lib/libboost_system.a"},
		},
		{
			name:  "tlog",
			kind:  Tlog,
			input: "^C:\\PROJ\\MAIN.OBJ\r\nC:\\VCPKG\\INSTALLED\\X64-WINDOWS\\LIB\\ZLIB.LIB|C:\\VCPKG\\INSTALLED\\X64-WINDOWS\\LIB\\ZLIB.LIB\r\n",
			files: []string{"C:\\VCPKG\\INSTALLED\\X64-WINDOWS\\LIB\\ZLIB.LIB"},
		},
		{
			name: "ninja",
			kind: Ninja,
			input: `# comment -lignored
build app: CXX_EXECUTABLE_LINKER__app main.o
  LINK_LIBRARIES = -lfmt  /opt/spdlog-1.12.0/lib/libspdlog.a
  INCLUDES = -IC$:/deps/eigen
`,
			includes: []string{"C:/deps/eigen"},
			libs:     []string{"fmt"},
			files:    []string{"/opt/spdlog-1.12.0/lib/libspdlog.a"},
		},
		{
			name: "makefile",
			kind: Makefile,
			input: `CXXFLAGS += -I/opt/nlohmann/include \
	-Isrc
LDLIBS = -lcurl
`,
			includes: []string{"/opt/nlohmann/include", "src"},
			libs:     []string{"curl"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse(tt.kind, strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !reflect.DeepEqual(f.Includes, tt.includes) {
				t.Errorf("Includes = %q, want %q", f.Includes, tt.includes)
			}
			if !reflect.DeepEqual(f.Libraries, tt.libs) {
				t.Errorf("Libraries = %q, want %q", f.Libraries, tt.libs)
			}
			if !reflect.DeepEqual(f.LibraryFiles, tt.files) {
				t.Errorf("LibraryFiles = %q, want %q", f.LibraryFiles, tt.files)
			}
		})
	}
}

func TestParseUTF16Tlog(t *testing.T) {
	var utf16 []byte
	utf16 = append(utf16, 0xFF, 0xFE)
	for _, b := range []byte("C:\\DEPS\\OPENSSL\\LIB\\LIBSSL.LIB\r\n") {
		utf16 = append(utf16, b, 0)
	}

	f, err := Parse(Tlog, strings.NewReader(string(utf16)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(f.LibraryFiles) != 1 || !strings.HasSuffix(f.LibraryFiles[0], "LIBSSL.LIB") {
		t.Errorf("LibraryFiles = %q", f.LibraryFiles)
	}
}

func TestStrategyDetect(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"build/CMakeFiles/app.dir/link.txt": "c++ main.o -o app /opt/openssl-3.1.4/lib/libssl.a " + root + "/build/libinternal_zlib.a\n",
		"build/build.ninja":                 "  INCLUDES = -I/opt/boost_1_82_0/include -I" + root + "/vendor/fmt/include\n",
		".git/Makefile":                     "LDLIBS = -lsqlite3\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
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
	want := map[string]string{"openssl": "3.1.4", "boost": "1.82.0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("components = %v, want %v", got, want)
	}
}
