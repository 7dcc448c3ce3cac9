package cmake

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
)

const cmakeLists = `cmake_minimum_required(VERSION 3.20)
project(demo VERSION 0.1.0 LANGUAGES CXX)

find_package(Threads REQUIRED)
find_package(Boost 1.82 REQUIRED COMPONENTS system)
find_package(OpenSSL REQUIRED)
find_package(AcmeWidgets CONFIG)
# find_package(Commented)

include(FetchContent)
FetchContent_Declare(
  googletest
  GIT_REPOSITORY https://github.com/google/googletest.git
  GIT_TAG        v1.14.0
)
FetchContent_Declare(json
  URL https://github.com/nlohmann/json/releases/download/v3.11.3/json.tar.xz
)

add_executable(demo main.cpp)
target_link_libraries(demo PRIVATE Boost::system OpenSSL::SSL fmt::fmt Threads::Threads)
`

func byName(cs []deps.Component) map[string]deps.Component {
	m := make(map[string]deps.Component, len(cs))
	for _, c := range cs {
		m[c.Name] = c
	}
	return m
}

func TestParseLists(t *testing.T) {
	cs, direct := ParseLists(cmakeLists)
	got := byName(cs)

	tests := []struct {
		name, version string
	}{
		{"boost", "1.82"},
		{"openssl", deps.UnknownVersion},
		{"acmewidgets", deps.UnknownVersion},
		{"googletest", "1.14.0"},
		{"json", "3.11.3"},
		{"fmt", deps.UnknownVersion},
	}
	for _, tt := range tests {
		c, ok := got[tt.name]
		if !ok {
			t.Errorf("component %s missing (got %v)", tt.name, cs)
			continue
		}
		if c.Version != tt.version {
			t.Errorf("%s version = %q, want %q", tt.name, c.Version, tt.version)
		}
	}
	if _, ok := got["threads"]; ok {
		t.Error("built-in Threads reported")
	}
	if _, ok := got["commented"]; ok {
		t.Error("commented find_package reported")
	}
	if got["acmewidgets"].PURL != "pkg:generic/acmewidgets" {
		t.Errorf("generic PURL = %q", got["acmewidgets"].PURL)
	}

	wantDirect := []string{"boost", "openssl", "acmewidgets", "googletest", "json"}
	if !reflect.DeepEqual(direct, wantDirect) {
		t.Errorf("direct = %v, want %v", direct, wantDirect)
	}
}

func TestParseCache(t *testing.T) {
	root := t.TempDir()
	cache := `# This is the CMakeCache file.
CMAKE_CACHEFILE_DIR:INTERNAL=` + root + `/build
CMAKE_CXX_COMPILER_VERSION:INTERNAL=13.2.0
Boost_DIR:PATH=/opt/boost_1_82_0/lib/cmake/Boost-1.82.0
OpenSSL_INCLUDE_DIR:PATH=/usr/include
OPENSSL_CRYPTO_LIBRARY:FILEPATH=/usr/lib/x86_64-linux-gnu/libcrypto.so
OPENSSL_VERSION:STRING=3.0.2
ZLIB_INCLUDE_DIR:PATH=ZLIB_INCLUDE_DIR-NOTFOUND
Local_DIR:PATH=` + root + `/third_party/local
`
	got := byName(ParseCache([]byte(cache), root))

	boost, ok := got["boost"]
	if !ok {
		t.Fatalf("boost missing: %v", got)
	}
	if boost.Version != "1.82.0" {
		t.Errorf("boost version = %q", boost.Version)
	}
	openssl := got["openssl"]
	if openssl.Version != "3.0.2" {
		t.Errorf("openssl version = %q", openssl.Version)
	}
	if !reflect.DeepEqual(openssl.LinkLibraries, []string{"libcrypto.so"}) {
		t.Errorf("openssl libs = %v", openssl.LinkLibraries)
	}
	if _, ok := got["zlib"]; ok {
		t.Error("NOTFOUND entry reported")
	}
	if len(got) != 2 {
		t.Errorf("got %d components, want 2: %v", len(got), got)
	}
}

func TestIsBuiltin(t *testing.T) {
	for _, name := range []string{"Threads", "PkgConfig", "CTest", "FetchContent"} {
		if !IsBuiltin(name) {
			t.Errorf("IsBuiltin(%q) = false", name)
		}
	}
	if IsBuiltin("Boost") {
		t.Error("IsBuiltin(Boost) = true")
	}
}

func TestTagVersion(t *testing.T) {
	tests := map[string]string{
		"v1.14.0":        "1.14.0",
		"release-1.12.1": "1.12.1",
		"main":           "",
		"e2239ee6043f73722e7aa812a459f54a28552929": "",
		`"10.1.1"`: "10.1.1",
	}
	for in, want := range tests {
		if got := tagVersion(in); got != want {
			t.Errorf("tagVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStrategyDetect(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("CMakeLists.txt", "find_package(ZLIB REQUIRED)\nadd_subdirectory(lib)\n")
	write("lib/CMakeLists.txt", "find_package(fmt CONFIG REQUIRED)\n")
	write("cmake-build-release/CMakeCache.txt", "ZLIB_VERSION_STRING:STRING=1.3\nZLIB_INCLUDE_DIR:PATH=/usr/local/include\n")

	if got := CacheFiles(root); len(got) != 1 {
		t.Fatalf("CacheFiles = %v", got)
	}

	det, err := Strategy{}.Detect(context.Background(), root, deps.Options{})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	got := byName(det.Components)
	if got["zlib"].Version != "1.3" {
		t.Errorf("zlib version = %q, want 1.3 from cache", got["zlib"].Version)
	}
	if _, ok := got["fmt"]; !ok {
		t.Error("nested CMakeLists.txt not scanned")
	}
	if len(det.Direct) != 2 {
		t.Errorf("Direct = %v", det.Direct)
	}
}
