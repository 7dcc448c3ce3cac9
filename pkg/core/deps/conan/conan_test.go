package conan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/errors"
)

func nolog(string, ...any) {}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return data
}

func byName(cs []deps.Component) map[string]deps.Component {
	m := make(map[string]deps.Component, len(cs))
	for _, c := range cs {
		m[c.Name] = c
	}
	return m
}

func TestParseConanfilePy(t *testing.T) {
	m := ParseConanfilePy(readFixture(t, "conanfile.py"), nolog)

	if m.Name != "myproject" || m.Version != "1.0.0" {
		t.Errorf("identity = %s/%s, want myproject/1.0.0", m.Name, m.Version)
	}

	want := []struct {
		ref  string
		kind deps.RequirementKind
	}{
		{"cmake-conan/0.17.0@conan/stable", deps.KindPython},
		{"fmt/10.1.1", deps.KindRuntime},
		{"spdlog/1.12.0", deps.KindRuntime},
		{"openssl/3.1.4@conan/stable#deadbeef1234", deps.KindRuntime},
		{"zlib/1.2.13", deps.KindRuntime},
		{"cmake/3.25.0", deps.KindBuild},
	}
	if len(m.Requirements) != len(want) {
		t.Fatalf("got %d requirements, want %d: %+v", len(m.Requirements), len(want), m.Requirements)
	}
	for i, w := range want {
		got := m.Requirements[i]
		if got.Ref.String() != w.ref {
			t.Errorf("requirement[%d] = %s, want %s", i, got.Ref, w.ref)
		}
		if got.Kind != w.kind {
			t.Errorf("requirement[%d] kind = %s, want %s", i, got.Kind, w.kind)
		}
	}
}

func TestParseConanfilePyForms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "single string",
			src:  `    requires = "zlib/1.3"`,
			want: []string{"zlib/1.3"},
		},
		{
			name: "bare tuple",
			src:  `    requires = "zlib/1.3", "bzip2/1.0.8"`,
			want: []string{"zlib/1.3", "bzip2/1.0.8"},
		},
		{
			name: "multiline tuple",
			src:  "    requires = (\n        'zlib/1.3',\n        'bzip2/1.0.8',\n    )",
			want: []string{"zlib/1.3", "bzip2/1.0.8"},
		},
		{
			name: "tool_requires call",
			src:  "    def build_requirements(self):\n        self.tool_requires(\"ninja/1.11.1\")",
			want: []string{"ninja/1.11.1"},
		},
		{
			name: "commented out",
			src:  "    # requires = [\"zlib/1.3\"]\n    requires = [\"bzip2/1.0.8\"]",
			want: []string{"bzip2/1.0.8"},
		},
		{
			name: "duplicate collapsed",
			src:  "    requires = [\"zlib/1.3\"]\n    def requirements(self):\n        self.requires(\"zlib/1.2.13\")",
			want: []string{"zlib/1.3"},
		},
		{
			name: "malformed skipped",
			src:  "    requires = [\"zlib\", \"fmt/10.1.1\"]",
			want: []string{"fmt/10.1.1"},
		},
		{
			name: "no requirements",
			src:  "class Empty(ConanFile):\n    name = \"empty\"",
			want: nil,
		},
		{
			name: "version range in list",
			src:  "    requires = [\"fmt/[>=10 <11]\", \"zlib/1.2.13\"]",
			want: []string{"fmt/[>=10 <11]", "zlib/1.2.13"},
		},
		{
			name: "range in multiline tuple",
			src:  "    requires = (\n        \"openssl/[~3.1]\",\n        \"zlib/1.2.13\",\n    )",
			want: []string{"openssl/[~3.1]", "zlib/1.2.13"},
		},
		{
			name: "trailing comment in list",
			src:  "    requires = [\"fmt/10.1.1\",  # replaced \"boost/1.80.0\"\n        \"zlib/1.2.13\"]",
			want: []string{"fmt/10.1.1", "zlib/1.2.13"},
		},
		{
			name: "trailing comment after call",
			src:  "    def requirements(self):\n        self.requires(\"zlib/1.2.13\")  # self.requires(\"bzip2/1.0.8\")",
			want: []string{"zlib/1.2.13"},
		},
		{
			name: "revision kept",
			src:  "    requires = \"openssl/3.1.4@conan/stable#deadbeef1234\"  # pinned",
			want: []string{"openssl/3.1.4@conan/stable#deadbeef1234"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ParseConanfilePy([]byte(tt.src), nolog)
			var got []string
			for _, r := range m.Requirements {
				got = append(got, r.Ref.String())
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("requirements = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseConanfileTxt(t *testing.T) {
	var logged []string
	logf := func(format string, args ...any) { logged = append(logged, format) }

	m, err := ParseConanfileTxt(readFixture(t, "conanfile.txt"), logf)
	if err != nil {
		t.Fatalf("ParseConanfileTxt: %v", err)
	}

	want := map[string]deps.RequirementKind{
		"boost":         deps.KindRuntime,
		"nlohmann_json": deps.KindRuntime,
		"libcurl":       deps.KindRuntime,
		"cmake":         deps.KindBuild,
		"ninja":         deps.KindBuild,
	}
	if len(m.Requirements) != len(want) {
		t.Fatalf("got %d requirements, want %d", len(m.Requirements), len(want))
	}
	for _, r := range m.Requirements {
		if want[r.Ref.Name] != r.Kind {
			t.Errorf("%s kind = %s, want %s", r.Ref.Name, r.Kind, want[r.Ref.Name])
		}
	}
	if len(logged) != 0 {
		t.Errorf("unexpected warnings: %v", logged)
	}
	if got := len(m.BuildOnly()); got != 2 {
		t.Errorf("BuildOnly() = %d, want 2", got)
	}
}

func TestParseConanfileTxtInvalid(t *testing.T) {
	var logged int
	m, err := ParseConanfileTxt([]byte("[requires]\nzlib\n/1.0\nfmt/10.1.1\n"), func(string, ...any) { logged++ })
	if err != nil {
		t.Fatalf("ParseConanfileTxt: %v", err)
	}
	if len(m.Requirements) != 1 || m.Requirements[0].Ref.Name != "fmt" {
		t.Errorf("requirements = %+v, want only fmt", m.Requirements)
	}
	if logged != 2 {
		t.Errorf("logged %d warnings, want 2", logged)
	}
}

func TestParseConanfileTxtRanges(t *testing.T) {
	src := "[requires]\nfmt/[>=10.0 <11]\nzlib/[~1.2]  # compression\nopenssl/3.1.4#deadbeef1234 # pinned\n"
	var logged []string
	m, err := ParseConanfileTxt([]byte(src), func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	})
	if err != nil {
		t.Fatalf("ParseConanfileTxt: %v", err)
	}

	var got []string
	for _, r := range m.Requirements {
		got = append(got, r.Ref.String())
	}
	want := []string{"fmt/[>=10.0 <11]", "zlib/[~1.2]", "openssl/3.1.4#deadbeef1234"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("requirements = %v, want %v", got, want)
	}
	if len(logged) != 0 {
		t.Errorf("unexpected warnings: %v", logged)
	}
}

func TestTranscribe(t *testing.T) {
	m := ParseConanfilePy(readFixture(t, "conanfile.py"), nolog)
	got := byName(Transcribe(m))

	tests := []struct {
		name     string
		version  string
		purl     string
		channel  string
		revision string
		scope    string
	}{
		{"openssl", "3.1.4", "pkg:conan/openssl@3.1.4?channel=stable&rrev=deadbeef1234&user=conan", "conan/stable", "deadbeef1234", "required"},
		{"fmt", "10.1.1", "pkg:conan/fmt@10.1.1", "", "", "required"},
		{"spdlog", "1.12.0", "pkg:conan/spdlog@1.12.0", "", "", "required"},
		{"zlib", "1.2.13", "pkg:conan/zlib@1.2.13", "", "", "required"},
		{"cmake", "3.25.0", "pkg:conan/cmake@3.25.0", "", "", "excluded"},
		{"cmake-conan", "0.17.0", "pkg:conan/cmake-conan@0.17.0?channel=stable&user=conan", "conan/stable", "", "excluded"},
	}
	if len(got) != len(tests) {
		t.Fatalf("got %d components, want %d", len(got), len(tests))
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := got[tt.name]
			if !ok {
				t.Fatalf("component %s missing", tt.name)
			}
			if c.Version != tt.version {
				t.Errorf("Version = %q, want %q", c.Version, tt.version)
			}
			if c.PURL != tt.purl {
				t.Errorf("PURL = %q, want %q", c.PURL, tt.purl)
			}
			if c.Channel != tt.channel {
				t.Errorf("Channel = %q, want %q", c.Channel, tt.channel)
			}
			if c.Revision != tt.revision {
				t.Errorf("Revision = %q, want %q", c.Revision, tt.revision)
			}
			if c.Scope() != tt.scope {
				t.Errorf("Scope() = %q, want %q", c.Scope(), tt.scope)
			}
			if !c.IsDirect {
				t.Error("IsDirect = false, want true")
			}
			if c.DetectionSource != deps.SourceConan {
				t.Errorf("DetectionSource = %q, want %q", c.DetectionSource, deps.SourceConan)
			}
		})
	}
}

func TestTranscribePlaceholderChannel(t *testing.T) {
	m := &deps.Manifest{Requirements: []deps.Requirement{
		{Ref: deps.MustParseReference("libcurl/8.4.0@_/_")},
	}}
	cs := Transcribe(m)
	if len(cs) != 1 {
		t.Fatalf("got %d components, want 1", len(cs))
	}
	if cs[0].PURL != "pkg:conan/libcurl@8.4.0" {
		t.Errorf("PURL = %q", cs[0].PURL)
	}
	if cs[0].Channel != "" {
		t.Errorf("Channel = %q, want empty", cs[0].Channel)
	}
	if cs[0].Kind != deps.KindRuntime {
		t.Errorf("Kind = %q, want runtime", cs[0].Kind)
	}
	if Transcribe(nil) != nil {
		t.Error("Transcribe(nil) should be nil")
	}
}

func TestParseLockV1(t *testing.T) {
	result, err := ParseLock(readFixture(t, "conan-v1.lock"), nolog)
	if err != nil {
		t.Fatalf("ParseLock: %v", err)
	}
	if !result.IncludesTransitive {
		t.Error("IncludesTransitive = false")
	}

	got := byName(result.Components)
	if len(got) != 5 {
		t.Fatalf("got %d components, want 5", len(got))
	}

	openssl := got["openssl"]
	if !openssl.IsDirect {
		t.Error("openssl should be direct")
	}
	if !reflect.DeepEqual(openssl.Dependencies, []string{"zlib", "nasm"}) {
		t.Errorf("openssl deps = %v, want [zlib nasm]", openssl.Dependencies)
	}
	if nasm := got["nasm"]; nasm.IsDirect || nasm.Kind != deps.KindBuild {
		t.Errorf("nasm = %+v, want transitive build", nasm)
	}

	tree := deps.BuildTree(result.Components)
	for _, lvl := range tree.Levels {
		for _, c := range lvl.Components {
			if c.Name == "nasm" && lvl.Depth != 1 {
				t.Errorf("nasm at level %d (%s), want 1", lvl.Depth, lvl.Label)
			}
		}
	}
	if openssl.PURL != "pkg:conan/openssl@3.1.4?channel=stable&rrev=deadbeef1234&user=conan" {
		t.Errorf("openssl PURL = %q", openssl.PURL)
	}
	if got["zlib"].IsDirect {
		t.Error("zlib should be transitive")
	}
	if got["zlib"].Kind != deps.KindRuntime {
		t.Errorf("zlib kind = %s, want runtime", got["zlib"].Kind)
	}
	if got["cmake"].Kind != deps.KindBuild || !got["cmake"].IsDirect {
		t.Errorf("cmake = %+v, want direct build", got["cmake"])
	}
	if got["fmt"].Revision != "" {
		t.Errorf("fmt revision = %q, want empty", got["fmt"].Revision)
	}

	var direct []string
	for _, r := range result.Manifest.Requirements {
		direct = append(direct, r.Ref.Name)
	}
	if !reflect.DeepEqual(direct, []string{"openssl", "fmt", "cmake"}) {
		t.Errorf("direct = %v", direct)
	}
}

func TestParseLockV2(t *testing.T) {
	result, err := ParseLock(readFixture(t, "conan-v2.lock"), nolog)
	if err != nil {
		t.Fatalf("ParseLock: %v", err)
	}
	got := byName(result.Components)
	if len(got) != 5 {
		t.Fatalf("got %d components, want 5", len(got))
	}
	if r := got["zlib"].Revision; r != "b3b71bfe8dd07abc7b82ff2bd0eac021" {
		t.Errorf("zlib revision = %q, timestamp not stripped", r)
	}
	if got["cmake"].Kind != deps.KindBuild {
		t.Errorf("cmake kind = %s", got["cmake"].Kind)
	}
	if got["cmake-conan"].Kind != deps.KindPython {
		t.Errorf("cmake-conan kind = %s", got["cmake-conan"].Kind)
	}
	for _, c := range result.Components {
		if strings.Contains(c.PURL, "%") {
			t.Errorf("%s PURL %q carries a timestamp", c.Name, c.PURL)
		}
	}
}

func TestParseLockMalformed(t *testing.T) {
	if _, err := ParseLock([]byte("{not json"), nolog); err == nil {
		t.Error("expected error for malformed lock")
	}
}

func TestParseGraph(t *testing.T) {
	result, err := ParseGraph(readFixture(t, "graph.json"), nolog)
	if err != nil {
		t.Fatalf("ParseGraph: %v", err)
	}
	if result.Manifest.Name != "myproject" {
		t.Errorf("root name = %q", result.Manifest.Name)
	}

	got := byName(result.Components)
	if len(got) != 3 {
		t.Fatalf("got %d components, want 3", len(got))
	}

	openssl := got["openssl"]
	if !openssl.IsDirect || openssl.License != "Apache-2.0" || openssl.Homepage == "" {
		t.Errorf("openssl = %+v", openssl)
	}
	if openssl.Description != "A toolkit for the TLS and SSL protocols" {
		t.Errorf("openssl description = %q", openssl.Description)
	}
	if openssl.DetectionSource != deps.SourceConanGraph {
		t.Errorf("DetectionSource = %q", openssl.DetectionSource)
	}
	if !reflect.DeepEqual(openssl.Dependencies, []string{"zlib"}) {
		t.Errorf("openssl deps = %v", openssl.Dependencies)
	}

	zlib := got["zlib"]
	if zlib.IsDirect {
		t.Error("zlib should be transitive")
	}
	if zlib.License != "Zlib" {
		t.Errorf("zlib license = %q", zlib.License)
	}
	if zlib.Revision != "e377bee636333ae348d51ca90874e353" {
		t.Errorf("zlib revision = %q", zlib.Revision)
	}

	cmake := got["cmake"]
	if cmake.Kind != deps.KindBuild || !cmake.IsDirect {
		t.Errorf("cmake = %+v, want direct build", cmake)
	}
	if len(cmake.Dependencies) != 0 {
		t.Errorf("build edges should be skipped, got %v", cmake.Dependencies)
	}
	if cmake.License != "BSD-3-Clause AND MIT" {
		t.Errorf("cmake license = %q", cmake.License)
	}
}

type fakeRunner struct {
	out  []byte
	err  error
	name string
	args []string
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New(errors.ErrCodeInternal, "no deadline")
	}
	f.name, f.args = name, args
	return f.out, f.err
}

func TestStrategyDetect(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "conanfile.py", readFixture(t, "conanfile.py"))
	writeFile(t, root, "sub/conan.lock", readFixture(t, "conan-v1.lock"))
	writeFile(t, root, ".hidden/conanfile.txt", readFixture(t, "conanfile.txt"))

	det, err := Strategy{}.Detect(context.Background(), root, deps.Options{})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if det.RootName != "myproject" || det.RootVersion != "1.0.0" {
		t.Errorf("root = %s/%s", det.RootName, det.RootVersion)
	}
	for _, c := range det.Components {
		if c.Name == "boost" {
			t.Error("hidden directory was scanned")
		}
	}
	if !reflect.DeepEqual(det.Edges["openssl"], []string{"zlib", "nasm"}) {
		t.Errorf("edges = %v", det.Edges)
	}
	if len(det.Components) != 11 {
		t.Errorf("got %d components, want 11 (6 declared + 5 locked)", len(det.Components))
	}
}

func TestGraphStrategyExistingFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "build/graph.json", readFixture(t, "graph.json"))

	runner := &fakeRunner{}
	det, err := GraphStrategy{}.Detect(context.Background(), root, deps.Options{ConanGraph: true, Runner: runner})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if runner.name != "" {
		t.Error("docker should not run when a graph file exists")
	}
	if len(det.Components) != 3 {
		t.Errorf("got %d components, want 3", len(det.Components))
	}
	if det.RootName != "myproject" {
		t.Errorf("RootName = %q", det.RootName)
	}
}

func TestGraphStrategyDocker(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "conanfile.txt", readFixture(t, "conanfile.txt"))

	runner := &fakeRunner{out: readFixture(t, "graph.json")}
	opts := deps.Options{ConanGraph: true, Runner: runner, DockerImage: "conan:test"}
	det, err := GraphStrategy{}.Detect(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if runner.name != "docker" {
		t.Fatalf("runner name = %q, want docker", runner.name)
	}
	joined := strings.Join(runner.args, " ")
	for _, want := range []string{"run --rm", ":/project:ro", "conan:test", "conan graph info . --format=json"} {
		if !strings.Contains(joined, want) {
			t.Errorf("docker args %q missing %q", joined, want)
		}
	}
	if len(det.Components) != 3 {
		t.Errorf("got %d components, want 3", len(det.Components))
	}
}

func TestGraphStrategyPassive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "conanfile.txt", readFixture(t, "conanfile.txt"))

	runner := &fakeRunner{}
	det, err := GraphStrategy{}.Detect(context.Background(), root, deps.Options{Runner: runner})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if runner.name != "" || !det.Empty() {
		t.Errorf("passive mode ran %q and found %d components", runner.name, len(det.Components))
	}
}

func TestGraphStrategyDockerFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "conanfile.py", readFixture(t, "conanfile.py"))

	runner := &fakeRunner{err: errors.New(errors.ErrCodeExternalTool, "docker not found")}
	_, err := GraphStrategy{}.Detect(context.Background(), root, deps.Options{ConanGraph: true, Runner: runner})
	if !errors.Is(err, errors.ErrCodeExternalTool) {
		t.Errorf("err = %v, want EXTERNAL_TOOL", err)
	}
}

func TestToDockerPath(t *testing.T) {
	tests := []struct {
		path, goos, want string
	}{
		{`C:\src\app`, "windows", "/c/src/app"},
		{"/home/me/app", "linux", "/home/me/app"},
		{"/home/me/app", "windows", "/home/me/app"},
	}
	for _, tt := range tests {
		if got := toDockerPath(tt.path, tt.goos); got != tt.want {
			t.Errorf("toDockerPath(%q, %q) = %q, want %q", tt.path, tt.goos, got, tt.want)
		}
	}
}

func TestStrategyManifests(t *testing.T) {
	infos := deps.KnownManifests([]deps.Strategy{Strategy{}, GraphStrategy{}})
	if len(infos) != 6 {
		t.Fatalf("got %d manifests, want 6", len(infos))
	}
	if infos[0].Strategy != deps.SourceConan {
		t.Errorf("first strategy = %q", infos[0].Strategy)
	}
}

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}
