package fingerprints

import "testing"

func TestDefaultDatabaseLoads(t *testing.T) {
	db := Default()
	if len(db.Libraries) < 40 {
		t.Fatalf("Libraries = %d, want at least 40", len(db.Libraries))
	}
	for _, lib := range db.Libraries {
		if lib.Name == "" || lib.PURL == "" {
			t.Errorf("incomplete entry: %+v", lib)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/usr/include/boost", "boost"},
		{"C:/deps/boost_1_82_0/include", "boost"},
		{"openssl/ssl.h", "openssl"},
		{"libssl.so.3", "openssl"},
		{"/opt/libuv/include", "libuv"},
		{"uv.h", "libuv"},
		{"libpng16.a", "libpng"},
		{"nlohmann/json.hpp", "nlohmann-json"},
		{"fmt/core.h", "fmt"},
		{"spdlog", "spdlog"},
		{"Eigen/Dense", "eigen"},
		{"ZLIB", "zlib"},

		{"ultraviolet", ""},
		{"/home/me/project/include", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Match(tt.input)
			name := ""
			if got != nil {
				name = got.Name
			}
			if name != tt.want {
				t.Errorf("Match(%q) = %q, want %q", tt.input, name, tt.want)
			}
		})
	}
}

func TestIsStdlibHeader(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"vector", true},
		{"stdio.h", true},
		{"sys/socket.h", true},
		{"windows.h", true},
		{" iostream ", true},
		{"fmt/core.h", false},
		{"zlib.h", false},
	}

	for _, tt := range tests {
		if got := IsStdlibHeader(tt.header); got != tt.want {
			t.Errorf("IsStdlibHeader(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestFind(t *testing.T) {
	if lib := Default().Find("OpenSSL"); lib == nil || lib.PURL != "pkg:conan/openssl" {
		t.Errorf("Find(OpenSSL) = %+v", lib)
	}
	if Default().Find("nope") != nil {
		t.Error("Find(nope) should be nil")
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	if _, err := Parse([]byte("[[library]\nname = ")); err == nil {
		t.Error("Parse should fail on malformed TOML")
	}
}

func TestParseCustomDatabase(t *testing.T) {
	db, err := Parse([]byte(`
[[library]]
name = "acme"
segments = ["acme"]
headers = ["acme/acme.h"]
purl = "pkg:generic/acme"

[stdlib]
c = ["stdio.h"]
`))
	if err != nil {
		t.Fatal(err)
	}
	if lib := db.Match("/opt/acme-2.0/include"); lib == nil || lib.Name != "acme" {
		t.Errorf("Match = %+v, want acme", lib)
	}
	if !db.IsStdlibHeader("stdio.h") || db.IsStdlibHeader("vector") {
		t.Error("custom stdlib set not honoured")
	}
}
