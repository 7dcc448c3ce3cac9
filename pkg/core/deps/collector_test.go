package deps

import (
	"testing"

	"github.com/matzehuels/cppsbom/pkg/core/deps/fingerprints"
)

func TestCollector(t *testing.T) {
	c := NewCollector(SourceCMake)

	zlib := fingerprints.Default().Find("zlib")
	if zlib == nil {
		t.Fatal("zlib missing from fingerprint database")
	}

	first := c.Add(zlib)
	SetVersion(first, "1.3")
	SetVersion(c.Add(zlib), "1.2.11")
	c.AddNamed("zlib").AddIncludePath("/opt/zlib/include")
	c.AddNamed("acme-widgets")

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}

	cs := c.Components()
	if cs[0].Name != "acme-widgets" || cs[1].Name != "zlib" {
		t.Fatalf("order = %s, %s", cs[0].Name, cs[1].Name)
	}
	if cs[0].PURL != "pkg:generic/acme-widgets" || cs[0].Version != UnknownVersion {
		t.Errorf("generic component = %+v", cs[0])
	}
	if cs[1].Version != "1.3" {
		t.Errorf("zlib version = %q, want first known version 1.3", cs[1].Version)
	}
	if cs[1].PURL != "pkg:conan/zlib@1.3" {
		t.Errorf("zlib PURL = %q", cs[1].PURL)
	}
	if len(cs[1].IncludePaths) != 1 {
		t.Errorf("zlib include paths = %v", cs[1].IncludePaths)
	}
	if cs[1].DetectionSource != SourceCMake {
		t.Errorf("DetectionSource = %q", cs[1].DetectionSource)
	}
	if _, ok := c.Get("zlib"); !ok {
		t.Error("Get(zlib) not found")
	}
}

func TestMatchLibrary(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"libssl.so.3", "openssl"},
		{"/usr/lib/libcrypto.a", "openssl"},
		{"libboost_system-vc143-mt-x64-1_82.lib", "boost"},
		{"-lfmt", "fmt"},
		{"libmyproject.so", ""},
	}
	for _, tt := range tests {
		got := ""
		if lib := MatchLibrary(tt.in); lib != nil {
			got = lib.Name
		}
		if got != tt.want {
			t.Errorf("MatchLibrary(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
