package deps

import (
	"github.com/package-url/packageurl-go"
)

// ConanPURL builds the Package URL of a Conan reference. User, channel and
// revision become the Package URL "user", "channel" and "rrev" qualifiers;
// the "_" placeholder and empty fields are omitted.
func ConanPURL(ref Reference) string {
	// qualifiers are appended in key order
	var q packageurl.Qualifiers
	provenance := ref.HasProvenance()
	if provenance && ref.Channel != "" && ref.Channel != "_" {
		q = append(q, packageurl.Qualifier{Key: "channel", Value: ref.Channel})
	}
	if ref.Revision != "" {
		q = append(q, packageurl.Qualifier{Key: "rrev", Value: ref.Revision})
	}
	if provenance && ref.User != "_" {
		q = append(q, packageurl.Qualifier{Key: "user", Value: ref.User})
	}
	return packageurl.NewPackageURL("conan", "", ref.Name, ref.Version, q, "").ToString()
}

// GenericPURL returns "pkg:generic/<name>" for libraries without a known
// ecosystem.
func GenericPURL(name string) string {
	return packageurl.NewPackageURL("generic", "", name, "", nil, "").ToString()
}

// PURLWithVersion sets the version of a versionless base purl such as
// "pkg:conan/zlib". Unknown versions leave the base untouched; a base that
// does not parse falls back to "<base>@<version>".
func PURLWithVersion(base, version string) string {
	if version == "" || version == UnknownVersion {
		return base
	}
	p, err := packageurl.FromString(base)
	if err != nil {
		return base + "@" + version
	}
	p.Version = version
	return p.ToString()
}
