package deps

import (
	"regexp"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/errors"
)

// Reference is a Conan-style package reference:
//
//	name/version[@user[/channel]][#revision]
//
// The version may be a bracketed range such as "[>=1.2 <2]"; references are
// never resolved, so ranges are carried verbatim.
type Reference struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	User     string `json:"user,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Revision string `json:"revision,omitempty"`
}

var revisionRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// ParseReference parses a reference string. All failures carry
// [errors.ErrCodeInvalidReference].
func ParseReference(s string) (Reference, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Reference{}, errors.New(errors.ErrCodeInvalidReference, "empty reference")
	}

	var ref Reference
	rest := raw
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		ref.Revision = rest[i+1:]
		rest = rest[:i]
		if !revisionRegex.MatchString(ref.Revision) {
			return Reference{}, errors.New(errors.ErrCodeInvalidReference, "invalid revision in %q", raw)
		}
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		userChannel := rest[i+1:]
		rest = rest[:i]
		ref.User, ref.Channel, _ = strings.Cut(userChannel, "/")
	}

	name, version, ok := strings.Cut(rest, "/")
	if !ok || version == "" {
		return Reference{}, errors.New(errors.ErrCodeInvalidReference, "missing version in %q", raw)
	}
	if name == "" {
		return Reference{}, errors.New(errors.ErrCodeInvalidReference, "empty name in %q", raw)
	}
	ref.Name, ref.Version = name, version

	if err := ref.validateFields(); err != nil {
		return Reference{}, errors.Wrap(errors.ErrCodeInvalidReference, err, "parse %q", raw)
	}
	return ref, nil
}

// MustParseReference is like ParseReference but panics on error.
// It is intended for tests and static tables.
func MustParseReference(s string) Reference {
	ref, err := ParseReference(s)
	if err != nil {
		panic(err)
	}
	return ref
}

func (r Reference) validateFields() error {
	if err := errors.ValidateConanField("name", r.Name); err != nil {
		return err
	}
	if !isVersionRange(r.Version) {
		if err := errors.ValidateConanField("version", r.Version); err != nil {
			return err
		}
	}
	if r.User != "" {
		if err := errors.ValidateConanField("user", r.User); err != nil {
			return err
		}
	}
	if r.Channel != "" {
		if err := errors.ValidateConanField("channel", r.Channel); err != nil {
			return err
		}
	}
	return nil
}

func isVersionRange(v string) bool {
	return len(v) >= 2 && v[0] == '[' && v[len(v)-1] == ']'
}

// Validate checks the only invariants a declaration guarantees: the name is
// non-empty and a version string is present.
func (r Reference) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New(errors.ErrCodeInvalidReference, "reference name is empty")
	}
	if strings.TrimSpace(r.Version) == "" {
		return errors.New(errors.ErrCodeInvalidReference, "reference %s has no version", r.Name)
	}
	return nil
}

// String returns the canonical Conan form of the reference.
func (r Reference) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteByte('/')
	b.WriteString(r.Version)
	if cs := r.ChannelString(); cs != "" {
		b.WriteByte('@')
		b.WriteString(cs)
	}
	if r.Revision != "" {
		b.WriteByte('#')
		b.WriteString(r.Revision)
	}
	return b.String()
}

// ChannelString returns "user/channel", just "user" when no channel is set,
// or "" when neither is.
func (r Reference) ChannelString() string {
	switch {
	case r.User == "" && r.Channel == "":
		return ""
	case r.Channel == "":
		return r.User
	default:
		return r.User + "/" + r.Channel
	}
}

// HasProvenance reports whether the reference names a real user/channel.
// Conan's "_/_" placeholder does not count.
func (r Reference) HasProvenance() bool {
	return IsProvenanceChannel(r.ChannelString())
}

// IsProvenanceChannel reports whether a "user/channel" string carries
// provenance, i.e. is neither empty nor the "_" placeholder.
func IsProvenanceChannel(cs string) bool {
	return cs != "" && cs != "_" && cs != "_/_"
}
