package conan

import (
	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/core/deps/fingerprints"
)

// Transcribe maps every requirement of m to a direct component. Name,
// version, user/channel and revision are carried into the component and
// its pkg:conan Package URL; the requirement kind is preserved so build
// tools stay distinguishable from linked libraries.
func Transcribe(m *deps.Manifest) []deps.Component {
	if m == nil {
		return nil
	}
	out := make([]deps.Component, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		c := componentFromRef(r.Ref, r.Kind.OrRuntime(), deps.SourceConan)
		c.IsDirect = true
		out = append(out, c)
	}
	return out
}

func componentFromRef(ref deps.Reference, kind deps.RequirementKind, source string) deps.Component {
	c := deps.Component{
		Name:            ref.Name,
		Version:         ref.Version,
		PURL:            deps.ConanPURL(ref),
		Revision:        ref.Revision,
		Kind:            kind,
		DetectionSource: source,
	}
	if ref.HasProvenance() {
		c.Channel = ref.ChannelString()
	}
	if lib := fingerprints.Default().Find(ref.Name); lib != nil {
		c.Description = lib.Description
	}
	return c
}
