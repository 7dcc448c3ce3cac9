package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ScanKeyOpts holds everything that changes the outcome of a scan.
type ScanKeyOpts struct {
	// Fingerprint digests the paths, sizes and mtimes of the files the
	// strategies read. Any edit to a manifest changes it.
	Fingerprint string   `json:"fingerprint"`
	Strategies  []string `json:"strategies,omitempty"`
	ConanGraph  bool     `json:"conan_graph,omitempty"`
	CMake       bool     `json:"cmake_configure,omitempty"`
	Ldd         bool     `json:"ldd,omitempty"`

	// DockerImage is the image `conan graph info` runs in.
	DockerImage string `json:"docker_image,omitempty"`

	// LddResults stamps the ldd results file, which may live outside the
	// project: "<path>:<size>:<mtime>".
	LddResults string `json:"ldd_results,omitempty"`
}

// Keyer generates cache keys.
type Keyer interface {
	// ScanKey returns the key of a whole-project scan result.
	ScanKey(root string, opts ScanKeyOpts) string

	// TranscribeKey returns the key of a single manifest transcription.
	TranscribeKey(kind string, content []byte) string
}

// DefaultKeyer produces unscoped keys of the form "<type>:<sha256>".
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ScanKey implements Keyer.
func (DefaultKeyer) ScanKey(root string, opts ScanKeyOpts) string {
	return hashKey("scan", root, opts)
}

// TranscribeKey implements Keyer.
func (DefaultKeyer) TranscribeKey(kind string, content []byte) string {
	return hashKey("transcribe", kind, Hash(content))
}

// ScopedKeyer wraps a Keyer with a prefix so several consumers can share
// one backend without seeing each other's entries.
//
//	serverKeyer := NewScopedKeyer(NewDefaultKeyer(), "serve:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ScanKey generates a prefixed scan key.
func (k *ScopedKeyer) ScanKey(root string, opts ScanKeyOpts) string {
	return k.prefix + k.inner.ScanKey(root, opts)
}

// TranscribeKey generates a prefixed transcription key.
func (k *ScopedKeyer) TranscribeKey(kind string, content []byte) string {
	return k.prefix + k.inner.TranscribeKey(kind, content)
}

// hashKey returns "<prefix>:<sha256 of the JSON encoding of parts>".
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	return prefix + ":" + Hash(data)
}

// Hash returns the hex SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
