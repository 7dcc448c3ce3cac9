package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/matzehuels/cppsbom/pkg/cache"
	"github.com/matzehuels/cppsbom/pkg/core/deps"
	"github.com/matzehuels/cppsbom/pkg/core/deps/conan"
	"github.com/matzehuels/cppsbom/pkg/errors"
	"github.com/matzehuels/cppsbom/pkg/scanner"
)

// Manifest kinds accepted by [Runner.Transcribe].
const (
	ManifestPy  = "py"
	ManifestTxt = "txt"
)

// ManifestKind infers the manifest kind from a file name.
func ManifestKind(name string) (string, error) {
	switch strings.ToLower(filepath.Base(name)) {
	case "conanfile.py":
		return ManifestPy, nil
	case "conanfile.txt":
		return ManifestTxt, nil
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".py":
		return ManifestPy, nil
	case ".txt":
		return ManifestTxt, nil
	}
	return "", errors.New(errors.ErrCodeInvalidManifest, "%s: not a conanfile.py or conanfile.txt", name)
}

// TranscribeManifest parses a single Conan manifest and returns its
// requirements as a scan result of direct components. Malformed
// references are reported through logf and skipped.
func TranscribeManifest(kind string, data []byte, logf func(string, ...any)) (*scanner.Result, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	var (
		m   *deps.Manifest
		err error
	)
	switch kind {
	case ManifestPy:
		m = conan.ParseConanfilePy(data, logf)
	case ManifestTxt:
		m, err = conan.ParseConanfileTxt(data, logf)
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid manifest type: %q (must be %s or %s)", kind, ManifestPy, ManifestTxt)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse conanfile.%s", kind)
	}

	res := &scanner.Result{
		RootName:          m.Name,
		RootVersion:       m.Version,
		Components:        conan.Transcribe(m),
		StrategiesUsed:    []string{deps.SourceConan},
		StrategiesSkipped: []string{},
	}
	res.BuildTree()
	return res, nil
}

// Transcribe is [TranscribeManifest] behind the runner's cache, keyed by
// the manifest content.
func (r *Runner) Transcribe(ctx context.Context, kind string, data []byte) (*scanner.Result, error) {
	key := r.Keyer.TranscribeKey(kind, data)
	if cached, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
		var res scanner.Result
		if err := json.Unmarshal(cached, &res); err == nil {
			res.BuildTree()
			return &res, nil
		}
	}

	res, err := TranscribeManifest(kind, data, r.Logger.Warnf)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(res); err == nil {
		if err := r.Cache.Set(ctx, key, data, cache.DefaultTTL); err != nil {
			r.Logger.Warn("cache write failed", "err", err)
		}
	}
	return res, nil
}
