package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/cppsbom/pkg/errors"
	"github.com/matzehuels/cppsbom/pkg/pipeline"
	"github.com/matzehuels/cppsbom/pkg/store"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	app := filepath.Join(root, "app")
	require.NoError(t, os.MkdirAll(app, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(app, "conanfile.txt"),
		[]byte("[requires]\nzlib/1.3\nopenssl/3.1.4\n\n[tool_requires]\ncmake/3.27.1\n"), 0o644))

	logger := log.New(io.Discard)
	srv := New(pipeline.NewRunner(nil, nil, logger), store.NewMemoryStore(), Options{
		Root: root,
		Scan: pipeline.Options{Strategies: []string{"conan"}},
	}, logger)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, root
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))

	body := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
	assert.Equal(t, "cppsbom", body["name"])
}

func TestScanLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/scans", ScanRequest{Dir: "app"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[ScanResponse](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "app", created.Project)
	assert.Equal(t, 3, created.Components)
	assert.Equal(t, []string{"conan"}, created.StrategiesUsed)

	resp, err := http.Get(ts.URL + "/v1/scans/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decode[map[string]any](t, resp)
	assert.Equal(t, "CycloneDX", doc["bomFormat"])
	assert.Equal(t, "1.4", doc["specVersion"])

	resp = postJSON(t, ts.URL+"/v1/scans", ScanRequest{Dir: "app", Format: "tree"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	second := decode[ScanResponse](t, resp)

	resp, err = http.Get(ts.URL + "/v1/scans")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]Summary](t, resp)
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{created.ID, second.ID}, ids)

	resp, err = http.Get(ts.URL + "/v1/scans?limit=1")
	require.NoError(t, err)
	assert.Len(t, decode[[]Summary](t, resp), 1)
}

func TestScanErrors(t *testing.T) {
	ts, root := newTestServer(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   errors.Code
	}{
		{"traversal", ScanRequest{Dir: "../outside"}, http.StatusBadRequest, errors.ErrCodeInvalidPath},
		{"absolute", ScanRequest{Dir: filepath.Join(root, "app")}, http.StatusBadRequest, errors.ErrCodeInvalidPath},
		{"unarchivable format", ScanRequest{Dir: "app", Format: "dot"}, http.StatusBadRequest, errors.ErrCodeInvalidFormat},
		{"unknown strategy", ScanRequest{Dir: "app", Strategies: []string{"gradle"}}, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"missing dir", ScanRequest{Dir: "nope"}, http.StatusNotFound, errors.ErrCodeFileNotFound},
		{"malformed body", "not an object", http.StatusBadRequest, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/v1/scans", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode[errorBody](t, resp)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestGetUnknownScan(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/scans/does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errors.ErrCodeNotFound, decode[errorBody](t, resp).Code)

	resp, err = http.Get(ts.URL + "/v1/scans?limit=many")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestTranscribe(t *testing.T) {
	ts, _ := newTestServer(t)

	py := `from conan import ConanFile

class Pkg(ConanFile):
    name = "app"
    version = "1.0"
    requires = "fmt/10.2.1", "openssl/3.1.4@acme/stable"
    tool_requires = "cmake/3.27.1"
`
	resp, err := http.Post(ts.URL+"/v1/transcribe?type=py", "text/plain", strings.NewReader(py))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `"purl": "pkg:conan/fmt@10.2.1"`)
	assert.Contains(t, out, `"purl": "pkg:conan/openssl@3.1.4?channel=stable&user=acme"`)
	assert.Contains(t, out, `"scope": "excluded"`)
	assert.Contains(t, out, `"name": "app"`)

	resp, err = http.Post(ts.URL+"/v1/transcribe?type=xml", "text/plain", strings.NewReader(py))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errors.ErrCodeInvalidInput, decode[errorBody](t, resp).Code)
}

func TestTranscribeByFilename(t *testing.T) {
	ts, _ := newTestServer(t)

	txt := "[requires]\nzlib/1.3\n\n[tool_requires]\ncmake/3.27.1\n"
	resp, err := http.Post(ts.URL+"/v1/transcribe?filename=conanfile.txt", "text/plain", strings.NewReader(txt))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"purl": "pkg:conan/zlib@1.3"`)

	for _, name := range []string{"../conanfile.txt", ".conanfile.py", "CMakeLists.txt.in"} {
		resp, err := http.Post(ts.URL+"/v1/transcribe?filename="+name, "text/plain", strings.NewReader(txt))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
		assert.Equal(t, errors.ErrCodeInvalidManifest, decode[errorBody](t, resp).Code, name)
	}
}
