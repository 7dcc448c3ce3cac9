package server

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/cppsbom/pkg/buildinfo"
	"github.com/matzehuels/cppsbom/pkg/errors"
	"github.com/matzehuels/cppsbom/pkg/pipeline"
	"github.com/matzehuels/cppsbom/pkg/sbom"
	"github.com/matzehuels/cppsbom/pkg/store"
)

// ScanRequest is the body of POST /v1/scans.
type ScanRequest struct {
	Dir        string   `json:"dir"`
	Format     string   `json:"format,omitempty"`
	Strategies []string `json:"strategies,omitempty"`
	Refresh    bool     `json:"refresh,omitempty"`
}

// ScanResponse answers POST /v1/scans.
type ScanResponse struct {
	ID             string   `json:"id"`
	Project        string   `json:"project,omitempty"`
	Components     int      `json:"components"`
	StrategiesUsed []string `json:"strategiesUsed"`
	Cached         bool     `json:"cached"`
}

// Summary is one entry of GET /v1/scans.
type Summary struct {
	ID         string    `json:"id"`
	Project    string    `json:"project,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Components int       `json:"components"`
	Strategies []string  `json:"strategies"`
	Format     string    `json:"format"`
}

type errorBody struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// storedFormats are the formats a scan request may ask for; both are JSON
// documents that can be archived and served back verbatim.
var storedFormats = map[string]bool{
	sbom.FormatCycloneDX: true,
	sbom.FormatTree:      true,
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		buildinfo.Info
	}{Status: "ok", Info: buildinfo.Current()})
}

func (s *Server) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request body"))
		return
	}
	if req.Format == "" {
		req.Format = sbom.FormatCycloneDX
	}
	if !storedFormats[req.Format] {
		s.writeError(w, errors.New(errors.ErrCodeInvalidFormat, "format %q cannot be archived (use %s or %s)", req.Format, sbom.FormatCycloneDX, sbom.FormatTree))
		return
	}
	dir, err := errors.ValidateWithinRoot(s.opts.Root, req.Dir)
	if err != nil {
		s.writeError(w, err)
		return
	}

	opts := s.opts.Scan
	opts.Dir = dir
	opts.Format = req.Format
	opts.Refresh = req.Refresh
	if len(req.Strategies) > 0 {
		opts.Strategies = req.Strategies
	}

	result, err := s.runner.Execute(r.Context(), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rec := &store.Record{
		Project:        projectName(result, dir),
		ComponentCount: result.Stats.Components,
		Strategies:     result.Scan.StrategiesUsed,
		Format:         result.Format,
		Document:       result.Artifact,
	}
	if err := s.store.Save(r.Context(), rec); err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ScanResponse{
		ID:             rec.ID,
		Project:        rec.Project,
		Components:     rec.ComponentCount,
		StrategiesUsed: rec.Strategies,
		Cached:         result.CacheInfo.ScanHit,
	})
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "limit: invalid value %q", v))
			return
		}
		limit = n
	}

	records, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]Summary, 0, len(records))
	for _, rec := range records {
		out = append(out, Summary{
			ID:         rec.ID,
			Project:    rec.Project,
			CreatedAt:  rec.CreatedAt,
			Components: rec.ComponentCount,
			Strategies: rec.Strategies,
			Format:     rec.Format,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Document)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("type")
	if name := r.URL.Query().Get("filename"); kind == "" && name != "" {
		if err := errors.ValidateManifestFilename(name); err != nil {
			s.writeError(w, err)
			return
		}
		k, err := pipeline.ManifestKind(name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		kind = k
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxManifestBytes+1))
	if err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "read request body"))
		return
	}
	if len(data) > maxManifestBytes {
		s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "manifest exceeds %d bytes", maxManifestBytes))
		return
	}

	res, err := s.runner.Transcribe(r.Context(), kind, data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out, err := sbom.Render(r.Context(), res, sbom.FormatCycloneDX, s.opts.Scan.SBOM)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.cyclonedx+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorBody{Code: code, Message: errors.UserMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func projectName(result *pipeline.Result, dir string) string {
	if result.Scan != nil && result.Scan.RootName != "" {
		return result.Scan.RootName
	}
	return filepath.Base(dir)
}
