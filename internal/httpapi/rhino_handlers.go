package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/softlyplease/soft-compute-gateway/pkg/artifact"
	"github.com/softlyplease/soft-compute-gateway/pkg/batch"
	"github.com/softlyplease/soft-compute-gateway/pkg/compute"
	"github.com/softlyplease/soft-compute-gateway/pkg/params"
)

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const multipartMemory = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "OK",
		"timestamp":   s.now().UTC().Format(time.RFC3339),
		"environment": s.config.Environment,
		"version":     Version,
		"uptime":      int64(s.now().Sub(s.started).Seconds()),
		"features": map[string]bool{
			"rhinoCompute":   true,
			"ai":             s.ai != nil,
			"artifactLog":    s.artifacts != nil,
			"rateLimiting":   s.limiter != nil,
			"batchOperation": true,
		},
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.compute.Status(r.Context())
	if !status.OK {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "compute": status})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ready": true, "compute": status})
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	status := s.compute.Status(r.Context())
	code := http.StatusOK
	if !status.OK {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, envelope{
		Success:   status.OK,
		RequestID: requestIDFrom(r),
		Data:      status,
		Error:     status.Error,
	})
}

// handleVMHealth is the plain-text probe used by the VM load balancer.
func (s *Server) handleVMHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if status := s.compute.Status(r.Context()); !status.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "Rhino.Compute unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Rhino.Compute OK")
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, r, s.compute.Capabilities())
}

func (s *Server) handleComputeMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, r, s.compute.PerformanceMetrics())
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	ops := compute.Operations(category)
	s.writeData(w, r, map[string]any{
		"category":   category,
		"operations": ops,
		"categories": compute.Categories(),
	})
}

func (s *Server) handleClearComputeCache(w http.ResponseWriter, r *http.Request) {
	if err := s.compute.ClearCache(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeData(w, r, map[string]string{"message": "Compute cache cleared"})
}

type operationBody struct {
	GeometryData json.RawMessage `json:"geometryData"`
	Parameters   map[string]any  `json:"parameters"`
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	operation := mux.Vars(r)["operation"]

	var body operationBody
	if err := s.decodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.compute.Execute(r.Context(), operation, body.GeometryData, body.Parameters)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeData(w, r, result)
}

// handleTopOpt serves /api/rhino/topopt and its /api/optimize alias.
func (s *Server) handleTopOpt(w http.ResponseWriter, r *http.Request) {
	upload, fields, err := s.readMultipart(w, r, true)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	p, err := params.Parse(fields.Get("params"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.logArtifact(r, upload, "topopt:"+p.Algorithm)

	result, err := s.compute.Optimize(r.Context(), *upload, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeData(w, r, result)
}

func (s *Server) handleHops(w http.ResponseWriter, r *http.Request) {
	var (
		hp     params.HopsParams
		upload *compute.Upload
		err    error
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		var fields fieldGetter
		upload, fields, err = s.readMultipart(w, r, false)
		if err == nil {
			hp, err = params.ParseHops(fields.Get("params"))
		}
	} else {
		err = s.decodeJSON(w, r, &hp)
		if err == nil {
			err = params.Struct(hp)
		}
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if upload != nil {
		s.logArtifact(r, upload, "hops:"+hp.Definition)
	}

	result, err := s.compute.Grasshopper(r.Context(), hp, upload)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeData(w, r, result)
}

type batchBody struct {
	Operations []compute.Request `json:"operations"`
}

type batchItem struct {
	Index     int                      `json:"index"`
	Operation string                   `json:"operation"`
	Success   bool                     `json:"success"`
	Result    *compute.OperationResult `json:"result,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Status    int                      `json:"status,omitempty"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var body batchBody
	if err := s.decodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := batch.Validate(body.Operations); err != nil {
		s.fail(w, r, err)
		return
	}

	results := s.batch.Run(r.Context(), body.Operations)

	items := make([]batchItem, len(results))
	succeeded := 0
	for i, res := range results {
		item := batchItem{Index: res.Index, Operation: res.Operation}
		if res.Err != nil {
			item.Error = userMessage(res.Err)
			item.Status = statusFor(res.Err)
		} else {
			item.Success = true
			item.Result = res.Result
			succeeded++
		}
		items[i] = item
	}

	s.writeData(w, r, map[string]any{
		"results":   items,
		"total":     len(items),
		"succeeded": succeeded,
		"failed":    len(items) - succeeded,
	})
}

type fieldGetter interface {
	Get(key string) string
}

// readMultipart parses a multipart upload. The "file" part is returned as
// an Upload; it is an error if required and missing.
func (s *Server) readMultipart(w http.ResponseWriter, r *http.Request, required bool) (*compute.Upload, fieldGetter, error) {
	limit := s.config.MaxUploadBytes*int64(s.config.MaxUploadFiles) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, params.Invalid("file", "Request body exceeds %d bytes", limit)
		}
		return nil, nil, params.Invalid("file", "Invalid multipart request: %v", err)
	}
	fields := r.MultipartForm.Value
	getter := fieldMap(fields)

	files := r.MultipartForm.File["file"]
	if len(r.MultipartForm.File) > 0 {
		total := 0
		for _, fs := range r.MultipartForm.File {
			total += len(fs)
		}
		if total > s.config.MaxUploadFiles {
			return nil, nil, params.Invalid("file", "Too many files (max %d)", s.config.MaxUploadFiles)
		}
	}
	if len(files) == 0 {
		if required {
			return nil, nil, params.Invalid("file", "No file uploaded")
		}
		return nil, getter, nil
	}

	header := files[0]
	if header.Size > s.config.MaxUploadBytes {
		return nil, nil, params.Invalid("file", "File size (%.2fMB) exceeds maximum limit of %dMB",
			float64(header.Size)/1024/1024, s.config.MaxUploadBytes>>20)
	}
	if err := params.ValidateUpload(header.Filename, header.Size); err != nil {
		return nil, nil, err
	}

	f, err := header.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}

	return &compute.Upload{Name: filepath.Base(header.Filename), Content: content}, getter, nil
}

type fieldMap map[string][]string

func (m fieldMap) Get(key string) string {
	if vs := m[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// decodeJSON reads a JSON request body of bounded size.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return params.Invalid("body", "Request body is required")
		}
		return params.Invalid("body", "Invalid JSON body: %v", err)
	}
	return nil
}

// logArtifact records an upload in the artifact index. Failures are logged
// and do not fail the request.
func (s *Server) logArtifact(r *http.Request, upload *compute.Upload, notes string) {
	if s.artifacts == nil || upload == nil {
		return
	}
	asset, err := s.artifacts.Log(artifact.Asset{
		Name:        upload.Name,
		Type:        strings.TrimPrefix(strings.ToLower(filepath.Ext(upload.Name)), "."),
		Environment: s.config.Environment,
		Notes:       notes,
	}, upload.Content)
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", requestIDFrom(r)).Str("file", upload.Name).Msg("Failed to log artifact")
		return
	}
	s.logger.Debug().Str("asset_id", asset.ID).Str("request_id", requestIDFrom(r)).Msg("Upload logged")
}
