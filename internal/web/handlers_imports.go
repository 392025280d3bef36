package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/logging"
	"github.com/go-chi/chi/v5"
)

// uploadOverhead is the slack allowed on top of the document size for
// multipart framing and JSON encoding.
const uploadOverhead = 1 << 20

// startResponse is returned when an import job is accepted.
type startResponse struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Progress string `json:"progress"`
}

// statusResponse is a job's progress snapshot.
type statusResponse struct {
	core.ImportProgress
	Percent int `json:"percent"`
}

// conflictResponse is the body of GET /api/jobs/{id}/conflict.
type conflictResponse struct {
	Pending  bool               `json:"pending"`
	Conflict *core.ConflictView `json:"conflict,omitempty"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

func (s *Server) maxBodySize() int64 {
	return s.cfg.Import.MaxFileSize + uploadOverhead
}

// handleListDocTypes lists the registered document types.
func (s *Server) handleListDocTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.DocumentTypes())
}

// handleValidate runs validation only and returns the report.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	docType := chi.URLParam(r, "docType")

	data, _, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	report, err := s.service.Validate(docType, data, allowedColumns(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleStartImport accepts a document and starts an import job in the background.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	docType := chi.URLParam(r, "docType")

	data, name, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	id, err := s.service.StartImport(ctx, docType, name, data, allowedColumns(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "job_id", id, "doc_type", docType).
		Info("import accepted", "file", name, "bytes", len(data))

	w.Header().Set("Location", "/api/jobs/"+id)
	writeJSON(w, http.StatusAccepted, startResponse{
		JobID:    id,
		Status:   string(core.StateIdle),
		Progress: "/api/jobs/" + id + "/progress",
	})
}

// handleJobStatus returns the current progress snapshot.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.Progress(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{ImportProgress: progress, Percent: progress.Percent()})
}

// handleJobProgress streams progress via Server-Sent Events until the job
// finishes, then sends the result as a complete event.
// Supports resumption via the lastEventId query parameter.
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// The event ID is the progress percentage, so a reconnecting client
	// skips updates it has already seen.
	lastEventIDStr := r.URL.Query().Get("lastEventId")
	if lastEventIDStr == "" {
		lastEventIDStr = r.Header.Get("Last-Event-ID")
	}
	lastEventID, _ := strconv.Atoi(lastEventIDStr)

	progressCh, err := s.service.SubscribeProgress(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				s.writeComplete(w, r, id)
				flusher.Flush()
				return
			}

			percent := progress.Percent()

			// Conflicts are always sent; a resumed client may be the one
			// that has to answer.
			if lastEventIDStr != "" && percent <= lastEventID && progress.Conflict == nil {
				continue
			}

			data, err := json.Marshal(statusResponse{ImportProgress: progress, Percent: percent})
			if err != nil {
				logging.FromContext(r.Context()).Error("encode progress", "job_id", id, "error", err)
				continue
			}

			event := "progress"
			if progress.Conflict != nil {
				event = "conflict"
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", percent, event, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// writeComplete sends the final result. The job is done, so Result does not block.
func (s *Server) writeComplete(w http.ResponseWriter, r *http.Request, id string) {
	data := []byte("{}")
	if result, err := s.service.Result(r.Context(), id); err == nil {
		if b, err := json.Marshal(result); err == nil {
			data = b
		}
	}
	fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
}

// handleJobResult blocks until the job finishes and returns its result.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handlePendingConflict returns the conflict the job is waiting on, if any.
func (s *Server) handlePendingConflict(w http.ResponseWriter, r *http.Request) {
	cmp, pending, err := s.service.PendingConflict(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := conflictResponse{Pending: pending}
	if pending {
		view := cmp.View()
		resp.Conflict = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDecideConflict answers the pending conflict.
func (s *Server) handleDecideConflict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req decisionRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	decision, ok := core.ParseDecision(req.Decision)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: unknown decision %q", core.ErrBadRequest, req.Decision))
		return
	}

	if err := s.service.Decide(id, decision); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "job_id", id).Info("conflict decided", "decision", string(decision))
	writeJSON(w, http.StatusOK, map[string]string{"decision": string(decision)})
}

// handleCancelJob requests cooperative cancellation. The job stops after
// its in-flight request, so the response only acknowledges the request.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Cancel(chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleImportHistory lists finished runs, newest first.
func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	filter := core.RunFilter{
		DocType: r.URL.Query().Get("docType"),
		Limit:   parseIntParam(r, "limit", core.DefaultHistoryLimit),
		Offset:  parseIntParam(r, "offset", 0),
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}

	runs, err := s.service.History(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// handleHealth reports job slot usage and, when configured, database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status string                `json:"status"`
		Jobs   core.JobLimiterStatus `json:"jobs"`
		Error  string                `json:"error,omitempty"`
	}{Status: "ok", Jobs: s.service.LimiterStatus()}

	status := http.StatusOK
	if s.opts.Ping != nil {
		if err := s.opts.Ping(r.Context()); err != nil {
			logging.FromContext(r.Context()).Warn("health check failed", "error", err)
			resp.Status = "unavailable"
			resp.Error = "database unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

// readUpload reads the document from a multipart "file" field or, for any
// other content type, from the raw body. The file name comes from the
// multipart header or the "name" query parameter.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	limit := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize())

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := core.ReadDocument(r.Body, limit)
		if err != nil {
			return nil, "", uploadError(err, limit)
		}
		return data, r.URL.Query().Get("name"), nil
	}

	if err := r.ParseMultipartForm(uploadOverhead); err != nil {
		return nil, "", uploadError(err, limit)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("%w: no file provided", core.ErrBadRequest)
	}
	defer file.Close()

	data, err := core.ReadDocument(file, limit)
	if err != nil {
		return nil, "", uploadError(err, limit)
	}
	return data, header.Filename, nil
}

// uploadError keeps size errors recognisable whichever reader noticed first.
func uploadError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrFileTooLarge):
		return err
	case errors.As(err, &tooLarge):
		return &core.LimitError{Kind: core.ErrFileTooLarge, Limit: limit, Actual: limit + 1, Unit: "bytes"}
	default:
		return fmt.Errorf("%w: read upload: %v", core.ErrBadRequest, err)
	}
}

// allowedColumns reads the category allow-list from repeated or
// comma-separated "allow" query parameters. Without the parameter every
// column the document type accepts is allowed.
func allowedColumns(r *http.Request) []string {
	values, ok := r.URL.Query()["allow"]
	if !ok {
		return nil
	}

	allowed := []string{}
	for _, v := range values {
		for _, col := range strings.Split(v, ",") {
			if col = strings.TrimSpace(col); col != "" {
				allowed = append(allowed, col)
			}
		}
	}
	return allowed
}

// parseIntParam parses a non-negative integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}
