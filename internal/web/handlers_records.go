package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/go-chi/chi/v5"
)

// fetchResponse is the body of GET /api/records/{docType}/{naturalKey}.
type fetchResponse struct {
	Found bool        `json:"found"`
	Data  core.Fields `json:"data,omitempty"`
}

// handleSubmitChunk stores one batch. Per-record failures and conflicts are
// part of a 200 response; only request-level problems are errors.
func (s *Server) handleSubmitChunk(w http.ResponseWriter, r *http.Request) {
	docType := chi.URLParam(r, "docType")

	var req core.ChunkRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	resp, err := s.records.SubmitChunk(r.Context(), docType, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleOverrideRecord replaces the record stored under the natural key.
func (s *Server) handleOverrideRecord(w http.ResponseWriter, r *http.Request) {
	docType := chi.URLParam(r, "docType")
	key, err := naturalKeyParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var fields core.Fields
	if err := s.decodeBody(w, r, &fields); err != nil {
		s.respondError(w, r, err)
		return
	}

	resp, err := s.records.OverrideRecord(r.Context(), docType, key, fields)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// handleFetchRecord returns the stored record, or 404 with found=false.
func (s *Server) handleFetchRecord(w http.ResponseWriter, r *http.Request) {
	docType := chi.URLParam(r, "docType")
	key, err := naturalKeyParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	fields, found, err := s.records.FetchExisting(r.Context(), docType, key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if !found {
		writeJSON(w, http.StatusNotFound, fetchResponse{Found: false})
		return
	}
	writeJSON(w, http.StatusOK, fetchResponse{Found: true, Data: fields})
}

// naturalKeyParam unescapes the key. chi matches on the raw path, so a key
// containing "/" arrives percent-encoded.
func naturalKeyParam(r *http.Request) (string, error) {
	key, err := url.PathUnescape(chi.URLParam(r, "naturalKey"))
	if err != nil || key == "" {
		return "", fmt.Errorf("%w: natural key %q", core.ErrBadRequest, chi.URLParam(r, "naturalKey"))
	}
	return key, nil
}

// decodeBody decodes a JSON body capped at the configured document size.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize())

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &core.LimitError{Kind: core.ErrFileTooLarge, Limit: tooLarge.Limit, Actual: tooLarge.Limit + 1, Unit: "bytes"}
		}
		return fmt.Errorf("%w: decode body: %v", core.ErrBadRequest, err)
	}
	return nil
}
