// Package client is the HTTP record backend. It talks to the records API
// served by cmd/server and satisfies core.Backend, so the importer CLI can run
// the same pipeline against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

const userAgent = "bulkimport/1.0"

// maxErrorBody caps how much of an unexpected response is quoted in errors.
const maxErrorBody = 512

// Client calls the records API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a client for the server at baseURL (e.g. "http://localhost:8080").
// A zero timeout uses DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// FetchResponse is the wire form of a fetch-existing answer.
type FetchResponse struct {
	Found bool        `json:"found"`
	Data  core.Fields `json:"data,omitempty"`
}

// SubmitChunk posts a batch to /api/records/{docType}/batch.
func (c *Client) SubmitChunk(ctx context.Context, docType string, req core.ChunkRequest) (core.ChunkResponse, error) {
	var out core.ChunkResponse
	status, body, err := c.do(ctx, http.MethodPost, recordsPath(docType, "batch"), req, "submit chunk")
	if err != nil {
		return core.ChunkResponse{}, err
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return core.ChunkResponse{}, unexpected("submit chunk", status, body)
	}
	if status >= 300 {
		if out.Success {
			return core.ChunkResponse{}, unexpected("submit chunk", status, body)
		}
		out.Error = nonEmpty(out.Error, http.StatusText(status))
	}
	return out, nil
}

// OverrideRecord puts one record to /api/records/{docType}/{naturalKey}.
func (c *Client) OverrideRecord(ctx context.Context, docType, naturalKey string, fields core.Fields) (core.OverrideResponse, error) {
	var out core.OverrideResponse
	status, body, err := c.do(ctx, http.MethodPut, recordsPath(docType, naturalKey), fields, "override record")
	if err != nil {
		return core.OverrideResponse{}, err
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return core.OverrideResponse{}, unexpected("override record", status, body)
	}
	if status >= 300 {
		if out.Success {
			return core.OverrideResponse{}, unexpected("override record", status, body)
		}
		out.Error = nonEmpty(out.Error, http.StatusText(status))
	}
	return out, nil
}

// FetchExisting gets /api/records/{docType}/{naturalKey}. A 404 means not found.
func (c *Client) FetchExisting(ctx context.Context, docType, naturalKey string) (core.Fields, bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, recordsPath(docType, naturalKey), nil, "fetch existing")
	if err != nil {
		return nil, false, err
	}

	switch status {
	case http.StatusOK:
		var out FetchResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, false, fmt.Errorf("fetch existing: decode response: %w", err)
		}
		return out.Data, out.Found, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, unexpected("fetch existing", status, body)
	}
}

// do sends one JSON request and reads the whole response. Only transport
// failures come back as *core.NetworkError; status handling is left to the caller.
func (c *Client) do(ctx context.Context, method, path string, payload any, op string) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &core.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &core.NetworkError{Op: op, Err: err}
	}
	return resp.StatusCode, body, nil
}

func recordsPath(docType, tail string) string {
	return "/api/records/" + url.PathEscape(docType) + "/" + url.PathEscape(tail)
}

func unexpected(op string, status int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Errorf("%s: unexpected status %d: %s", op, status, strings.TrimSpace(string(body)))
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
