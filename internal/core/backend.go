package core

import "context"

// ChunkRequest is one batch submission.
type ChunkRequest struct {
	Records           []Fields `json:"records"`
	OverrideConflicts bool     `json:"overrideConflicts"`
}

// ChunkFailure is a record the backend could not store. Index is relative to the chunk.
type ChunkFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ChunkConflict is a record whose natural key already exists. Index is relative to the chunk.
type ChunkConflict struct {
	Index      int    `json:"index"`
	NaturalKey string `json:"naturalKey"`
	Data       Fields `json:"data"`
}

// ChunkResults breaks a chunk submission down per record.
type ChunkResults struct {
	Total     int             `json:"total"`
	Success   int             `json:"success"`
	Failed    []ChunkFailure  `json:"failed"`
	Conflicts []ChunkConflict `json:"conflicts"`
}

// ChunkResponse is the backend's answer to a ChunkRequest.
type ChunkResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Results ChunkResults `json:"results"`
}

// OverrideResponse is the backend's answer to a single-record override.
type OverrideResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Backend is the persistence boundary of the pipeline. Implementations
// return a *NetworkError for transport failures; per-record problems are
// reported inside the responses.
type Backend interface {
	// SubmitChunk stores a batch, reporting conflicts instead of overwriting
	// unless req.OverrideConflicts is set.
	SubmitChunk(ctx context.Context, docType string, req ChunkRequest) (ChunkResponse, error)

	// OverrideRecord stores one record, replacing whatever is stored under naturalKey.
	OverrideRecord(ctx context.Context, docType, naturalKey string, fields Fields) (OverrideResponse, error)

	// FetchExisting returns the stored record for naturalKey. found is false
	// when nothing is stored under it.
	FetchExisting(ctx context.Context, docType, naturalKey string) (fields Fields, found bool, err error)
}
