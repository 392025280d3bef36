package config

import "github.com/JonMunkholm/bulkimport/internal/core"

// DocumentOptions converts the import limits to validation options.
func (c ImportConfig) DocumentOptions() core.DocumentOptions {
	return core.DocumentOptions{
		MaxFileSize: c.MaxFileSize,
		Parse:       core.ParseOptions{MaxRows: c.MaxRows},
		Validate:    core.ValidateOptions{MaxRejectedSample: c.RejectedSample},
	}
}

// CoordinatorOptions converts the submission settings. A zero pacing
// interval disables pacing rather than selecting the default.
func (c ImportConfig) CoordinatorOptions(observer core.Observer) core.CoordinatorOptions {
	pacing := c.PacingInterval
	if pacing == 0 {
		pacing = -1
	}
	return core.CoordinatorOptions{
		ChunkSize:      c.ChunkSize,
		PacingInterval: pacing,
		Observer:       observer,
	}
}
