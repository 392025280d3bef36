// Package doctypes registers the supported document types with the core registry.
// Import it for side effects wherever documents are validated or imported.
package doctypes

// Each file registers one document type from init().
