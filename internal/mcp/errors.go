// Package mcp exposes the document store to agents as MCP tools: ingest a
// file, search within a case, fetch a document's text and list a case's
// documents.
package mcp

import "errors"

// ErrMissingRetrieval is returned when no retrieval service is provided.
var ErrMissingRetrieval = errors.New("mcp: retrieval service is required")
