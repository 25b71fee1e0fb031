// Package schemas holds the JSON Schemas of the engine's documents.
package schemas

import _ "embed"

// ExecutionRequest is the schema of an execution request document.
//
//go:embed execution_request.schema.json
var ExecutionRequest string
