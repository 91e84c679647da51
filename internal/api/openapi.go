package api

import (
	"net/http"

	"github.com/mattjoyce/mcpserve/internal/protocol"
)

// handleOpenAPI serves an OpenAPI description of the tool endpoints.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.tools.ListTools()))
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document with one POST operation per tool.
func buildOpenAPIDoc(tools []protocol.Tool) map[string]any {
	paths := map[string]any{}
	for _, t := range tools {
		paths["/tools/"+t.Name] = map[string]any{"post": toolOperation(t)}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "mcpserve",
			"version": "1.0",
		},
		"paths": paths,
	}
}

func toolOperation(t protocol.Tool) map[string]any {
	summary := t.Description
	if summary == "" {
		summary = t.Name
	}
	return map[string]any{
		"operationId": "call_" + t.Name,
		"summary":     summary,
		"tags":        []string{"tools"},
		"requestBody": map[string]any{
			"required": len(t.InputSchema.Required) > 0,
			"content": map[string]any{
				"application/json": map[string]any{"schema": t.InputSchema},
			},
		},
		"responses": map[string]any{
			"200": map[string]any{"description": "Tool result; isError marks a tool-level failure"},
			"400": map[string]any{"description": "Body is not a JSON object"},
			"404": map[string]any{"description": "Unknown tool"},
			"422": map[string]any{"description": "Arguments do not match the input schema"},
		},
	}
}
