package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/draftkeep/internal/config"
	"github.com/hpungsan/draftkeep/internal/draft"
	"github.com/hpungsan/draftkeep/internal/errors"
	"github.com/hpungsan/draftkeep/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store  *draft.Store
	cfg    *config.Config
	policy ops.PathPolicy
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store *draft.Store, cfg *config.Config, baseDir string) *Handlers {
	return &Handlers{
		store:  store,
		cfg:    cfg,
		policy: ops.NewPathPolicy(cfg, baseDir),
	}
}

// Request types for each tool

// WriteRequest represents the arguments for draft_write.
type WriteRequest struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// ReadRequest represents the arguments for draft_read.
type ReadRequest struct {
	Key         string   `json:"key"`
	MaxAgeHours *float64 `json:"max_age_hours,omitempty"`
}

// RemoveRequest represents the arguments for draft_remove.
type RemoveRequest struct {
	Key string `json:"key"`
}

// ListRequest represents the arguments for draft_list.
type ListRequest struct {
	Limit       int      `json:"limit,omitempty"`
	Offset      int      `json:"offset,omitempty"`
	MaxAgeHours *float64 `json:"max_age_hours,omitempty"`
}

// PurgeRequest represents the arguments for draft_purge.
type PurgeRequest struct {
	MaxAgeHours    *float64 `json:"max_age_hours,omitempty"`
	IncludeCorrupt bool     `json:"include_corrupt,omitempty"`
}

// ExportRequest represents the arguments for draft_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// ImportRequest represents the arguments for draft_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// maxAge resolves an optional hours argument against the configured default.
func (h *Handlers) maxAge(hours *float64) (time.Duration, error) {
	if hours == nil {
		return h.cfg.MaxAge(), nil
	}
	if *hours <= 0 {
		return 0, errors.NewInvalidRequest("max_age_hours must be positive")
	}
	return time.Duration(*hours * float64(time.Hour)), nil
}

// Handler implementations

// HandleWrite handles the draft_write tool call.
func (h *Handlers) HandleWrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WriteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Write(h.store, ops.WriteInput{Key: input.Key, Data: input.Data})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRead handles the draft_read tool call.
func (h *Handlers) HandleRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReadRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	maxAge, err := h.maxAge(input.MaxAgeHours)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Read(h.store, ops.ReadInput{Key: input.Key, MaxAge: maxAge})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRemove handles the draft_remove tool call.
func (h *Handlers) HandleRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RemoveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Remove(h.store, ops.RemoveInput{Key: input.Key})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the draft_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	maxAge, err := h.maxAge(input.MaxAgeHours)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.List(h.store, ops.ListInput{
		Limit:  input.Limit,
		Offset: input.Offset,
		MaxAge: maxAge,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurge handles the draft_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	maxAge, err := h.maxAge(input.MaxAgeHours)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Purge(h.store, ops.PurgeInput{
		MaxAge:         maxAge,
		IncludeCorrupt: input.IncludeCorrupt,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the draft_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.store, h.policy, ops.ExportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the draft_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.store, h.policy, ops.ImportInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var dErr *errors.DraftError
	if stderrors.As(err, &dErr) {
		errorObj := map[string]any{
			"code":    dErr.Code,
			"message": err.Error(),
			"status":  dErr.Status,
		}
		if err == error(dErr) {
			errorObj["message"] = dErr.Message
		}
		// Internal details carry file paths and SQL errors
		if dErr.Code != errors.ErrInternal && dErr.Details != nil {
			errorObj["details"] = dErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
