package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"neurochat/internal/logger"
	"neurochat/internal/tools"
	"neurochat/pkg/chattypes"
)

// ToolHost executes catalog tools in the external tool backend.
type ToolHost interface {
	CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
}

// ToolDispatcher turns tool calls into ToolResults. It never returns an error: every failure
// is folded into the result so the tool loop can hand it back to the model.
// The dispatcher is the sole owner of the tool host connection.
type ToolDispatcher struct {
	initialized bool
	host        ToolHost
}

// NewToolDispatcher creates a dispatcher over the given tool host.
func NewToolDispatcher(host ToolHost) *ToolDispatcher {
	return &ToolDispatcher{host: host}
}

// Name returns the service name "tool_dispatcher" for registration.
func (d *ToolDispatcher) Name() string {
	return "tool_dispatcher"
}

// Initialize sets up the ToolDispatcher for operation.
func (d *ToolDispatcher) Initialize() error {
	d.initialized = true
	return nil
}

// Execute runs one tool call. The clarification tool must be intercepted by the caller.
func (d *ToolDispatcher) Execute(ctx context.Context, name string, args map[string]any) chattypes.ToolResult {
	if name == chattypes.ClarificationToolName {
		return chattypes.ErrorResult(name, "request_clarification is handled by the conversation, not executed")
	}
	if _, ok := tools.Lookup(name); !ok {
		return chattypes.ErrorResult(name, fmt.Sprintf("unknown tool: %s", name))
	}
	if d.host == nil {
		return chattypes.ErrorResult(name, "tool backend is not available")
	}

	raw, err := d.host.CallTool(ctx, name, args)
	if err != nil {
		logger.Warn("Tool execution failed", "tool", name, "error", err)
		return chattypes.ErrorResult(name, err.Error())
	}

	var payload any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return chattypes.ErrorResult(name, fmt.Sprintf("invalid tool response: %v", err))
		}
	}
	return chattypes.ToolResult{Name: name, Payload: payload}
}

// Close releases the tool host connection if the host holds one.
func (d *ToolDispatcher) Close() error {
	if closer, ok := d.host.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
