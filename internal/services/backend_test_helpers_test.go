package services

import (
	"context"
	"sync"

	"neurochat/pkg/chattypes"
)

// RecordingExecutor records every executed tool call in order.
type RecordingExecutor struct {
	mu    sync.Mutex
	calls []chattypes.ToolCall
}

func (r *RecordingExecutor) Execute(_ context.Context, name string, args map[string]any) chattypes.ToolResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, chattypes.ToolCall{Name: name, Args: args})
	if name == "fail_tool" {
		return chattypes.ErrorResult(name, "boom")
	}
	return chattypes.ToolResult{Name: name, Payload: map[string]any{"ok": true, "tool": name}}
}

func (r *RecordingExecutor) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		names = append(names, c.Name)
	}
	return names
}

func fourMessageHistory() []chattypes.Message {
	return []chattypes.Message{
		{Role: chattypes.RoleUser, Text: "first question"},
		{Role: chattypes.RoleAssistant, Text: "first answer"},
		{Role: chattypes.RoleUser, Text: "second question"},
		{Role: chattypes.RoleAssistant, Text: "second answer"},
	}
}
