package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurochat/internal/tools"
	"neurochat/pkg/chattypes"
)

func chatCompletionBody(message map[string]any) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "local-model",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       message,
		}},
	}
}

// newLlamaServer replays the given bodies and records decoded request payloads.
func newLlamaServer(t *testing.T, bodies []map[string]any, requests *[]map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(raw, &payload))
		*requests = append(*requests, payload)

		body := bodies[0]
		bodies = bodies[1:]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLlamaRuntime_ResolvesFunctionCalls(t *testing.T) {
	var requests []map[string]any
	server := newLlamaServer(t, []map[string]any{
		chatCompletionBody(map[string]any{
			"role":    "assistant",
			"content": "",
			"tool_calls": []any{map[string]any{
				"id":   "call_1",
				"type": "function",
				"function": map[string]any{
					"name":      "list_threads",
					"arguments": "{}",
				},
			}},
		}),
		chatCompletionBody(map[string]any{"role": "assistant", "content": "Two threads."}),
	}, &requests)

	runtime := NewLlamaRuntime(LlamaRuntimeConfig{BaseURL: server.URL + "/v1", APIKey: "local", Model: "local-model"})

	var invoked []string
	spec := tools.ToLocal(tools.Catalog())[0]
	answer, err := runtime.Generate(context.Background(), GenerateRequest{
		SystemInstruction: "Be brief.",
		Transcript:        []chattypes.Message{{Role: chattypes.RoleUser, Text: "hi"}, {Role: chattypes.RoleAssistant, Text: "hello"}},
		Prompt:            "list my threads",
		Sampling:          chattypes.SamplingParams{Temperature: 0.3, TopP: 0.8, TopK: 12},
		Functions: []LocalFunction{{
			Spec: spec,
			Handler: func(_ context.Context, _ map[string]any) (any, error) {
				invoked = append(invoked, spec.Name)
				return map[string]any{"threads": []string{"a.json", "b.json"}}, nil
			},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Two threads.", answer)
	assert.Equal(t, []string{"list_threads"}, invoked)
	require.Len(t, requests, 2)

	first := requests[0]
	assert.EqualValues(t, 12, first["top_k"])
	assert.Len(t, first["tools"], 1)
	assert.Len(t, first["messages"], 4)

	second := requests[1]
	messages := second["messages"].([]any)
	require.Len(t, messages, 6)
	toolMsg := messages[5].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])
	assert.JSONEq(t, `{"threads":["a.json","b.json"]}`, toolMsg["content"].(string))
}

func TestLlamaRuntime_RoundLimit(t *testing.T) {
	toolCall := chatCompletionBody(map[string]any{
		"role":    "assistant",
		"content": "",
		"tool_calls": []any{map[string]any{
			"id":       "call_x",
			"type":     "function",
			"function": map[string]any{"name": "list_threads", "arguments": "{}"},
		}},
	})
	var requests []map[string]any
	server := newLlamaServer(t, []map[string]any{toolCall, toolCall}, &requests)

	runtime := NewLlamaRuntime(LlamaRuntimeConfig{BaseURL: server.URL + "/v1", APIKey: "local", Model: "m", MaxFunctionRounds: 2})
	spec := tools.ToLocal(tools.Catalog())[0]
	_, err := runtime.Generate(context.Background(), GenerateRequest{
		Prompt: "loop",
		Functions: []LocalFunction{{
			Spec:    spec,
			Handler: func(context.Context, map[string]any) (any, error) { return map[string]any{}, nil },
		}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolLoopExceeded)
	assert.Len(t, requests, 2)
}

func TestLlamaRuntime_InvokeUnknownAndBadArgs(t *testing.T) {
	runtime := NewLlamaRuntime(LlamaRuntimeConfig{})
	handlers := map[string]FunctionHandler{
		"echo": func(_ context.Context, args map[string]any) (any, error) { return args, nil },
	}

	assert.JSONEq(t, `{"error":"unknown function nope"}`, runtime.invoke(context.Background(), handlers, "nope", "{}"))
	assert.Contains(t, runtime.invoke(context.Background(), handlers, "echo", "{not json"), "invalid arguments")

	quoted := runtime.invoke(context.Background(), handlers, `bad"name`, "{}")
	assert.True(t, json.Valid([]byte(quoted)), quoted)
	assert.Contains(t, quoted, `bad\"name`)

	badArgs := runtime.invoke(context.Background(), handlers, "echo", `{"a":1 "b":2}`)
	assert.True(t, json.Valid([]byte(badArgs)), badArgs)
	assert.Contains(t, badArgs, "invalid arguments")
	assert.JSONEq(t, `{"a":1}`, runtime.invoke(context.Background(), handlers, "echo", `{"a":1}`))
}
