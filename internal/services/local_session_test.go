package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurochat/pkg/chattypes"
)

// scriptedCall is one function invocation the fake runtime performs.
type scriptedCall struct {
	name string
	args map[string]any
}

// FakeRuntime invokes the scripted handlers in order, then returns its answer.
type FakeRuntime struct {
	calls    []scriptedCall
	answer   string
	err      error
	requests []GenerateRequest
	outputs  []any
}

func (f *FakeRuntime) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	f.requests = append(f.requests, req)
	handlers := map[string]FunctionHandler{}
	for _, fn := range req.Functions {
		handlers[fn.Spec.Name] = fn.Handler
	}
	for _, call := range f.calls {
		handler, ok := handlers[call.name]
		if !ok {
			return "", errors.New("no handler for " + call.name)
		}
		out, err := handler(ctx, call.args)
		if err != nil {
			return "", err
		}
		f.outputs = append(f.outputs, out)
	}
	return f.answer, f.err
}

func newTestLocalSession(runtime FunctionRuntime, executor ToolExecutor, enableTools bool, seed []chattypes.Message) *LocalSession {
	return NewLocalSession(runtime, executor, LocalSessionConfig{
		SystemInstruction: "You are a helper.",
		Sampling:          chattypes.SamplingParams{Temperature: 0.2, TopP: 0.9, TopK: 10},
		EnableTools:       enableTools,
	}, seed)
}

func TestLocalSession_FinalAnswerWithTools(t *testing.T) {
	runtime := &FakeRuntime{
		calls: []scriptedCall{
			{name: "list_threads", args: map[string]any{}},
			{name: "get_thread_data", args: map[string]any{"filename": "session_a.json"}},
		},
		answer: "You have one thread.",
	}
	executor := &RecordingExecutor{}
	session := newTestLocalSession(runtime, executor, true, nil)

	result, err := session.Send(context.Background(), "what threads do I have?")
	require.NoError(t, err)

	assert.Equal(t, "You have one thread.", result.Text)
	assert.False(t, result.IsClarification())
	assert.Equal(t, []string{"list_threads", "get_thread_data"}, executor.Names())
	assert.Equal(t, map[string]any{"ok": true, "tool": "list_threads"}, runtime.outputs[0])

	transcript := session.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, chattypes.RoleUser, transcript[0].Role)
	assert.Equal(t, "You have one thread.", transcript[1].Text)

	req := runtime.requests[0]
	assert.Equal(t, "You are a helper.", req.SystemInstruction)
	assert.Equal(t, "what threads do I have?", req.Prompt)
	assert.Len(t, req.Functions, 4)
	assert.Equal(t, 10, req.Sampling.TopK)
}

func TestLocalSession_ClarificationLastWriteWins(t *testing.T) {
	runtime := &FakeRuntime{
		calls: []scriptedCall{
			{name: chattypes.ClarificationToolName, args: map[string]any{"question": "Which thread?"}},
			{name: chattypes.ClarificationToolName, args: map[string]any{"question": "Which file exactly?"}},
		},
		answer: "I have asked the user.",
	}
	executor := &RecordingExecutor{}
	session := newTestLocalSession(runtime, executor, true, nil)

	result, err := session.Send(context.Background(), "delete it")
	require.NoError(t, err)

	require.True(t, result.IsClarification())
	assert.Equal(t, "Which file exactly?", result.Clarification.Question)
	assert.Empty(t, executor.Names())
	assert.Equal(t, clarificationAck, runtime.outputs[0])

	transcript := session.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "Which file exactly?", transcript[1].Text)

	// The slot is consumed: the next turn is a plain answer.
	runtime.calls = nil
	runtime.answer = "Deleted."
	result, err = session.Send(context.Background(), "session_a.json")
	require.NoError(t, err)
	assert.False(t, result.IsClarification())
	assert.Equal(t, "Deleted.", result.Text)
}

func TestLocalSession_ClarificationWinsOverRuntimeError(t *testing.T) {
	runtime := &FakeRuntime{
		calls: []scriptedCall{{name: chattypes.ClarificationToolName, args: map[string]any{"question": "Which one?"}}},
		err:   errors.New("context window exceeded"),
	}
	session := newTestLocalSession(runtime, &RecordingExecutor{}, true, nil)

	result, err := session.Send(context.Background(), "remove the old one")
	require.NoError(t, err)
	require.True(t, result.IsClarification())
	assert.Equal(t, "Which one?", result.Clarification.Question)
}

func TestLocalSession_ErrorLeavesTranscriptUntouched(t *testing.T) {
	runtime := &FakeRuntime{err: errors.New("server unavailable")}
	session := newTestLocalSession(runtime, &RecordingExecutor{}, true, fourMessageHistory())

	_, err := session.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Len(t, session.Transcript(), 4)
}

func TestLocalSession_SeedAndToolsDisabled(t *testing.T) {
	runtime := &FakeRuntime{answer: "ok"}
	session := newTestLocalSession(runtime, &RecordingExecutor{}, false, fourMessageHistory())

	_, err := session.Send(context.Background(), "third question")
	require.NoError(t, err)

	assert.False(t, session.ToolsEnabled())
	assert.Equal(t, chattypes.BackendLocal, session.Kind())
	assert.Empty(t, runtime.requests[0].Functions)
	assert.Equal(t, fourMessageHistory(), runtime.requests[0].Transcript)
	assert.Len(t, session.Transcript(), 6)
}
