package services

import (
	"context"

	"neurochat/internal/logger"
	"neurochat/internal/tools"
	"neurochat/pkg/chattypes"
)

// FunctionHandler is invoked by a function runtime while it is generating.
type FunctionHandler func(ctx context.Context, args map[string]any) (any, error)

// LocalFunction pairs a function declaration with the handler the runtime calls back into.
type LocalFunction struct {
	Spec    tools.LocalFunctionSpec
	Handler FunctionHandler
}

// GenerateRequest is one opaque generation call on a function runtime.
type GenerateRequest struct {
	SystemInstruction string
	Transcript        []chattypes.Message
	Prompt            string
	Functions         []LocalFunction
	Sampling          chattypes.SamplingParams
}

// FunctionRuntime runs a model that executes function calls itself by calling handlers
// during a single Generate call and returns only the final text.
type FunctionRuntime interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// clarificationAck is what the runtime sees when the model asks the user a question.
var clarificationAck = map[string]any{
	"status": "question_shown_to_user",
	"note":   "The user will answer in their next message. Do not call more tools; end your reply.",
}

// clarificationSlot is a single-slot mailbox written by the clarification handler during
// Generate and consumed once after Generate returns. Handlers run sequentially inside the
// call, so when a model asks twice the last question wins.
type clarificationSlot struct {
	question *string
}

func (s *clarificationSlot) put(question string) {
	s.question = &question
}

func (s *clarificationSlot) take() (string, bool) {
	if s.question == nil {
		return "", false
	}
	q := *s.question
	s.question = nil
	return q, true
}

// LocalSessionConfig holds the construction parameters of a callback-handler session.
type LocalSessionConfig struct {
	SystemInstruction string
	Sampling          chattypes.SamplingParams
	EnableTools       bool
}

// LocalSession adapts a callback-style function runtime to the common turn contract.
type LocalSession struct {
	runtime      FunctionRuntime
	executor     ToolExecutor
	cfg          LocalSessionConfig
	toolsEnabled bool
	functions    []LocalFunction
	slot         clarificationSlot
	transcript   []chattypes.Message
}

// NewLocalSession creates a session seeded with prior conversation history.
func NewLocalSession(runtime FunctionRuntime, executor ToolExecutor, cfg LocalSessionConfig, seed []chattypes.Message) *LocalSession {
	s := &LocalSession{
		runtime:      runtime,
		executor:     executor,
		cfg:          cfg,
		toolsEnabled: cfg.EnableTools,
		transcript:   append([]chattypes.Message(nil), seed...),
	}
	if s.toolsEnabled {
		s.functions = s.buildFunctions()
	}
	return s
}

// Kind returns the local backend kind.
func (s *LocalSession) Kind() chattypes.BackendKind {
	return chattypes.BackendLocal
}

// ToolsEnabled reports whether functions are handed to the runtime.
func (s *LocalSession) ToolsEnabled() bool {
	return s.toolsEnabled
}

// Transcript returns a copy of the runtime transcript.
func (s *LocalSession) Transcript() []chattypes.Message {
	return append([]chattypes.Message(nil), s.transcript...)
}

func (s *LocalSession) buildFunctions() []LocalFunction {
	specs := tools.ToLocal(tools.Catalog())
	functions := make([]LocalFunction, 0, len(specs))
	for _, spec := range specs {
		name := spec.Name
		var handler FunctionHandler
		if name == chattypes.ClarificationToolName {
			handler = func(_ context.Context, args map[string]any) (any, error) {
				s.slot.put(chattypes.ToolCall{Name: name, Args: args}.Question())
				return clarificationAck, nil
			}
		} else {
			handler = func(ctx context.Context, args map[string]any) (any, error) {
				logger.ToolExecution("local", name, args)
				return s.executor.Execute(ctx, name, args).AsMap(), nil
			}
		}
		functions = append(functions, LocalFunction{Spec: spec, Handler: handler})
	}
	return functions
}

// Send runs one opaque generation and then checks the clarification slot.
func (s *LocalSession) Send(ctx context.Context, text string) (chattypes.TurnResult, error) {
	s.slot = clarificationSlot{}

	req := GenerateRequest{
		SystemInstruction: s.cfg.SystemInstruction,
		Transcript:        s.Transcript(),
		Prompt:            text,
		Sampling:          s.cfg.Sampling,
	}
	if s.toolsEnabled {
		req.Functions = s.functions
	}

	logger.BackendRequest("local", 0, s.toolsEnabled)
	answer, err := s.runtime.Generate(ctx, req)

	// The question was already produced, so it wins over whatever happened afterwards.
	if question, ok := s.slot.take(); ok {
		if err != nil {
			logger.Debug("Local generation failed after clarification", "error", err)
		}
		s.appendExchange(text, question)
		return clarificationResult(question), nil
	}
	if err != nil {
		return chattypes.TurnResult{}, err
	}

	s.appendExchange(text, answer)
	return chattypes.TurnResult{Text: answer}, nil
}

func (s *LocalSession) appendExchange(prompt, reply string) {
	s.transcript = append(s.transcript,
		chattypes.Message{Role: chattypes.RoleUser, Text: prompt},
		chattypes.Message{Role: chattypes.RoleAssistant, Text: reply},
	)
}
