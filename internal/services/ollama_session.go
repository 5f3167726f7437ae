package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"neurochat/internal/logger"
	"neurochat/internal/tools"
	"neurochat/pkg/chattypes"
)

// ToolsDisabledNotice is surfaced once when a model turns out not to support tools.
const ToolsDisabledNotice = "The selected model does not support tools; continuing without them."

// OllamaSessionConfig holds the construction parameters of a REST-loop session.
type OllamaSessionConfig struct {
	Model             string
	SystemInstruction string
	Sampling          chattypes.SamplingParams
	EnableTools       bool
	RequestTimeout    time.Duration
	MaxToolRounds     int
}

// OllamaSession drives the tool loop itself over the Ollama REST API.
type OllamaSession struct {
	client       *OllamaClient
	executor     ToolExecutor
	cfg          OllamaSessionConfig
	toolsEnabled bool
	tools        []tools.OllamaTool
	transcript   []OllamaChatMessage
}

// NewOllamaSession creates a session seeded with prior conversation history.
func NewOllamaSession(client *OllamaClient, executor ToolExecutor, cfg OllamaSessionConfig, seed []chattypes.Message) *OllamaSession {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	s := &OllamaSession{
		client:       client,
		executor:     executor,
		cfg:          cfg,
		toolsEnabled: cfg.EnableTools,
		transcript:   convertMessagesToOllama(seed),
	}
	if s.toolsEnabled {
		s.tools = tools.ToOllama(tools.Catalog())
	}
	return s
}

// Kind returns the ollama backend kind.
func (s *OllamaSession) Kind() chattypes.BackendKind {
	return chattypes.BackendOllama
}

// ToolsEnabled reports whether tools are still sent. Once false it stays false.
func (s *OllamaSession) ToolsEnabled() bool {
	return s.toolsEnabled
}

// Transcript returns a copy of the REST transcript.
func (s *OllamaSession) Transcript() []OllamaChatMessage {
	return append([]OllamaChatMessage(nil), s.transcript...)
}

func convertMessagesToOllama(history []chattypes.Message) []OllamaChatMessage {
	messages := make([]OllamaChatMessage, 0, len(history))
	for _, msg := range history {
		messages = append(messages, OllamaChatMessage{Role: string(msg.Role), Content: msg.Text})
	}
	return messages
}

// Send runs one turn. On error the transcript is restored to its state before the turn and the
// result carries only the downgrade notice, if one happened.
func (s *OllamaSession) Send(ctx context.Context, text string) (chattypes.TurnResult, error) {
	mark := len(s.transcript)
	s.transcript = append(s.transcript, OllamaChatMessage{Role: string(chattypes.RoleUser), Content: text})

	result, err := s.runLoop(ctx)
	if err != nil {
		s.transcript = s.transcript[:mark]
		return chattypes.TurnResult{Notice: result.Notice}, err
	}
	return result, nil
}

func (s *OllamaSession) runLoop(ctx context.Context) (chattypes.TurnResult, error) {
	var notice string
	for round := 0; round < s.cfg.MaxToolRounds; round++ {
		resp, downgraded, err := s.request(ctx, round)
		if downgraded {
			notice = ToolsDisabledNotice
		}
		if err != nil {
			return chattypes.TurnResult{Notice: notice}, err
		}

		message := resp.Message
		if len(message.ToolCalls) == 0 {
			s.transcript = append(s.transcript, OllamaChatMessage{Role: string(chattypes.RoleAssistant), Content: message.Content})
			return chattypes.TurnResult{Text: message.Content, Notice: notice}, nil
		}

		calls := make([]chattypes.ToolCall, 0, len(message.ToolCalls))
		for _, tc := range message.ToolCalls {
			calls = append(calls, chattypes.ToolCall{Name: tc.Function.Name, Args: tc.Function.Arguments})
		}

		if call, ok := firstClarification(calls); ok {
			question := call.Question()
			s.transcript = append(s.transcript, OllamaChatMessage{Role: string(chattypes.RoleAssistant), Content: question})
			result := clarificationResult(question)
			result.Notice = notice
			return result, nil
		}

		s.transcript = append(s.transcript, OllamaChatMessage{
			Role:      string(chattypes.RoleAssistant),
			Content:   message.Content,
			ToolCalls: message.ToolCalls,
		})
		for _, call := range calls {
			logger.ToolExecution("ollama", call.Name, call.Args)
			toolResult := s.executor.Execute(ctx, call.Name, call.Args)
			s.transcript = append(s.transcript, OllamaChatMessage{
				Role:     "tool",
				Content:  toolResult.JSON(),
				ToolName: call.Name,
			})
		}
	}
	return chattypes.TurnResult{Notice: notice}, fmt.Errorf("%w (%d)", ErrToolLoopExceeded, s.cfg.MaxToolRounds)
}

// request sends the transcript once, downgrading and retrying without tools when the model
// rejects them. It reports whether a downgrade happened.
func (s *OllamaSession) request(ctx context.Context, round int) (*OllamaChatResponse, bool, error) {
	resp, err := s.post(ctx, round)
	if err == nil || !errors.Is(err, ErrToolsUnsupported) || !s.toolsEnabled {
		return resp, false, err
	}

	s.toolsEnabled = false
	s.tools = nil
	logger.Info("Model does not support tools, disabling them for this session", "backend", "ollama", "model", s.cfg.Model)

	resp, err = s.post(ctx, round)
	return resp, true, err
}

func (s *OllamaSession) post(ctx context.Context, round int) (*OllamaChatResponse, error) {
	request := OllamaChatRequest{
		Model:    s.cfg.Model,
		Messages: s.requestMessages(),
		Stream:   false,
		Options: &OllamaOptions{
			Temperature: s.cfg.Sampling.Temperature,
			TopP:        s.cfg.Sampling.TopP,
			TopK:        s.cfg.Sampling.TopK,
		},
	}
	if s.toolsEnabled {
		request.Tools = s.tools
	}

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	logger.BackendRequest("ollama", round, s.toolsEnabled)
	resp, err := s.client.Chat(ctx, request)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	return resp, err
}

func (s *OllamaSession) requestMessages() []OllamaChatMessage {
	messages := make([]OllamaChatMessage, 0, len(s.transcript)+1)
	if s.cfg.SystemInstruction != "" {
		messages = append(messages, OllamaChatMessage{Role: "system", Content: s.cfg.SystemInstruction})
	}
	return append(messages, s.transcript...)
}
