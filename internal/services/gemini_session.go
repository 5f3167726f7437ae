package services

import (
	"context"
	"fmt"
	"strings"

	"neurochat/internal/logger"
	"neurochat/internal/tools"
	"neurochat/pkg/chattypes"

	"google.golang.org/genai"
)

// GeminiSessionConfig holds the construction parameters of a native function-calling session.
type GeminiSessionConfig struct {
	Model             string
	SystemInstruction string
	Sampling          chattypes.SamplingParams
	EnableTools       bool
	MaxToolRounds     int
}

// GeminiSession drives Gemini's native function calling. Each model response may carry a batch
// of function calls which are executed in order before the model is invoked again.
type GeminiSession struct {
	models       GeminiModels
	executor     ToolExecutor
	cfg          GeminiSessionConfig
	toolsEnabled bool
	declarations []*genai.FunctionDeclaration
	transcript   []*genai.Content
}

// NewGeminiSession creates a session seeded with prior conversation history.
func NewGeminiSession(models GeminiModels, executor ToolExecutor, cfg GeminiSessionConfig, seed []chattypes.Message) *GeminiSession {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	s := &GeminiSession{
		models:       models,
		executor:     executor,
		cfg:          cfg,
		toolsEnabled: cfg.EnableTools,
		transcript:   convertMessagesToGemini(seed),
	}
	if s.toolsEnabled {
		s.declarations = tools.ToGemini(tools.Catalog())
	}
	return s
}

// Kind returns the gemini backend kind.
func (s *GeminiSession) Kind() chattypes.BackendKind {
	return chattypes.BackendGemini
}

// ToolsEnabled reports whether function declarations are sent.
func (s *GeminiSession) ToolsEnabled() bool {
	return s.toolsEnabled
}

// Transcript returns a copy of the backend-native transcript.
func (s *GeminiSession) Transcript() []*genai.Content {
	out := make([]*genai.Content, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// convertMessagesToGemini converts conversation history to Gemini contents.
// Gemini uses "model" instead of "assistant".
func convertMessagesToGemini(messages []chattypes.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chattypes.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleUser))
		case chattypes.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleModel))
		}
	}
	return contents
}

// buildGenerationConfig creates the generation config from the session parameters.
func (s *GeminiSession) buildGenerationConfig() *genai.GenerateContentConfig {
	temperature := float32(s.cfg.Sampling.Temperature)
	topP := float32(s.cfg.Sampling.TopP)
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
		TopP:        &topP,
	}
	if s.cfg.Sampling.TopK > 0 {
		topK := float32(s.cfg.Sampling.TopK)
		config.TopK = &topK
	}
	if s.cfg.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(s.cfg.SystemInstruction, genai.RoleUser)
	}
	if s.toolsEnabled && len(s.declarations) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: s.declarations}}
	}
	return config
}

// Send runs one turn of the native function-calling loop.
func (s *GeminiSession) Send(ctx context.Context, text string) (chattypes.TurnResult, error) {
	start := len(s.transcript)
	s.transcript = append(s.transcript, genai.NewContentFromText(text, genai.RoleUser))

	result, err := s.runLoop(ctx)
	if err != nil {
		// The failed exchange is dropped so the next turn starts from a consistent transcript.
		s.transcript = s.transcript[:start]
		return chattypes.TurnResult{}, err
	}
	return result, nil
}

func (s *GeminiSession) runLoop(ctx context.Context) (chattypes.TurnResult, error) {
	config := s.buildGenerationConfig()

	for round := 0; round < s.cfg.MaxToolRounds; round++ {
		logger.BackendRequest("gemini", round, s.toolsEnabled)

		resp, err := s.models.GenerateContent(ctx, s.cfg.Model, s.transcript, config)
		if err != nil {
			return chattypes.TurnResult{}, err
		}

		content, err := firstCandidate(resp)
		if err != nil {
			return chattypes.TurnResult{}, err
		}

		calls := extractFunctionCalls(content)
		if len(calls) == 0 {
			answer := extractText(content)
			if answer == "" {
				return chattypes.TurnResult{}, fmt.Errorf("gemini returned an empty response")
			}
			s.transcript = append(s.transcript, content)
			return chattypes.TurnResult{Text: answer}, nil
		}

		// A clarification anywhere in the batch cancels the whole batch.
		if call, ok := firstClarification(calls); ok {
			question := call.Question()
			s.transcript = append(s.transcript, genai.NewContentFromText(question, genai.RoleModel))
			return clarificationResult(question), nil
		}

		s.transcript = append(s.transcript, content)

		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			logger.ToolExecution("gemini", call.Name, call.Args)
			res := s.executor.Execute(ctx, call.Name, call.Args)
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: res.AsMap(),
			}})
		}
		s.transcript = append(s.transcript, &genai.Content{Role: string(genai.RoleUser), Parts: parts})
	}

	return chattypes.TurnResult{}, fmt.Errorf("%w (%d)", ErrToolLoopExceeded, s.cfg.MaxToolRounds)
}

func firstCandidate(resp *genai.GenerateContentResponse) (*genai.Content, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}
	content := resp.Candidates[0].Content
	if content.Role == "" {
		content.Role = string(genai.RoleModel)
	}
	return content, nil
}

func extractFunctionCalls(content *genai.Content) []chattypes.ToolCall {
	var calls []chattypes.ToolCall
	for _, part := range content.Parts {
		if part == nil || part.FunctionCall == nil {
			continue
		}
		calls = append(calls, chattypes.ToolCall{
			ID:   part.FunctionCall.ID,
			Name: part.FunctionCall.Name,
			Args: part.FunctionCall.Args,
		})
	}
	return calls
}

// extractText concatenates the non-thought text parts of a model content.
func extractText(content *genai.Content) string {
	var b strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}
