package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"neurochat/internal/logger"
	"neurochat/pkg/chattypes"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// LlamaRuntimeConfig configures the local model runtime.
type LlamaRuntimeConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	MaxFunctionRounds int
	HTTPClient        *http.Client
}

// LlamaRuntime is a FunctionRuntime backed by a llama.cpp server's OpenAI-compatible endpoint.
// Function calls are resolved inside Generate by calling the supplied handlers, so callers only
// ever see the final text.
type LlamaRuntime struct {
	mu     sync.Mutex
	cfg    LlamaRuntimeConfig
	client *openai.Client
}

// NewLlamaRuntime creates a runtime with lazy client initialization.
func NewLlamaRuntime(cfg LlamaRuntimeConfig) *LlamaRuntime {
	if cfg.MaxFunctionRounds <= 0 {
		cfg.MaxFunctionRounds = DefaultMaxToolRounds
	}
	return &LlamaRuntime{cfg: cfg}
}

// initializeClientIfNeeded initializes the OpenAI SDK client if it hasn't been initialized yet.
func (r *LlamaRuntime) initializeClientIfNeeded() *openai.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client
	}

	options := []option.RequestOption{
		option.WithBaseURL(r.cfg.BaseURL),
		option.WithAPIKey(r.cfg.APIKey),
	}
	if r.cfg.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(r.cfg.HTTPClient))
	}

	client := openai.NewClient(options...)
	r.client = &client
	logger.Debug("Local runtime client initialized", "backend", "local", "base_url", r.cfg.BaseURL)
	return r.client
}

// Generate runs the model, resolving function calls through the request's handlers.
func (r *LlamaRuntime) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	client := r.initializeClientIfNeeded()

	messages := convertMessagesToOpenAI(req)
	handlers := make(map[string]FunctionHandler, len(req.Functions))
	toolParams := make([]openai.ChatCompletionToolParam, 0, len(req.Functions))
	for _, fn := range req.Functions {
		handlers[fn.Spec.Name] = fn.Handler
		toolParams = append(toolParams, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        fn.Spec.Name,
				Description: openai.String(fn.Spec.Description),
				Parameters:  openai.FunctionParameters(fn.Spec.Params.AsMap()),
			},
		})
	}

	for round := 0; round < r.cfg.MaxFunctionRounds; round++ {
		params := openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(r.cfg.Model),
			Messages:    messages,
			Temperature: openai.Float(req.Sampling.Temperature),
			TopP:        openai.Float(req.Sampling.TopP),
		}
		if len(toolParams) > 0 {
			params.Tools = toolParams
		}

		var opts []option.RequestOption
		if req.Sampling.TopK > 0 {
			// top_k is a llama.cpp extension of the chat completions body.
			opts = append(opts, option.WithJSONSet("top_k", req.Sampling.TopK))
		}

		completion, err := client.Chat.Completions.New(ctx, params, opts...)
		if err != nil {
			return "", fmt.Errorf("local runtime request failed: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no response choices returned")
		}

		message := completion.Choices[0].Message
		if len(message.ToolCalls) == 0 {
			return message.Content, nil
		}

		messages = append(messages, message.ToParam())
		for _, call := range message.ToolCalls {
			content := r.invoke(ctx, handlers, call.Function.Name, call.Function.Arguments)
			messages = append(messages, openai.ToolMessage(content, call.ID))
		}
	}

	return "", fmt.Errorf("%w (%d)", ErrToolLoopExceeded, r.cfg.MaxFunctionRounds)
}

// invoke calls one handler and renders its outcome as tool message content.
func (r *LlamaRuntime) invoke(ctx context.Context, handlers map[string]FunctionHandler, name, rawArgs string) string {
	handler, ok := handlers[name]
	if !ok {
		return functionError("unknown function " + name)
	}

	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return functionError("invalid arguments: " + err.Error())
		}
	}

	out, err := handler(ctx, args)
	if err != nil {
		return functionError(err.Error())
	}
	data, err := json.Marshal(out)
	if err != nil {
		return functionError("function result could not be encoded")
	}
	return string(data)
}

// functionError encodes a tool message reporting a failed call.
func functionError(message string) string {
	data, _ := json.Marshal(map[string]string{"error": message})
	return string(data)
}

// convertMessagesToOpenAI converts the system instruction, transcript and prompt to chat messages.
func convertMessagesToOpenAI(req GenerateRequest) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Transcript)+2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(req.SystemInstruction))
	}
	for _, msg := range req.Transcript {
		switch msg.Role {
		case chattypes.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Text))
		case chattypes.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Text))
		}
	}
	return append(messages, openai.UserMessage(req.Prompt))
}
