package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"neurochat/internal/logger"
	"neurochat/internal/tools"
)

// OllamaChatRequest is the payload of POST /api/chat.
type OllamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []OllamaChatMessage `json:"messages"`
	Tools    []tools.OllamaTool  `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Options  *OllamaOptions      `json:"options,omitempty"`
}

// OllamaOptions carries sampling parameters.
type OllamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k,omitempty"`
}

// OllamaChatMessage is one entry of the REST transcript.
type OllamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []OllamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

// OllamaToolCall is a function call requested by the model.
type OllamaToolCall struct {
	Function OllamaFunctionCall `json:"function"`
}

// OllamaFunctionCall holds the function name and its decoded arguments.
type OllamaFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// OllamaChatResponse is the non-streaming response of /api/chat.
type OllamaChatResponse struct {
	Model   string            `json:"model"`
	Message OllamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

// OllamaClient is a minimal REST client for an Ollama server.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates a client for the given base URL.
func NewOllamaClient(baseURL string, httpClient *http.Client) *OllamaClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OllamaClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// unsupportedToolsMarkers are the error fragments servers use when a model cannot take tools.
var unsupportedToolsMarkers = []string{"does not support tools", "tools are not supported"}

func isUnsupportedToolsError(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range unsupportedToolsMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Chat sends one non-streaming chat request.
func (c *OllamaClient) Chat(ctx context.Context, request OllamaChatRequest) (*OllamaChatResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(request.Tools) > 0 && isUnsupportedToolsError(string(body)) {
			return nil, fmt.Errorf("%w: %s", ErrToolsUnsupported, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	var chatResponse OllamaChatResponse
	if err := json.Unmarshal(body, &chatResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if chatResponse.Error != "" {
		if len(request.Tools) > 0 && isUnsupportedToolsError(chatResponse.Error) {
			return nil, fmt.Errorf("%w: %s", ErrToolsUnsupported, chatResponse.Error)
		}
		return nil, fmt.Errorf("API error: %s", chatResponse.Error)
	}

	logger.Debug("Ollama response received", "backend", "ollama", "tool_calls", len(chatResponse.Message.ToolCalls))
	return &chatResponse, nil
}
