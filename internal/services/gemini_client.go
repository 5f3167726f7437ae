package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"neurochat/internal/logger"

	"google.golang.org/genai"
)

// GeminiModels is the slice of the genai API the native session needs.
type GeminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient provides lazy initialization of the Gemini client.
// The underlying genai client is created only when the first request is made.
type GeminiClient struct {
	mu         sync.Mutex
	apiKey     string
	client     *genai.Client
	httpClient *http.Client
	baseURL    string
}

// NewGeminiClient creates a new Gemini client with lazy initialization.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey: apiKey,
		client: nil, // Will be initialized lazily
	}
}

// SetHTTPClient overrides the HTTP client used by the genai SDK.
func (c *GeminiClient) SetHTTPClient(httpClient *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient = httpClient
	// Clear the existing client to force re-initialization with the new transport
	c.client = nil
}

// SetBaseURL points the SDK at a different API endpoint.
func (c *GeminiClient) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = baseURL
	c.client = nil
}

// IsConfigured returns true if the client has a valid API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

// initializeClientIfNeeded returns the SDK client, creating it on first use.
func (c *GeminiClient) initializeClientIfNeeded(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	if c.apiKey == "" {
		return nil, fmt.Errorf("google API key not configured")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.httpClient != nil {
		clientConfig.HTTPClient = c.httpClient
	}
	if c.baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c.client = client
	logger.Debug("Gemini client initialized", "backend", "gemini")
	return client, nil
}

// GenerateContent sends one generateContent request, initializing the SDK client on first use.
func (c *GeminiClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	client, err := c.initializeClientIfNeeded(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	result, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		logger.Error("Gemini request failed", "error", err)
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	return result, nil
}
