package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// setupTestEnvironment loads .env file and returns API key if available
func setupTestEnvironment(t *testing.T) string {
	_ = godotenv.Load("../../.env")

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set - skipping real API tests")
	}
	return apiKey
}

func TestNewGeminiClient(t *testing.T) {
	client := NewGeminiClient("test-api-key")
	assert.Equal(t, "test-api-key", client.apiKey)
	assert.Nil(t, client.client)
	assert.True(t, client.IsConfigured())

	assert.False(t, NewGeminiClient("").IsConfigured())
}

func TestGeminiClient_NotConfigured(t *testing.T) {
	client := NewGeminiClient("")

	_, err := client.GenerateContent(context.Background(), "gemini-2.0-flash", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not configured")
	assert.Nil(t, client.client)
}

func TestGeminiClient_GenerateContentAgainstFakeEndpoint(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"pong"}]}}]}`))
	}))
	defer server.Close()

	client := NewGeminiClient("test-api-key")
	client.SetBaseURL(server.URL)

	resp, err := client.GenerateContent(context.Background(), "gemini-2.0-flash",
		[]*genai.Content{genai.NewContentFromText("ping", genai.RoleUser)}, nil)
	require.NoError(t, err)

	content, err := firstCandidate(resp)
	require.NoError(t, err)
	assert.Equal(t, "pong", extractText(content))
	assert.True(t, strings.HasSuffix(gotPath, "gemini-2.0-flash:generateContent"), gotPath)
	assert.Contains(t, gotBody, "contents")
	assert.NotNil(t, client.client)
}

func TestGeminiClient_SetHTTPClientResetsSDKClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]}}]}`))
	}))
	defer server.Close()

	client := NewGeminiClient("test-api-key")
	client.SetBaseURL(server.URL)
	_, err := client.GenerateContent(context.Background(), "m", []*genai.Content{genai.NewContentFromText("x", genai.RoleUser)}, nil)
	require.NoError(t, err)
	require.NotNil(t, client.client)

	client.SetHTTPClient(server.Client())
	assert.Nil(t, client.client)
}

func TestGeminiClient_ConcurrentResetDuringRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]}}]}`))
	}))
	defer server.Close()

	client := NewGeminiClient("test-api-key")
	client.SetBaseURL(server.URL)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := client.GenerateContent(context.Background(), "m",
				[]*genai.Content{genai.NewContentFromText("x", genai.RoleUser)}, nil)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			client.SetHTTPClient(server.Client())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestGeminiClient_GenerateContent_RealAPI(t *testing.T) {
	apiKey := setupTestEnvironment(t)

	client := NewGeminiClient(apiKey)
	resp, err := client.GenerateContent(context.Background(), "gemini-2.0-flash",
		[]*genai.Content{genai.NewContentFromText("Reply with the single word: pong", genai.RoleUser)}, nil)
	require.NoError(t, err)
	content, err := firstCandidate(resp)
	require.NoError(t, err)
	assert.NotEmpty(t, extractText(content))
}
