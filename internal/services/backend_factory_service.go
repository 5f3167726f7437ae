package services

import (
	"fmt"
	"net/http"
	"sync"

	"neurochat/internal/config"
	"neurochat/internal/logger"
	"neurochat/pkg/chattypes"
)

// BackendFactoryService builds backend sessions from configuration. Every session shares the
// same tool executor and the per-backend clients, which are created on first use.
type BackendFactoryService struct {
	mu          sync.Mutex
	initialized bool
	cfg         *config.Config
	executor    ToolExecutor
	httpClient  *http.Client

	gemini  *GeminiClient
	runtime FunctionRuntime
	ollama  *OllamaClient
}

// NewBackendFactoryService creates a factory for the given configuration and tool executor.
func NewBackendFactoryService(cfg *config.Config, executor ToolExecutor) *BackendFactoryService {
	return &BackendFactoryService{cfg: cfg, executor: executor}
}

// Name returns the service name "backend_factory" for registration.
func (f *BackendFactoryService) Name() string {
	return "backend_factory"
}

// Initialize validates the configured default backend.
func (f *BackendFactoryService) Initialize() error {
	if f.cfg == nil {
		return fmt.Errorf("backend factory requires a configuration")
	}
	if _, err := f.cfg.BackendKind(); err != nil {
		return err
	}
	f.initialized = true
	return nil
}

// SetHTTPClient routes every backend's HTTP traffic through the given client.
func (f *BackendFactoryService) SetHTTPClient(client *http.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.httpClient = client
}

// SetFunctionRuntime replaces the local backend's runtime.
func (f *BackendFactoryService) SetFunctionRuntime(runtime FunctionRuntime) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runtime = runtime
}

// NewSession builds a backend session of the given kind seeded with prior history.
func (f *BackendFactoryService) NewSession(kind chattypes.BackendKind, systemInstruction string, seed []chattypes.Message) (chattypes.BackendSession, error) {
	if !f.initialized {
		return nil, fmt.Errorf("backend factory service not initialized")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logger.Debug("Creating backend session", "backend", kind, "seed_messages", len(seed))

	switch kind {
	case chattypes.BackendGemini:
		if f.gemini == nil {
			f.gemini = NewGeminiClient(f.cfg.Gemini.APIKey)
			if f.httpClient != nil {
				f.gemini.SetHTTPClient(f.httpClient)
			}
			if f.cfg.Gemini.BaseURL != "" {
				f.gemini.SetBaseURL(f.cfg.Gemini.BaseURL)
			}
		}
		if !f.gemini.IsConfigured() {
			return nil, fmt.Errorf("gemini backend requires an API key (set NEUROCHAT_GEMINI_API_KEY or GEMINI_API_KEY)")
		}
		return NewGeminiSession(f.gemini, f.executor, GeminiSessionConfig{
			Model:             f.cfg.Gemini.Model,
			SystemInstruction: systemInstruction,
			Sampling:          f.cfg.Sampling,
			EnableTools:       f.cfg.EnableTools,
		}, seed), nil

	case chattypes.BackendLocal:
		if f.runtime == nil {
			f.runtime = NewLlamaRuntime(LlamaRuntimeConfig{
				BaseURL:           f.cfg.Llama.BaseURL,
				APIKey:            f.cfg.Llama.APIKey,
				Model:             f.cfg.Llama.Model,
				MaxFunctionRounds: f.cfg.Llama.MaxFunctionRounds,
				HTTPClient:        f.httpClient,
			})
		}
		return NewLocalSession(f.runtime, f.executor, LocalSessionConfig{
			SystemInstruction: systemInstruction,
			Sampling:          f.cfg.Sampling,
			EnableTools:       f.cfg.EnableTools,
		}, seed), nil

	case chattypes.BackendOllama:
		if f.ollama == nil {
			f.ollama = NewOllamaClient(f.cfg.Ollama.BaseURL, f.httpClient)
		}
		return NewOllamaSession(f.ollama, f.executor, OllamaSessionConfig{
			Model:             f.cfg.Ollama.Model,
			SystemInstruction: systemInstruction,
			Sampling:          f.cfg.Sampling,
			EnableTools:       f.cfg.EnableTools,
			RequestTimeout:    f.cfg.RequestTimeout,
		}, seed), nil

	default:
		return nil, fmt.Errorf("unsupported backend '%s'. Supported backends: gemini, local, ollama", kind)
	}
}
