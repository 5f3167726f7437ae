// Package config loads neurochat configuration from defaults, config files, .env files and
// environment variables using viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"neurochat/internal/logger"
	"neurochat/pkg/chattypes"
)

// EnvPrefix is the prefix of every environment variable read by neurochat.
const EnvPrefix = "NEUROCHAT"

// GeminiConfig configures the cloud backend.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// BaseURL overrides the API endpoint, for proxies and gateways.
	BaseURL string `mapstructure:"base_url"`
}

// LlamaConfig configures the locally hosted model runtime.
type LlamaConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	Model             string `mapstructure:"model"`
	MaxFunctionRounds int    `mapstructure:"max_function_rounds"`
}

// OllamaConfig configures the REST backend.
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// ToolHostConfig configures the external tool backend process.
// An empty Command runs this binary's tool-server subcommand.
type ToolHostConfig struct {
	Command string `mapstructure:"command"`
}

// Config is the complete runtime configuration.
type Config struct {
	Backend        string                   `mapstructure:"backend"`
	Persona        string                   `mapstructure:"persona"`
	Language       string                   `mapstructure:"language"`
	EnableTools    bool                     `mapstructure:"enable_tools"`
	SessionsDir    string                   `mapstructure:"sessions_dir"`
	RequestTimeout time.Duration            `mapstructure:"request_timeout"`
	Sampling       chattypes.SamplingParams `mapstructure:"sampling"`
	Gemini         GeminiConfig             `mapstructure:"gemini"`
	Llama          LlamaConfig              `mapstructure:"llama"`
	Ollama         OllamaConfig             `mapstructure:"ollama"`
	ToolHost       ToolHostConfig           `mapstructure:"tool_host"`
}

// BackendKind returns the configured backend as a typed value.
func (c *Config) BackendKind() (chattypes.BackendKind, error) {
	kind, ok := chattypes.ParseBackendKind(c.Backend)
	if !ok {
		return "", fmt.Errorf("unsupported backend '%s'. Supported backends: gemini, local, ollama", c.Backend)
	}
	return kind, nil
}

// UserConfigDir returns ~/.config/neurochat (or the platform equivalent).
func UserConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "neurochat"), nil
}

func setDefaults(v *viper.Viper) {
	sessionsDir := "sessions"
	if dir, err := UserConfigDir(); err == nil {
		sessionsDir = filepath.Join(dir, "sessions")
	}

	v.SetDefault("backend", string(chattypes.BackendGemini))
	v.SetDefault("persona", "default")
	v.SetDefault("language", "en")
	v.SetDefault("enable_tools", true)
	v.SetDefault("sessions_dir", sessionsDir)
	v.SetDefault("request_timeout", "120s")
	v.SetDefault("sampling.temperature", 0.7)
	v.SetDefault("sampling.top_p", 0.95)
	v.SetDefault("sampling.top_k", 40)
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("llama.base_url", "http://127.0.0.1:8080/v1")
	v.SetDefault("llama.api_key", "local")
	v.SetDefault("llama.model", "local-model")
	v.SetDefault("llama.max_function_rounds", 8)
	v.SetDefault("ollama.base_url", "http://127.0.0.1:11434")
	v.SetDefault("ollama.model", "llama3.1")
	v.SetDefault("tool_host.command", "")
}

// loadDotEnv loads ~/.config/neurochat/.env then ./.env. Existing variables win.
func loadDotEnv() {
	if dir, err := UserConfigDir(); err == nil {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				logger.Warn("Failed to load config .env", "path", path, "error", err)
			}
		}
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			logger.Warn("Failed to load local .env", "error", err)
		}
	}
}

// Load builds the configuration. An explicit configFile must exist; otherwise config.yaml is
// looked up in the user config directory and the working directory. Flags maps config keys to
// command-line flags that take precedence when set.
func Load(configFile string, flags map[string]*pflag.Flag) (*Config, error) {
	loadDotEnv()
	v := viper.New()
	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}
	return load(v, configFile)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := UserConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	if _, err := cfg.BackendKind(); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request_timeout must be positive, got %s", cfg.RequestTimeout)
	}

	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("Configuration loaded", "file", used, "backend", cfg.Backend)
	}
	return &cfg, nil
}
