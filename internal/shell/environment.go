// Package shell wires neurochat's services together and drives the interactive chat REPL.
package shell

import (
	"fmt"
	"os"
	"strings"

	"neurochat/internal/config"
	"neurochat/internal/logger"
	"neurochat/internal/services"
	"neurochat/internal/storage"
	"neurochat/pkg/chattypes"
)

// Options adjusts how the environment is assembled.
type Options struct {
	TestMode bool
	Plain    bool
	// Factory replaces the configured backend factory.
	Factory chattypes.BackendFactory
	// ToolHost replaces the external tool backend process.
	ToolHost services.ToolHost
}

// Environment is the set of initialized services behind one chat session.
type Environment struct {
	Config       *config.Config
	Registry     *services.Registry
	Store        *storage.ThreadStore
	Dispatcher   *services.ToolDispatcher
	Personas     *services.PersonaService
	State        *services.SessionStateService
	Conversation *services.ConversationService
	Render       *services.RenderService
}

// InitializeServices registers and initializes every service, then starts a conversation with
// the configured persona and backend.
func InitializeServices(cfg *config.Config, opts Options) (*Environment, error) {
	kind, err := cfg.BackendKind()
	if err != nil {
		return nil, err
	}

	host := opts.ToolHost
	if host == nil {
		command, args, err := toolHostCommand(cfg)
		if err != nil {
			return nil, err
		}
		host = services.NewToolHostClient(command, args...)
	}

	env := &Environment{
		Config:     cfg,
		Registry:   services.NewRegistry(),
		Store:      storage.NewThreadStore(cfg.SessionsDir),
		Dispatcher: services.NewToolDispatcher(host),
		Personas:   services.NewPersonaService(),
		Render:     services.NewRenderService(opts.Plain),
	}

	factory := opts.Factory
	registered := []chattypes.Service{env.Dispatcher, env.Personas}
	if factory == nil {
		backendFactory := services.NewBackendFactoryService(cfg, env.Dispatcher)
		registered = append(registered, backendFactory)
		factory = backendFactory
	}

	env.State = services.NewSessionStateService(factory, env.Personas, env.Store, services.SessionStateOptions{
		TestMode: opts.TestMode,
		ModelNames: map[chattypes.BackendKind]string{
			chattypes.BackendGemini: cfg.Gemini.Model,
			chattypes.BackendLocal:  cfg.Llama.Model,
			chattypes.BackendOllama: cfg.Ollama.Model,
		},
	})
	env.Conversation = services.NewConversationService(env.State, cfg.Language)
	registered = append(registered, env.State, env.Conversation, env.Render)

	for _, service := range registered {
		if err := env.Registry.RegisterService(service); err != nil {
			return nil, err
		}
	}
	if err := env.Registry.InitializeAll(); err != nil {
		return nil, err
	}

	personaID := cfg.Persona
	if personaID == "" {
		persona, err := env.Personas.Default()
		if err != nil {
			return nil, err
		}
		personaID = persona.ID
	}
	if err := env.State.Start(personaID, kind); err != nil {
		_ = env.Close()
		return nil, err
	}

	logger.Debug("Services initialized", "backend", kind, "persona", personaID)
	return env, nil
}

// Close releases the tool backend process and any other held resources.
func (e *Environment) Close() error {
	return e.Registry.CloseAll()
}

// toolHostCommand resolves the command line of the external tool backend. Without an explicit
// command it runs this binary's tool-server subcommand against the sessions directory.
func toolHostCommand(cfg *config.Config) (string, []string, error) {
	if fields := strings.Fields(cfg.ToolHost.Command); len(fields) > 0 {
		return fields[0], fields[1:], nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("failed to locate neurochat binary for the tool server: %w", err)
	}
	return self, []string{"tool-server", "--sessions-dir", cfg.SessionsDir}, nil
}
