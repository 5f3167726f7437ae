package services

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"neurochat/internal/logger"
	"neurochat/internal/storage"
	"neurochat/internal/testutils"
	"neurochat/pkg/chattypes"
)

// maxTitleRunes bounds the stored thread title.
const maxTitleRunes = 48

// SessionStateOptions configures the session state service.
type SessionStateOptions struct {
	TestMode bool
	// ModelNames maps each backend to the model recorded in saved threads.
	ModelNames map[chattypes.BackendKind]string
}

// SessionStateService owns the live conversation: its history, persona, backend session and
// pending clarification. It replaces the backend session on persona or backend switches.
type SessionStateService struct {
	mu          sync.Mutex
	initialized bool
	factory     chattypes.BackendFactory
	personas    *PersonaService
	store       *storage.ThreadStore
	opts        SessionStateOptions

	sessionID string
	persona   chattypes.Persona
	kind      chattypes.BackendKind
	session   chattypes.BackendSession
	history   []chattypes.Message
	pending   *chattypes.ClarificationRequest
}

// NewSessionStateService creates a state service. The store may be nil when persistence is not needed.
func NewSessionStateService(factory chattypes.BackendFactory, personas *PersonaService, store *storage.ThreadStore, opts SessionStateOptions) *SessionStateService {
	return &SessionStateService{
		factory:  factory,
		personas: personas,
		store:    store,
		opts:     opts,
	}
}

// Name returns the service name "session_state" for registration.
func (s *SessionStateService) Name() string {
	return "session_state"
}

// Initialize checks the service's collaborators.
func (s *SessionStateService) Initialize() error {
	if s.factory == nil {
		return fmt.Errorf("session state requires a backend factory")
	}
	if s.personas == nil {
		return fmt.Errorf("session state requires a persona service")
	}
	s.initialized = true
	logger.Debug("Session state service initialized")
	return nil
}

// Start begins a fresh conversation with the given persona and backend.
func (s *SessionStateService) Start(personaID string, kind chattypes.BackendKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("session state service not initialized")
	}
	persona, err := s.personas.Get(personaID)
	if err != nil {
		return err
	}

	session, err := s.factory.NewSession(kind, persona.SystemInstruction, nil)
	if err != nil {
		return fmt.Errorf("failed to start %s session: %w", kind, err)
	}

	s.sessionID = testutils.GenerateUUID(s.opts.TestMode)
	s.persona = persona
	s.kind = kind
	s.session = session
	s.history = nil
	s.pending = nil
	logger.Info("Conversation started", "session_id", s.sessionID, "persona", persona.ID, "backend", kind)
	return nil
}

// SwitchPersona replaces the backend session with one built from the new persona's
// system instruction and the full history.
func (s *SessionStateService) SwitchPersona(personaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSwitchableLocked(); err != nil {
		return err
	}
	persona, err := s.personas.Get(personaID)
	if err != nil {
		return err
	}
	if err := s.replaceSessionLocked(persona, s.kind); err != nil {
		return err
	}
	logger.Info("Persona switched", "persona", persona.ID, "history", len(s.history))
	return nil
}

// SwitchBackend replaces the backend session with one for another backend, keeping persona and history.
func (s *SessionStateService) SwitchBackend(kind chattypes.BackendKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSwitchableLocked(); err != nil {
		return err
	}
	if err := s.replaceSessionLocked(s.persona, kind); err != nil {
		return err
	}
	logger.Info("Backend switched", "backend", kind, "history", len(s.history))
	return nil
}

func (s *SessionStateService) checkSwitchableLocked() error {
	if s.session == nil {
		return ErrNoBackendSession
	}
	if s.pending != nil {
		return ErrClarificationPending
	}
	return nil
}

// replaceSessionLocked builds the new session first so a failure leaves the old one in place.
func (s *SessionStateService) replaceSessionLocked(persona chattypes.Persona, kind chattypes.BackendKind) error {
	seed := append([]chattypes.Message(nil), s.history...)
	session, err := s.factory.NewSession(kind, persona.SystemInstruction, seed)
	if err != nil {
		return fmt.Errorf("failed to create %s session: %w", kind, err)
	}
	s.session = session
	s.persona = persona
	s.kind = kind
	return nil
}

// Save writes the conversation to the thread store and returns the file name.
// A pending question is stored as the last assistant message.
func (s *SessionStateService) Save() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return "", fmt.Errorf("no thread store configured")
	}
	if s.session == nil {
		return "", ErrNoBackendSession
	}

	messages := append([]chattypes.Message(nil), s.history...)
	if s.pending != nil {
		messages = append(messages, s.messageLocked(chattypes.RoleAssistant, s.pending.Question))
	}

	thread := &storage.Thread{
		Metadata: storage.ThreadMetadata{
			SessionID:   s.sessionID,
			Model:       s.modelLabelLocked(),
			SystemRole:  s.persona.SystemInstruction,
			AssistantID: s.persona.ID,
			Title:       titleFor(messages),
		},
		Messages: messages,
	}
	filename, err := s.store.Save(thread)
	if err != nil {
		return "", err
	}
	logger.Debug("Conversation saved", "file", filename, "messages", len(messages))
	return filename, nil
}

// Resume loads a saved thread and starts a backend session seeded with it. The backend recorded
// in the thread is used when valid, otherwise fallback.
func (s *SessionStateService) Resume(filename string, fallback chattypes.BackendKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("session state service not initialized")
	}
	if s.store == nil {
		return fmt.Errorf("no thread store configured")
	}

	thread, err := s.store.Load(filename)
	if err != nil {
		return err
	}

	persona, err := s.personas.Get(thread.Metadata.AssistantID)
	if err != nil {
		persona = chattypes.Persona{
			ID:                "custom",
			DisplayName:       "Custom",
			SystemInstruction: thread.Metadata.SystemRole,
		}
	}

	kind := fallback
	if recorded, ok := chattypes.ParseBackendKind(strings.SplitN(thread.Metadata.Model, ":", 2)[0]); ok {
		kind = recorded
	}

	history := thread.Messages
	if len(history)%2 == 1 {
		history = history[:len(history)-1]
	}

	session, err := s.factory.NewSession(kind, persona.SystemInstruction, history)
	if err != nil {
		return fmt.Errorf("failed to resume %s session: %w", kind, err)
	}

	s.sessionID = thread.Metadata.SessionID
	if s.sessionID == "" {
		s.sessionID = testutils.GenerateUUID(s.opts.TestMode)
	}
	s.persona = persona
	s.kind = kind
	s.session = session
	s.history = append([]chattypes.Message(nil), history...)
	s.pending = nil
	logger.Info("Conversation resumed", "file", filename, "messages", len(history), "backend", kind)
	return nil
}

// History returns a copy of the conversation history.
func (s *SessionStateService) History() []chattypes.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chattypes.Message(nil), s.history...)
}

// ActivePersona returns the persona of the live session.
func (s *SessionStateService) ActivePersona() chattypes.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

// Backend returns the kind of the live backend session.
func (s *SessionStateService) Backend() chattypes.BackendKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// SessionID returns the id of the live conversation.
func (s *SessionStateService) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// PendingClarification returns the unanswered question, if any.
func (s *SessionStateService) PendingClarification() *chattypes.ClarificationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// ToolsEnabled reports whether the live backend session still sends tools.
func (s *SessionStateService) ToolsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil && s.session.ToolsEnabled()
}

func (s *SessionStateService) messageLocked(role chattypes.Role, text string) chattypes.Message {
	return chattypes.Message{Role: role, Text: text, Timestamp: testutils.GetCurrentTime(s.opts.TestMode)}
}

func (s *SessionStateService) modelLabelLocked() string {
	if name := s.opts.ModelNames[s.kind]; name != "" {
		return string(s.kind) + ":" + name
	}
	return string(s.kind)
}

// titleFor derives a thread title from the first user message.
func titleFor(messages []chattypes.Message) string {
	for _, msg := range messages {
		if msg.Role != chattypes.RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(msg.Text), " ")
		if utf8.RuneCountInString(title) > maxTitleRunes {
			title = string([]rune(title)[:maxTitleRunes])
		}
		return title
	}
	return ""
}
