package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"neurochat/internal/logger"
	"neurochat/pkg/chattypes"
)

// ConversationService turns one user message into one reply. It keeps the conversation history
// consistent: even after a completed turn, odd while a clarification waits for an answer.
type ConversationService struct {
	turn        sync.Mutex
	initialized bool
	state       *SessionStateService
	language    string
}

// NewConversationService creates an orchestrator over the given session state.
func NewConversationService(state *SessionStateService, language string) *ConversationService {
	return &ConversationService{state: state, language: language}
}

// Name returns the service name "conversation" for registration.
func (c *ConversationService) Name() string {
	return "conversation"
}

// Initialize checks the session state dependency.
func (c *ConversationService) Initialize() error {
	if c.state == nil {
		return fmt.Errorf("conversation service requires session state")
	}
	c.initialized = true
	return nil
}

// SendMessage runs one conversational turn. Backend failures are not returned as errors: they
// become a localized fallback reply that is also recorded in the history. The backend session
// drops the failed exchange from its own transcript, so the model never sees the fallback text
// until a switch or resume reseeds it from the history.
func (c *ConversationService) SendMessage(ctx context.Context, text string) (chattypes.Reply, error) {
	if !c.turn.TryLock() {
		return chattypes.Reply{}, ErrTurnInProgress
	}
	defer c.turn.Unlock()

	if strings.TrimSpace(text) == "" {
		return chattypes.Reply{}, ErrEmptyMessage
	}

	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return chattypes.Reply{}, ErrNoBackendSession
	}

	if s.pending != nil {
		s.history = append(s.history, s.messageLocked(chattypes.RoleAssistant, s.pending.Question))
		s.pending = nil
	}
	s.history = append(s.history, s.messageLocked(chattypes.RoleUser, text))

	result, err := s.session.Send(ctx, text)
	if err != nil {
		logger.Error("Turn failed", "backend", s.kind, "error", err)
		fallback := FallbackMessage(c.language, err)
		s.history = append(s.history, s.messageLocked(chattypes.RoleAssistant, fallback))
		return chattypes.Reply{Text: fallback, Fallback: true, Notice: result.Notice}, nil
	}

	if result.IsClarification() {
		s.pending = result.Clarification
		logger.Debug("Clarification requested", "backend", s.kind, "question", result.Clarification.Question)
		return chattypes.Reply{Clarification: result.Clarification, Notice: result.Notice}, nil
	}

	s.history = append(s.history, s.messageLocked(chattypes.RoleAssistant, result.Text))
	return chattypes.Reply{Text: result.Text, Notice: result.Notice}, nil
}
