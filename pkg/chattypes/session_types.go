// Package chattypes defines conversation, persona and backend session types for neurochat.
package chattypes

import (
	"context"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

// Conversation roles. Tool traffic lives only in backend transcripts, never in the history.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry of the conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ClarificationRequest is a question the model wants the user to answer before continuing.
type ClarificationRequest struct {
	Question string `json:"question"`
}

// SamplingParams are fixed for the lifetime of a backend session.
type SamplingParams struct {
	Temperature float64 `mapstructure:"temperature" json:"temperature"`
	TopP        float64 `mapstructure:"top_p" json:"top_p"`
	TopK        int     `mapstructure:"top_k" json:"top_k"`
}

// Persona is a named system instruction bundle.
type Persona struct {
	ID                string `yaml:"id" json:"id"`
	DisplayName       string `yaml:"display_name" json:"display_name"`
	SystemInstruction string `yaml:"system_instruction" json:"system_instruction"`
}

// BackendKind enumerates the supported text-generation backends.
type BackendKind string

// Supported backends. The set is closed.
const (
	BackendGemini BackendKind = "gemini"
	BackendLocal  BackendKind = "local"
	BackendOllama BackendKind = "ollama"
)

// BackendKinds lists every supported backend.
func BackendKinds() []BackendKind {
	return []BackendKind{BackendGemini, BackendLocal, BackendOllama}
}

// ParseBackendKind validates a backend name.
func ParseBackendKind(name string) (BackendKind, bool) {
	for _, kind := range BackendKinds() {
		if string(kind) == name {
			return kind, true
		}
	}
	return "", false
}

// TurnResult is the terminal state of one backend turn: either final text or a clarification.
type TurnResult struct {
	Text          string
	Clarification *ClarificationRequest
	// Notice carries informational messages such as a capability downgrade.
	Notice string
}

// IsClarification reports whether the turn stopped to ask the user a question.
func (t TurnResult) IsClarification() bool {
	return t.Clarification != nil
}

// BackendSession runs the multi-round tool-calling loop for one backend.
// A session persists across turns and is replaced, never reset, on persona or backend switch.
type BackendSession interface {
	// Kind returns the backend this session talks to.
	Kind() BackendKind

	// Send runs one turn for the given user text and returns its terminal state. A failed turn
	// leaves the transcript as it was; its result may still carry a Notice.
	Send(ctx context.Context, text string) (TurnResult, error)

	// ToolsEnabled reports whether tool declarations are still sent with requests.
	ToolsEnabled() bool
}

// BackendFactory constructs backend sessions seeded with prior history.
type BackendFactory interface {
	NewSession(kind BackendKind, systemInstruction string, seed []Message) (BackendSession, error)
}

// Reply is what the conversation orchestrator hands back for one user message.
type Reply struct {
	Text          string                `json:"text,omitempty"`
	Clarification *ClarificationRequest `json:"clarification,omitempty"`
	Fallback      bool                  `json:"fallback,omitempty"`
	Notice        string                `json:"notice,omitempty"`
}
