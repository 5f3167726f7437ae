package services

import (
	"context"
	"errors"

	"neurochat/internal/storage"
	"neurochat/pkg/chattypes"
)

// ScriptedSession is a backend session that replays scripted turn outcomes.
type ScriptedSession struct {
	kind         chattypes.BackendKind
	instruction  string
	seed         []chattypes.Message
	results      []chattypes.TurnResult
	errs         []error
	prompts      []string
	toolsEnabled bool
	// failNotice is returned alongside scripted errors.
	failNotice string
}

func (s *ScriptedSession) Kind() chattypes.BackendKind { return s.kind }

func (s *ScriptedSession) ToolsEnabled() bool { return s.toolsEnabled }

func (s *ScriptedSession) Send(_ context.Context, text string) (chattypes.TurnResult, error) {
	s.prompts = append(s.prompts, text)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return chattypes.TurnResult{Notice: s.failNotice}, err
		}
	}
	if len(s.results) == 0 {
		return chattypes.TurnResult{}, errors.New("no scripted result")
	}
	result := s.results[0]
	s.results = s.results[1:]
	return result, nil
}

// FakeFactory hands out ScriptedSessions and remembers every one it built.
type FakeFactory struct {
	sessions []*ScriptedSession
	script   func(*ScriptedSession)
	err      error
}

func (f *FakeFactory) NewSession(kind chattypes.BackendKind, systemInstruction string, seed []chattypes.Message) (chattypes.BackendSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	session := &ScriptedSession{
		kind:         kind,
		instruction:  systemInstruction,
		seed:         append([]chattypes.Message(nil), seed...),
		toolsEnabled: true,
	}
	if f.script != nil {
		f.script(session)
	}
	f.sessions = append(f.sessions, session)
	return session, nil
}

func (f *FakeFactory) Last() *ScriptedSession {
	return f.sessions[len(f.sessions)-1]
}

const testPersonas = `
default: plain
personas:
  - id: plain
    display_name: Plain
    system_instruction: You are plain.
  - id: pirate
    display_name: Pirate
    system_instruction: You are a pirate.
`

func newTestState(factory chattypes.BackendFactory, store *storage.ThreadStore) *SessionStateService {
	personas := NewPersonaServiceFromData([]byte(testPersonas))
	if err := personas.Initialize(); err != nil {
		panic(err)
	}
	state := NewSessionStateService(factory, personas, store, SessionStateOptions{
		TestMode:   true,
		ModelNames: map[chattypes.BackendKind]string{chattypes.BackendOllama: "llama3.1"},
	})
	if err := state.Initialize(); err != nil {
		panic(err)
	}
	return state
}

func textTurn(text string) chattypes.TurnResult {
	return chattypes.TurnResult{Text: text}
}

func questionTurn(question string) chattypes.TurnResult {
	return clarificationResult(question)
}
