package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"

	"neurochat/internal/logger"
	"neurochat/internal/services"
	"neurochat/pkg/chattypes"
)

const helpText = `Commands:
  /persona <id>     switch persona, keeping the conversation
  /personas         list personas
  /backend <name>   switch backend (gemini, local, ollama)
  /threads          list saved threads
  /save             save the conversation
  /resume <file>    continue a saved thread
  /history          show the conversation
  /status           show session, persona, backend and any pending question
  /help             show this help
  /exit             quit
Anything else is sent to the model.`

// Handler routes REPL input to slash commands or the conversation.
type Handler struct {
	env *Environment
}

// NewHandler creates a handler over an initialized environment.
func NewHandler(env *Environment) *Handler {
	return &Handler{env: env}
}

// LineReader reads one line of input per call, exactly as typed.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// Prompt returns the REPL prompt for the live persona and backend. A question mark shows that
// the model is waiting for an answer.
func (h *Handler) Prompt() string {
	marker := ""
	if h.env.State.PendingClarification() != nil {
		marker = "?"
	}
	return fmt.Sprintf("%s@%s%s> ", h.env.State.ActivePersona().ID, h.env.State.Backend(), marker)
}

// Run reads lines until /exit or end of input. Ctrl-C on an empty line also exits.
func (h *Handler) Run(rl LineReader, out io.Writer) error {
	for {
		rl.SetPrompt(h.Prompt())
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if strings.TrimSpace(line) == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("failed to read input: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		exit := h.Handle(ctx, line, out)
		stop()
		if exit {
			return nil
		}
	}
}

// Handle processes one line of input and reports whether the REPL should exit.
func (h *Handler) Handle(ctx context.Context, input string, out io.Writer) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}
	if !strings.HasPrefix(input, "/") {
		h.send(ctx, input, out)
		return false
	}

	fields := strings.Fields(input)
	command, args := fields[0], fields[1:]
	switch command {
	case "/exit", "/quit":
		return true
	case "/help":
		fmt.Fprintln(out, helpText)
	case "/persona":
		h.switchPersona(args, out)
	case "/personas":
		fmt.Fprintln(out, h.env.Render.RenderPersonas(h.env.Personas.List(), h.env.State.ActivePersona().ID))
	case "/backend":
		h.switchBackend(args, out)
	case "/history":
		fmt.Fprintln(out, h.env.Render.RenderHistory(h.env.State.History()))
	case "/save":
		filename, err := h.env.State.Save()
		if err != nil {
			h.fail(out, "save", err)
			return false
		}
		fmt.Fprintf(out, "Saved %s\n", filename)
	case "/threads":
		h.listThreads(out)
	case "/status":
		h.status(out)
	case "/resume":
		if len(args) != 1 {
			fmt.Fprintln(out, "Usage: /resume <file>")
			return false
		}
		if err := h.env.State.Resume(args[0], h.env.State.Backend()); err != nil {
			h.fail(out, "resume", err)
			return false
		}
		fmt.Fprintf(out, "Resumed %s (%d messages)\n", args[0], len(h.env.State.History()))
	default:
		fmt.Fprintf(out, "Unknown command %s. Type /help for commands.\n", command)
	}
	return false
}

func (h *Handler) send(ctx context.Context, text string, out io.Writer) {
	reply, err := h.env.Conversation.SendMessage(ctx, text)
	if err != nil {
		h.fail(out, "send", err)
		return
	}
	fmt.Fprintln(out, h.env.Render.RenderReply(reply))
}

func (h *Handler) switchPersona(args []string, out io.Writer) {
	if len(args) != 1 {
		fmt.Fprintln(out, "Usage: /persona <id>")
		return
	}
	if err := h.env.State.SwitchPersona(args[0]); err != nil {
		h.fail(out, "persona", err)
		return
	}
	persona := h.env.State.ActivePersona()
	fmt.Fprintf(out, "Persona switched to %s (%s)\n", persona.ID, persona.DisplayName)
}

func (h *Handler) switchBackend(args []string, out io.Writer) {
	if len(args) != 1 {
		fmt.Fprintln(out, "Usage: /backend <gemini|local|ollama>")
		return
	}
	kind, ok := chattypes.ParseBackendKind(args[0])
	if !ok {
		fmt.Fprintf(out, "Unknown backend %s. Choose gemini, local or ollama.\n", args[0])
		return
	}
	if err := h.env.State.SwitchBackend(kind); err != nil {
		h.fail(out, "backend", err)
		return
	}
	fmt.Fprintf(out, "Backend switched to %s\n", kind)
}

func (h *Handler) status(out io.Writer) {
	state := h.env.State
	persona := state.ActivePersona()
	tools := "off"
	if state.ToolsEnabled() {
		tools = "on"
	}
	fmt.Fprintf(out, "session  %s\n", state.SessionID())
	fmt.Fprintf(out, "persona  %s (%s)\n", persona.ID, persona.DisplayName)
	fmt.Fprintf(out, "backend  %s (tools %s)\n", state.Backend(), tools)
	if pending := state.PendingClarification(); pending != nil {
		fmt.Fprintf(out, "pending  %s\n", pending.Question)
	}
}

func (h *Handler) listThreads(out io.Writer) {
	threads, err := h.env.Store.List()
	if err != nil {
		h.fail(out, "threads", err)
		return
	}
	if len(threads) == 0 {
		fmt.Fprintln(out, "No saved threads.")
		return
	}
	for _, thread := range threads {
		fmt.Fprintf(out, "%s  %s\n", thread.UpdatedAt, thread.Filename)
	}
}

func (h *Handler) fail(out io.Writer, action string, err error) {
	logger.Debug("REPL command failed", "command", action, "error", err)
	switch {
	case errors.Is(err, services.ErrClarificationPending):
		fmt.Fprintln(out, "Answer the pending question first.")
	case errors.Is(err, services.ErrTurnInProgress):
		fmt.Fprintln(out, "Still waiting for the previous reply.")
	default:
		fmt.Fprintf(out, "Error: %s\n", err.Error())
	}
}
