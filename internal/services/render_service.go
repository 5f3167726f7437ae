package services

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"neurochat/internal/logger"
	"neurochat/pkg/chattypes"
)

const (
	// defaultWordWrap is the markdown wrap width for assistant replies.
	defaultWordWrap = 100
	// historyEntryWidth caps one transcript entry in /history.
	historyEntryWidth = 240
)

// RenderService formats replies and history for the terminal. Assistant text is rendered as
// markdown with glamour; clarifications, notices and fallbacks get their own lipgloss styles.
type RenderService struct {
	initialized bool
	plain       bool
	renderer    *glamour.TermRenderer

	question lipgloss.Style
	notice   lipgloss.Style
	warning  lipgloss.Style
	label    lipgloss.Style
}

// NewRenderService creates a renderer. plain forces uncolored output.
func NewRenderService(plain bool) *RenderService {
	return &RenderService{plain: plain}
}

// Name returns the service name "render" for registration.
func (r *RenderService) Name() string {
	return "render"
}

// Initialize picks plain or styled output from the terminal's color profile.
func (r *RenderService) Initialize() error {
	if lipgloss.ColorProfile() == termenv.Ascii {
		r.plain = true
	}

	if r.plain {
		r.question = lipgloss.NewStyle()
		r.notice = lipgloss.NewStyle()
		r.warning = lipgloss.NewStyle()
		r.label = lipgloss.NewStyle()
	} else {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(defaultWordWrap),
		)
		if err != nil {
			return fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		r.renderer = renderer
		r.question = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
		r.notice = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
		r.warning = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
		r.label = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	}

	r.initialized = true
	logger.Debug("Render service initialized", "plain", r.plain)
	return nil
}

// RenderReply formats one orchestrator reply.
func (r *RenderService) RenderReply(reply chattypes.Reply) string {
	var b strings.Builder
	if reply.Notice != "" {
		b.WriteString(r.notice.Render("note: " + reply.Notice))
		b.WriteString("\n")
	}

	switch {
	case reply.Clarification != nil:
		b.WriteString(r.question.Render("? " + reply.Clarification.Question))
	case reply.Fallback:
		b.WriteString(r.warning.Render(reply.Text))
	default:
		b.WriteString(r.markdown(reply.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderHistory formats the conversation history as a transcript. Escape sequences in message
// text are dropped and long entries are cut to one screen line's worth.
func (r *RenderService) RenderHistory(history []chattypes.Message) string {
	if len(history) == 0 {
		return "(no messages yet)"
	}
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		text := strings.Join(strings.Fields(ansi.Strip(msg.Text)), " ")
		text = ansi.Truncate(text, historyEntryWidth, "…")
		lines = append(lines, fmt.Sprintf("%s %s", r.label.Render(string(msg.Role)+":"), text))
	}
	return strings.Join(lines, "\n")
}

// RenderPersonas formats the persona catalog, marking the active one.
func (r *RenderService) RenderPersonas(personas []chattypes.Persona, activeID string) string {
	lines := make([]string, 0, len(personas))
	for _, persona := range personas {
		marker := "  "
		if persona.ID == activeID {
			marker = r.label.Render("* ")
		}
		lines = append(lines, fmt.Sprintf("%s%-12s %s", marker, persona.ID, persona.DisplayName))
	}
	return strings.Join(lines, "\n")
}

func (r *RenderService) markdown(text string) string {
	if r.renderer == nil || strings.TrimSpace(text) == "" {
		return text
	}
	rendered, err := r.renderer.Render(text)
	if err != nil {
		logger.Debug("Markdown rendering failed, printing raw text", "error", err)
		return text
	}
	return rendered
}
