package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"quadforge/internal/council"
)

// ErrAborted is returned when the operator backs out of a
// clarification prompt instead of answering it.
var ErrAborted = errors.New("clarification aborted by operator")

// Prompt asks the council's clarification questions on the terminal.
// It is the interactive implementation of the pipeline's Clarifier.
type Prompt struct {
	styles Styles
}

// NewPrompt returns a prompt using the detected theme.
func NewPrompt() *Prompt {
	return &Prompt{styles: DefaultStyles()}
}

// Ask runs a one-shot prompt for a single question. The operator picks
// an option with the arrow keys or types a free-text answer; Enter
// confirms, Esc or Ctrl+C aborts the run.
func (p *Prompt) Ask(ctx context.Context, c *council.Clarification) (string, error) {
	prog := tea.NewProgram(newAskModel(c, p.styles), tea.WithContext(ctx))
	out, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("clarification prompt: %w", err)
	}
	final, ok := out.(askModel)
	if !ok || final.aborted {
		return "", ErrAborted
	}
	return final.answer, nil
}

type askModel struct {
	question string
	options  []string
	selected int
	input    textinput.Model
	styles   Styles

	answer  string
	aborted bool
}

func newAskModel(c *council.Clarification, styles Styles) askModel {
	ti := textinput.New()
	ti.Placeholder = "type a custom answer, or Enter to take the highlighted option"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.Body

	return askModel{
		question: c.Question,
		options:  c.Options,
		input:    ti,
		styles:   styles,
	}
}

func (m askModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m askModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit

		case tea.KeyEnter:
			m.answer = m.resolve()
			if m.answer == "" {
				return m, nil
			}
			return m, tea.Quit

		case tea.KeyUp:
			if len(m.options) > 0 && m.selected > 0 {
				m.selected--
			}
			return m, nil

		case tea.KeyDown:
			if len(m.options) > 0 && m.selected < len(m.options)-1 {
				m.selected++
			}
			return m, nil

		case tea.KeyTab:
			if len(m.options) > 0 {
				m.selected = (m.selected + 1) % len(m.options)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		if msg.Width > 8 {
			m.input.Width = msg.Width - 4
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// resolve prefers typed text over the highlighted option.
func (m askModel) resolve() string {
	if typed := strings.TrimSpace(m.input.Value()); typed != "" {
		return typed
	}
	if len(m.options) > 0 {
		return m.options[m.selected]
	}
	return ""
}

func (m askModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Warning.Render("The design council needs a decision:"))
	sb.WriteString("\n\n")
	sb.WriteString(m.styles.Body.Render(m.question))
	sb.WriteString("\n\n")

	for i, opt := range m.options {
		if i == m.selected {
			sb.WriteString(m.styles.OptionSelected.Render(fmt.Sprintf("→ %d. %s", i+1, opt)))
		} else {
			sb.WriteString(m.styles.Option.Render(fmt.Sprintf("%d. %s", i+1, opt)))
		}
		sb.WriteString("\n")
	}
	if len(m.options) > 0 {
		sb.WriteString("\n")
	}

	sb.WriteString(m.input.View())
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render("Use ↑/↓ to select, Enter to confirm, or type a custom answer. Esc aborts."))
	sb.WriteString("\n")
	return sb.String()
}
