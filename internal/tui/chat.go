package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"adspilot/internal/api"
	"adspilot/internal/chat"
)

var quickPrompts = []string{
	"Analise todas as minhas campanhas e crie sugestões de otimização",
	"Quais campanhas estão com ROAS abaixo de 1?",
	"Qual é minha campanha com melhor performance essa semana?",
	"Que campanhas devo pausar para economizar orçamento?",
	"Crie um resumo executivo das campanhas para enviar ao cliente",
}

type transcriptMsg struct{}

type streamDoneMsg struct {
	err error
}

type analysisDoneMsg struct {
	result *api.AnalysisResult
	err    error
}

// ChatApp is the Bubbletea model for the streaming chat view.
type ChatApp struct {
	session    *chat.Session
	datePreset string

	input     inputModel
	spinner   spinner.Model
	width     int
	analyzing bool
	errMsg    string
	infoMsg   string

	updates chan struct{}
}

func NewChatApp(session *chat.Session, datePreset string) *ChatApp {
	s := spinner.New()
	s.Spinner = spinner.Dot

	a := &ChatApp{
		session:    session,
		datePreset: datePreset,
		input:      newInputModel(),
		spinner:    s,
		updates:    make(chan struct{}, 1),
	}

	session.SetOnUpdate(func() {
		select {
		case a.updates <- struct{}{}:
		default:
		}
	})

	return a
}

func (a *ChatApp) Init() tea.Cmd {
	return tea.Batch(a.input.textarea.Focus(), a.spinner.Tick, a.waitUpdate())
}

func (a *ChatApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.input.SetWidth(msg.Width)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return a, tea.Quit
		case "enter":
			text := strings.TrimSpace(a.input.Value())
			if text == "" || a.session.Streaming() || a.analyzing {
				return a, nil
			}
			a.input.Reset()
			a.errMsg = ""
			a.infoMsg = ""
			return a, a.submit(text)
		case "ctrl+a":
			if a.session.Streaming() || a.analyzing {
				return a, nil
			}
			a.analyzing = true
			a.errMsg = ""
			a.infoMsg = ""
			return a, tea.Batch(a.spinner.Tick, a.analyze())
		}

	case transcriptMsg:
		return a, a.waitUpdate()

	case streamDoneMsg:
		// The session already wrote the failure text into the turn; only
		// credential problems need their own surface.
		if msg.err != nil && errors.Is(msg.err, api.ErrUnauthenticated) {
			a.errMsg = msg.err.Error()
		}
		return a, nil

	case analysisDoneMsg:
		a.analyzing = false
		if msg.err != nil {
			a.errMsg = msg.err.Error()
			return a, nil
		}
		if msg.result.SuggestionsCreated > 0 {
			a.infoMsg = fmt.Sprintf("%d sugestão(ões) criada(s)! Confira em Aprovações.", msg.result.SuggestionsCreated)
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *ChatApp) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("adspilot — Chat IA"))
	sb.WriteString("\n")
	sb.WriteString(subtitleStyle.Render("Converse sobre suas campanhas"))
	sb.WriteString("\n")

	turns := a.session.Turns()
	if len(turns) == 0 {
		sb.WriteString(dimStyle.Render("Faça uma pergunta ou tente um destes prompts:"))
		sb.WriteString("\n")
		for _, p := range quickPrompts {
			sb.WriteString(dimStyle.Render("  • " + p))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	streaming := a.session.Streaming()
	for i, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			sb.WriteString(userStyle.Render("Você ▸ "))
			sb.WriteString(turn.Content)
		case chat.RoleAssistant:
			sb.WriteString(assistantStyle.Render("IA ▸ "))
			if turn.Content == "" && streaming && i == len(turns)-1 {
				sb.WriteString(a.spinner.View() + dimStyle.Render(" Pensando..."))
			} else {
				sb.WriteString(turn.Content)
			}
		}
		sb.WriteString("\n\n")
	}

	if a.analyzing {
		sb.WriteString(a.spinner.View() + " Analisando todas as campanhas...\n\n")
	}
	if a.errMsg != "" {
		sb.WriteString(errorStyle.Render("Erro: ") + a.errMsg + "\n\n")
	}
	if a.infoMsg != "" {
		sb.WriteString(successStyle.Render(a.infoMsg) + "\n\n")
	}

	sb.WriteString(a.input.View())
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("Enter: enviar • Ctrl+A: análise completa • Esc: sair"))

	return sb.String()
}

func (a *ChatApp) waitUpdate() tea.Cmd {
	return func() tea.Msg {
		<-a.updates
		return transcriptMsg{}
	}
}

func (a *ChatApp) submit(text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		return streamDoneMsg{err: a.session.Submit(ctx, text)}
	}
}

func (a *ChatApp) analyze() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		result, err := a.session.Analyze(ctx, api.AnalyzeRequest{DatePreset: a.datePreset})
		return analysisDoneMsg{result: result, err: err}
	}
}
