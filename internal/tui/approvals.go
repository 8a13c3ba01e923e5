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
	"adspilot/internal/approvals"
)

var approvalTabs = []struct {
	status api.Status
	label  string
}{
	{api.StatusPending, "⏳ Pendentes"},
	{api.StatusExecuted, "✅ Executados"},
	{api.StatusRejected, "✕ Rejeitados"},
}

var actionIcons = map[api.ActionType]string{
	api.ActionPauseCampaign:  "⏸️",
	api.ActionEnableCampaign: "▶️",
	api.ActionAdjustBudget:   "💰",
	api.ActionAdjustBid:      "🎯",
	api.ActionDuplicateAdset: "📑",
}

type approvalsViewState int

const (
	approvalsLoadingView approvalsViewState = iota
	approvalsListView
	approvalsActingView
)

type approvalsLoadedMsg struct {
	items []api.Approval
	err   error
}

type pendingCountMsg struct {
	count int
	err   error
}

type decisionDoneMsg struct {
	err error
}

type bulkDoneMsg struct {
	approved int
	err      error
}

// ApprovalsApp is the Bubbletea model for reviewing the proposal queue.
type ApprovalsApp struct {
	store *approvals.Store
	sel   *approvals.Selection

	state        approvalsViewState
	tab          int
	cursor       int
	items        []api.Approval
	pendingCount int
	spinner      spinner.Model
	errMsg       string
	infoMsg      string
}

func NewApprovalsApp(store *approvals.Store, sel *approvals.Selection) *ApprovalsApp {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return &ApprovalsApp{
		store:   store,
		sel:     sel,
		state:   approvalsLoadingView,
		spinner: s,
	}
}

func (a *ApprovalsApp) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.load(), a.loadCount())
}

func (a *ApprovalsApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return a, tea.Quit
		}
		if a.state == approvalsListView {
			return a.updateList(msg)
		}
		return a, nil

	case approvalsLoadedMsg:
		a.state = approvalsListView
		if msg.err != nil {
			a.errMsg = msg.err.Error()
			return a, nil
		}
		a.errMsg = ""
		a.items = msg.items
		if a.cursor >= len(a.items) {
			a.cursor = max(0, len(a.items)-1)
		}
		return a, nil

	case pendingCountMsg:
		if msg.err == nil {
			a.pendingCount = msg.count
		}
		return a, nil

	case decisionDoneMsg:
		return a.handleDecision(msg.err, "")

	case bulkDoneMsg:
		info := ""
		if msg.err == nil {
			info = fmt.Sprintf("%d ações aprovadas e executadas!", msg.approved)
		}
		return a.handleDecision(msg.err, info)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a *ApprovalsApp) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "right", "l":
		return a.switchTab((a.tab + 1) % len(approvalTabs))
	case "shift+tab", "left", "h":
		return a.switchTab((a.tab + len(approvalTabs) - 1) % len(approvalTabs))
	case "1", "2", "3":
		return a.switchTab(int(msg.String()[0] - '1'))
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < len(a.items)-1 {
			a.cursor++
		}
	case " ":
		if a.onPendingTab() && a.cursor < len(a.items) {
			a.sel.Toggle(a.items[a.cursor].ID)
		}
	case "a":
		if a.onPendingTab() {
			ids := make([]int64, 0, len(a.items))
			for _, item := range a.items {
				if item.Status == api.StatusPending {
					ids = append(ids, item.ID)
				}
			}
			a.sel.SelectAll(ids)
		}
	case "n":
		a.sel.Clear()
	case "y":
		if a.onPendingTab() && a.cursor < len(a.items) {
			a.state = approvalsActingView
			return a, tea.Batch(a.spinner.Tick, a.approve(a.items[a.cursor].ID))
		}
	case "x":
		if a.onPendingTab() && a.cursor < len(a.items) {
			a.state = approvalsActingView
			return a, tea.Batch(a.spinner.Tick, a.reject(a.items[a.cursor].ID))
		}
	case "b":
		if a.onPendingTab() && a.sel.Count() > 0 {
			a.state = approvalsActingView
			return a, tea.Batch(a.spinner.Tick, a.bulkApprove(a.sel.IDs()))
		}
	case "r":
		a.state = approvalsLoadingView
		return a, tea.Batch(a.spinner.Tick, a.load(), a.loadCount())
	}
	return a, nil
}

func (a *ApprovalsApp) switchTab(tab int) (tea.Model, tea.Cmd) {
	a.tab = tab
	a.cursor = 0
	a.infoMsg = ""
	// Tab switch never mutates proposal state, but it does clear the
	// selection so it cannot reference another partition.
	a.sel.SetTab(approvalTabs[tab].status)
	a.state = approvalsLoadingView
	return a, tea.Batch(a.spinner.Tick, a.load())
}

func (a *ApprovalsApp) handleDecision(err error, info string) (tea.Model, tea.Cmd) {
	if err != nil {
		a.state = approvalsListView
		switch {
		case errors.Is(err, approvals.ErrNotPending), errors.Is(err, approvals.ErrInFlight):
			a.infoMsg = err.Error()
		default:
			a.errMsg = err.Error()
		}
		return a, nil
	}

	a.errMsg = ""
	a.infoMsg = info
	a.state = approvalsLoadingView
	return a, tea.Batch(a.spinner.Tick, a.load(), a.loadCount())
}

func (a *ApprovalsApp) onPendingTab() bool {
	return approvalTabs[a.tab].status == api.StatusPending
}

func (a *ApprovalsApp) View() string {
	var sb strings.Builder

	header := fmt.Sprintf("adspilot — Aprovações de IA  %s",
		warningStyle.Render(fmt.Sprintf("[%d pendentes]", a.pendingCount)))
	sb.WriteString(titleStyle.Render(header))
	sb.WriteString("\n")

	var tabs []string
	for i, t := range approvalTabs {
		label := t.label
		if i == a.tab {
			label = highlightStyle.Render(label)
		} else {
			label = dimStyle.Render(label)
		}
		tabs = append(tabs, label)
	}
	sb.WriteString(strings.Join(tabs, "  "))
	sb.WriteString("\n\n")

	switch a.state {
	case approvalsLoadingView:
		sb.WriteString(a.spinner.View() + " Carregando...\n")
	case approvalsActingView:
		sb.WriteString(a.spinner.View() + " Executando...\n")
	case approvalsListView:
		a.renderList(&sb)
	}

	if a.errMsg != "" {
		sb.WriteString("\n" + errorStyle.Render("Erro: ") + a.errMsg + "\n")
	}
	if a.infoMsg != "" {
		sb.WriteString("\n" + successStyle.Render(a.infoMsg) + "\n")
	}

	help := "Tab/1-3: abas • j/k: navegar • r: atualizar • q: sair"
	if a.onPendingTab() {
		help = "Espaço: marcar • a: todas • n: nenhuma • y: aprovar • x: rejeitar • b: aprovar marcadas • " + help
	}
	sb.WriteString(helpStyle.Render(help))

	return sb.String()
}

func (a *ApprovalsApp) renderList(sb *strings.Builder) {
	if len(a.items) == 0 {
		sb.WriteString(dimStyle.Render("Nenhuma sugestão aqui. 🎉"))
		sb.WriteString("\n")
		return
	}

	if a.onPendingTab() && a.sel.Count() > 0 {
		sb.WriteString(warningStyle.Render(fmt.Sprintf("%d sugestão(ões) selecionada(s) — 'b' para aprovar", a.sel.Count())))
		sb.WriteString("\n\n")
	}

	for i, item := range a.items {
		prefix := "  "
		if i == a.cursor {
			prefix = "> "
		}

		check := ""
		if a.onPendingTab() {
			if a.sel.Has(item.ID) {
				check = "[x] "
			} else {
				check = "[ ] "
			}
		}

		icon := actionIcons[item.ActionType]
		if icon == "" {
			icon = "⚙️"
		}
		label := api.ActionTypeLabels[item.ActionType]
		if label == "" {
			label = string(item.ActionType)
		}

		head := fmt.Sprintf("%s%s%s %s", prefix, check, icon, label)
		if item.CampaignName != "" {
			head += dimStyle.Render(" — " + item.CampaignName)
		}
		head += "  " + statusBadge(item.Status)
		if i == a.cursor {
			head = highlightStyle.Render(head)
		}
		sb.WriteString(head)
		sb.WriteString("\n")

		for _, line := range payloadLines(item) {
			sb.WriteString("      " + dimStyle.Render(line) + "\n")
		}
		if item.Reasoning != "" {
			sb.WriteString("      💡 " + truncateLine(item.Reasoning, 100) + "\n")
		}
		if item.ExecutionResult != "" {
			style := successStyle
			if item.Status == api.StatusFailed {
				style = errorStyle
			}
			sb.WriteString("      " + style.Render(truncateLine(item.ExecutionResult, 100)) + "\n")
		}
		sb.WriteString("      " + dimStyle.Render("Criado em "+item.CreatedAt.Format("02/01/2006 15:04")) + "\n")
	}
}

// payloadLines renders the action-specific fields. Absent fields are simply
// not shown; a payload that failed to parse contributes nothing.
func payloadLines(a api.Approval) []string {
	var lines []string
	switch p := a.Payload().(type) {
	case *api.AdjustBudgetPayload:
		if p.NewBudget > 0 {
			lines = append(lines, fmt.Sprintf("💰 Novo orçamento: R$ %.2f/dia", p.NewBudget))
		}
		if p.CurrentBudget > 0 {
			lines = append(lines, fmt.Sprintf("📋 Orçamento atual: R$ %.2f/dia", p.CurrentBudget))
		}
	case *api.AdjustBidPayload:
		if p.NewBid > 0 {
			lines = append(lines, fmt.Sprintf("🎯 Novo lance: R$ %.2f", p.NewBid))
		}
	case *api.PauseCampaignPayload:
		if p.CampaignID != "" {
			lines = append(lines, "ID: "+p.CampaignID)
		}
	case *api.EnableCampaignPayload:
		if p.CampaignID != "" {
			lines = append(lines, "ID: "+p.CampaignID)
		}
	case *api.DuplicateAdsetPayload:
		if p.AdsetID != "" {
			lines = append(lines, "Conjunto: "+p.AdsetID)
		}
	}
	return lines
}

func statusBadge(status api.Status) string {
	switch status {
	case api.StatusPending:
		return warningStyle.Render("[Aguardando]")
	case api.StatusApproved:
		return highlightStyle.Render("[Aprovado]")
	case api.StatusExecuted:
		return successStyle.Render("[Executado]")
	case api.StatusRejected:
		return dimStyle.Render("[Rejeitado]")
	case api.StatusFailed:
		return errorStyle.Render("[Falhou]")
	}
	return dimStyle.Render("[" + string(status) + "]")
}

func truncateLine(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func (a *ApprovalsApp) load() tea.Cmd {
	status := approvalTabs[a.tab].status
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		items, err := a.store.List(ctx, status)
		return approvalsLoadedMsg{items: items, err: err}
	}
}

func (a *ApprovalsApp) loadCount() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		count, err := a.store.PendingCount(ctx)
		return pendingCountMsg{count: count, err: err}
	}
}

func (a *ApprovalsApp) approve(id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		_, err := a.store.Approve(ctx, id, "")
		return decisionDoneMsg{err: err}
	}
}

func (a *ApprovalsApp) reject(id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		_, err := a.store.Reject(ctx, id, "")
		return decisionDoneMsg{err: err}
	}
}

func (a *ApprovalsApp) bulkApprove(ids []int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		approved, err := a.store.BulkApprove(ctx, ids)
		return bulkDoneMsg{approved: approved, err: err}
	}
}
