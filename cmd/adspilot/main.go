package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"adspilot/internal/api"
	"adspilot/internal/approvals"
	"adspilot/internal/auth"
	"adspilot/internal/chat"
	"adspilot/internal/config"
	"adspilot/internal/events"
	"adspilot/internal/scheduler"
	"adspilot/internal/store"
	"adspilot/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:   "adspilot",
	Short: "Terminal client for the AI campaign copilot",
	Long:  "adspilot chats with the campaign copilot, reviews its optimization proposals and approves or rejects them from the terminal.",
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the AI about your campaigns",
	RunE:  runChat,
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Review and decide pending AI proposals",
	RunE:  runApprovals,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a full AI analysis of all campaigns",
	RunE:  runAnalyze,
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Print the number of proposals awaiting approval",
	RunE:  runPending,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the pending count and notify on new proposals",
	RunE:  runWatch,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an API token for the copilot backend",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API token",
	RunE:  runLogout,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show locally saved chat turns",
	RunE:  runHistory,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Open config file in your editor",
	RunE:  runConfig,
}

func init() {
	analyzeCmd.Flags().String("period", "last_7d", "Date preset: last_7d, last_30d, this_month, last_month")
	analyzeCmd.Flags().StringSlice("account", nil, "Limit analysis to these account ids")
	analyzeCmd.Flags().String("prompt", "", "Custom instruction for the analysis")
	chatCmd.Flags().String("period", "last_7d", "Date preset used by Ctrl+A full analysis")
	loginCmd.Flags().String("token", "", "Bearer token issued by the backend")
	loginCmd.MarkFlagRequired("token")
	historyCmd.Flags().Int("limit", 30, "Number of turns to show")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(approvalsCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newCredStore() (*auth.Store, error) {
	path, err := config.TokenPath()
	if err != nil {
		return nil, err
	}
	return auth.NewStore(path), nil
}

func newAPIClient(cfg *config.Config) (*api.Client, error) {
	creds, err := newCredStore()
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.API.TimeoutSeconds) * time.Second
	return api.NewClient(cfg.API.BaseURL, creds, timeout, nil), nil
}

func newApprovalStore(cfg *config.Config, client *api.Client, bus *events.Bus, audit approvals.Audit) *approvals.Store {
	ttl := time.Duration(cfg.Approvals.CacheTTLSeconds) * time.Second
	return approvals.NewStore(client, bus, audit, ttl, nil)
}

func runChat(cmd *cobra.Command, args []string) error {
	period, _ := cmd.Flags().GetString("period")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	db, err := store.Open()
	if err != nil {
		return fmt.Errorf("opening local history: %w", err)
	}
	defer db.Close()

	bus := events.NewBus()
	session := chat.NewSession(client, bus, db, cfg.Chat.AccountIDs, nil)

	app := tui.NewChatApp(session, period)
	if _, err := tea.NewProgram(app).Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}

	return nil
}

func runApprovals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	db, err := store.Open()
	if err != nil {
		return fmt.Errorf("opening local history: %w", err)
	}
	defer db.Close()

	bus := events.NewBus()
	approvalStore := newApprovalStore(cfg, client, bus, db)
	sel := approvals.NewSelection(bus)

	app := tui.NewApprovalsApp(approvalStore, sel)
	if _, err := tea.NewProgram(app).Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}

	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	period, _ := cmd.Flags().GetString("period")
	accountIDs, _ := cmd.Flags().GetStringSlice("account")
	prompt, _ := cmd.Flags().GetString("prompt")

	if _, ok := api.DatePresetLabels[period]; !ok {
		return fmt.Errorf("unknown period %q — use last_7d, last_30d, this_month or last_month", period)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	fmt.Println("Analisando campanhas...")
	result, err := client.Analyze(ctx, api.AnalyzeRequest{
		AccountIDs:   accountIDs,
		DatePreset:   period,
		CustomPrompt: prompt,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(result.Analysis)
	if result.SuggestionsCreated > 0 {
		fmt.Printf("\n%d sugestão(ões) criada(s) — revise com 'adspilot approvals'.\n", result.SuggestionsCreated)
	}

	return nil
}

func runPending(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := client.PendingCount(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%d sugestão(ões) aguardando aprovação\n", count)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	approvalStore := newApprovalStore(cfg, client, bus, nil)

	interval := time.Duration(cfg.Poll.IntervalSeconds) * time.Second
	poller := scheduler.New(approvalStore, interval, cfg.Notifications.Enabled, nil)
	poller.SetOnCount(func(count int) {
		fmt.Printf("%s  %d pendente(s)\n", time.Now().Format("15:04:05"), count)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Printf("Watching pending approvals (interval: %s)\n", interval)
	return poller.Run(ctx)
}

func runLogin(cmd *cobra.Command, args []string) error {
	token, _ := cmd.Flags().GetString("token")

	creds, err := newCredStore()
	if err != nil {
		return err
	}
	if err := creds.Set(token); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	fmt.Println("Token stored.")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	creds, err := newCredStore()
	if err != nil {
		return err
	}
	if err := creds.Clear(); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}

	fmt.Println("Token removed.")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := store.Open()
	if err != nil {
		return fmt.Errorf("opening local history: %w", err)
	}
	defer db.Close()

	turns, err := db.RecentTurns(limit)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}

	if len(turns) == 0 {
		fmt.Println("No saved conversations yet.")
		return nil
	}

	for _, t := range turns {
		who := "Você"
		if t.Role == "assistant" {
			who = "IA"
		}
		fmt.Printf("[%s] %s:\n%s\n\n", t.CreatedAt.Local().Format("02/01 15:04"), who, t.Content)
	}

	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data := fmt.Sprintf(`[api]
base_url = "%s"
timeout_seconds = %d

[chat]
account_ids = []

[approvals]
cache_ttl_seconds = %d

[poll]
interval_seconds = %d

[notifications]
enabled = %t
`,
			cfg.API.BaseURL,
			cfg.API.TimeoutSeconds,
			cfg.Approvals.CacheTTLSeconds,
			cfg.Poll.IntervalSeconds,
			cfg.Notifications.Enabled,
		)
		if err := os.WriteFile(configPath, []byte(data), 0644); err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	fmt.Printf("Opening %s with %s...\n", configPath, editor)

	proc := os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
	}
	process, err := os.StartProcess(editor, []string{editor, configPath}, &proc)
	if err != nil {
		fmt.Printf("Could not open editor. Config file is at: %s\n", configPath)
		return nil
	}
	_, err = process.Wait()
	return err
}
