package api

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a proposal. A proposal is created pending
// and transitions exactly once: approve drives it through approved into
// executed or failed, reject moves it to rejected.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusExecuted Status = "executed"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// ActionType tags the kind of campaign action a proposal carries.
type ActionType string

const (
	ActionPauseCampaign  ActionType = "pause_campaign"
	ActionEnableCampaign ActionType = "enable_campaign"
	ActionAdjustBudget   ActionType = "adjust_budget"
	ActionAdjustBid      ActionType = "adjust_bid"
	ActionDuplicateAdset ActionType = "duplicate_adset"
)

// ActionTypeLabels maps action types to the pt-BR labels shown to the user.
var ActionTypeLabels = map[ActionType]string{
	ActionPauseCampaign:  "Pausar Campanha",
	ActionEnableCampaign: "Ativar Campanha",
	ActionAdjustBudget:   "Ajustar Orçamento",
	ActionAdjustBid:      "Ajustar Lance",
	ActionDuplicateAdset: "Duplicar Conjunto",
}

// DatePresetLabels are the periods accepted by the analyze endpoint.
var DatePresetLabels = map[string]string{
	"last_7d":    "Últimos 7 dias",
	"last_30d":   "Últimos 30 dias",
	"this_month": "Este mês",
	"last_month": "Mês passado",
}

// Approval is an AI-proposed campaign action awaiting a human decision.
type Approval struct {
	ID              int64      `json:"id"`
	ActionType      ActionType `json:"action_type"`
	RawPayload      string     `json:"payload"`
	AccountID       string     `json:"account_id,omitempty"`
	CampaignID      string     `json:"campaign_id,omitempty"`
	CampaignName    string     `json:"campaign_name,omitempty"`
	AdsetID         string     `json:"adset_id,omitempty"`
	Reasoning       string     `json:"ai_reasoning"`
	Status          Status     `json:"status"`
	CreatedAt       Timestamp  `json:"created_at"`
	DecidedAt       *Timestamp `json:"decided_at,omitempty"`
	ExecutedAt      *Timestamp `json:"executed_at,omitempty"`
	ExecutionResult string     `json:"execution_result,omitempty"`
}

// Timestamp accepts both RFC 3339 and the backend's zone-less ISO form
// ("2026-08-30T12:00:00"), which it emits for naive datetimes.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("parsing timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(time.RFC3339) + `"`), nil
}

// DecisionResult is the backend's answer to a single approve or reject.
// For approve, Status is "executed" or "failed"; the proposal is never left
// at approved from the client's point of view.
type DecisionResult struct {
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// BulkItem is the per-id outcome of a bulk approve.
type BulkItem struct {
	ID      int64  `json:"id"`
	Status  string `json:"status"` // executed | failed | not_found
	Message string `json:"message,omitempty"`
}

type BulkResult struct {
	Results []BulkItem `json:"results"`
}

// Approved counts the items the backend actually transitioned; a row that
// executed or failed was approved either way.
func (r *BulkResult) Approved() int {
	n := 0
	for _, item := range r.Results {
		if item.Status != "not_found" {
			n++
		}
	}
	return n
}

type AnalyzeRequest struct {
	AccountIDs   []string `json:"account_ids,omitempty"`
	DatePreset   string   `json:"date_preset,omitempty"`
	CustomPrompt string   `json:"custom_prompt,omitempty"`
}

type AnalysisResult struct {
	Analysis           string `json:"analysis"`
	SuggestionsCreated int    `json:"suggestions_created"`
}
