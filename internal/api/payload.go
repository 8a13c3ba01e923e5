package api

import "encoding/json"

// ActionPayload is the closed set of action-specific data a proposal can
// carry. The backend stores it as an opaque JSON string written by the AI, so
// every field must be treated as untrusted and possibly absent: missing
// fields stay at their zero value and are simply not shown.
type ActionPayload interface {
	actionPayload()
}

type PauseCampaignPayload struct {
	CampaignID string `json:"campaign_id"`
}

type EnableCampaignPayload struct {
	CampaignID string `json:"campaign_id"`
}

type AdjustBudgetPayload struct {
	CampaignID    string  `json:"campaign_id"`
	CurrentBudget float64 `json:"current_budget"`
	NewBudget     float64 `json:"new_budget"`
}

type AdjustBidPayload struct {
	CampaignID string  `json:"campaign_id"`
	AdsetID    string  `json:"adset_id"`
	NewBid     float64 `json:"new_bid"`
}

type DuplicateAdsetPayload struct {
	CampaignID string `json:"campaign_id"`
	AdsetID    string `json:"adset_id"`
}

func (PauseCampaignPayload) actionPayload()  {}
func (EnableCampaignPayload) actionPayload() {}
func (AdjustBudgetPayload) actionPayload()   {}
func (AdjustBidPayload) actionPayload()      {}
func (DuplicateAdsetPayload) actionPayload() {}

// Payload decodes the proposal's raw payload into its typed variant.
// Malformed JSON or an unknown action type yields nil: the proposal is still
// displayed, just without payload-derived fields.
func (a *Approval) Payload() ActionPayload {
	decode := func(v ActionPayload) ActionPayload {
		if err := json.Unmarshal([]byte(a.RawPayload), v); err != nil {
			return nil
		}
		return v
	}

	switch a.ActionType {
	case ActionPauseCampaign:
		return decode(&PauseCampaignPayload{})
	case ActionEnableCampaign:
		return decode(&EnableCampaignPayload{})
	case ActionAdjustBudget:
		return decode(&AdjustBudgetPayload{})
	case ActionAdjustBid:
		return decode(&AdjustBidPayload{})
	case ActionDuplicateAdset:
		return decode(&DuplicateAdsetPayload{})
	}
	return nil
}
