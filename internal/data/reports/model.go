package reports

import (
	"time"

	"cprqa/internal/engine/ingest"
	"cprqa/internal/engine/scoring"
	"cprqa/internal/engine/wizard"
)

type Kind string

const (
	KindRealCall  Kind = "real_call"
	KindSimulated Kind = "simulated"
)

type Status string

const (
	StatusImporting Status = "importing"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

// Report is one imported bundle and everything derived from it. Wizards is
// keyed by template id.
type Report struct {
	ID              string                    `json:"id"`
	Tenant          string                    `json:"tenant"`
	Kind            Kind                      `json:"kind"`
	Status          Status                    `json:"status"`
	Error           string                    `json:"error,omitempty"`
	EventDate       string                    `json:"event_date,omitempty"`
	ShocksDelivered *int                      `json:"shocks_delivered,omitempty"`
	ArtifactPath    string                    `json:"artifact_path"`
	ArtifactHash    string                    `json:"artifact_hash"`
	Provider        string                    `json:"provider,omitempty"`
	Notes           string                    `json:"notes,omitempty"`
	Metrics         *ingest.NormalizedMetrics `json:"metrics,omitempty"`
	Payload         ingest.Payload            `json:"payload,omitempty"`
	Score           *scoring.Result           `json:"score,omitempty"`
	Wizards         map[string]*wizard.State  `json:"wizards,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// Wizard returns the state for a template, or nil.
func (r *Report) Wizard(templateID string) *wizard.State {
	if r.Wizards == nil {
		return nil
	}
	return r.Wizards[templateID]
}

func (r *Report) SetWizard(st *wizard.State) {
	if r.Wizards == nil {
		r.Wizards = make(map[string]*wizard.State)
	}
	r.Wizards[st.TemplateID] = st
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Kind   Kind
	Status Status
	Limit  int
}

type Activity struct {
	ID        int64          `json:"id"`
	Tenant    string         `json:"tenant"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"`
}
