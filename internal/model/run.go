package model

import "time"

// Stage names a pipeline stage.
type Stage string

const (
	StageDiscover  Stage = "discover"
	StageEnrich    Stage = "enrich"
	StageFindMenus Stage = "find-menus"
	StageExtract   Stage = "extract"
	StageAnalyze   Stage = "analyze"
)

// AllStages returns the stages in execution order.
func AllStages() []Stage {
	return []Stage{StageDiscover, StageEnrich, StageFindMenus, StageExtract, StageAnalyze}
}

// ParseStage resolves a stage name; ok is false for unknown names.
func ParseStage(name string) (Stage, bool) {
	for _, s := range AllStages() {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// StageStats counts per-record outcomes inside one stage invocation.
type StageStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// StageResult is the runner's record of one stage invocation. Success is
// false only when the stage itself returned an error or panicked.
type StageResult struct {
	Name     Stage         `json:"name"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration_ms"`
	Error    string        `json:"error,omitempty"`
	Stats    StageStats    `json:"stats"`
	Usage    TokenUsage    `json:"usage"`
}

// RunStatus is the state of a recorded pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one persisted pipeline invocation.
type Run struct {
	ID         string        `json:"id"`
	Status     RunStatus     `json:"status"`
	Stages     []StageResult `json:"stages"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Failed reports whether any stage failed outright.
func (r Run) Failed() bool {
	for _, s := range r.Stages {
		if !s.Success {
			return true
		}
	}
	return false
}

// TokenUsage tracks AI token consumption and attributed cost.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Cost += other.Cost
}
