package types

import "time"

// RunRecord is the durable ledger entry of one engine run.
type RunRecord struct {
	RunID              string            `json:"runId"`
	Status             RunStatus         `json:"status"`
	EvaluatedAt        time.Time         `json:"evaluatedAt"`
	ChurnThresholdDays int               `json:"churnThresholdDays"`
	Components         []ComponentResult `json:"components,omitempty"`
	Error              string            `json:"error,omitempty"`
	StartedAt          time.Time         `json:"startedAt"`
	FinishedAt         *time.Time        `json:"finishedAt,omitempty"`
}

// Component returns the result for the named component, or nil.
func (r *RunRecord) Component(name string) *ComponentResult {
	for i := range r.Components {
		if r.Components[i].Name == name {
			return &r.Components[i]
		}
	}
	return nil
}

// ComponentResult is the outcome of one graph node within a run.
type ComponentResult struct {
	Name      string          `json:"name"`
	Status    ComponentStatus `json:"status"`
	Error     string          `json:"error,omitempty"`
	Rows      map[string]int  `json:"rows,omitempty"` // table name -> published row count
	StartedAt *time.Time      `json:"startedAt,omitempty"`
	Duration  time.Duration   `json:"duration,omitempty"`
}

// Alert represents an alert event to be dispatched.
type Alert struct {
	Level     AlertLevel             `json:"level"`
	RunID     string                 `json:"runId,omitempty"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
