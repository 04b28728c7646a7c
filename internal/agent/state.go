// Package agent implements the plan-execute-reflect loop: one controller per
// run drives the LLM through planning, tool execution, and reflection until a
// termination criterion fires.
package agent

import (
	"encoding/json"
	"time"

	"github.com/ikoma-ai/ikoma/internal/planner"
)

// Termination reasons reported on the run result.
const (
	ReasonIterationLimit      = "iteration limit reached"
	ReasonTimeLimit           = "time limit reached"
	ReasonGoalSatisfied       = "goal satisfied"
	ReasonUserStopped         = "stopped by user"
	ReasonPlanRepairExhausted = "plan repair exhausted"
	ReasonCancelled           = "cancelled"
)

// RunConfig bounds and identifies one run.
type RunConfig struct {
	RunID  string
	UserID string
	Goal   string

	MaxIterations   int
	TimeLimit       time.Duration
	CheckpointEvery int
	MaxPlanRetries  int

	// Interactive enables the human checkpoint pause.
	Interactive bool

	// FailFast aborts the execute phase on the first tool error instead of
	// recording it and continuing.
	FailFast bool
}

// Message is one turn in the run's conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Step execution statuses.
const (
	StepStatusSuccess = "success"
	StepStatusError   = "error"
)

// StepResult records one executed plan step: what ran, with which arguments,
// how it went, and when.
type StepResult struct {
	Step        int            `json:"step"`
	ToolName    string         `json:"tool_name"`
	Args        map[string]any `json:"args,omitempty"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status"`
	Output      string         `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// Succeeded reports whether the step completed without a tool error.
func (r StepResult) Succeeded() bool { return r.Status != StepStatusError }

// IterationRecord is the durable snapshot of one full loop iteration. It is
// what gets checkpointed.
type IterationRecord struct {
	Iteration  int                 `json:"iteration"`
	Plan       *planner.Plan       `json:"plan,omitempty"`
	Steps      []StepResult        `json:"steps,omitempty"`
	Reflection *planner.Reflection `json:"reflection,omitempty"`
	Messages   []Message           `json:"messages,omitempty"`
	Citations  json.RawMessage     `json:"citations,omitempty"`
}

// RunResult is the controller's final report.
type RunResult struct {
	RunID             string
	Iterations        int
	TerminationReason string
	FinalMessage      string
	Reflection        *planner.Reflection
	Steps             []StepResult
}
