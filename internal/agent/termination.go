package agent

import (
	"time"

	"github.com/ikoma-ai/ikoma/internal/planner"
)

// Status is the loop state the termination criteria inspect after each
// iteration.
type Status struct {
	Iteration  int
	StartTime  time.Time
	Reflection *planner.Reflection
}

// Criterion is one termination check. Criteria are evaluated in a fixed
// order; the first that fires decides the reason.
type Criterion interface {
	Name() string
	ShouldStop(s Status) (bool, string)
}

// IterationLimit stops after a fixed number of iterations.
type IterationLimit struct {
	Max int
}

func (c IterationLimit) Name() string { return "iteration_limit" }

func (c IterationLimit) ShouldStop(s Status) (bool, string) {
	if c.Max > 0 && s.Iteration >= c.Max {
		return true, ReasonIterationLimit
	}
	return false, ""
}

// TimeLimit stops once wall-clock time since StartTime exceeds the limit.
// A zero StartTime or zero limit never fires.
type TimeLimit struct {
	Limit time.Duration
}

func (c TimeLimit) Name() string { return "time_limit" }

func (c TimeLimit) ShouldStop(s Status) (bool, string) {
	if c.Limit <= 0 || s.StartTime.IsZero() {
		return false, ""
	}
	if time.Since(s.StartTime) >= c.Limit {
		return true, ReasonTimeLimit
	}
	return false, ""
}

// GoalSatisfied stops when the latest reflection declares the task done.
type GoalSatisfied struct{}

func (c GoalSatisfied) Name() string { return "goal_satisfied" }

func (c GoalSatisfied) ShouldStop(s Status) (bool, string) {
	if s.Reflection != nil && s.Reflection.ShouldEnd() {
		return true, ReasonGoalSatisfied
	}
	return false, ""
}

// HumanCheckpoint pauses every N iterations and asks whether to continue.
// Every <= 0 disables it entirely.
type HumanCheckpoint struct {
	Every   int
	Confirm func(iteration int) bool
}

func (c HumanCheckpoint) Name() string { return "human_checkpoint" }

func (c HumanCheckpoint) ShouldStop(s Status) (bool, string) {
	if c.Every <= 0 || c.Confirm == nil {
		return false, ""
	}
	if s.Iteration%c.Every != 0 {
		return false, ""
	}
	if !c.Confirm(s.Iteration) {
		return true, ReasonUserStopped
	}
	return false, ""
}

// TerminationEngine evaluates criteria in registration order. Limits come
// before the goal check so a run that hits its budget on the same iteration
// it finishes reports the budget.
type TerminationEngine struct {
	criteria []Criterion
}

// NewTerminationEngine builds the standard criteria stack for a run config.
func NewTerminationEngine(cfg RunConfig, confirm func(int) bool) *TerminationEngine {
	e := &TerminationEngine{}
	e.Add(IterationLimit{Max: cfg.MaxIterations})
	e.Add(TimeLimit{Limit: cfg.TimeLimit})
	e.Add(GoalSatisfied{})
	if cfg.Interactive {
		e.Add(HumanCheckpoint{Every: cfg.CheckpointEvery, Confirm: confirm})
	}
	return e
}

// Add appends a criterion.
func (e *TerminationEngine) Add(c Criterion) {
	e.criteria = append(e.criteria, c)
}

// Evaluate returns the first firing criterion's reason, or ("", false).
func (e *TerminationEngine) Evaluate(s Status) (string, bool) {
	for _, c := range e.criteria {
		if stop, reason := c.ShouldStop(s); stop {
			return reason, true
		}
	}
	return "", false
}
