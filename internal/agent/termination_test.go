package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ikoma-ai/ikoma/internal/planner"
)

func TestIterationLimit(t *testing.T) {
	c := IterationLimit{Max: 3}

	stop, _ := c.ShouldStop(Status{Iteration: 2})
	assert.False(t, stop)

	stop, reason := c.ShouldStop(Status{Iteration: 3})
	assert.True(t, stop)
	assert.Equal(t, ReasonIterationLimit, reason)
}

func TestTimeLimit(t *testing.T) {
	c := TimeLimit{Limit: time.Minute}

	stop, _ := c.ShouldStop(Status{StartTime: time.Now()})
	assert.False(t, stop)

	stop, reason := c.ShouldStop(Status{StartTime: time.Now().Add(-2 * time.Minute)})
	assert.True(t, stop)
	assert.Equal(t, ReasonTimeLimit, reason)
}

func TestTimeLimitZeroStartNeverFires(t *testing.T) {
	c := TimeLimit{Limit: time.Nanosecond}
	stop, _ := c.ShouldStop(Status{})
	assert.False(t, stop)

	disabled := TimeLimit{}
	stop, _ = disabled.ShouldStop(Status{StartTime: time.Now().Add(-time.Hour)})
	assert.False(t, stop)
}

func TestGoalSatisfied(t *testing.T) {
	c := GoalSatisfied{}

	stop, _ := c.ShouldStop(Status{})
	assert.False(t, stop)

	stop, _ = c.ShouldStop(Status{Reflection: &planner.Reflection{NextAction: "continue"}})
	assert.False(t, stop)

	stop, reason := c.ShouldStop(Status{Reflection: &planner.Reflection{TaskCompleted: true}})
	assert.True(t, stop)
	assert.Equal(t, ReasonGoalSatisfied, reason)

	stop, _ = c.ShouldStop(Status{Reflection: &planner.Reflection{NextAction: "end"}})
	assert.True(t, stop)
}

func TestHumanCheckpoint(t *testing.T) {
	asked := 0
	c := HumanCheckpoint{Every: 2, Confirm: func(i int) bool { asked++; return i < 4 }}

	stop, _ := c.ShouldStop(Status{Iteration: 1})
	assert.False(t, stop)
	assert.Zero(t, asked)

	stop, _ = c.ShouldStop(Status{Iteration: 2})
	assert.False(t, stop)
	assert.Equal(t, 1, asked)

	stop, reason := c.ShouldStop(Status{Iteration: 4})
	assert.True(t, stop)
	assert.Equal(t, ReasonUserStopped, reason)
}

func TestHumanCheckpointDisabled(t *testing.T) {
	c := HumanCheckpoint{Every: 0, Confirm: func(int) bool { return false }}
	stop, _ := c.ShouldStop(Status{Iteration: 5})
	assert.False(t, stop)
}

func TestEngineOrderLimitsBeforeGoal(t *testing.T) {
	e := NewTerminationEngine(RunConfig{MaxIterations: 2, TimeLimit: time.Hour}, nil)

	// Both the iteration limit and the goal fire; the limit wins.
	reason, stop := e.Evaluate(Status{
		Iteration:  2,
		StartTime:  time.Now(),
		Reflection: &planner.Reflection{TaskCompleted: true},
	})
	assert.True(t, stop)
	assert.Equal(t, ReasonIterationLimit, reason)
}

func TestEngineNoCriterionFires(t *testing.T) {
	e := NewTerminationEngine(RunConfig{MaxIterations: 10, TimeLimit: time.Hour}, nil)
	reason, stop := e.Evaluate(Status{
		Iteration:  1,
		StartTime:  time.Now(),
		Reflection: &planner.Reflection{NextAction: "continue"},
	})
	assert.False(t, stop)
	assert.Empty(t, reason)
}
