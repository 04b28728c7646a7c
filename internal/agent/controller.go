package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ikoma-ai/ikoma/internal/checkpoint"
	"github.com/ikoma-ai/ikoma/internal/citations"
	"github.com/ikoma-ai/ikoma/internal/config"
	"github.com/ikoma-ai/ikoma/internal/llm"
	"github.com/ikoma-ai/ikoma/internal/memory"
	"github.com/ikoma-ai/ikoma/internal/planner"
	"github.com/ikoma-ai/ikoma/internal/tools"
	"github.com/ikoma-ai/ikoma/internal/utils"
)

const planTemperature = 0.2

// Controller drives one run through the plan-execute-reflect loop.
// Checkpoints and Memory are optional; a nil store disables that concern.
type Controller struct {
	LLM         llm.Client
	Tools       *tools.Registry
	Checkpoints *checkpoint.Store
	Memory      *memory.Store
	Citations   *citations.Registry

	// Confirm is called at human checkpoints in interactive mode. It returns
	// false to stop the run.
	Confirm func(iteration int) bool

	validator *planner.Validator
}

// Run executes the loop until a termination criterion fires or the context
// is cancelled. Cancellation is honored between phases; the in-flight phase
// always completes so its result can be checkpointed.
func (c *Controller) Run(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	if cfg.Goal == "" {
		return nil, fmt.Errorf("run goal is empty")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = config.DefaultMaxIterations
	}
	if cfg.MaxPlanRetries < 0 {
		cfg.MaxPlanRetries = config.DefaultMaxPlanRetries
	}
	if cfg.UserID == "" {
		cfg.UserID = "default"
	}
	if c.Citations == nil {
		c.Citations = citations.NewRegistry()
	}
	c.validator = planner.NewValidator(c.Tools)

	start := time.Now()
	engine := NewTerminationEngine(cfg, c.Confirm)

	var (
		history    []Message
		allSteps   []StepResult
		reflection *planner.Reflection
		lastPlan   *planner.Plan
		reason     string
		iteration  int
	)

	slog.Info("run started", "run_id", cfg.RunID, "goal", cfg.Goal, "max_iterations", cfg.MaxIterations)

	for {
		iteration++

		if ctx.Err() != nil {
			reason = ReasonCancelled
			break
		}

		memories := c.retrieve(ctx, cfg)

		plan, planErr := c.plan(ctx, cfg, memories, history)
		if planErr != nil {
			// Every repair attempt failed. Fall back to a single respond
			// step so the user still gets an answer, then stop.
			slog.Warn("plan repair exhausted, using fallback plan",
				"run_id", cfg.RunID, "iteration", iteration, "error", planErr)
			plan = planner.FallbackPlan(cfg.Goal, "respond")
			reason = ReasonPlanRepairExhausted
		}
		lastPlan = plan

		results := c.execute(ctx, cfg, plan)
		allSteps = append(allSteps, results...)

		reflection = c.reflect(ctx, cfg, plan, results)
		history = append(history, Message{Role: "assistant", Content: reflection.Summary})

		c.saveCheckpoint(cfg, iteration, plan, results, reflection, history)

		if reason != "" {
			break
		}

		status := Status{Iteration: iteration, StartTime: start, Reflection: reflection}
		if r, stop := engine.Evaluate(status); stop {
			reason = r
			break
		}
	}

	c.persistRunMemory(ctx, cfg, lastPlan, reflection)

	result := &RunResult{
		RunID:             cfg.RunID,
		Iterations:        iteration,
		TerminationReason: reason,
		Reflection:        reflection,
		Steps:             allSteps,
	}
	result.FinalMessage = c.finalMessage(result)

	slog.Info("run finished", "run_id", cfg.RunID, "iterations", iteration, "reason", reason)
	return result, nil
}

// retrieve pulls relevant memories for the planning prompt. Failures are
// logged and ignored; planning proceeds without them.
func (c *Controller) retrieve(ctx context.Context, cfg RunConfig) []string {
	if c.Memory == nil {
		return nil
	}
	results, err := c.Memory.Search(ctx, []string{"memories", cfg.UserID}, cfg.Goal, config.DefaultRetrieveLimit)
	if err != nil {
		slog.Warn("memory retrieval failed", "run_id", cfg.RunID, "error", err)
		return nil
	}
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Entry.Content)
	}
	return out
}

// persistRunMemory records the run's outcome in the user's memory namespace
// so later runs retrieve it during planning. Best-effort.
func (c *Controller) persistRunMemory(ctx context.Context, cfg RunConfig, plan *planner.Plan, reflection *planner.Reflection) {
	if c.Memory == nil || reflection == nil {
		return
	}
	content := fmt.Sprintf("Goal: %s\nOutcome: %s", cfg.Goal, reflection.Summary)
	meta := memory.Metadata{
		Context:    "run outcome",
		Reflection: reflection.Reasoning,
	}
	if plan != nil {
		meta.PlanContext = plan.Reasoning
	}
	// Cancelled runs are still worth remembering; detach from the run context.
	if err := c.Memory.Put(context.WithoutCancel(ctx), []string{"memories", cfg.UserID}, cfg.RunID, content, meta); err != nil {
		slog.Warn("run memory persistence failed", "run_id", cfg.RunID, "error", err)
	}
}

// plan generates and validates a plan, running the repair loop on failure.
func (c *Controller) plan(ctx context.Context, cfg RunConfig, memories []string, history []Message) (*planner.Plan, error) {
	prompt := buildPlanPrompt(cfg.Goal, c.Tools.Catalog(), memories, history)

	response, err := c.LLM.Generate(ctx, prompt, planTemperature)
	if err != nil {
		return nil, fmt.Errorf("plan generation: %w", err)
	}

	plan, verr := c.validator.Validate(response)
	if verr == nil {
		return plan, nil
	}

	text := response
	lastErr := verr
	for attempt := 1; attempt <= cfg.MaxPlanRetries; attempt++ {
		slog.Debug("plan invalid, attempting repair",
			"run_id", cfg.RunID, "attempt", attempt, "error", lastErr)

		repaired, rerr := planner.Repair(ctx, c.LLM, text, lastErr, 1)
		if rerr != nil {
			var failed *planner.RepairFailedError
			if errors.As(rerr, &failed) {
				lastErr = failed
				continue
			}
			return nil, rerr
		}

		plan, verr = c.validator.Validate(repaired)
		if verr == nil {
			return plan, nil
		}
		text = repaired
		lastErr = verr
	}

	return nil, &planner.RepairFailedError{Attempts: cfg.MaxPlanRetries, LastErr: lastErr}
}

// execute runs each plan step in order. Tool errors are recorded and the
// remaining steps still run unless FailFast is set.
func (c *Controller) execute(ctx context.Context, cfg RunConfig, plan *planner.Plan) []StepResult {
	results := make([]StepResult, 0, len(plan.Steps))

	for _, step := range plan.Steps {
		res := StepResult{
			Step:        step.Step,
			ToolName:    step.ToolName,
			Args:        step.Args,
			Description: step.Description,
			StartedAt:   time.Now().UTC(),
		}

		tool, err := c.Tools.Get(step.ToolName)
		if err != nil {
			res.Status = StepStatusError
			res.Error = err.Error()
			res.FinishedAt = time.Now().UTC()
			results = append(results, res)
			if cfg.FailFast {
				break
			}
			continue
		}

		output, err := tool.Invoke(ctx, step.Args)
		res.FinishedAt = time.Now().UTC()
		if err != nil {
			res.Status = StepStatusError
			res.Error = err.Error()
			slog.Warn("tool failed", "run_id", cfg.RunID, "step", step.Step, "tool", step.ToolName, "error", err)
		} else {
			res.Status = StepStatusSuccess
			res.Output = output
		}
		results = append(results, res)

		if err != nil && cfg.FailFast {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	return results
}

// reflect asks the LLM to judge the iteration. An unparseable reflection is
// treated as terminal so a confused model cannot loop forever.
func (c *Controller) reflect(ctx context.Context, cfg RunConfig, plan *planner.Plan, results []StepResult) *planner.Reflection {
	prompt := buildReflectPrompt(cfg.Goal, plan, results)

	fallback := func(why string) *planner.Reflection {
		slog.Warn("reflection unusable, ending run", "run_id", cfg.RunID, "reason", why)
		return &planner.Reflection{
			TaskCompleted: false,
			SuccessRate:   successRate(results),
			Summary:       summarizeSteps(results),
			NextAction:    "end",
			Reasoning:     "reflection unavailable: " + why,
		}
	}

	response, err := c.LLM.Generate(ctx, prompt, 0)
	if err != nil {
		return fallback(err.Error())
	}

	reflection, err := utils.ExtractJSON[planner.Reflection](response)
	if err != nil {
		return fallback(err.Error())
	}
	if reflection.NextAction != "continue" && reflection.NextAction != "end" {
		return fallback(fmt.Sprintf("invalid next_action %q", reflection.NextAction))
	}
	return &reflection
}

// saveCheckpoint persists the iteration snapshot. Write failures are logged,
// never fatal.
func (c *Controller) saveCheckpoint(cfg RunConfig, iteration int, plan *planner.Plan, results []StepResult, reflection *planner.Reflection, history []Message) {
	if c.Checkpoints == nil {
		return
	}

	citationState, err := json.Marshal(c.Citations)
	if err != nil {
		citationState = nil
	}
	state, err := json.Marshal(IterationRecord{
		Iteration:  iteration,
		Plan:       plan,
		Steps:      results,
		Reflection: reflection,
		Messages:   history,
		Citations:  citationState,
	})
	if err != nil {
		slog.Warn("checkpoint marshal failed", "run_id", cfg.RunID, "iteration", iteration, "error", err)
		return
	}

	err = c.Checkpoints.SaveStep(checkpoint.Record{RunID: cfg.RunID, Step: iteration, State: state})
	if errors.Is(err, checkpoint.ErrDuplicateStep) {
		err = c.Checkpoints.UpdateStep(cfg.RunID, iteration, state)
	}
	if err != nil {
		slog.Warn("checkpoint write failed", "run_id", cfg.RunID, "iteration", iteration, "error", err)
	}
}

// finalMessage assembles the user-facing summary with citations rendered.
func (c *Controller) finalMessage(res *RunResult) string {
	var b strings.Builder

	if res.Reflection != nil && strings.TrimSpace(res.Reflection.Summary) != "" {
		b.WriteString(res.Reflection.Summary)
	} else {
		b.WriteString(summarizeSteps(res.Steps))
	}

	b.WriteString("\n\nSteps:\n")
	for _, s := range res.Steps {
		if s.Succeeded() {
			out := s.Output
			if len(out) > 200 {
				out = out[:200] + "..."
			}
			fmt.Fprintf(&b, "  %d. %s: %s\n", s.Step, s.ToolName, out)
		} else {
			fmt.Fprintf(&b, "  %d. %s: failed (%s)\n", s.Step, s.ToolName, s.Error)
		}
	}

	fmt.Fprintf(&b, "\nRun ended: %s (%d iteration(s))", res.TerminationReason, res.Iterations)

	return c.Citations.Render(strings.TrimRight(b.String(), "\n"))
}

func successRate(results []StepResult) string {
	ok := 0
	for _, r := range results {
		if r.Succeeded() {
			ok++
		}
	}
	return fmt.Sprintf("%d/%d", ok, len(results))
}

func summarizeSteps(results []StepResult) string {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Succeeded() && strings.TrimSpace(results[i].Output) != "" {
			return results[i].Output
		}
	}
	return "No step produced output."
}
