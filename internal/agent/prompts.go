package agent

import (
	"fmt"
	"strings"

	"github.com/ikoma-ai/ikoma/internal/planner"
)

// buildPlanPrompt assembles the plan-phase prompt: goal, tool catalog,
// retrieved memories, and prior iteration outcomes.
func buildPlanPrompt(goal, catalog string, memories []string, history []Message) string {
	var b strings.Builder

	b.WriteString("You are a task-planning assistant. Produce a JSON plan that accomplishes the goal using only the tools listed.\n\n")
	fmt.Fprintf(&b, "GOAL:\n%s\n\n", goal)
	fmt.Fprintf(&b, "AVAILABLE TOOLS:\n%s\n", catalog)

	if len(memories) > 0 {
		b.WriteString("\nRELEVANT MEMORIES:\n")
		for i, m := range memories {
			fmt.Fprintf(&b, "%d. %s\n", i+1, m)
		}
	}

	if len(history) > 0 {
		b.WriteString("\nPREVIOUS PROGRESS:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		}
	}

	b.WriteString(`
Respond with ONLY a JSON object of this exact shape, no markdown:
{"plan":[{"step":1,"tool_name":"...","args":{...},"description":"..."}],"reasoning":"..."}

Rules:
- step numbers start at 1 and increase by 1
- tool_name must be one of the tools listed above
- args keys must match the tool's argument schema
- keep the plan short; only the steps needed for the goal`)

	return b.String()
}

// buildReflectPrompt assembles the reflect-phase prompt from the executed
// plan and its step results.
func buildReflectPrompt(goal string, plan *planner.Plan, results []StepResult) string {
	var b strings.Builder

	b.WriteString("You are reviewing the execution of a task plan.\n\n")
	fmt.Fprintf(&b, "GOAL:\n%s\n\n", goal)

	if plan != nil && plan.Reasoning != "" {
		fmt.Fprintf(&b, "PLAN REASONING:\n%s\n\n", plan.Reasoning)
	}

	b.WriteString("STEP RESULTS:\n")
	for _, r := range results {
		if r.Succeeded() {
			fmt.Fprintf(&b, "step %d (%s): OK\n%s\n", r.Step, r.ToolName, indent(truncateForPrompt(r.Output), "  "))
		} else {
			fmt.Fprintf(&b, "step %d (%s): ERROR: %s\n", r.Step, r.ToolName, r.Error)
		}
	}

	b.WriteString(`
Respond with ONLY a JSON object, no markdown:
{"task_completed":true|false,"success_rate":"N/M","summary":"...","next_action":"continue"|"end","reasoning":"..."}

Set task_completed to true only if the goal is fully accomplished.
Set next_action to "end" when nothing more can usefully be done.
The summary is shown to the user; keep citation markers like [[1]] from step outputs intact.`)

	return b.String()
}

func truncateForPrompt(s string) string {
	const max = 1500
	if len(s) <= max {
		return s
	}
	return s[:max] + "... [truncated]"
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
