package planner

// FallbackPlan builds the degenerate single-step plan used when validation
// and repair are both exhausted. The tool name must be registered; the
// controller passes its always-present respond tool.
func FallbackPlan(goal, toolName string) *Plan {
	return &Plan{
		Steps: []PlanStep{
			{
				Step:        1,
				ToolName:    toolName,
				Args:        map[string]any{"text": goal},
				Description: "Respond directly to the goal (plan generation failed)",
			},
		},
		Reasoning: "Plan generation failed validation and repair; falling back to a direct response.",
	}
}
