package planner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ikoma-ai/ikoma/internal/utils"
)

// ToolCatalog is the slice of the tool registry the validator needs.
type ToolCatalog interface {
	Has(name string) bool
}

// Validator checks raw plan text against the schema and the tool catalog.
type Validator struct {
	catalog ToolCatalog
}

// NewValidator creates a plan validator bound to a tool catalog.
func NewValidator(catalog ToolCatalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate parses and validates plan text. Markdown fences are tolerated.
// Unknown top-level or per-step properties are rejected.
func (v *Validator) Validate(planText string) (*Plan, error) {
	cleaned := utils.StripFences(planText)
	if strings.TrimSpace(cleaned) == "" {
		return nil, &MalformedPlanError{Message: "empty plan response"}
	}

	idx := strings.IndexAny(cleaned, "{")
	if idx == -1 {
		return nil, &MalformedPlanError{Message: "no JSON object in plan response"}
	}

	var plan Plan
	dec := json.NewDecoder(strings.NewReader(cleaned[idx:]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&plan); err != nil {
		return nil, &MalformedPlanError{
			Message:     "plan is not valid JSON for the plan schema",
			Diagnostics: []Diagnostic{{Tag: "json", Message: err.Error()}},
		}
	}

	if err := validate.Struct(&plan); err != nil {
		return nil, &MalformedPlanError{
			Message:     "plan failed schema validation",
			Diagnostics: diagnosticsFrom(err),
		}
	}

	var diags []Diagnostic
	for i, step := range plan.Steps {
		if !v.catalog.Has(step.ToolName) {
			diags = append(diags, Diagnostic{
				Field:   fmt.Sprintf("plan[%d].tool_name", i),
				Tag:     "tool_unknown",
				Message: fmt.Sprintf("tool %q is not registered", step.ToolName),
			})
		}
	}
	if len(diags) > 0 {
		return nil, &MalformedPlanError{Message: "plan references unknown tools", Diagnostics: diags}
	}

	// Step numbers should be 1..N in order; gaps are tolerated but noted.
	for i, step := range plan.Steps {
		if step.Step != i+1 {
			slog.Warn("plan step numbers are not contiguous",
				"position", i+1, "step", step.Step)
			break
		}
	}

	return &plan, nil
}
