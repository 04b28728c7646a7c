// Package planner defines the LLM plan contract: the typed plan model, its
// strict validation, the bounded repair loop, and the reflection contract.
package planner

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the package-wide validator instance; it caches struct info.
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Non-empty after trimming.
	_ = validate.RegisterValidation("nonempty", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// PlanStep is a single tool invocation within a plan.
type PlanStep struct {
	// Step is the 1-based position. Gaps are tolerated with a warning.
	Step int `json:"step" validate:"required,min=1"`

	// ToolName must resolve in the tool registry.
	ToolName string `json:"tool_name" validate:"required,nonempty"`

	// Args are passed verbatim to the tool. The key must be present even
	// when the tool takes no arguments; an empty object is fine.
	Args map[string]any `json:"args" validate:"required"`

	// Description says what the step is for.
	Description string `json:"description" validate:"required,nonempty"`

	// Citations optionally references citation IDs supporting this step.
	Citations []int `json:"citations,omitempty" validate:"omitempty,dive,min=1"`
}

// Plan is the validated top-level plan structure.
type Plan struct {
	Steps     []PlanStep `json:"plan" validate:"required,min=1,dive"`
	Reasoning string     `json:"reasoning"`
}

// Reflection is the typed result of the reflect phase.
type Reflection struct {
	TaskCompleted bool   `json:"task_completed"`
	SuccessRate   string `json:"success_rate"`
	Summary       string `json:"summary"`
	NextAction    string `json:"next_action" validate:"required,oneof=continue end"`
	Reasoning     string `json:"reasoning"`
}

// ShouldEnd reports whether the reflection terminates the run.
func (r *Reflection) ShouldEnd() bool {
	return r.TaskCompleted || r.NextAction == "end"
}

// Diagnostic is one per-field validation finding.
type Diagnostic struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// MalformedPlanError reports why a plan failed validation.
type MalformedPlanError struct {
	Message     string
	Diagnostics []Diagnostic
}

func (e *MalformedPlanError) Error() string {
	if len(e.Diagnostics) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		parts = append(parts, d.Message)
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(parts, "; "))
}

// RepairFailedError reports that every repair attempt produced unparseable output.
type RepairFailedError struct {
	Attempts int
	LastErr  error
}

func (e *RepairFailedError) Error() string {
	return fmt.Sprintf("plan repair failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RepairFailedError) Unwrap() error { return e.LastErr }

func diagnosticsFrom(err error) []Diagnostic {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []Diagnostic{{Field: "", Tag: "invalid", Message: err.Error()}}
	}
	out := make([]Diagnostic, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, Diagnostic{
			Field:   fe.Namespace(),
			Tag:     fe.Tag(),
			Message: formatFieldError(fe),
		})
	}
	return out
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "nonempty":
		return fmt.Sprintf("%s cannot be empty or whitespace", fe.Namespace())
	case "min":
		if fe.Kind().String() == "slice" {
			return fmt.Sprintf("%s must have at least %s items", fe.Namespace(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Namespace(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Namespace(), fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", fe.Namespace(), fe.Tag())
	}
}
