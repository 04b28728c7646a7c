package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog map[string]bool

func (c fakeCatalog) Has(name string) bool { return c[name] }

var testCatalog = fakeCatalog{"respond": true, "calculate": true, "web_fetch": true}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	v := NewValidator(testCatalog)
	plan, err := v.Validate(`{
		"plan": [
			{"step": 1, "tool_name": "calculate", "args": {"expression": "23*7+11"}, "description": "compute"},
			{"step": 2, "tool_name": "respond", "args": {"text": "done"}, "description": "answer"}
		],
		"reasoning": "two steps"
	}`)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "calculate", plan.Steps[0].ToolName)
	assert.Equal(t, "two steps", plan.Reasoning)
}

func TestValidateToleratesFences(t *testing.T) {
	v := NewValidator(testCatalog)
	plan, err := v.Validate("```json\n{\"plan\":[{\"step\":1,\"tool_name\":\"respond\",\"args\":{},\"description\":\"d\"}],\"reasoning\":\"r\"}\n```")
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 1)
}

func TestValidateRejectsEmptyResponse(t *testing.T) {
	v := NewValidator(testCatalog)
	_, err := v.Validate("   ")
	var malformed *MalformedPlanError
	require.ErrorAs(t, err, &malformed)
}

func TestValidateRejectsUnknownTopLevelField(t *testing.T) {
	v := NewValidator(testCatalog)
	_, err := v.Validate(`{"plan":[{"step":1,"tool_name":"respond","args":{},"description":"d"}],"reasoning":"r","extra":true}`)
	var malformed *MalformedPlanError
	require.ErrorAs(t, err, &malformed)
}

func TestValidateRejectsUnknownStepField(t *testing.T) {
	v := NewValidator(testCatalog)
	_, err := v.Validate(`{"plan":[{"step":1,"tool_name":"respond","args":{},"description":"d","surprise":1}],"reasoning":"r"}`)
	assert.Error(t, err)
}

func TestValidateRejectsMissingArgs(t *testing.T) {
	v := NewValidator(testCatalog)
	_, err := v.Validate(`{"plan":[{"step":1,"tool_name":"respond","description":"d"}],"reasoning":"r"}`)
	var malformed *MalformedPlanError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Error(), "Args")

	// An explicit empty object satisfies the requirement.
	_, err = v.Validate(`{"plan":[{"step":1,"tool_name":"respond","args":{},"description":"d"}],"reasoning":"r"}`)
	assert.NoError(t, err)
}

func TestValidateRejectsEmptyPlan(t *testing.T) {
	v := NewValidator(testCatalog)
	_, err := v.Validate(`{"plan":[],"reasoning":"nothing to do"}`)
	var malformed *MalformedPlanError
	require.ErrorAs(t, err, &malformed)
}

func TestValidateRejectsWhitespaceToolName(t *testing.T) {
	v := NewValidator(testCatalog)
	_, err := v.Validate(`{"plan":[{"step":1,"tool_name":"  ","args":{},"description":"d"}],"reasoning":"r"}`)
	assert.Error(t, err)
}

func TestValidateRejectsUnknownTool(t *testing.T) {
	v := NewValidator(testCatalog)
	_, err := v.Validate(`{"plan":[{"step":1,"tool_name":"teleport","args":{},"description":"d"}],"reasoning":"r"}`)
	var malformed *MalformedPlanError
	require.ErrorAs(t, err, &malformed)
	require.Len(t, malformed.Diagnostics, 1)
	assert.Equal(t, "tool_unknown", malformed.Diagnostics[0].Tag)
}

func TestValidateRejectsZeroCitationID(t *testing.T) {
	v := NewValidator(testCatalog)
	_, err := v.Validate(`{"plan":[{"step":1,"tool_name":"respond","args":{},"description":"d","citations":[0]}],"reasoning":"r"}`)
	assert.Error(t, err)
}

func TestReflectionShouldEnd(t *testing.T) {
	assert.True(t, (&Reflection{TaskCompleted: true, NextAction: "continue"}).ShouldEnd())
	assert.True(t, (&Reflection{NextAction: "end"}).ShouldEnd())
	assert.False(t, (&Reflection{NextAction: "continue"}).ShouldEnd())
}

func TestFallbackPlanTargetsTool(t *testing.T) {
	plan := FallbackPlan("say hi", "respond")
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "respond", plan.Steps[0].ToolName)
	assert.Equal(t, "say hi", plan.Steps[0].Args["text"])
	assert.NoError(t, validate.Struct(plan))
}
