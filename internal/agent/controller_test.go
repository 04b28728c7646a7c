package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikoma-ai/ikoma/internal/checkpoint"
	"github.com/ikoma-ai/ikoma/internal/memory"
	"github.com/ikoma-ai/ikoma/internal/tools"
)

// scriptedLLM replays canned responses in order.
type scriptedLLM struct {
	responses []string
	calls     int
	prompts   []string
}

func (c *scriptedLLM) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if c.calls >= len(c.responses) {
		return "", fmt.Errorf("no scripted response for call %d", c.calls+1)
	}
	r := c.responses[c.calls]
	c.calls++
	return r, nil
}

func (c *scriptedLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	r.MustRegister(&tools.RespondTool{})
	r.MustRegister(&tools.CalculatorTool{})
	return r
}

func planJSON(steps string) string {
	return fmt.Sprintf(`{"plan":[%s],"reasoning":"test plan"}`, steps)
}

const reflectionEnd = `{"task_completed":true,"success_rate":"1/1","summary":"The answer is 172.","next_action":"end","reasoning":"done"}`
const reflectionContinue = `{"task_completed":false,"success_rate":"1/1","summary":"more to do","next_action":"continue","reasoning":"keep going"}`

func TestRunCalculatesAndStops(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		planJSON(`{"step":1,"tool_name":"calculate","args":{"expression":"23*7+11"},"description":"compute"},
			{"step":2,"tool_name":"respond","args":{"text":"The answer is 172."},"description":"answer"}`),
		reflectionEnd,
	}}

	c := &Controller{LLM: llmClient, Tools: testRegistry(t)}
	result, err := c.Run(context.Background(), RunConfig{RunID: "r1", Goal: "Calculate 23*7+11", MaxIterations: 5})
	require.NoError(t, err)

	assert.Equal(t, ReasonGoalSatisfied, result.TerminationReason)
	assert.Equal(t, 1, result.Iterations)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "172", result.Steps[0].Output)
	assert.Contains(t, result.FinalMessage, "172")
	assert.Contains(t, result.FinalMessage, ReasonGoalSatisfied)
}

func TestRunRecordsStepExecutionDetails(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		planJSON(`{"step":1,"tool_name":"calculate","args":{"expression":"23*7+11"},"description":"compute"}`),
		reflectionEnd,
	}}

	c := &Controller{LLM: llmClient, Tools: testRegistry(t)}
	result, err := c.Run(context.Background(), RunConfig{RunID: "r1", Goal: "g", MaxIterations: 3})
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	s := result.Steps[0]
	assert.Equal(t, StepStatusSuccess, s.Status)
	assert.Equal(t, map[string]any{"expression": "23*7+11"}, s.Args)
	assert.Equal(t, "compute", s.Description)
	assert.False(t, s.StartedAt.IsZero())
	assert.False(t, s.FinishedAt.Before(s.StartedAt))
}

func TestRunPersistsOutcomeMemory(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		planJSON(`{"step":1,"tool_name":"respond","args":{"text":"The answer is 172."},"description":"answer"}`),
		reflectionEnd,
	}}
	store, err := memory.Open(":memory:", llmClient)
	require.NoError(t, err)
	defer store.Close()

	c := &Controller{LLM: llmClient, Tools: testRegistry(t), Memory: store}
	_, err = c.Run(context.Background(), RunConfig{RunID: "mem-run", UserID: "u1", Goal: "compute the answer", MaxIterations: 3})
	require.NoError(t, err)

	entry, err := store.Get(context.Background(), []string{"memories", "u1"}, "mem-run")
	require.NoError(t, err)
	assert.Contains(t, entry.Content, "compute the answer")
	assert.Contains(t, entry.Content, "The answer is 172.")
	assert.Equal(t, "test plan", entry.Metadata.PlanContext)
	assert.NotEmpty(t, entry.Metadata.Reflection)
}

func TestRunStopsAtIterationLimit(t *testing.T) {
	step := `{"step":1,"tool_name":"respond","args":{"text":"working"},"description":"w"}`
	llmClient := &scriptedLLM{responses: []string{
		planJSON(step), reflectionContinue,
		planJSON(step), reflectionContinue,
	}}

	c := &Controller{LLM: llmClient, Tools: testRegistry(t)}
	result, err := c.Run(context.Background(), RunConfig{RunID: "r1", Goal: "loop", MaxIterations: 2})
	require.NoError(t, err)

	assert.Equal(t, ReasonIterationLimit, result.TerminationReason)
	assert.Equal(t, 2, result.Iterations)
}

func TestRunRepairsMalformedPlan(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		`Sure! Here is my plan: steps one and two.`, // not JSON
		planJSON(`{"step":1,"tool_name":"respond","args":{"text":"fixed"},"description":"d"}`),
		reflectionEnd,
	}}

	c := &Controller{LLM: llmClient, Tools: testRegistry(t)}
	result, err := c.Run(context.Background(), RunConfig{RunID: "r1", Goal: "g", MaxIterations: 3, MaxPlanRetries: 2})
	require.NoError(t, err)

	assert.Equal(t, ReasonGoalSatisfied, result.TerminationReason)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "fixed", result.Steps[0].Output)
	// The repair prompt carried the validator's error back to the model.
	require.GreaterOrEqual(t, len(llmClient.prompts), 2)
	assert.Contains(t, llmClient.prompts[1], "failed validation")
}

func TestRunFallsBackWhenRepairExhausted(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		"not a plan",
		"still not a plan",
		"nope",
		reflectionEnd,
	}}

	c := &Controller{LLM: llmClient, Tools: testRegistry(t)}
	result, err := c.Run(context.Background(), RunConfig{RunID: "r1", Goal: "explain quines", MaxIterations: 3, MaxPlanRetries: 2})
	require.NoError(t, err)

	assert.Equal(t, ReasonPlanRepairExhausted, result.TerminationReason)
	assert.Equal(t, 1, result.Iterations)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "respond", result.Steps[0].ToolName)
	assert.Equal(t, "explain quines", result.Steps[0].Output)
}

func TestRunUnparseableReflectionEnds(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		planJSON(`{"step":1,"tool_name":"respond","args":{"text":"done"},"description":"d"}`),
		"I think it went well!",
	}}

	c := &Controller{LLM: llmClient, Tools: testRegistry(t)}
	result, err := c.Run(context.Background(), RunConfig{RunID: "r1", Goal: "g", MaxIterations: 5})
	require.NoError(t, err)

	assert.Equal(t, ReasonGoalSatisfied, result.TerminationReason)
	assert.Equal(t, 1, result.Iterations)
	require.NotNil(t, result.Reflection)
	assert.Equal(t, "end", result.Reflection.NextAction)
}

func TestRunContinuesPastToolErrors(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		planJSON(`{"step":1,"tool_name":"calculate","args":{"expression":"1/0"},"description":"bad"},
			{"step":2,"tool_name":"respond","args":{"text":"still here"},"description":"d"}`),
		reflectionEnd,
	}}

	c := &Controller{LLM: llmClient, Tools: testRegistry(t)}
	result, err := c.Run(context.Background(), RunConfig{RunID: "r1", Goal: "g", MaxIterations: 3})
	require.NoError(t, err)

	require.Len(t, result.Steps, 2)
	assert.False(t, result.Steps[0].Succeeded())
	assert.Contains(t, result.Steps[0].Error, "division by zero")
	assert.Equal(t, "still here", result.Steps[1].Output)
}

func TestRunFailFastStopsExecution(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		planJSON(`{"step":1,"tool_name":"calculate","args":{"expression":"1/0"},"description":"bad"},
			{"step":2,"tool_name":"respond","args":{"text":"unreachable"},"description":"d"}`),
		reflectionEnd,
	}}

	c := &Controller{LLM: llmClient, Tools: testRegistry(t)}
	result, err := c.Run(context.Background(), RunConfig{RunID: "r1", Goal: "g", MaxIterations: 3, FailFast: true})
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	assert.False(t, result.Steps[0].Succeeded())
}

func TestRunWritesCheckpoints(t *testing.T) {
	store, err := checkpoint.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	llmClient := &scriptedLLM{responses: []string{
		planJSON(`{"step":1,"tool_name":"respond","args":{"text":"done"},"description":"d"}`),
		reflectionEnd,
	}}

	c := &Controller{LLM: llmClient, Tools: testRegistry(t), Checkpoints: store}
	result, err := c.Run(context.Background(), RunConfig{RunID: "ckpt-run", Goal: "g", MaxIterations: 3})
	require.NoError(t, err)
	require.Equal(t, 1, result.Iterations)

	records, err := store.GetSteps("ckpt-run")
	require.NoError(t, err)
	require.Len(t, records, 1)

	var it IterationRecord
	require.NoError(t, json.Unmarshal(records[0].State, &it))
	assert.Equal(t, 1, it.Iteration)
	require.NotNil(t, it.Reflection)
	assert.True(t, it.Reflection.TaskCompleted)
	require.Len(t, it.Steps, 1)
	assert.Equal(t, "respond", it.Steps[0].ToolName)
}

func TestRunHumanCheckpointStops(t *testing.T) {
	step := `{"step":1,"tool_name":"respond","args":{"text":"w"},"description":"d"}`
	llmClient := &scriptedLLM{responses: []string{
		planJSON(step), reflectionContinue,
		planJSON(step), reflectionContinue,
	}}

	asked := 0
	c := &Controller{
		LLM:     llmClient,
		Tools:   testRegistry(t),
		Confirm: func(iteration int) bool { asked++; return false },
	}
	result, err := c.Run(context.Background(), RunConfig{
		RunID: "r1", Goal: "g",
		MaxIterations: 10, CheckpointEvery: 1, Interactive: true,
	})
	require.NoError(t, err)

	assert.Equal(t, ReasonUserStopped, result.TerminationReason)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 1, asked)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llmClient := &scriptedLLM{}
	c := &Controller{LLM: llmClient, Tools: testRegistry(t)}
	result, err := c.Run(ctx, RunConfig{RunID: "r1", Goal: "g", MaxIterations: 3})
	require.NoError(t, err)
	assert.Equal(t, ReasonCancelled, result.TerminationReason)
	assert.Zero(t, llmClient.calls)
}

func TestRunCreatesSandboxFile(t *testing.T) {
	memFs := afero.NewMemMapFs()
	registry := testRegistry(t)
	sandbox := tools.NewSandboxFs(memFs)
	registry.MustRegister(&tools.CreateTextFileTool{Sandbox: sandbox})

	llmClient := &scriptedLLM{responses: []string{
		planJSON(`{"step":1,"tool_name":"create_text_file","args":{"input":"test.txt|||benchmark"},"description":"write file"}`),
		`{"task_completed":true,"success_rate":"1/1","summary":"Created test.txt.","next_action":"end","reasoning":"done"}`,
	}}

	c := &Controller{LLM: llmClient, Tools: registry}
	result, err := c.Run(context.Background(), RunConfig{RunID: "r1", Goal: "Create a file named test.txt containing the word benchmark", MaxIterations: 5})
	require.NoError(t, err)

	assert.Equal(t, ReasonGoalSatisfied, result.TerminationReason)
	data, err := afero.ReadFile(memFs, "test.txt")
	require.NoError(t, err)
	assert.Equal(t, "benchmark", string(data))
}

func TestRunListsThenSummarizesSandbox(t *testing.T) {
	memFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(memFs, "a.txt", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(memFs, "b.txt", []byte("b"), 0o644))

	registry := testRegistry(t)
	sandbox := tools.NewSandboxFs(memFs)
	registry.MustRegister(&tools.CreateTextFileTool{Sandbox: sandbox})
	registry.MustRegister(&tools.ListSandboxFilesTool{Sandbox: sandbox})

	llmClient := &scriptedLLM{responses: []string{
		planJSON(`{"step":1,"tool_name":"list_sandbox_files","args":{},"description":"list files"},
			{"step":2,"tool_name":"create_text_file","args":{"input":"summary.txt|||2 files"},"description":"write summary"}`),
		`{"task_completed":true,"success_rate":"2/2","summary":"Wrote summary.txt with the file count.","next_action":"end","reasoning":"done"}`,
	}}

	c := &Controller{LLM: llmClient, Tools: registry}
	result, err := c.Run(context.Background(), RunConfig{RunID: "r1", Goal: "Summarize the sandbox contents into summary.txt", MaxIterations: 5})
	require.NoError(t, err)

	assert.Equal(t, ReasonGoalSatisfied, result.TerminationReason)
	require.Len(t, result.Steps, 2)
	assert.Contains(t, result.Steps[0].Output, "a.txt")
	assert.Contains(t, result.Steps[0].Output, "b.txt")

	data, err := afero.ReadFile(memFs, "summary.txt")
	require.NoError(t, err)
	assert.Contains(t, string(data), "2")
}

func TestRunEmptyGoalRejected(t *testing.T) {
	c := &Controller{LLM: &scriptedLLM{}, Tools: testRegistry(t)}
	_, err := c.Run(context.Background(), RunConfig{RunID: "r1"})
	assert.Error(t, err)
}
