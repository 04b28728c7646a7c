package planner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient replays canned responses to Generate calls.
type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (c *scriptedClient) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	c.prompts = append(c.prompts, prompt)
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "", fmt.Errorf("no scripted response for call %d", i+1)
}

func (c *scriptedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding not scripted")
}

func TestRepairReturnsFirstParseableResponse(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"plan":[{"step":1,"tool_name":"respond","args":{},"description":"d"}],"reasoning":"fixed"}`,
	}}

	out, err := Repair(context.Background(), client, `{"plan": [}`, errors.New("plan is not valid JSON"), 2)
	require.NoError(t, err)
	assert.Contains(t, out, `"reasoning":"fixed"`)
	assert.Equal(t, 1, client.calls)
}

func TestRepairPromptCarriesErrorAndInvalidOutput(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"ok":true}`}}

	_, err := Repair(context.Background(), client, `{"broken": tru`, errors.New("unexpected token"), 1)
	require.NoError(t, err)
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "unexpected token")
	assert.Contains(t, client.prompts[0], `{"broken": tru`)
}

func TestRepairSkipsNonJSONResponses(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Sorry, I cannot fix that.",
		`{"plan":[{"step":1,"tool_name":"respond","args":{},"description":"d"}],"reasoning":"second try"}`,
	}}

	out, err := Repair(context.Background(), client, "{", errors.New("bad"), 2)
	require.NoError(t, err)
	assert.Contains(t, out, "second try")
	assert.Equal(t, 2, client.calls)
}

func TestRepairExhaustionReturnsTypedError(t *testing.T) {
	client := &scriptedClient{responses: []string{"still prose", "more prose"}}

	_, err := Repair(context.Background(), client, "{", errors.New("bad"), 2)
	var failed *RepairFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 2, failed.Attempts)
}

func TestRepairSurvivesGenerateErrors(t *testing.T) {
	client := &scriptedClient{
		errs:      []error{errors.New("connection refused"), nil},
		responses: []string{"", `{"a":1}`},
	}

	out, err := Repair(context.Background(), client, "{", errors.New("bad"), 2)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}
