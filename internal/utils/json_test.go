package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestExtractJSONPlain(t *testing.T) {
	got, err := ExtractJSON[payload](`{"name":"a","count":3}`)
	require.NoError(t, err)
	assert.Equal(t, payload{Name: "a", Count: 3}, got)
}

func TestExtractJSONFencedWithProse(t *testing.T) {
	response := "Here is the result:\n```json\n{\"name\": \"b\", \"count\": 1}\n```"
	got, err := ExtractJSON[payload](response)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)
}

func TestExtractJSONLeadingAndTrailingText(t *testing.T) {
	got, err := ExtractJSON[payload](`Sure! {"name":"c","count":2} Hope that helps.`)
	require.NoError(t, err)
	assert.Equal(t, "c", got.Name)
	assert.Equal(t, 2, got.Count)
}

func TestExtractJSONSingleQuotes(t *testing.T) {
	got, err := ExtractJSON[map[string]any](`{'name': 'd', 'count': 4}`)
	require.NoError(t, err)
	assert.Equal(t, "d", got["name"])
}

func TestExtractJSONTrailingComma(t *testing.T) {
	got, err := ExtractJSON[payload](`{"name":"e","count":5,}`)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Count)
}

func TestExtractJSONTruncated(t *testing.T) {
	got, err := ExtractJSON[map[string]any](`{"name":"f","items":["x","y`)
	require.NoError(t, err)
	assert.Equal(t, "f", got["name"])
}

func TestExtractJSONRawNewlineInString(t *testing.T) {
	got, err := ExtractJSON[payload]("{\"name\":\"line1\nline2\",\"count\":1}")
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", got.Name)
}

func TestExtractJSONNoJSON(t *testing.T) {
	_, err := ExtractJSON[payload]("I could not produce a plan, sorry.")
	assert.Error(t, err)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences(`{"a":1}`))
}

func TestRepairMissingComma(t *testing.T) {
	out := Repair("{\"a\": \"x\"\n\"b\": 2}")
	got, err := ExtractJSON[map[string]any](out)
	require.NoError(t, err)
	assert.Equal(t, "x", got["a"])
	assert.Equal(t, float64(2), got["b"])
}
