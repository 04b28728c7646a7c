package planner

import (
	_ "embed"
	"strings"
)

// planSchemaJSON is the canonical JSON Schema for plans. It is committed
// alongside the typed model; a test asserts the two stay in sync.
//
//go:embed schema.json
var planSchemaJSON string

// SchemaJSON returns the canonical plan schema text.
func SchemaJSON() string {
	return planSchemaJSON
}

// schemaExcerptLines is how much of the schema repair prompts include.
const schemaExcerptLines = 60

// SchemaExcerpt returns the first lines of the schema for use as prompt
// reference material.
func SchemaExcerpt() string {
	lines := strings.Split(planSchemaJSON, "\n")
	if len(lines) > schemaExcerptLines {
		lines = lines[:schemaExcerptLines]
	}
	return strings.Join(lines, "\n")
}
