package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ikoma-ai/ikoma/internal/llm"
	"github.com/ikoma-ai/ikoma/internal/utils"
)

// DefaultRepairRetries bounds the repair loop when callers pass 0.
const DefaultRepairRetries = 2

// repairRetryDelay spaces out repair attempts.
const repairRetryDelay = 500 * time.Millisecond

// Repair asks the LLM to fix an invalid plan. The prompt carries the invalid
// JSON, the validator's error message, and a schema excerpt. The first
// response that parses as JSON is returned; the caller re-runs full
// validation. If every attempt fails, a RepairFailedError is returned.
func Repair(ctx context.Context, client llm.Client, invalidText string, validationErr error, retries int) (string, error) {
	if retries <= 0 {
		retries = DefaultRepairRetries
	}

	prompt := buildRepairPrompt(invalidText, validationErr)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		response, err := client.Generate(ctx, prompt, 0)
		if err != nil {
			lastErr = fmt.Errorf("repair generate: %w", err)
			slog.Debug("plan repair LLM call failed", "attempt", attempt, "error", err)
			continue
		}

		cleaned := utils.StripFences(response)
		if !strings.HasPrefix(strings.TrimSpace(cleaned), "{") {
			lastErr = fmt.Errorf("repair attempt %d: response is not a JSON object", attempt)
			sleepCtx(ctx, repairRetryDelay)
			continue
		}

		var probe map[string]any
		if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
			lastErr = fmt.Errorf("repair attempt %d: %w", attempt, err)
			sleepCtx(ctx, repairRetryDelay)
			continue
		}

		slog.Debug("plan repair produced parseable JSON", "attempt", attempt)
		return cleaned, nil
	}

	return "", &RepairFailedError{Attempts: retries, LastErr: lastErr}
}

func buildRepairPrompt(invalidText string, validationErr error) string {
	truncated := invalidText
	if len(truncated) > 2000 {
		truncated = truncated[:2000] + "... [truncated]"
	}

	return fmt.Sprintf(`Your previous plan output failed validation.

VALIDATION ERROR:
%s

YOUR PREVIOUS OUTPUT:
%s

PLAN SCHEMA (reference):
%s

Regenerate the plan as a single JSON object that conforms to the schema.
Output ONLY the JSON object, no markdown or explanation.`,
		validationErr.Error(), truncated, SchemaExcerpt())
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
