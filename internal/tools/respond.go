package tools

import "context"

// RespondTool echoes text back to the user. It is always registered so the
// fallback plan has a valid target.
type RespondTool struct{}

func (t *RespondTool) Name() string        { return "respond" }
func (t *RespondTool) Category() string    { return "core" }
func (t *RespondTool) Description() string { return "Respond to the user with the given text" }

func (t *RespondTool) ArgsSchema() map[string]string {
	return map[string]string{"text": "string, the response text"}
}

func (t *RespondTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	text, _ := args["text"].(string)
	return text, nil
}
