package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ikoma-ai/ikoma/internal/memory"
)

// MemorySearchTool queries the vector store for content relevant to a query.
type MemorySearchTool struct {
	Memory *memory.Store
	UserID string
	Limit  int
}

func (t *MemorySearchTool) Name() string     { return "memory_search" }
func (t *MemorySearchTool) Category() string { return "memory" }

func (t *MemorySearchTool) Description() string {
	return "Search long-term memory for content relevant to a query"
}

func (t *MemorySearchTool) ArgsSchema() map[string]string {
	return map[string]string{"query": "string, what to search for"}
}

func (t *MemorySearchTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		query, _ = args["input"].(string)
	}
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query argument required")
	}

	results, err := t.Memory.Search(ctx, []string{"memories", t.UserID}, query, t.Limit)
	if err != nil {
		return "", fmt.Errorf("search memory: %w", err)
	}
	if len(results) == 0 {
		return "No relevant memories found", nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. (distance %.3f) %s\n", i+1, r.Distance, r.Entry.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// MemoryStoreTool saves a note into long-term memory.
type MemoryStoreTool struct {
	Memory *memory.Store
	UserID string
}

func (t *MemoryStoreTool) Name() string     { return "memory_store" }
func (t *MemoryStoreTool) Category() string { return "memory" }

func (t *MemoryStoreTool) Description() string {
	return "Store a note in long-term memory for future runs"
}

func (t *MemoryStoreTool) ArgsSchema() map[string]string {
	return map[string]string{"content": "string, the note to remember"}
}

func (t *MemoryStoreTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	content, _ := args["content"].(string)
	if content == "" {
		content, _ = args["input"].(string)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("content argument required")
	}

	key := uuid.NewString()
	if err := t.Memory.Put(ctx, []string{"memories", t.UserID}, key, content, memory.Metadata{}); err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}
	return fmt.Sprintf("Stored memory %s", key), nil
}
