package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ikoma-ai/ikoma/internal/citations"
	"github.com/ikoma-ai/ikoma/internal/config"
	"github.com/ikoma-ai/ikoma/internal/extract"
	"github.com/ikoma-ai/ikoma/internal/fetcher"
	"github.com/ikoma-ai/ikoma/internal/memory"
)

// WebFetchTool fetches a page, extracts its text, gates it on quality,
// stores the chunks in vector memory, and registers a citation for the
// source. The returned string is an excerpt tagged with the citation marker.
type WebFetchTool struct {
	Fetcher    *fetcher.Fetcher
	Memory     *memory.Store
	Citations  *citations.Registry
	MinQuality float64
	ChunkSize  int
}

func (t *WebFetchTool) Name() string     { return "web_fetch" }
func (t *WebFetchTool) Category() string { return "web" }

func (t *WebFetchTool) Description() string {
	return "Fetch a web page, extract its readable text, and store it in memory with a citation"
}

func (t *WebFetchTool) ArgsSchema() map[string]string {
	return map[string]string{"url": "string, the http(s) URL to fetch"}
}

func (t *WebFetchTool) Invoke(ctx context.Context, args map[string]any) (string, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		rawURL, _ = args["input"].(string)
	}
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("url argument required")
	}

	resp := t.Fetcher.Get(ctx, rawURL, nil, true)
	if !resp.Success {
		return "", fmt.Errorf("fetch %s: %s", rawURL, resp.Error)
	}

	content, err := extract.Extract(resp.URL, resp.Content, t.ChunkSize)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", rawURL, err)
	}

	minQuality := t.MinQuality
	if minQuality == 0 {
		minQuality = config.DefaultMinQuality
	}
	if content.QualityScore < minQuality {
		return "", fmt.Errorf("content quality %.2f below threshold %.2f for %s",
			content.QualityScore, minQuality, rawURL)
	}

	preview := content.TextChunks[0]
	citationID := t.Citations.AddCitation(resp.URL, content.Title, preview, "web", content.QualityScore)

	if t.Memory != nil {
		ns := []string{"web", content.Metadata.Domain}
		base := uuid.NewString()
		for i, chunk := range content.TextChunks {
			meta := memory.Metadata{
				URL:          resp.URL,
				Title:        content.Title,
				QualityScore: content.QualityScore,
				ChunkIndex:   i,
			}
			key := fmt.Sprintf("%s-%d", base, i)
			if err := t.Memory.Put(ctx, ns, key, chunk, meta); err != nil {
				// Memory persistence is best-effort; the fetch still counts.
				slog.Warn("memory store failed for web chunk", "url", resp.URL, "chunk", i, "error", err)
				break
			}
		}
	}

	excerpt := preview
	if len(excerpt) > 1200 {
		excerpt = excerpt[:1200] + "..."
	}
	return fmt.Sprintf("%s [[%d]]\n\nTitle: %s\nChunks stored: %d (quality %.2f)",
		excerpt, citationID, content.Title, len(content.TextChunks), content.QualityScore), nil
}
