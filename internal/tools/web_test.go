package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikoma-ai/ikoma/internal/citations"
	"github.com/ikoma-ai/ikoma/internal/fetcher"
)

func TestWebFetchBlocksLocalhost(t *testing.T) {
	tool := &WebFetchTool{
		Fetcher:   fetcher.New(fetcher.Options{CacheDir: t.TempDir()}),
		Citations: citations.NewRegistry(),
	}

	_, err := tool.Invoke(context.Background(), map[string]any{"url": "http://localhost:8000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Domain blocked")
}

func TestWebFetchRequiresURL(t *testing.T) {
	tool := &WebFetchTool{
		Fetcher:   fetcher.New(fetcher.Options{CacheDir: t.TempDir()}),
		Citations: citations.NewRegistry(),
	}

	_, err := tool.Invoke(context.Background(), map[string]any{})
	assert.Error(t, err)
}
