package extract

import (
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func articleHTML(paragraphs int) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Test Article</title></head><body><article><h1>Test Article</h1>`)
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "<p>This is paragraph %d with enough meaningful words to satisfy a readability pass. It discusses several distinct topics and keeps sentences at a reasonable length for scoring purposes.</p>", i)
	}
	b.WriteString(`</article></body></html>`)
	return b.String()
}

func TestExtractArticle(t *testing.T) {
	content, err := Extract("https://example.com/article", articleHTML(8), 0)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/article", content.URL)
	assert.NotEmpty(t, content.TextChunks)
	assert.Greater(t, content.QualityScore, 0.0)
	assert.Equal(t, "example.com", content.Metadata.Domain)
	assert.Equal(t, len(content.TextChunks), content.Metadata.ChunkCount)
	assert.Contains(t, []string{"readability", "dom_walk", "strip_tags"}, content.Metadata.ExtractionMethod)
}

func TestExtractSkipsChromeElements(t *testing.T) {
	html := `<html><body>
		<nav>Home About Contact</nav>
		<script>var x = "SCRIPTCONTENT";</script>
		<style>.c { color: red }</style>
		<main><p>` + strings.Repeat("Real article content with useful information. ", 5) + `</p></main>
		<footer>Copyright FOOTERCONTENT</footer>
	</body></html>`

	content, err := Extract("https://example.com/page", html, 0)
	require.NoError(t, err)

	text := strings.Join(content.TextChunks, " ")
	assert.Contains(t, text, "Real article content")
	assert.NotContains(t, text, "SCRIPTCONTENT")
}

func TestExtractEmptyDocument(t *testing.T) {
	_, err := Extract("https://example.com/empty", "", 0)
	assert.Error(t, err)
}

func TestExtractBadURL(t *testing.T) {
	_, err := Extract("://bad", "<p>content</p>", 0)
	assert.Error(t, err)
}

func TestExtractChunking(t *testing.T) {
	content, err := Extract("https://example.com/long", articleHTML(30), 500)
	require.NoError(t, err)

	require.Greater(t, len(content.TextChunks), 1)
	for i, chunk := range content.TextChunks {
		assert.LessOrEqual(t, len(chunk), 500, "chunk %d", i)
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}
}

func TestExtractTitleFallbacks(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{
			"og title wins",
			`<html><head><meta property="og:title" content="OG Title"><title>Doc Title</title></head><body><p>x</p></body></html>`,
			"OG Title",
		},
		{
			"title tag",
			`<html><head><title>Doc Title</title></head><body><p>x</p></body></html>`,
			"Doc Title",
		},
		{
			"first h1",
			`<html><body><h1>Heading Title</h1><p>x</p></body></html>`,
			"Heading Title",
		},
		{
			"hostname fallback",
			`<html><body><p>x</p></body></html>`,
			"example.com",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u := mustParse(t, "https://example.com/p")
			assert.Equal(t, tc.want, extractTitle(tc.html, u))
		})
	}
}

func TestScoreQualityFactors(t *testing.T) {
	good := strings.Repeat("This sentence has roughly the right number of words for readability scoring today. ", 12)
	metrics := scoreQuality(good)
	assert.Greater(t, metrics.Overall, 0.5)
	assert.Greater(t, metrics.Readability, 0.5)

	// Degenerate text without sentence structure scores low.
	bad := strings.Repeat("word ", 40)
	badMetrics := scoreQuality(bad)
	assert.Less(t, badMetrics.Overall, metrics.Overall)
	assert.Zero(t, badMetrics.Sentences)
}

func TestScoreQualityBounds(t *testing.T) {
	for _, text := range []string{"", "x", strings.Repeat("a ", 10000)} {
		m := scoreQuality(text)
		assert.GreaterOrEqual(t, m.Overall, 0.0)
		assert.LessOrEqual(t, m.Overall, 1.0)
	}
}

func TestChunkSentencesShortText(t *testing.T) {
	chunks := chunkSentences("short", 100)
	assert.Equal(t, []string{"short"}, chunks)
}

func TestChunkSentencesBreaksOnBoundaries(t *testing.T) {
	text := "First sentence here. Second sentence here. Third sentence here. Fourth sentence here."
	chunks := chunkSentences(text, 45)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 45)
	}
	assert.Contains(t, strings.Join(chunks, " "), "Fourth sentence")
}

func TestChunkSentencesHardSplitsOversize(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := chunkSentences(text, 100)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 100)
	}
}

func TestStripTags(t *testing.T) {
	out := stripTags(`<p>Hello &amp; <b>world</b></p><script>bad()</script>`)
	assert.Equal(t, "Hello & world", out)
}
