// Package extract turns fetched HTML into clean text chunks with a quality
// score. The pipeline tries readability first, then a recall-biased DOM
// walk, and finally a bare tag strip.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/ikoma-ai/ikoma/internal/config"
)

// Extraction method names recorded in metadata.
const (
	methodReadability = "readability"
	methodDOMWalk     = "dom_walk"
	methodStripTags   = "strip_tags"
)

var (
	scriptRe     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Metadata describes how a document was extracted.
type Metadata struct {
	ExtractionMethod string         `json:"extraction_method"`
	Domain           string         `json:"domain"`
	Language         string         `json:"language,omitempty"`
	ChunkCount       int            `json:"chunk_count"`
	ContentLength    int            `json:"content_length"`
	QualityMetrics   QualityMetrics `json:"quality_metrics"`
}

// ExtractedContent is the extractor's result record.
type ExtractedContent struct {
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	TextChunks       []string  `json:"text_chunks"`
	QualityScore     float64   `json:"quality_score"`
	ReadabilityScore float64   `json:"readability_score"`
	Metadata         Metadata  `json:"metadata"`
	Timestamp        time.Time `json:"timestamp"`
}

// Extract runs the full pipeline over raw HTML. chunkSize <= 0 uses the
// default.
func Extract(rawURL, htmlContent string, chunkSize int) (*ExtractedContent, error) {
	if chunkSize <= 0 {
		chunkSize = config.DefaultChunkSize
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	text, title, method := extractText(parsedURL, htmlContent)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no text content extracted from %s", rawURL)
	}

	if title == "" {
		title = extractTitle(htmlContent, parsedURL)
	}

	metrics := scoreQuality(text)
	chunks := chunkSentences(text, chunkSize)

	return &ExtractedContent{
		URL:              rawURL,
		Title:            title,
		TextChunks:       chunks,
		QualityScore:     metrics.Overall,
		ReadabilityScore: metrics.Readability,
		Metadata: Metadata{
			ExtractionMethod: method,
			Domain:           strings.ToLower(parsedURL.Hostname()),
			ChunkCount:       len(chunks),
			ContentLength:    len(text),
			QualityMetrics:   metrics,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// extractText tries the three extraction strategies in order.
func extractText(u *url.URL, htmlContent string) (text, title, method string) {
	if article, err := readability.FromReader(strings.NewReader(htmlContent), u); err == nil {
		if t := collapseWhitespace(article.TextContent); len(t) > 100 {
			return t, strings.TrimSpace(article.Title), methodReadability
		}
	}

	if t := domWalkText(htmlContent); len(t) > 50 {
		return t, "", methodDOMWalk
	}

	return stripTags(htmlContent), "", methodStripTags
}

// domWalkText is the recall-biased fallback: parse the DOM, drop chrome
// elements, and collect the remaining text.
func domWalkText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	skip := map[string]bool{
		"script": true, "style": true, "noscript": true, "nav": true,
		"header": true, "footer": true, "aside": true, "iframe": true,
		"form": true, "button": true,
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skip[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return collapseWhitespace(b.String())
}

// stripTags is the last-resort extraction: drop script/style blocks, strip
// every tag, collapse whitespace.
func stripTags(htmlContent string) string {
	out := scriptRe.ReplaceAllString(htmlContent, " ")
	out = styleRe.ReplaceAllString(out, " ")
	out = tagRe.ReplaceAllString(out, " ")
	out = html.UnescapeString(out)
	return collapseWhitespace(out)
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// extractTitle resolves a document title: Open Graph, then <title>, then
// the first <h1>, then the URL host.
func extractTitle(htmlContent string, u *url.URL) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return u.Hostname()
	}

	var ogTitle, docTitle, h1 string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var property, content string
				for _, a := range n.Attr {
					switch a.Key {
					case "property":
						property = a.Val
					case "content":
						content = a.Val
					}
				}
				if property == "og:title" && ogTitle == "" {
					ogTitle = content
				}
			case "title":
				if docTitle == "" && n.FirstChild != nil {
					docTitle = n.FirstChild.Data
				}
			case "h1":
				if h1 == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					h1 = n.FirstChild.Data
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, candidate := range []string{ogTitle, docTitle, h1} {
		if t := strings.TrimSpace(candidate); t != "" {
			return t
		}
	}
	return u.Hostname()
}
