// Package citations ties produced text to verifiable sources. Each run owns
// one Registry; IDs start at 1, grow monotonically, and are never reused.
package citations

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ikoma-ai/ikoma/internal/weburl"
)

// Sentinel values substituted when citation metadata fails validation.
// AddCitation never fails its caller; it degrades and logs instead.
const (
	invalidURL   = "https://example.com/invalid"
	invalidTitle = "Invalid Citation"

	maxTitleLength   = 500
	maxPreviewLength = 1000
)

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// Citation is one recorded source.
type Citation struct {
	ID             int       `json:"id"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Timestamp      time.Time `json:"timestamp"`
	Domain         string    `json:"domain"`
	Confidence     float64   `json:"confidence_score"`
	ContentPreview string    `json:"content_preview"`
	SourceType     string    `json:"source_type"`
}

// Registry issues citation IDs for a single run. It is not shared across
// runs and therefore needs no locking.
type Registry struct {
	citations []Citation
	counter   int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddCitation validates and records a source, returning its ID. Invalid
// metadata is replaced with sentinel values and logged; the call always
// succeeds.
func (r *Registry) AddCitation(rawURL, title, preview, sourceType string, confidence float64) int {
	cleanURL, domain, err := weburl.Sanitize(rawURL)
	if err != nil {
		slog.Warn("citation URL rejected", "url", truncate(rawURL, 120), "error", err)
		cleanURL = invalidURL
		domain = "example.com"
		confidence = 0.0
	}

	cleanTitle := sanitizeText(title, maxTitleLength)
	if cleanTitle == "" {
		cleanTitle = invalidTitle
	}

	if confidence < 0 || confidence > 1 {
		slog.Warn("citation confidence out of range", "confidence", confidence)
		confidence = 0.0
	}

	r.counter++
	r.citations = append(r.citations, Citation{
		ID:             r.counter,
		URL:            cleanURL,
		Title:          cleanTitle,
		Timestamp:      time.Now().UTC(),
		Domain:         domain,
		Confidence:     confidence,
		ContentPreview: sanitizeText(preview, maxPreviewLength),
		SourceType:     sourceType,
	})
	return r.counter
}

// Get returns the citation with the given ID, or nil.
func (r *Registry) Get(id int) *Citation {
	for i := range r.citations {
		if r.citations[i].ID == id {
			return &r.citations[i]
		}
	}
	return nil
}

// All returns the recorded citations in insertion order.
func (r *Registry) All() []Citation {
	return r.citations
}

// Has reports whether an ID exists in this registry.
func (r *Registry) Has(id int) bool {
	return r.Get(id) != nil
}

// state is the JSON-serializable registry snapshot.
type state struct {
	Citations []Citation `json:"citations"`
	Counter   int        `json:"counter"`
}

// MarshalJSON serializes the registry so IDs survive turns and restarts.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(state{Citations: r.citations, Counter: r.counter})
}

// UnmarshalJSON restores a registry snapshot.
func (r *Registry) UnmarshalJSON(data []byte) error {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	r.citations = s.Citations
	r.counter = s.Counter
	return nil
}

func sanitizeText(s string, maxLen int) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return truncate(s, maxLen)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
