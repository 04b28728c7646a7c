package extract

import (
	"regexp"
	"strings"
)

// Quality score weights. Base keeps short-but-real content from scoring zero.
const (
	weightReadability = 0.30
	weightLength      = 0.20
	weightVocabulary  = 0.20
	weightSentences   = 0.15
	weightBase        = 0.15
)

var sentenceSplitRe = regexp.MustCompile(`[.!?]+\s+`)

// QualityMetrics breaks the overall score into its factors.
type QualityMetrics struct {
	Overall     float64 `json:"overall"`
	Readability float64 `json:"readability"`
	Length      float64 `json:"length"`
	Vocabulary  float64 `json:"vocabulary"`
	Sentences   float64 `json:"sentences"`
}

// scoreQuality computes the weighted quality score in [0,1].
func scoreQuality(text string) QualityMetrics {
	words := strings.Fields(text)
	sentences := splitSentences(text)

	avgSentenceLen := 0.0
	if len(sentences) > 0 {
		avgSentenceLen = float64(len(words)) / float64(len(sentences))
	}

	// Readability: best around 15 words per sentence.
	readabilityScore := clamp01(1 - abs(avgSentenceLen-15)/20)

	// Length: optimal between 500 and 2000 characters.
	lengthScore := 0.0
	switch n := len(text); {
	case n >= 500 && n <= 2000:
		lengthScore = 1.0
	case n < 500:
		lengthScore = clamp01(float64(n) / 500)
	default:
		lengthScore = clamp01(2000 / float64(n))
	}

	// Vocabulary diversity: unique/total, scaled.
	vocabScore := 0.0
	if len(words) > 0 {
		unique := map[string]bool{}
		for _, w := range words {
			unique[strings.ToLower(w)] = true
		}
		vocabScore = clamp01(float64(len(unique)) / float64(len(words)) * 2)
	}

	// Sentence structure: penalize averages outside 10-20 words.
	sentenceScore := 1.0
	if avgSentenceLen < 10 || avgSentenceLen > 20 {
		sentenceScore = 0.5
	}
	if len(sentences) == 0 {
		sentenceScore = 0
	}

	overall := weightReadability*readabilityScore +
		weightLength*lengthScore +
		weightVocabulary*vocabScore +
		weightSentences*sentenceScore +
		weightBase

	return QualityMetrics{
		Overall:     clamp01(overall),
		Readability: readabilityScore,
		Length:      lengthScore,
		Vocabulary:  vocabScore,
		Sentences:   sentenceScore,
	}
}

// splitSentences splits on terminal punctuation followed by whitespace.
func splitSentences(text string) []string {
	parts := sentenceSplitRe.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// chunkSentences splits text into chunks of at most chunkSize characters,
// breaking on sentence boundaries where possible. A single sentence longer
// than chunkSize is hard-split.
func chunkSentences(text string, chunkSize int) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}

	sentences := sentenceSplitRe.FindAllStringIndex(text, -1)
	var chunks []string
	var current strings.Builder
	last := 0

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	appendPiece := func(piece string) {
		for len(piece) > chunkSize {
			flush()
			chunks = append(chunks, strings.TrimSpace(piece[:chunkSize]))
			piece = piece[chunkSize:]
		}
		if current.Len()+len(piece) > chunkSize {
			flush()
		}
		current.WriteString(piece)
	}

	for _, bounds := range sentences {
		appendPiece(text[last:bounds[1]])
		last = bounds[1]
	}
	if last < len(text) {
		appendPiece(text[last:])
	}
	flush()

	return chunks
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
