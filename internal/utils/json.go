// Package utils holds small shared helpers. The JSON extractor here is the
// single tolerant parser for all LLM output (plans and reflections alike).
package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled repair regexes. These cover the common ways LLMs break JSON;
// they are not a general-purpose repair engine.
var (
	// "value"\n"key": -> "value",\n"key":
	missingCommaBeforeKey = regexp.MustCompile(`(")\s*\n\s*("[\w][^"]*"\s*:)`)

	// 123\n"key": -> 123,\n"key":
	missingCommaAfterScalar = regexp.MustCompile(`(\d|true|false|null)\s*\n\s*("[\w][^"]*"\s*:)`)

	// } "key" -> }, "key"
	missingCommaAfterClose = regexp.MustCompile(`([}\]])\s*\n?\s*("[\w])`)

	// ,} -> } and ,] -> ]
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)

	// {'key': -> {"key":
	singleQuoteKey = regexp.MustCompile(`([{,]\s*)'(\w+)'(\s*:)`)

	// : 'value' -> : "value"
	singleQuoteValue = regexp.MustCompile(`(:\s*)'((?:[^'\\]|\\.)*)'(\s*[,}\]])`)
)

// ExtractJSON extracts and unmarshals a single JSON value from an LLM
// response. Markdown fences and trailing prose are tolerated; common syntax
// errors are repaired before giving up.
func ExtractJSON[T any](response string) (T, error) {
	var result T

	cleaned := StripFences(response)
	if cleaned == "" {
		return result, fmt.Errorf("no JSON found in response")
	}

	idx := strings.IndexAny(cleaned, "{[")
	if idx == -1 {
		// A quoted string that itself contains JSON.
		var inner string
		if err := json.Unmarshal([]byte(cleaned), &inner); err == nil && inner != cleaned {
			return ExtractJSON[T](inner)
		}
		return result, fmt.Errorf("no JSON start found")
	}

	payload := cleaned[idx:]
	if err := decodeFirst(payload, &result); err == nil {
		return result, nil
	}

	repaired := Repair(payload)
	if repaired != payload {
		if err := decodeFirst(repaired, &result); err == nil {
			return result, nil
		}
	}

	// Final attempt: the model double-escaped the payload.
	if strings.Contains(payload, `\"`) {
		unescaped := strings.ReplaceAll(payload, `\"`, `"`)
		unescaped = strings.ReplaceAll(unescaped, `\n`, "\n")
		if err := decodeFirst(Repair(unescaped), &result); err == nil {
			return result, nil
		}
	}

	err := decodeFirst(payload, &result)
	return result, fmt.Errorf("parse JSON: %w", err)
}

// decodeFirst decodes the first JSON value in s, ignoring trailing text.
func decodeFirst(s string, out any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	return dec.Decode(out)
}

// StripFences removes surrounding markdown code fences from a response.
func StripFences(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
	}
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// Repair fixes common LLM JSON syntax errors: raw control characters inside
// strings, missing or trailing commas, single-quoted keys and values, and
// truncated output.
func Repair(input string) string {
	out := escapeControlChars(input)

	out = missingCommaBeforeKey.ReplaceAllString(out, `$1, $2`)
	out = missingCommaAfterScalar.ReplaceAllString(out, `$1, $2`)
	out = missingCommaAfterClose.ReplaceAllString(out, `$1, $2`)
	out = trailingComma.ReplaceAllString(out, `$1`)
	out = singleQuoteKey.ReplaceAllString(out, `$1"$2"$3`)

	out = singleQuoteValue.ReplaceAllStringFunc(out, func(match string) string {
		parts := singleQuoteValue.FindStringSubmatch(match)
		if len(parts) != 4 {
			return match
		}
		val := strings.ReplaceAll(parts[2], `\'`, `'`)
		val = strings.ReplaceAll(val, `"`, `\"`)
		return parts[1] + `"` + val + `"` + parts[3]
	})

	return closeTruncated(out)
}

// escapeControlChars escapes raw control characters that appear inside JSON
// string literals.
func escapeControlChars(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	inString := false
	escaped := false
	for i := 0; i < len(input); i++ {
		c := input[i]

		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		if c == '\\' && inString {
			b.WriteByte(c)
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			b.WriteByte(c)
			continue
		}

		if inString && c < 0x20 {
			switch c {
			case '\t':
				b.WriteString(`\t`)
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			default:
				fmt.Fprintf(&b, `\u%04x`, c)
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closeTruncated balances quotes, brackets, and braces on output that was
// cut off mid-generation.
func closeTruncated(input string) string {
	quotes := 0
	escaped := false
	for _, c := range input {
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			quotes++
		}
	}
	if quotes%2 != 0 {
		input += `"`
	}

	for i := strings.Count(input, "[") - strings.Count(input, "]"); i > 0; i-- {
		input += "]"
	}
	for i := strings.Count(input, "{") - strings.Count(input, "}"); i > 0; i-- {
		input += "}"
	}
	return input
}
