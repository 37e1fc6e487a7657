package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"regaudit/internal/types"
)

// Pre-compiled regular expressions for performance.
var (
	// Code fence patterns; newlines optional for models that omit them
	codeFenceStartRegex = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}\s*$`)
	codeFenceAnyRegex   = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	// JSON cleanup patterns
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRegex   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)

	// JSON extraction patterns (greedy, to capture nested structures)
	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// Parse decodes model output into T, tolerating the usual formatting quirks
// in LLM JSON: markdown code fences, trailing commas, unquoted keys, and
// prose wrapped around the payload. A failure after all strategies returns
// ErrParse; the caller decides whether a corrective re-prompt is worth it.
//
// Strategy sequence:
//  1. Direct JSON parse
//  2. Remove code fences and retry
//  3. Fix common JSON issues and retry
//  4. Extract JSON from mixed content and retry
func Parse[T any](text string) (T, error) {
	var zero T

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return zero, fmt.Errorf("%w: empty model output", types.ErrParse)
	}

	if result, err := tryDirectParse[T](trimmed); err == nil {
		return result, nil
	} else {
		slog.Debug("direct JSON parse failed, trying cleanup strategies",
			"error", err, "preview", truncate(trimmed, 100))
	}

	withoutFences := removeCodeFences(trimmed)
	if withoutFences != trimmed {
		if result, err := tryDirectParse[T](withoutFences); err == nil {
			return result, nil
		}
	}

	cleaned := cleanupJSON(withoutFences)
	if result, err := tryDirectParse[T](cleaned); err == nil {
		return result, nil
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if result, err := tryDirectParse[T](extracted); err == nil {
			return result, nil
		}
	}

	return zero, fmt.Errorf("%w: all parsing strategies failed on %q",
		types.ErrParse, truncate(trimmed, 200))
}

func tryDirectParse[T any](text string) (T, error) {
	var result T
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}

// removeCodeFences strips markdown code fences wrapping the payload.
func removeCodeFences(text string) string {
	cleaned := codeFenceStartRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		cleaned = codeFenceAnyRegex.ReplaceAllString(text, "$1")
	}
	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "`"), "`")
	}
	return strings.TrimSpace(cleaned)
}

// cleanupJSON fixes trailing commas and unquoted object keys. Single quotes
// are left alone; converting them would break valid JSON containing
// apostrophes.
func cleanupJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	cleaned = unquotedKeyRegex.ReplaceAllString(cleaned, `$1"$2":`)
	return strings.TrimSpace(cleaned)
}

// extractJSON pulls a JSON object or array out of surrounding prose. The
// first-character check prevents extracting a lone object out of an array.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 0 {
		switch trimmed[0] {
		case '[':
			if match := arrayRegex.FindString(text); match != "" {
				return match
			}
		case '{':
			if match := objectRegex.FindString(text); match != "" {
				return match
			}
		}
	}
	if match := objectRegex.FindString(text); match != "" {
		return match
	}
	return arrayRegex.FindString(text)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
