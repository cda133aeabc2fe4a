package model

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// AnswerRecord is the terminal output for one question. Records are
// persisted append-only; citations are deduplicated and sorted and
// confidence is clamped to [0,1] before a record is emitted.
type AnswerRecord struct {
	QuestionID  string   `json:"id"`
	FinalAnswer any      `json:"final_answer"`
	SQL         string   `json:"sql"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Citations   []string `json:"citations"`
}

// HistoryEntry is an AnswerRecord plus the raw question and hint, as logged
// by the interactive shell.
type HistoryEntry struct {
	ID         string       `json:"id"`
	Question   string       `json:"question"`
	FormatHint string       `json:"format_hint"`
	Record     AnswerRecord `json:"record"`
	AskedAt    time.Time    `json:"asked_at"`
}

var (
	intPattern   = regexp.MustCompile(`-?\d+`)
	floatPattern = regexp.MustCompile(`-?\d[\d,]*\.?\d*`)
)

// CoerceAnswer shapes a raw model completion to the question's format hint.
// Coercion never fails hard: anything that cannot be parsed into the hinted
// shape falls back to the cleaned string. The bool result reports whether
// coercion to the hinted shape succeeded.
func CoerceAnswer(raw, hint string) (any, bool) {
	text := stripCodeFence(strings.TrimSpace(raw))

	switch hint = NormalizeHint(hint); {
	case hint == HintInt:
		if m := intPattern.FindString(text); m != "" {
			if n, err := strconv.ParseInt(m, 10, 64); err == nil {
				return n, true
			}
		}
	case hint == HintFloat:
		if m := floatPattern.FindString(text); m != "" {
			m = strings.ReplaceAll(m, ",", "")
			if f, err := strconv.ParseFloat(m, 64); err == nil {
				return math.Round(f*100) / 100, true
			}
		}
	case IsListHint(hint):
		var list []any
		if err := json.Unmarshal([]byte(text), &list); err == nil {
			return list, true
		}
	case IsObjectHint(hint):
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err == nil {
			return obj, true
		}
	default:
		return text, true
	}

	// Last chance: the completion may be valid JSON of some other shape.
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, false
	}
	return text, false
}

// stripCodeFence removes a surrounding markdown code fence, if any.
func stripCodeFence(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	parts := strings.SplitN(text, "```", 3)
	if len(parts) < 2 {
		return text
	}
	inner := parts[1]
	inner = strings.TrimPrefix(inner, "json\n")
	inner = strings.TrimPrefix(inner, "json")
	return strings.TrimSpace(inner)
}

// FinalizeCitations deduplicates, sorts and returns the citation list.
// Always returns a non-nil slice so records serialize as [] rather than null.
func FinalizeCitations(citations []string) []string {
	seen := make(map[string]bool, len(citations))
	out := make([]string, 0, len(citations))
	for _, c := range citations {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ClampConfidence bounds a confidence score to [0,1] and rounds it to two
// decimal places.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return math.Round(c*100) / 100
}
