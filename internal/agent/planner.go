package agent

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/retail-copilot/internal/model"
)

// The planner is deterministic: plain regex extraction over retrieved text,
// no model call. It can come back empty but it can never fail, so a thin
// document corpus degrades the query rather than killing the pipeline.

var (
	isoDateRe  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	formulaRe  = regexp.MustCompile(`(?im)^[a-z][a-z0-9 %()]{1,60}=\s*.+$`)
	categoryRe = regexp.MustCompile(`(?i)categor(?:y|ies)[^:\n]*:\s*([^\n.]+)`)
	quotedRe   = regexp.MustCompile(`'([^']{2,40})'`)
)

// plan extracts structured constraints from retrieved document text: an ISO
// date range, category filters, and formula definitions. The earliest date
// found becomes date_start and the latest date_end; a single date fills both.
func plan(question string, chunks []model.RetrievedChunk) model.Constraints {
	c := model.Constraints{}

	var texts []string
	texts = append(texts, question)
	for _, ch := range chunks {
		texts = append(texts, ch.Text)
	}
	joined := strings.Join(texts, "\n")

	if dates := isoDateRe.FindAllString(joined, -1); len(dates) > 0 {
		sorted := append([]string(nil), dates...)
		sort.Strings(sorted)
		c[model.ConstraintDateStart] = sorted[0]
		c[model.ConstraintDateEnd] = sorted[len(sorted)-1]
	}

	if cats := extractCategories(joined); len(cats) > 0 {
		c[model.ConstraintCategories] = strings.Join(cats, ", ")
	}

	if m := formulaRe.FindString(joined); m != "" {
		c[model.ConstraintFormula] = strings.TrimSpace(m)
	}

	return c
}

// extractCategories pulls category names from "category:"-style lines and
// from single-quoted values, deduplicated in first-seen order.
func extractCategories(text string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	for _, m := range categoryRe.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(m[1], ",") {
			add(strings.Trim(part, ` '"`))
		}
	}
	for _, m := range quotedRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	return out
}

// formatConstraints renders a constraint set for inclusion in a prompt, keys
// in stable order. Empty sets render as "(none)".
func formatConstraints(c model.Constraints) string {
	if len(c) == 0 {
		return "(none)"
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(c[k])
	}
	return b.String()
}
