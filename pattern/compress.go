package pattern

import (
	"regexp"
	"strings"

	"github.com/agentforge/agentforge/internal/util"
)

// Lines worth keeping when an output is squeezed into a digest: stated
// decisions and verdicts, headings, and list items.
var signalLineRe = regexp.MustCompile(`(?i)^\s*(#|[-*]\s|\d+[.)]\s)|(decision|conclusion|recommend|action|verdict|approve|reject|veto)`)

// Compress squeezes text into at most budget characters. The first
// non-empty line always survives; after that only signal lines are kept
// until the budget runs out.
func Compress(text string, budget int) string {
	text = strings.TrimSpace(text)
	if budget <= 0 || text == "" {
		return ""
	}
	if len(text) <= budget {
		return text
	}

	lines := strings.Split(text, "\n")
	var out []string
	used := 0
	first := true
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !first && !signalLineRe.MatchString(trimmed) {
			continue
		}
		first = false
		if used+len(trimmed)+1 > budget {
			break
		}
		out = append(out, trimmed)
		used += len(trimmed) + 1
	}
	if len(out) == 0 {
		return util.Truncate(text, budget)
	}
	return util.Truncate(strings.Join(out, "\n"), budget)
}

// BuildContext folds ordered upstream outputs (oldest first) into one
// context block of at most budget characters. The newest output gets half
// the budget verbatim; older ones are compressed into equal shares of the
// remainder, never below 200 characters each unless the budget itself is
// smaller.
func BuildContext(outputs []string, budget int) string {
	var nonEmpty []string
	for _, o := range outputs {
		if strings.TrimSpace(o) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(o))
		}
	}
	if len(nonEmpty) == 0 || budget <= 0 {
		return ""
	}
	if len(nonEmpty) == 1 {
		return util.Truncate(nonEmpty[0], budget)
	}

	latest := nonEmpty[len(nonEmpty)-1]
	older := nonEmpty[:len(nonEmpty)-1]

	latestBudget := budget / 2
	share := (budget - latestBudget) / len(older)
	if share < 200 {
		share = 200
	}
	if share > budget {
		share = budget
	}

	parts := make([]string, 0, len(nonEmpty))
	for _, o := range older {
		if c := Compress(o, share); c != "" {
			parts = append(parts, c)
		}
	}
	parts = append(parts, util.Truncate(latest, latestBudget))

	return util.Truncate(strings.Join(parts, "\n\n---\n\n"), budget)
}
