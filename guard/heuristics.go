package guard

import (
	"fmt"
	"regexp"
	"strings"
)

// L0 screen. Each check contributes a weight to the score and tags an
// issue category; fabrication checks compare claims in the text against
// the tool calls the step actually made.
var (
	slopRe = regexp.MustCompile(`(?i)\b(lorem ipsum|foo bar baz|example\.com|TBD|XXX)\b`)

	stubRe = regexp.MustCompile(`(?i)(TODO:?\s*implement|not (yet )?implemented|\b(fake|mock|dummy) data\b|<placeholder>)`)

	// Claims of having performed side effects.
	actionClaimRe = regexp.MustCompile(`(?i)\bI (have )?(deployed|pushed|committed|merged|released|ran the tests|executed the (build|tests))\b`)

	fileClaimRe = regexp.MustCompile(`(?i)\b(I (have )?(created|wrote|saved)|has been (created|written|saved))\b[^.\n]{0,80}\b(file|script|module|config)\b`)

	// Tool names that count as evidence for side-effect claims.
	effectToolRe = regexp.MustCompile(`(?i)(write|edit|exec|run|shell|bash|file|git|deploy)`)
)

type heuristic struct {
	re       *regexp.Regexp
	weight   int
	category string
	issue    string
	// needsNoEvidence restricts the check to steps without side-effect
	// capable tool calls.
	needsNoEvidence bool
}

var heuristics = []heuristic{
	{re: slopRe, weight: 3, category: "slop", issue: "filler or placeholder text (%q)"},
	{re: stubRe, weight: 4, category: "stub", issue: "stubbed or mocked content (%q)"},
	{re: actionClaimRe, weight: 5, category: "fabrication", issue: "claims an action no tool call performed (%q)", needsNoEvidence: true},
	{re: fileClaimRe, weight: 5, category: "fabrication", issue: "claims file creation no tool call performed (%q)", needsNoEvidence: true},
}

func (g *Gate) heuristics(input Input) (score int, issues, categories []string) {
	evidence := hasEffectEvidence(input.UsedTools)

	for _, h := range heuristics {
		if h.needsNoEvidence && evidence {
			continue
		}
		if m := h.re.FindString(input.Output); m != "" {
			score += h.weight
			issues = append(issues, fmt.Sprintf(h.issue, strings.TrimSpace(m)))
			categories = append(categories, h.category)
		}
	}

	if min := g.minLengthFor(input.Role); len(strings.TrimSpace(input.Output)) < min {
		score += 4
		issues = append(issues, fmt.Sprintf("output below the %d character minimum for role %s", min, input.Role))
		categories = append(categories, "thin_output")
	}
	return score, issues, categories
}

func hasEffectEvidence(usedTools []string) bool {
	for _, name := range usedTools {
		if effectToolRe.MatchString(name) {
			return true
		}
	}
	return false
}
