package core

// GuardLevel grades a quality gate outcome.
type GuardLevel string

const (
	// GuardPass is a clean pass.
	GuardPass GuardLevel = "pass"

	// GuardWarn is a pass with a quality warning attached.
	GuardWarn GuardLevel = "warn"

	// GuardReject means the output must be redone.
	GuardReject GuardLevel = "reject"
)

// GuardVerdict is the result of reviewing one agent step output. Score runs
// 0 (perfect) to 10 (unusable). Warning, when set, is a banner the caller
// prepends to the accepted output.
type GuardVerdict struct {
	Passed     bool       `json:"passed"`
	Score      int        `json:"score"`
	Level      GuardLevel `json:"level"`
	Issues     []string   `json:"issues,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Warning    string     `json:"warning,omitempty"`
}

// HasCategory reports whether the verdict flagged the given issue category.
func (v *GuardVerdict) HasCategory(category string) bool {
	for _, c := range v.Categories {
		if c == category {
			return true
		}
	}
	return false
}
