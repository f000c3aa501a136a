package pattern

import "strings"

// Decision is the outcome of scanning a node's output for explicit
// approve or veto markers.
type Decision int

const (
	// DecisionNone means the output carried no marker.
	DecisionNone Decision = iota
	// DecisionApprove means an approval marker was found and no veto.
	DecisionApprove
	// DecisionVeto means a veto marker was found. Veto beats approve.
	DecisionVeto
)

// MarkerPolicy defines the marker vocabulary a run recognizes. Markers
// must appear literally; a sentence merely discussing a veto does not
// count because the markers are bracketed or line-anchored.
type MarkerPolicy struct {
	Veto    []string
	Approve []string
}

// DefaultMarkerPolicy returns the marker set reviewers are prompted with.
func DefaultMarkerPolicy() MarkerPolicy {
	return MarkerPolicy{
		Veto:    []string{"[VETO]", "[NOGO]", "STATUS: NOGO", "DECISION: NOGO"},
		Approve: []string{"[APPROVE]", "DECISION: GO"},
	}
}

// Detect scans output for decision markers. A bare NOGO standing alone on
// a line also counts as a veto. Approval only counts in the absence of any
// veto marker.
func (p MarkerPolicy) Detect(output string) Decision {
	upper := strings.ToUpper(output)
	for _, marker := range p.Veto {
		if strings.Contains(upper, strings.ToUpper(marker)) {
			return DecisionVeto
		}
	}
	for _, line := range strings.Split(upper, "\n") {
		if strings.TrimSpace(line) == "NOGO" {
			return DecisionVeto
		}
	}
	for _, marker := range p.Approve {
		if strings.Contains(upper, strings.ToUpper(marker)) {
			return DecisionApprove
		}
	}
	return DecisionNone
}
