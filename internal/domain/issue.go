package domain

import "sort"

// IssueKind classifies a detected defect in a verification record.
type IssueKind string

const (
	IssueMissingField       IssueKind = "missing_field"
	IssueLowConfidenceField IssueKind = "low_confidence_field"
	IssueInconsistentField  IssueKind = "inconsistent_field"
	IssueCrashResult        IssueKind = "crash_result"
)

// Severity indicates how urgently an issue needs correction.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

var severityRank = map[Severity]int{
	SeverityHigh:   3,
	SeverityMedium: 2,
	SeverityLow:    1,
}

// Rank returns the numeric ordering weight of a severity.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Issue is a single detected defect. Issues are immutable once created;
// Field is empty for record-level defects (crash_result).
type Issue struct {
	Kind        IssueKind `json:"kind"`
	Severity    Severity  `json:"severity"`
	Field       string    `json:"field,omitempty"`
	Description string    `json:"description"`
}

// SortIssues orders issues severity descending, ties broken by field name
// ascending. The ordering is deterministic given the same input.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Severity.Rank() != issues[j].Severity.Rank() {
			return issues[i].Severity.Rank() > issues[j].Severity.Rank()
		}
		return issues[i].Field < issues[j].Field
	})
}
