package domain

import "strconv"

// ReviewerID identifies one of the two fixed AI reviewers.
type ReviewerID string

const (
	ReviewerA ReviewerID = "reviewer_a"
	ReviewerB ReviewerID = "reviewer_b"
)

// ValueKind tags the shape of a reviewer's answer.
type ValueKind string

const (
	ValueKindString   ValueKind = "string"
	ValueKindNumber   ValueKind = "number"
	ValueKindApproval ValueKind = "approval"
)

// OpinionValue is the tagged union of expected reviewer answer shapes:
// a proposed string field value, a numeric field value, or an approve/reject
// verdict. Alternative optionally carries a rejecting reviewer's suggested
// replacement value. Validated at the reviewer client boundary.
type OpinionValue struct {
	Kind        ValueKind `json:"kind"`
	Str         string    `json:"str,omitempty"`
	Num         float64   `json:"num,omitempty"`
	Approved    bool      `json:"approved,omitempty"`
	Alternative string    `json:"alternative,omitempty"`
}

// Text returns the value's textual form for application to a record field.
func (v OpinionValue) Text() string {
	switch v.Kind {
	case ValueKindNumber:
		return trimFloat(v.Num)
	default:
		return v.Str
	}
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ReviewerOpinion is one reviewer's answer to a single question. Produced
// fresh on every AI call; a timed-out or errored call is recorded with
// Failed=true and confidence 0 rather than discarded.
type ReviewerOpinion struct {
	ReviewerID ReviewerID   `json:"reviewer_id"`
	Value      OpinionValue `json:"value"`
	Confidence int          `json:"confidence"`
	LatencyMs  int64        `json:"latency_ms"`
	Failed     bool         `json:"failed,omitempty"`
	FailReason string       `json:"fail_reason,omitempty"`
}

// FailedOpinion builds the null opinion recorded when a reviewer call
// errors or times out.
func FailedOpinion(id ReviewerID, latencyMs int64, reason string) ReviewerOpinion {
	return ReviewerOpinion{
		ReviewerID: id,
		Confidence: 0,
		LatencyMs:  latencyMs,
		Failed:     true,
		FailReason: reason,
	}
}
