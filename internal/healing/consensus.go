package healing

import (
	"math"
	"strconv"
	"strings"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
)

// Strategy selects how a consensus policy resolves disagreement between the
// two reviewers.
type Strategy string

const (
	// StrategyStrictEquality achieves consensus only when both reviewers
	// return the same normalized value. Confidence scores never override a
	// disagreement; they only pick which reviewer's spelling of an agreed
	// value becomes the proposed fix.
	StrategyStrictEquality Strategy = "strict_equality"

	// StrategyConfidenceArbitration additionally lets a clearly stronger
	// opinion win a disagreement: the higher-confidence answer is adopted
	// when it clears the minimum and the weaker one does not.
	StrategyConfidenceArbitration Strategy = "confidence_arbitration"
)

// defaultNumericTolerance bounds numeric equality when no tolerance is
// configured. Reviewer answers like "2.5" and "2.5000000001" agree.
const defaultNumericTolerance = 1e-6

// Policy evaluates a pair of reviewer opinions into a consensus verdict.
type Policy struct {
	Strategy            Strategy
	AgreementThreshold  int
	DisagreementPenalty float64
	ConfidenceMin       int

	// NumericTolerance is the absolute difference within which two numeric
	// answers are considered equal. Zero means the default.
	NumericTolerance float64
}

func (p *Policy) tolerance() float64 {
	if p.NumericTolerance > 0 {
		return p.NumericTolerance
	}
	return defaultNumericTolerance
}

// Verdict is the outcome of evaluating one opinion pair.
type Verdict struct {
	AgreementPercentage int
	ProposedFix         string
	ConsensusAchieved   bool
	Actionable          bool
}

// Evaluate scores the pair and decides whether the run may act on it.
//
// Agreement arithmetic: matching values score 100; any failed reviewer
// scores 0; a disagreement scores the lower of the two confidences scaled
// down by the disagreement penalty. Consensus additionally requires both
// confidences to clear the minimum.
//
// Only a dual reviewer failure makes the verdict non-actionable. A one-sided
// or disputed diagnosis still proposes a fix (the surviving or stronger
// opinion's value) and proceeds to fix validation, where the both-approve
// gate has the final say.
func (p *Policy) Evaluate(a, b domain.ReviewerOpinion) Verdict {
	var v Verdict

	switch {
	case a.Failed && b.Failed:
		return v
	case a.Failed:
		v.ProposedFix = b.Value.Text()
	case b.Failed:
		v.ProposedFix = a.Value.Text()
	case p.valuesEqual(a.Value, b.Value):
		v.AgreementPercentage = 100
		v.ProposedFix = strongerOf(a, b).Value.Text()
		v.ConsensusAchieved = v.AgreementPercentage >= p.AgreementThreshold &&
			a.Confidence >= p.ConfidenceMin && b.Confidence >= p.ConfidenceMin
	default:
		low := a.Confidence
		if b.Confidence < low {
			low = b.Confidence
		}
		v.AgreementPercentage = int(float64(low) * p.DisagreementPenalty)
		v.ProposedFix = strongerOf(a, b).Value.Text()
		if p.Strategy == StrategyConfidenceArbitration {
			strong, weak := strongerOf(a, b), weakerOf(a, b)
			if strong.Confidence >= p.ConfidenceMin && weak.Confidence < p.ConfidenceMin {
				v.ConsensusAchieved = true
			}
		}
	}

	v.Actionable = v.ProposedFix != ""
	return v
}

// BothApprove reports whether a validation round passed: both reviewers
// answered, both approved, and both cleared the confidence minimum.
func (p *Policy) BothApprove(a, b domain.ReviewerOpinion) bool {
	for _, op := range []domain.ReviewerOpinion{a, b} {
		if op.Failed || !op.Value.Approved || op.Confidence < p.ConfidenceMin {
			return false
		}
	}
	return true
}

func strongerOf(a, b domain.ReviewerOpinion) domain.ReviewerOpinion {
	if b.Confidence > a.Confidence {
		return b
	}
	return a
}

func weakerOf(a, b domain.ReviewerOpinion) domain.ReviewerOpinion {
	if b.Confidence > a.Confidence {
		return a
	}
	return b
}

// valuesEqual compares two reviewer answers after normalization. Numbers
// compare within the policy tolerance so "2.5" and "2.5000000001" agree;
// strings compare case-insensitively with collapsed whitespace, falling
// back to tolerance comparison when both parse as numbers.
func (p *Policy) valuesEqual(a, b domain.OpinionValue) bool {
	if a.Kind == b.Kind {
		switch a.Kind {
		case domain.ValueKindNumber:
			return math.Abs(a.Num-b.Num) <= p.tolerance()
		case domain.ValueKindApproval:
			return a.Approved == b.Approved
		}
	}
	na, nb := normalizeValue(a.Text()), normalizeValue(b.Text())
	if fa, errA := strconv.ParseFloat(na, 64); errA == nil {
		if fb, errB := strconv.ParseFloat(nb, 64); errB == nil {
			return math.Abs(fa-fb) <= p.tolerance()
		}
	}
	return na == nb
}

// normalizeValue lowercases, trims, and collapses internal whitespace.
// Purely numeric strings are rewritten in canonical form.
func normalizeValue(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s
}
