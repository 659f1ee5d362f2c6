package healing

import (
	"context"
	"strings"
	"time"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/logger"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/prompts"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/reviewer"
)

// Validator runs the bounded fix-validation loop for one actionable
// diagnosis.
type Validator struct {
	ReviewerA   reviewer.Client
	ReviewerB   reviewer.Client
	Policy      *Policy
	MaxAttempts int
	CallTimeout time.Duration
}

// ValidationResult is the outcome of a fix-validation loop for one field.
type ValidationResult struct {
	Attempts  []domain.FixAttempt
	Validated bool
	// FinalValue is the approved value when Validated is true.
	FinalValue string
}

// Validate asks both reviewers to approve the proposed fix, retrying with a
// rejecting reviewer's suggested alternative up to MaxAttempts times. The
// fix is accepted only when both reviewers approve in the same round; a loop
// that runs out of attempts marks its last attempt exhausted.
//
// Parameters:
//   - job: the record being healed, rendered into each approval prompt
//   - d: an actionable diagnosis carrying the initial candidate value
//
// Returns the ordered attempt records and whether a value was validated.
func (v *Validator) Validate(ctx context.Context, job *domain.VerificationJob, d domain.Diagnosis) ValidationResult {
	var result ValidationResult
	candidate := d.ProposedFix

	for attempt := 1; attempt <= v.MaxAttempts; attempt++ {
		q := &reviewer.Question{
			SystemPrompt: prompts.ApprovalSystemPrompt,
			UserPrompt:   prompts.ApprovalUserPrompt(RenderRecord(job), d.Issue.Field, candidate, attempt),
			Expect:       domain.ValueKindApproval,
		}

		opA, opB := askBoth(ctx, v.ReviewerA, v.ReviewerB, q, v.CallTimeout)

		rec := domain.FixAttempt{
			Field:         d.Issue.Field,
			AttemptNumber: attempt,
			AppliedValue:  candidate,
			Approvals:     []domain.ReviewerOpinion{opA, opB},
		}

		if v.Policy.BothApprove(opA, opB) {
			rec.Outcome = domain.AttemptValidated
			result.Attempts = append(result.Attempts, rec)
			result.Validated = true
			result.FinalValue = candidate
			logger.CtxInfo(ctx, "fix validated: field=%s attempt=%d value=%q",
				d.Issue.Field, attempt, candidate)
			return result
		}

		if attempt == v.MaxAttempts {
			rec.Outcome = domain.AttemptExhausted
		} else {
			rec.Outcome = domain.AttemptRejected
		}
		result.Attempts = append(result.Attempts, rec)
		logger.CtxWarn(ctx, "fix rejected: field=%s attempt=%d outcome=%s",
			d.Issue.Field, attempt, rec.Outcome)

		if alt := pickAlternative(opA, opB, candidate); alt != "" {
			candidate = alt
		}
	}

	return result
}

// pickAlternative selects the next candidate from rejecting reviewers'
// suggested replacements, preferring the more confident suggestion. The
// current candidate is never re-proposed under a different spelling.
func pickAlternative(a, b domain.ReviewerOpinion, current string) string {
	best := ""
	bestConf := -1
	for _, op := range []domain.ReviewerOpinion{a, b} {
		if op.Failed || op.Value.Approved {
			continue
		}
		alt := strings.TrimSpace(op.Value.Alternative)
		if alt == "" || normalizeValue(alt) == normalizeValue(current) {
			continue
		}
		if op.Confidence > bestConf {
			best = alt
			bestConf = op.Confidence
		}
	}
	return best
}
