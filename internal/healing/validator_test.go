package healing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/reviewer"
)

func testJob() *domain.VerificationJob {
	return &domain.VerificationJob{
		ID:     "job-1",
		Status: domain.JobStatusVerified,
		Attributes: domain.AttributeMap{
			"Material":     {Value: "Brass", Confidence: 90},
			"Model Number": {Value: "K-560", Confidence: 88},
		},
	}
}

func testDiagnosis(field, fix string) domain.Diagnosis {
	return domain.Diagnosis{
		Issue: domain.Issue{
			Kind:     domain.IssueMissingField,
			Severity: domain.SeverityHigh,
			Field:    field,
		},
		AgreementPercentage: 100,
		ProposedFix:         fix,
		ConsensusAchieved:   true,
		Actionable:          true,
	}
}

func newValidator(a, b *fakeReviewer) *Validator {
	return &Validator{
		ReviewerA:   a,
		ReviewerB:   b,
		Policy:      testPolicy(),
		MaxAttempts: 3,
		CallTimeout: time.Second,
	}
}

// TestValidateFirstAttemptApproved is the fast path: both reviewers approve
// the proposed fix on attempt one.
func TestValidateFirstAttemptApproved(t *testing.T) {
	a := &fakeReviewer{id: domain.ReviewerA, answer: answerByKind(domain.ReviewerA, "", 0, true, 92)}
	b := &fakeReviewer{id: domain.ReviewerB, answer: answerByKind(domain.ReviewerB, "", 0, true, 88)}

	result := newValidator(a, b).Validate(context.Background(), testJob(), testDiagnosis("Brand", "Kohler"))

	if !result.Validated {
		t.Fatal("expected validation to succeed")
	}
	if result.FinalValue != "Kohler" {
		t.Errorf("expected final value Kohler, got %q", result.FinalValue)
	}
	if len(result.Attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(result.Attempts))
	}
	attempt := result.Attempts[0]
	if attempt.Outcome != domain.AttemptValidated {
		t.Errorf("expected validated outcome, got %s", attempt.Outcome)
	}
	if attempt.AttemptNumber != 1 || attempt.AppliedValue != "Kohler" {
		t.Errorf("unexpected attempt record: %+v", attempt)
	}
	if a.callCount() != 1 || b.callCount() != 1 {
		t.Errorf("expected one call per reviewer, got %d and %d", a.callCount(), b.callCount())
	}
}

// TestValidateAlternativeSeededRetry verifies that a rejection's suggested
// alternative becomes the next attempt's candidate.
func TestValidateAlternativeSeededRetry(t *testing.T) {
	// Reviewer A approves everything; reviewer B rejects the original
	// candidate with a replacement, then approves the replacement.
	a := &fakeReviewer{id: domain.ReviewerA, answer: func(q *reviewer.Question, call int) (domain.ReviewerOpinion, error) {
		return approvalOpinion(domain.ReviewerA, true, 90, ""), nil
	}}
	b := &fakeReviewer{id: domain.ReviewerB, answer: func(q *reviewer.Question, call int) (domain.ReviewerOpinion, error) {
		if strings.Contains(q.UserPrompt, "K-560-VS") {
			return approvalOpinion(domain.ReviewerB, true, 85, ""), nil
		}
		return approvalOpinion(domain.ReviewerB, false, 80, "K-560-VS"), nil
	}}

	result := newValidator(a, b).Validate(context.Background(), testJob(), testDiagnosis("Model Number", "K-560"))

	if !result.Validated {
		t.Fatal("expected validation to succeed on the alternative")
	}
	if result.FinalValue != "K-560-VS" {
		t.Errorf("expected alternative K-560-VS, got %q", result.FinalValue)
	}
	if len(result.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(result.Attempts))
	}
	if result.Attempts[0].Outcome != domain.AttemptRejected {
		t.Errorf("first attempt: expected rejected, got %s", result.Attempts[0].Outcome)
	}
	if result.Attempts[1].AppliedValue != "K-560-VS" {
		t.Errorf("second attempt should carry the alternative, got %q", result.Attempts[1].AppliedValue)
	}
}

// TestValidateExhaustsAttempts runs the loop to its bound: persistent
// rejection yields rejected, rejected, exhausted.
func TestValidateExhaustsAttempts(t *testing.T) {
	a := &fakeReviewer{id: domain.ReviewerA, answer: func(q *reviewer.Question, call int) (domain.ReviewerOpinion, error) {
		return approvalOpinion(domain.ReviewerA, true, 90, ""), nil
	}}
	b := &fakeReviewer{id: domain.ReviewerB, answer: func(q *reviewer.Question, call int) (domain.ReviewerOpinion, error) {
		return approvalOpinion(domain.ReviewerB, false, 80, ""), nil
	}}

	result := newValidator(a, b).Validate(context.Background(), testJob(), testDiagnosis("Brand", "Kohler"))

	if result.Validated {
		t.Fatal("expected validation to fail")
	}
	if len(result.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(result.Attempts))
	}
	wantOutcomes := []domain.AttemptOutcome{domain.AttemptRejected, domain.AttemptRejected, domain.AttemptExhausted}
	for i, want := range wantOutcomes {
		if result.Attempts[i].Outcome != want {
			t.Errorf("attempt %d: expected %s, got %s", i+1, want, result.Attempts[i].Outcome)
		}
		if result.Attempts[i].AttemptNumber != i+1 {
			t.Errorf("attempt %d: wrong attempt number %d", i+1, result.Attempts[i].AttemptNumber)
		}
	}
}

// TestValidateReviewerFailureIsRecorded verifies a downed reviewer never
// validates a fix but still leaves a full attempt record.
func TestValidateReviewerFailureIsRecorded(t *testing.T) {
	a := &fakeReviewer{id: domain.ReviewerA, answer: func(q *reviewer.Question, call int) (domain.ReviewerOpinion, error) {
		return approvalOpinion(domain.ReviewerA, true, 90, ""), nil
	}}
	b := &fakeReviewer{id: domain.ReviewerB, answer: func(q *reviewer.Question, call int) (domain.ReviewerOpinion, error) {
		return domain.ReviewerOpinion{}, context.DeadlineExceeded
	}}

	result := newValidator(a, b).Validate(context.Background(), testJob(), testDiagnosis("Brand", "Kohler"))

	if result.Validated {
		t.Fatal("a failed reviewer must not validate a fix")
	}
	for i, attempt := range result.Attempts {
		if len(attempt.Approvals) != 2 {
			t.Fatalf("attempt %d: expected 2 recorded opinions, got %d", i+1, len(attempt.Approvals))
		}
		failed := attempt.Approvals[1]
		if !failed.Failed || failed.Confidence != 0 {
			t.Errorf("attempt %d: expected failed opinion with confidence 0, got %+v", i+1, failed)
		}
	}
}
