package healing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/reviewer"
)

func newEngine(a, b *fakeReviewer) *Engine {
	return &Engine{
		ReviewerA:   a,
		ReviewerB:   b,
		Policy:      testPolicy(),
		CallTimeout: time.Second,
	}
}

// TestDiagnoseRecordsBothOpinions verifies that both reviewer opinions land
// on the diagnosis in reviewer order, and that agreement produces an
// actionable proposed fix.
func TestDiagnoseRecordsBothOpinions(t *testing.T) {
	a := &fakeReviewer{id: domain.ReviewerA, answer: answerByKind(domain.ReviewerA, "Kohler", 92, false, 0)}
	b := &fakeReviewer{id: domain.ReviewerB, answer: answerByKind(domain.ReviewerB, "Kohler", 88, false, 0)}

	issue := domain.Issue{Kind: domain.IssueMissingField, Severity: domain.SeverityHigh, Field: "Brand"}
	d := newEngine(a, b).Diagnose(context.Background(), testJob(), issue)

	if len(d.Opinions) != 2 {
		t.Fatalf("expected 2 opinions, got %d", len(d.Opinions))
	}
	if d.Opinions[0].ReviewerID != domain.ReviewerA || d.Opinions[1].ReviewerID != domain.ReviewerB {
		t.Errorf("opinions out of order: %+v", d.Opinions)
	}
	if d.AgreementPercentage != 100 || !d.ConsensusAchieved || !d.Actionable {
		t.Errorf("expected actionable consensus, got %+v", d)
	}
	if d.ProposedFix != "Kohler" {
		t.Errorf("expected proposed fix Kohler, got %q", d.ProposedFix)
	}
}

// TestDiagnoseOneReviewerDown verifies a reviewer error becomes a failed
// opinion on the diagnosis rather than an aborted run.
func TestDiagnoseOneReviewerDown(t *testing.T) {
	a := &fakeReviewer{id: domain.ReviewerA, answer: answerByKind(domain.ReviewerA, "Kohler", 92, false, 0)}
	b := &fakeReviewer{id: domain.ReviewerB, answer: func(q *reviewer.Question, call int) (domain.ReviewerOpinion, error) {
		return domain.ReviewerOpinion{}, errors.New("connection refused")
	}}

	issue := domain.Issue{Kind: domain.IssueMissingField, Severity: domain.SeverityHigh, Field: "Brand"}
	d := newEngine(a, b).Diagnose(context.Background(), testJob(), issue)

	if len(d.Opinions) != 2 {
		t.Fatalf("expected 2 opinions, got %d", len(d.Opinions))
	}
	failed := d.Opinions[1]
	if !failed.Failed || failed.Confidence != 0 {
		t.Errorf("expected failed opinion with confidence 0, got %+v", failed)
	}
	if failed.FailReason == "" {
		t.Error("failed opinion should carry a reason")
	}
	if d.AgreementPercentage != 0 || d.ConsensusAchieved {
		t.Errorf("a failed reviewer must block consensus, got %+v", d)
	}
	// One-sided diagnoses still enter fix validation with the survivor's
	// value; the both-approve gate there is what keeps them from applying.
	if !d.Actionable || d.ProposedFix != "Kohler" {
		t.Errorf("expected one-sided actionable diagnosis, got %+v", d)
	}
}

// TestDiagnoseBothReviewersDown verifies a dual failure is non-actionable
// and carries no proposed fix.
func TestDiagnoseBothReviewersDown(t *testing.T) {
	down := func(q *reviewer.Question, call int) (domain.ReviewerOpinion, error) {
		return domain.ReviewerOpinion{}, errors.New("timeout")
	}
	a := &fakeReviewer{id: domain.ReviewerA, answer: down}
	b := &fakeReviewer{id: domain.ReviewerB, answer: down}

	issue := domain.Issue{Kind: domain.IssueMissingField, Severity: domain.SeverityHigh, Field: "Brand"}
	d := newEngine(a, b).Diagnose(context.Background(), testJob(), issue)

	if d.Actionable || d.ProposedFix != "" {
		t.Errorf("dual failure must not be actionable, got %+v", d)
	}
	if d.Opinions[0].Failed != true || d.Opinions[1].Failed != true {
		t.Errorf("both opinions should be failed, got %+v", d.Opinions)
	}
}

// TestRenderRecordDeterministic verifies the prompt rendering is stable and
// includes field values, confidences, and source provenance.
func TestRenderRecordDeterministic(t *testing.T) {
	job := &domain.VerificationJob{
		ID:     "job-7",
		Status: domain.JobStatusVerified,
		Attributes: domain.AttributeMap{
			"Material": {
				Value:      "Brass",
				Confidence: 90,
				Sources:    map[string]string{"vendor": "Brass", "scrape": "Chrome"},
			},
			"Brand": {Value: "", Confidence: 0},
		},
	}

	first := RenderRecord(job)
	for i := 0; i < 10; i++ {
		if got := RenderRecord(job); got != first {
			t.Fatal("rendering must be deterministic across map iteration orders")
		}
	}

	for _, want := range []string{"job-7", "Brass", "<missing>", "source scrape: Chrome", "confidence 90"} {
		if !strings.Contains(first, want) {
			t.Errorf("rendered record missing %q:\n%s", want, first)
		}
	}

	// Fields render alphabetically.
	if strings.Index(first, "Brand") > strings.Index(first, "Material") {
		t.Error("fields should render in alphabetical order")
	}
}
