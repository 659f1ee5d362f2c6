package healing

import (
	"context"
	"sync"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/reviewer"
)

// fakeReviewer scripts one reviewer's answers. The answer function receives
// the question and a 1-based call counter so tests can vary behavior across
// attempts.
type fakeReviewer struct {
	id     domain.ReviewerID
	answer func(q *reviewer.Question, call int) (domain.ReviewerOpinion, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeReviewer) ID() domain.ReviewerID { return f.id }

func (f *fakeReviewer) Ask(ctx context.Context, q *reviewer.Question) (domain.ReviewerOpinion, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.answer(q, call)
}

func (f *fakeReviewer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func strOpinion(id domain.ReviewerID, value string, confidence int) domain.ReviewerOpinion {
	return domain.ReviewerOpinion{
		ReviewerID: id,
		Value:      domain.OpinionValue{Kind: domain.ValueKindString, Str: value},
		Confidence: confidence,
	}
}

func numOpinion(id domain.ReviewerID, value float64, confidence int) domain.ReviewerOpinion {
	return domain.ReviewerOpinion{
		ReviewerID: id,
		Value:      domain.OpinionValue{Kind: domain.ValueKindNumber, Num: value},
		Confidence: confidence,
	}
}

func approvalOpinion(id domain.ReviewerID, approved bool, confidence int, alternative string) domain.ReviewerOpinion {
	return domain.ReviewerOpinion{
		ReviewerID: id,
		Value: domain.OpinionValue{
			Kind:        domain.ValueKindApproval,
			Approved:    approved,
			Alternative: alternative,
		},
		Confidence: confidence,
	}
}

// answerByKind routes diagnosis questions to value and approval questions to
// verdict, the common shape for happy-path reviewers.
func answerByKind(id domain.ReviewerID, value string, valueConf int, approved bool, approveConf int) func(*reviewer.Question, int) (domain.ReviewerOpinion, error) {
	return func(q *reviewer.Question, call int) (domain.ReviewerOpinion, error) {
		if q.Expect == domain.ValueKindApproval {
			return approvalOpinion(id, approved, approveConf, ""), nil
		}
		return strOpinion(id, value, valueConf), nil
	}
}

func testPolicy() *Policy {
	return &Policy{
		Strategy:            StrategyStrictEquality,
		AgreementThreshold:  80,
		DisagreementPenalty: 0.5,
		ConfidenceMin:       70,
	}
}
