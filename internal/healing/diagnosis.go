package healing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/logger"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/prompts"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/reviewer"
)

// Engine runs the dual-reviewer diagnosis for a single issue.
type Engine struct {
	ReviewerA   reviewer.Client
	ReviewerB   reviewer.Client
	Policy      *Policy
	CallTimeout time.Duration
}

// Diagnose asks both reviewers what the correct value for the issue's field
// should be and folds their opinions into a consensus verdict. Both opinions
// are always recorded, including failed ones.
func (e *Engine) Diagnose(ctx context.Context, job *domain.VerificationJob, issue domain.Issue) domain.Diagnosis {
	q := &reviewer.Question{
		SystemPrompt: prompts.DiagnosisSystemPrompt,
		UserPrompt: prompts.DiagnosisUserPrompt(
			RenderRecord(job), string(issue.Kind), issue.Field, issue.Description),
		Expect: domain.ValueKindString,
	}

	opA, opB := askBoth(ctx, e.ReviewerA, e.ReviewerB, q, e.CallTimeout)
	verdict := e.Policy.Evaluate(opA, opB)

	logger.CtxInfo(ctx, "diagnosis complete: field=%s agreement=%d consensus=%t actionable=%t",
		issue.Field, verdict.AgreementPercentage, verdict.ConsensusAchieved, verdict.Actionable)

	return domain.Diagnosis{
		Issue:               issue,
		Opinions:            []domain.ReviewerOpinion{opA, opB},
		AgreementPercentage: verdict.AgreementPercentage,
		ProposedFix:         verdict.ProposedFix,
		ConsensusAchieved:   verdict.ConsensusAchieved,
		Actionable:          verdict.Actionable,
	}
}

// RenderRecord flattens a job's attributes into the plain-text form embedded
// in reviewer prompts. Fields are listed alphabetically so the same record
// always renders identically.
func RenderRecord(job *domain.VerificationJob) string {
	fields := make([]string, 0, len(job.Attributes))
	for name := range job.Attributes {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var b strings.Builder
	fmt.Fprintf(&b, "Product record %s (status: %s)\n", job.ID, job.Status)
	for _, name := range fields {
		fv := job.Attributes[name]
		value := fv.Value
		if strings.TrimSpace(value) == "" {
			value = "<missing>"
		}
		fmt.Fprintf(&b, "- %s: %s (confidence %d)\n", name, value, fv.Confidence)
		if len(fv.Sources) > 0 {
			srcNames := make([]string, 0, len(fv.Sources))
			for s := range fv.Sources {
				srcNames = append(srcNames, s)
			}
			sort.Strings(srcNames)
			for _, s := range srcNames {
				fmt.Fprintf(&b, "    source %s: %s\n", s, fv.Sources[s])
			}
		}
	}
	return b.String()
}
