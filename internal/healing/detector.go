package healing

import (
	"fmt"
	"strings"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
)

// Detector scans a verification job for issues that a healing run should
// attempt to resolve.
type Detector struct {
	// RequiredFields are attribute names that must be present with a
	// non-empty value for the record to be considered complete.
	RequiredFields []string

	// ConfidenceFloor is the minimum acceptable confidence score; anything
	// strictly below it is flagged.
	ConfidenceFloor int
}

// Detect returns the issues found on the job, ordered by severity
// (high first) and then by field name.
//
// A crashed verification short-circuits every other check: the record state
// is untrustworthy, so a single crash issue is reported on its own. A nil
// job or one without any attributes is treated the same way; per-field
// checks would only manufacture noise from a record that never produced
// a result.
func (d *Detector) Detect(job *domain.VerificationJob) []domain.Issue {
	if job == nil || job.Status == domain.JobStatusCrashed || len(job.Attributes) == 0 {
		return []domain.Issue{{
			Kind:        domain.IssueCrashResult,
			Severity:    domain.SeverityHigh,
			Description: "verification crashed before producing a usable result",
		}}
	}

	var issues []domain.Issue
	for _, field := range d.RequiredFields {
		fv, ok := job.Attributes[field]
		if !ok || strings.TrimSpace(fv.Value) == "" {
			issues = append(issues, domain.Issue{
				Kind:        domain.IssueMissingField,
				Severity:    domain.SeverityHigh,
				Field:       field,
				Description: fmt.Sprintf("required field %q is missing", field),
			})
		}
	}

	for field, fv := range job.Attributes {
		if strings.TrimSpace(fv.Value) == "" {
			continue
		}
		if inconsistentSources(fv) {
			issues = append(issues, domain.Issue{
				Kind:        domain.IssueInconsistentField,
				Severity:    domain.SeverityMedium,
				Field:       field,
				Description: fmt.Sprintf("sources disagree on field %q", field),
			})
			continue
		}
		if fv.Confidence < d.ConfidenceFloor {
			issues = append(issues, domain.Issue{
				Kind:        domain.IssueLowConfidenceField,
				Severity:    domain.SeverityLow,
				Field:       field,
				Description: fmt.Sprintf("field %q confidence %d is below floor %d", field, fv.Confidence, d.ConfidenceFloor),
			})
		}
	}

	domain.SortIssues(issues)
	return issues
}

// inconsistentSources reports whether the recorded sources carry more than
// one distinct non-empty value for the field.
func inconsistentSources(fv domain.FieldValue) bool {
	seen := ""
	for _, v := range fv.Sources {
		v = normalizeValue(v)
		if v == "" {
			continue
		}
		if seen == "" {
			seen = v
			continue
		}
		if v != seen {
			return true
		}
	}
	return false
}
