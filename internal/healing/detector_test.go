package healing

import (
	"testing"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
)

func testDetector() *Detector {
	return &Detector{
		RequiredFields:  []string{"Brand", "Material", "Model Number"},
		ConfidenceFloor: 60,
	}
}

// TestDetectCrashShortCircuit verifies that a crashed job yields exactly one
// crash issue regardless of the record's field state.
func TestDetectCrashShortCircuit(t *testing.T) {
	job := &domain.VerificationJob{
		ID:     "job-1",
		Status: domain.JobStatusCrashed,
		Attributes: domain.AttributeMap{
			"Brand": {Value: "", Confidence: 0},
		},
	}

	issues := testDetector().Detect(job)

	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	if issues[0].Kind != domain.IssueCrashResult {
		t.Errorf("expected crash issue, got %s", issues[0].Kind)
	}
	if issues[0].Severity != domain.SeverityHigh {
		t.Errorf("crash issue should be high severity, got %s", issues[0].Severity)
	}
}

// TestDetectUnusableRecord verifies that a nil job and a job with no
// attributes both short-circuit to a single crash issue instead of reaching
// the per-field checks.
func TestDetectUnusableRecord(t *testing.T) {
	testCases := []struct {
		name string
		job  *domain.VerificationJob
	}{
		{name: "nil job", job: nil},
		{
			name: "no attributes",
			job: &domain.VerificationJob{
				ID:     "job-2",
				Status: domain.JobStatusVerified,
			},
		},
		{
			name: "empty attribute map",
			job: &domain.VerificationJob{
				ID:         "job-3",
				Status:     domain.JobStatusVerified,
				Attributes: domain.AttributeMap{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			issues := testDetector().Detect(tc.job)
			if len(issues) != 1 {
				t.Fatalf("expected 1 issue, got %d", len(issues))
			}
			if issues[0].Kind != domain.IssueCrashResult {
				t.Errorf("expected crash issue, got %s", issues[0].Kind)
			}
		})
	}
}

// TestDetectIssueKinds exercises the per-field checks on a verified record.
func TestDetectIssueKinds(t *testing.T) {
	testCases := []struct {
		name       string
		attributes domain.AttributeMap
		wantKinds  map[string]domain.IssueKind
	}{
		{
			name: "clean record",
			attributes: domain.AttributeMap{
				"Brand":        {Value: "Kohler", Confidence: 95},
				"Material":     {Value: "Brass", Confidence: 90},
				"Model Number": {Value: "K-560", Confidence: 88},
			},
			wantKinds: map[string]domain.IssueKind{},
		},
		{
			name: "missing required field",
			attributes: domain.AttributeMap{
				"Brand":        {Value: "  ", Confidence: 95},
				"Material":     {Value: "Brass", Confidence: 90},
				"Model Number": {Value: "K-560", Confidence: 88},
			},
			wantKinds: map[string]domain.IssueKind{
				"Brand": domain.IssueMissingField,
			},
		},
		{
			name: "low confidence field",
			attributes: domain.AttributeMap{
				"Brand":        {Value: "Kohler", Confidence: 95},
				"Material":     {Value: "Brass", Confidence: 42},
				"Model Number": {Value: "K-560", Confidence: 88},
			},
			wantKinds: map[string]domain.IssueKind{
				"Material": domain.IssueLowConfidenceField,
			},
		},
		{
			name: "inconsistent sources win over low confidence",
			attributes: domain.AttributeMap{
				"Brand": {Value: "Kohler", Confidence: 95},
				"Material": {
					Value:      "Brass",
					Confidence: 42,
					Sources:    map[string]string{"vendor": "Brass", "scrape": "Chrome"},
				},
				"Model Number": {Value: "K-560", Confidence: 88},
			},
			wantKinds: map[string]domain.IssueKind{
				"Material": domain.IssueInconsistentField,
			},
		},
		{
			name: "agreeing sources are not inconsistent",
			attributes: domain.AttributeMap{
				"Brand": {Value: "Kohler", Confidence: 95},
				"Material": {
					Value:      "Brass",
					Confidence: 90,
					Sources:    map[string]string{"vendor": "Brass", "scrape": "brass"},
				},
				"Model Number": {Value: "K-560", Confidence: 88},
			},
			wantKinds: map[string]domain.IssueKind{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			job := &domain.VerificationJob{
				ID:         "job-1",
				Status:     domain.JobStatusVerified,
				Attributes: tc.attributes,
			}

			issues := testDetector().Detect(job)

			if len(issues) != len(tc.wantKinds) {
				t.Fatalf("expected %d issues, got %d: %+v", len(tc.wantKinds), len(issues), issues)
			}
			for _, issue := range issues {
				want, ok := tc.wantKinds[issue.Field]
				if !ok {
					t.Errorf("unexpected issue on field %q: %s", issue.Field, issue.Kind)
					continue
				}
				if issue.Kind != want {
					t.Errorf("field %q: expected %s, got %s", issue.Field, want, issue.Kind)
				}
			}
		})
	}
}

// TestDetectOrdering verifies severity-descending, then field-ascending order.
func TestDetectOrdering(t *testing.T) {
	job := &domain.VerificationJob{
		ID:     "job-1",
		Status: domain.JobStatusVerified,
		Attributes: domain.AttributeMap{
			"Material": {Value: "Brass", Confidence: 40},
			"Finish": {
				Value:      "Chrome",
				Confidence: 90,
				Sources:    map[string]string{"vendor": "Chrome", "scrape": "Nickel"},
			},
		},
	}

	issues := testDetector().Detect(job)

	// Two missing required fields (high), one inconsistency (medium),
	// one low-confidence field (low).
	wantFields := []string{"Brand", "Model Number", "Finish", "Material"}
	if len(issues) != len(wantFields) {
		t.Fatalf("expected %d issues, got %d: %+v", len(wantFields), len(issues), issues)
	}
	for i, want := range wantFields {
		if issues[i].Field != want {
			t.Errorf("position %d: expected field %q, got %q", i, want, issues[i].Field)
		}
	}
}
