package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Diagnosis Prompts
// ============================================================================

// DiagnosisSystemPrompt defines the role and output contract for a reviewer
// asked to diagnose a defective attribute on a product record.
const DiagnosisSystemPrompt = `You are a product data verification expert reviewing third-party building-products catalog records (plumbing, lighting, bath, kitchen).

You are given a product record and one flagged attribute. Determine the correct value for that attribute based on the record's other attributes and their upstream sources.

Output strictly one JSON object, no markdown code fences:
{
  "value": "<the correct attribute value as a string>",
  "confidence": <integer 0-100, your confidence in the value>
}

Rules:
- Prefer manufacturer-reported values over marketplace values when sources disagree.
- Normalize brand names to official manufacturer spelling (e.g. "KOHLER" -> "Kohler").
- If you cannot determine a value, return an empty string with confidence 0.`

// ApprovalSystemPrompt defines the role and output contract for a reviewer
// asked to approve or reject a candidate correction before dispatch.
const ApprovalSystemPrompt = `You are a product data verification expert performing the final check on a proposed attribute correction before it is written back to the CRM.

You are given a product record, the attribute being corrected, and the candidate value. Decide whether the candidate value is correct for this product.

Output strictly one JSON object, no markdown code fences:
{
  "approved": true | false,
  "confidence": <integer 0-100>,
  "alternative": "<only when rejecting: the value you believe is correct, else omit>"
}

Rules:
- Approve only when the candidate value is consistent with the record and its sources.
- When rejecting, propose an alternative whenever you can determine one.`

// DiagnosisUserPrompt renders the per-issue context for a diagnosis call.
func DiagnosisUserPrompt(record, issueKind, field, description string) string {
	var sb strings.Builder
	sb.WriteString("Product record:\n")
	sb.WriteString(record)
	sb.WriteString("\n\nFlagged attribute: ")
	sb.WriteString(field)
	sb.WriteString(fmt.Sprintf("\nDefect: %s (%s)\n", issueKind, description))
	sb.WriteString("\nDetermine the correct value for the flagged attribute.")
	return sb.String()
}

// ApprovalUserPrompt renders the per-attempt context for an approval call.
func ApprovalUserPrompt(record, field, candidate string, attempt int) string {
	var sb strings.Builder
	sb.WriteString("Product record:\n")
	sb.WriteString(record)
	sb.WriteString("\n\nAttribute under correction: ")
	sb.WriteString(field)
	sb.WriteString("\nCandidate value: ")
	sb.WriteString(candidate)
	sb.WriteString(fmt.Sprintf("\nValidation attempt: %d\n", attempt))
	sb.WriteString("\nApprove or reject the candidate value.")
	return sb.String()
}
