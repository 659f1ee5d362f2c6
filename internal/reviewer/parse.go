package reviewer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
)

// rawAnswer is the loosely-typed JSON shape models actually return. It is
// validated into the domain.OpinionValue tagged union here, at the client
// boundary, so nothing downstream handles untyped blobs.
type rawAnswer struct {
	Value       interface{} `json:"value"`
	Approved    *bool       `json:"approved"`
	Confidence  interface{} `json:"confidence"`
	Alternative string      `json:"alternative"`
}

// ParseAnswer validates a model reply into a typed opinion value and
// confidence. expect selects the accepted answer shape: approval replies
// must carry an "approved" verdict, value replies must carry a "value".
func ParseAnswer(content string, expect domain.ValueKind) (domain.OpinionValue, int, error) {
	payload := extractJSON(content)
	if payload == "" {
		return domain.OpinionValue{}, 0, fmt.Errorf("no JSON object in reviewer reply")
	}

	var raw rawAnswer
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return domain.OpinionValue{}, 0, fmt.Errorf("invalid reviewer JSON: %w", err)
	}

	confidence := clampConfidence(raw.Confidence)

	if expect == domain.ValueKindApproval {
		if raw.Approved == nil {
			return domain.OpinionValue{}, 0, fmt.Errorf("approval reply missing \"approved\" field")
		}
		return domain.OpinionValue{
			Kind:        domain.ValueKindApproval,
			Approved:    *raw.Approved,
			Alternative: strings.TrimSpace(raw.Alternative),
		}, confidence, nil
	}

	switch v := raw.Value.(type) {
	case string:
		return domain.OpinionValue{
			Kind: domain.ValueKindString,
			Str:  strings.TrimSpace(v),
		}, confidence, nil
	case float64:
		return domain.OpinionValue{
			Kind: domain.ValueKindNumber,
			Num:  v,
		}, confidence, nil
	case nil:
		return domain.OpinionValue{}, 0, fmt.Errorf("value reply missing \"value\" field")
	default:
		return domain.OpinionValue{}, 0, fmt.Errorf("unexpected value type %T in reviewer reply", raw.Value)
	}
}

// extractJSON pulls the first top-level JSON object out of a reply, tolerating
// markdown code fences and surrounding prose.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return content[start : i+1]
				}
			}
		}
	}
	return ""
}

// clampConfidence coerces the model's confidence into a 0-100 integer.
// Models occasionally return it as a string or a 0-1 float.
func clampConfidence(v interface{}) int {
	var c float64
	switch n := v.(type) {
	case float64:
		c = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		if err != nil {
			return 0
		}
		c = parsed
	default:
		return 0
	}
	if c > 0 && c <= 1 {
		c *= 100
	}
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return int(c + 0.5)
}
