package reviewer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
)

// Question is one prompt/context pair sent to a reviewer, tagged with the
// answer shape the caller expects back.
type Question struct {
	SystemPrompt string
	UserPrompt   string
	Expect       domain.ValueKind
}

// Client is the uniform interface to one AI reviewer. The orchestrator is
// agnostic to which underlying provider backs each reviewer identity.
type Client interface {
	// ID returns the fixed reviewer identity.
	ID() domain.ReviewerID

	// Ask sends the question and returns the reviewer's typed opinion.
	// Transport errors and timeouts are returned as errors; the caller
	// records them as failed opinions rather than propagating them.
	Ask(ctx context.Context, q *Question) (domain.ReviewerOpinion, error)
}

// HTTPConfig holds configuration for an OpenAI-compatible reviewer backend.
type HTTPConfig struct {
	ReviewerID domain.ReviewerID
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
}

// HTTPClient invokes a reviewer through an OpenAI-compatible chat
// completions endpoint.
type HTTPClient struct {
	id       domain.ReviewerID
	client   *resty.Client
	model    string
	endpoint string
}

// NewHTTPClient creates a reviewer client for one backend.
func NewHTTPClient(cfg *HTTPConfig) *HTTPClient {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	// Client-level timeout backstops the per-call context deadline
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	endpoint := baseURL + "/chat/completions"

	return &HTTPClient{
		id:       cfg.ReviewerID,
		client:   client,
		model:    cfg.Model,
		endpoint: endpoint,
	}
}

// ID returns the fixed reviewer identity.
func (c *HTTPClient) ID() domain.ReviewerID {
	return c.id
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Ask sends the question to the backing model and parses the reply into a
// typed opinion. Latency covers the full round trip including parsing.
func (c *HTTPClient) Ask(ctx context.Context, q *Question) (domain.ReviewerOpinion, error) {
	start := time.Now()

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: q.SystemPrompt},
			{Role: "user", Content: q.UserPrompt},
		},
		MaxTokens:   300,
		Temperature: 0,
	}

	var resp chatResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(c.endpoint)

	latency := time.Since(start).Milliseconds()

	if err != nil {
		return domain.ReviewerOpinion{}, fmt.Errorf("failed to call reviewer API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return domain.ReviewerOpinion{}, fmt.Errorf("reviewer API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return domain.ReviewerOpinion{}, fmt.Errorf("reviewer API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return domain.ReviewerOpinion{}, fmt.Errorf("no response from reviewer API (status: %d)", httpResp.StatusCode())
	}

	value, confidence, err := ParseAnswer(resp.Choices[0].Message.Content, q.Expect)
	if err != nil {
		return domain.ReviewerOpinion{}, fmt.Errorf("failed to parse reviewer answer: %w", err)
	}

	return domain.ReviewerOpinion{
		ReviewerID: c.id,
		Value:      value,
		Confidence: confidence,
		LatencyMs:  latency,
	}, nil
}
