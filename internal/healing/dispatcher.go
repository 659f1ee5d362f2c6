package healing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/archive"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/logger"
)

// CorrectionPayload is the wire format sent to the CRM correction endpoint.
type CorrectionPayload struct {
	JobID       string            `json:"job_id"`
	RunID       string            `json:"run_id"`
	Corrections map[string]string `json:"corrections"`
	Source      string            `json:"source"`
	SentAt      time.Time         `json:"sent_at"`
}

// DispatchResult records the outcome of one correction dispatch.
type DispatchResult struct {
	Sent       bool
	StatusCode int
	ArchiveURL string
	Err        error
}

// DispatcherConfig configures the CRM correction client.
type DispatcherConfig struct {
	Endpoint   string
	APIKey     string
	RetryCount int
	RetryWait  time.Duration
	Timeout    time.Duration
}

// Dispatcher delivers validated corrections to the upstream CRM and archives
// the payload for audit.
type Dispatcher struct {
	client   *resty.Client
	endpoint string
	archive  archive.Archive
}

// NewDispatcher creates a dispatcher for the configured CRM endpoint.
// The archive may be nil, in which case payloads are not archived.
func NewDispatcher(cfg *DispatcherConfig, arc archive.Archive) *Dispatcher {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.RetryCount > 0 {
		client.SetRetryCount(cfg.RetryCount)
		wait := cfg.RetryWait
		if wait <= 0 {
			wait = 2 * time.Second
		}
		client.SetRetryWaitTime(wait)
		// Retry on transport errors and 5xx; a 4xx means the payload itself
		// is rejected and retrying cannot help.
		client.AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	}

	return &Dispatcher{
		client:   client,
		endpoint: cfg.Endpoint,
		archive:  arc,
	}
}

// Dispatch sends the corrections to the CRM. Archival failures are logged
// and never fail the dispatch; delivery failures after all retries are
// returned on the result for the orchestrator to escalate.
func (d *Dispatcher) Dispatch(ctx context.Context, payload *CorrectionPayload) DispatchResult {
	var result DispatchResult

	if payload.SentAt.IsZero() {
		payload.SentAt = time.Now().UTC()
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(d.endpoint)
	if err != nil {
		result.Err = fmt.Errorf("correction dispatch failed: %w", err)
		return result
	}
	result.StatusCode = resp.StatusCode()
	if resp.IsError() {
		result.Err = fmt.Errorf("correction dispatch rejected: status %d: %s",
			resp.StatusCode(), resp.String())
		return result
	}
	result.Sent = true

	if d.archive != nil {
		body, err := json.Marshal(payload)
		if err == nil {
			key := archive.PayloadKey(payload.JobID, payload.RunID, payload.SentAt)
			url, putErr := d.archive.Put(ctx, key, body)
			if putErr != nil {
				logger.CtxWarn(ctx, "payload archive failed: key=%s err=%v", key, putErr)
			} else {
				result.ArchiveURL = url
			}
		}
	}

	logger.CtxInfo(ctx, "correction dispatched: job=%s fields=%d status=%d",
		payload.JobID, len(payload.Corrections), result.StatusCode)
	return result
}
