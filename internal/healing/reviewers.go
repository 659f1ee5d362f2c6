package healing

import (
	"context"
	"sync"
	"time"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/logger"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/reviewer"
)

// askBoth sends the same question to both reviewers in parallel and waits for
// both answers. Each call gets its own timeout; a reviewer that errors or
// times out contributes a failed opinion with confidence 0 instead of
// aborting the pair.
func askBoth(ctx context.Context, a, b reviewer.Client, q *reviewer.Question, timeout time.Duration) (domain.ReviewerOpinion, domain.ReviewerOpinion) {
	var (
		wg  sync.WaitGroup
		opA domain.ReviewerOpinion
		opB domain.ReviewerOpinion
	)

	ask := func(c reviewer.Client, out *domain.ReviewerOpinion) {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		op, err := c.Ask(callCtx, q)
		if err != nil {
			latency := time.Since(start).Milliseconds()
			logger.CtxWarn(ctx, "reviewer call failed: reviewer=%s err=%v", c.ID(), err)
			*out = domain.FailedOpinion(c.ID(), latency, err.Error())
			return
		}
		*out = op
	}

	wg.Add(2)
	go ask(a, &opA)
	go ask(b, &opB)
	wg.Wait()

	return opA, opB
}
