package crawler

import (
	"context"

	"go.uber.org/zap"
)

// runProber is one goroutine in the optional external-link prober pool
// (spec §3 NEW, Open Question 2). It issues a HEAD (falling back to a
// ranged GET, handled inside Prober.Head) against each external URL handed
// to it and reports the outcome without ever downloading a full page body.
func (e *Engine) runProber(ctx context.Context) {
	for {
		select {
		case u, ok := <-e.probeCh:
			if !ok {
				return
			}
			outcome := e.probe(ctx, u)
			select {
			case e.probeResultCh <- outcome:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) probe(ctx context.Context, u string) probeOutcome {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("prober panic recovered", zap.String("url", u), zap.Any("panic", r))
		}
	}()

	res, err := e.opts.Prober.Head(ctx, u)
	if err != nil {
		if res == nil {
			return probeOutcome{url: u, err: err}
		}
	}

	return probeOutcome{
		url:           u,
		status:        res.StatusCode,
		headers:       res.Headers,
		redirectChain: res.RedirectChain,
		redirectLoop:  res.RedirectLoop,
	}
}
