package broker

import (
	"context"
	"time"

	"github.com/mandalnilabja/maptoken/internal/storage/models"
)

const minRetry = time.Second

// Run keeps the current token warm by re-exchanging it once it enters the
// refresh margin. It idles until the first token is issued on demand, and
// goes back to idling if a token expires without a successful refresh.
// Run returns when ctx is cancelled.
func (b *Broker) Run(ctx context.Context) {
	ctx = WithSource(ctx, models.SourceRefresher)
	retry := minRetry
	// floor stops a token shorter-lived than the margin from spinning the loop.
	var floor time.Duration

	for {
		tok, err := b.Current()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-b.issued:
				continue
			}
		}

		wait := max(tok.ExpiresAt.Sub(b.now())-b.cfg.Margin, floor)
		if !sleep(ctx, wait) {
			return
		}

		// Another caller may have refreshed while we slept.
		if latest, err := b.Current(); err == nil && latest != tok {
			continue
		}

		if _, err := b.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if !b.now().Before(tok.ExpiresAt) {
				// Expired without a replacement; wait for demand.
				b.Invalidate()
				retry, floor = minRetry, 0
				continue
			}
			if !sleep(ctx, retry) {
				return
			}
			retry, floor = nextRetry(retry, b.cfg.Margin), 0
			continue
		}
		retry, floor = minRetry, minRetry
		b.drainIssued()
	}
}

// nextRetry doubles d, capped at the refresh margin (and never below minRetry).
func nextRetry(d, margin time.Duration) time.Duration {
	d *= 2
	if limit := max(margin, minRetry); d > limit {
		d = limit
	}
	return d
}

func (b *Broker) drainIssued() {
	select {
	case <-b.issued:
	default:
	}
}

// sleep waits for d or ctx; it reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
