package outbox

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-checkout-engine/internal/metrics"
	"github.com/ariefcatur/go-checkout-engine/internal/txn"
)

type Publisher interface {
	Publish(ctx context.Context, r Record) error
}

// Relay moves outbox records to the broker. Delivery is at-least-once:
// a crash after publishing but before commit re-sends the batch, and
// consumers dedupe by event id.
type Relay struct {
	Repo      Repository
	Tx        txn.Transactor
	Publisher Publisher
	Log       logrus.FieldLogger
	Metrics   *metrics.Metrics
	BatchSize int
	Interval  time.Duration
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		n, err := r.Flush(ctx)
		if err != nil && ctx.Err() == nil {
			r.Log.WithError(err).Warn("outbox flush failed")
		}
		if n > 0 && err == nil {
			continue // drain the backlog before sleeping
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Flush publishes one batch and returns how many records went out.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}
	sent := 0
	err := r.Tx.WithinTx(ctx, func(ctx context.Context) error {
		recs, err := r.Repo.FetchPending(ctx, limit)
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(recs))
		for _, rec := range recs {
			if err := r.Publisher.Publish(ctx, rec); err != nil {
				// keep what already went out; the rest retries next tick
				if len(ids) == 0 {
					return err
				}
				r.Log.WithError(err).WithField("event_id", rec.EventID).Warn("publish failed")
				break
			}
			ids = append(ids, rec.ID)
			if r.Metrics != nil {
				r.Metrics.OutboxPublished.WithLabelValues(rec.Topic).Inc()
			}
		}
		if len(ids) == 0 {
			return nil
		}
		sent = len(ids)
		return r.Repo.MarkSent(ctx, ids, time.Now().UTC())
	})
	return sent, err
}
