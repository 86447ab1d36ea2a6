package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Handler returns nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       messageReader
	workers int
	log     logrus.FieldLogger
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log logrus.FieldLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commit explicitly after the handler succeeds
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r messageReader, workers int, log logrus.FieldLogger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, log: log}
}

// Start fetches until ctx is done. Messages of one key always go to the same
// worker so per-order ordering survives the fan-out.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				c.handle(ctx, h, m)
			}
		}(lanes[i])
	}
	stop := func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[lane(m.Key, c.workers)] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

// handle retries a failing message until it succeeds or ctx ends; skipping
// it would lose the event because later offsets commit past it.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	delay := 200 * time.Millisecond
	for {
		err := h(ctx, m)
		if err == nil {
			if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
				c.log.WithError(err).WithField("offset", m.Offset).Warn("commit failed")
			}
			return
		}
		c.log.WithError(err).WithFields(logrus.Fields{
			"topic": m.Topic, "partition": m.Partition, "offset": m.Offset,
		}).Warn("handler failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay < 5*time.Second {
			delay *= 2
		}
	}
}

func lane(key []byte, n int) int {
	var h uint32 = 2166136261
	for _, b := range key {
		h ^= uint32(b)
		h *= 16777619
	}
	return int(h % uint32(n))
}
