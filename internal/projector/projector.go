// Package projector folds order events from Kafka into the order-status
// cache read by the storefront.
package projector

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	kafkax "github.com/ariefcatur/go-checkout-engine/internal/kafka"
	"github.com/ariefcatur/go-checkout-engine/internal/orders"
)

type StatusStore interface {
	Get(ctx context.Context, orderID string) (orders.StatusSnapshot, bool, error)
	Put(ctx context.Context, snap orders.StatusSnapshot) error
}

type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Projector struct {
	Status StatusStore
	Dedup  Deduper
	Log    logrus.FieldLogger
}

// Handle is installed as the consumer handler. Unknown event types are
// acknowledged and ignored; a malformed envelope is logged and skipped so it
// does not block the partition.
func (p *Projector) Handle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m)
	if err != nil {
		p.Log.WithError(err).WithField("topic", m.Topic).Error("dropping undecodable event")
		return nil
	}
	if !known(env.EventType) {
		return nil
	}

	first, err := p.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		p.Log.WithField("event_id", env.EventID).Debug("duplicate event")
		return nil
	}
	if err := p.apply(ctx, env); err != nil {
		if ferr := p.Dedup.Forget(ctx, env.EventID); ferr != nil {
			p.Log.WithError(ferr).WithField("event_id", env.EventID).Warn("dedup forget failed")
		}
		return err
	}
	return nil
}

func (p *Projector) apply(ctx context.Context, env orders.Envelope) error {
	snap, _, err := p.Status.Get(ctx, env.CorrelationID)
	if err != nil {
		return err
	}
	next, err := fold(snap, env)
	if err != nil {
		p.Log.WithError(err).WithField("event_id", env.EventID).Error("dropping event with bad payload")
		return nil
	}
	if next == snap {
		return nil
	}
	p.Log.WithFields(logrus.Fields{
		"order_id": next.OrderID,
		"status":   next.Status,
		"payment":  next.PaymentStatus,
	}).Debug("status projected")
	return p.Status.Put(ctx, next)
}

func known(eventType string) bool {
	switch eventType {
	case orders.EventOrderCreated, orders.EventOrderStatusChanged,
		orders.EventOrderPaymentChanged, orders.EventOrderTrackingUpdated:
		return true
	}
	return false
}

// fold applies one event to a snapshot. Events for one order travel on
// different topics, so they may arrive out of order: a field is only
// overwritten by an event at least as new as the snapshot, and an older
// event only fills fields that are still empty.
func fold(snap orders.StatusSnapshot, env orders.Envelope) (orders.StatusSnapshot, error) {
	newer := snap.UpdatedAt.IsZero() || !env.OccurredAt.Before(snap.UpdatedAt)

	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return snap, err
		}
		snap.OrderID = p.OrderID
		snap.UserID = p.UserID
		if snap.Status == "" {
			snap.Status = p.Status
		}
		if snap.PaymentStatus == "" {
			snap.PaymentStatus = p.PaymentStatus
		}
	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return snap, err
		}
		snap.OrderID = p.OrderID
		if newer || snap.Status == "" {
			snap.Status = p.To
		}
	case orders.EventOrderPaymentChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderPaymentChangedPayload](env.Payload)
		if err != nil {
			return snap, err
		}
		snap.OrderID = p.OrderID
		if newer || snap.PaymentStatus == "" || snap.PaymentStatus == orders.PaymentPending {
			snap.PaymentStatus = p.To
		}
	case orders.EventOrderTrackingUpdated:
		p, err := kafkax.UnwrapPayload[orders.OrderTrackingUpdatedPayload](env.Payload)
		if err != nil {
			return snap, err
		}
		snap.OrderID = p.OrderID
		if newer || snap.TrackingNumber == "" {
			snap.TrackingNumber = p.TrackingNumber
		}
	}
	if newer {
		snap.UpdatedAt = env.OccurredAt
	}
	return snap, nil
}
