package kafka

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-checkout-engine/internal/orders"
)

// DecodeEnvelope reads the event envelope of m. The type header, when
// present, must agree with the envelope.
func DecodeEnvelope(m kafka.Message) (orders.Envelope, error) {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return env, errors.Wrapf(err, "decode envelope at %s/%d/%d", m.Topic, m.Partition, m.Offset)
	}
	if h := header(m, HeaderEventType); h != "" && h != env.EventType {
		return env, errors.Errorf("event type header %q does not match envelope %q", h, env.EventType)
	}
	return env, nil
}

func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, errors.Wrap(err, "decode payload")
	}
	return t, nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
