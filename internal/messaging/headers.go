package messaging

import (
	"slices"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"

	"github.com/joao-fontenele/marketplace/internal/domain"
)

// EventTypeHeader names the Kafka header carrying the order event type.
const EventTypeHeader = "event-type"

var _ propagation.TextMapCarrier = Headers{}

// Headers reads and writes the headers of one order event message. It
// doubles as the trace context carrier.
type Headers struct {
	msg *kafka.Message
}

func HeadersOf(msg *kafka.Message) Headers {
	return Headers{msg: msg}
}

func (h Headers) index(key string) int {
	return slices.IndexFunc(h.msg.Headers, func(hd kafka.Header) bool { return hd.Key == key })
}

func (h Headers) Get(key string) string {
	if i := h.index(key); i >= 0 {
		return string(h.msg.Headers[i].Value)
	}
	return ""
}

// Set replaces an existing header in place rather than appending a duplicate.
func (h Headers) Set(key, value string) {
	if i := h.index(key); i >= 0 {
		h.msg.Headers[i].Value = []byte(value)
		return
	}
	h.msg.Headers = append(h.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (h Headers) Keys() []string {
	keys := make([]string, 0, len(h.msg.Headers))
	for _, hd := range h.msg.Headers {
		keys = append(keys, hd.Key)
	}
	return keys
}

func (h Headers) EventType() domain.OrderEventType {
	return domain.OrderEventType(h.Get(EventTypeHeader))
}

func (h Headers) SetEventType(t domain.OrderEventType) {
	h.Set(EventTypeHeader, string(t))
}
