package telemetry

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// kafkaHeaderCarrier adapts message headers to the otel TextMapCarrier. Keys
// match case-insensitively and Set replaces an existing header in place.
type kafkaHeaderCarrier struct {
	headers []kafka.Header
}

func (c *kafkaHeaderCarrier) Get(key string) string {
	if i := c.index(key); i >= 0 {
		return string(c.headers[i].Value)
	}
	return ""
}

func (c *kafkaHeaderCarrier) Set(key, value string) {
	if i := c.index(key); i >= 0 {
		c.headers[i].Value = []byte(value)
		return
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *kafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, header := range c.headers {
		keys = append(keys, header.Key)
	}
	return keys
}

func (c *kafkaHeaderCarrier) index(key string) int {
	for i, header := range c.headers {
		if strings.EqualFold(header.Key, key) {
			return i
		}
	}
	return -1
}

func InjectKafkaHeaders(ctx context.Context, headers *[]kafka.Header) {
	carrier := &kafkaHeaderCarrier{headers: *headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	*headers = carrier.headers
}

func ExtractKafkaHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &kafkaHeaderCarrier{headers: headers})
}
