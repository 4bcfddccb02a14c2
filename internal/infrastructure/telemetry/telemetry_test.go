package telemetry

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInitTracerWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracerConfig{ServiceName: "devdash-test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestKafkaHeaderPropagation(t *testing.T) {
	_, err := InitTracer(context.Background(), TracerConfig{})
	require.NoError(t, err)

	traceID, hexID, ok := NewTraceID()
	require.True(t, ok)
	spanCtx, ok := NewSpanContext(traceID)
	require.True(t, ok)
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	headers := []kafka.Header{{Key: "Traceparent", Value: []byte("stale")}, {Key: "other", Value: []byte("x")}}
	InjectKafkaHeaders(ctx, &headers)
	require.Len(t, headers, 2)
	assert.Contains(t, string(headers[0].Value), hexID)

	extracted := trace.SpanContextFromContext(ExtractKafkaHeaders(context.Background(), headers))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.Equal(t, spanCtx.SpanID(), extracted.SpanID())
	assert.True(t, extracted.IsRemote())
}
