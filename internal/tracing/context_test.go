package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetRunID(ctx))
	assert.Empty(t, GetSessionKey(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithSessionKey(ctx, "sess-1")

	assert.Equal(t, "trace-1", GetTraceID(ctx))
	assert.Equal(t, "run-1", GetRunID(ctx))
	assert.Equal(t, "sess-1", GetSessionKey(ctx))
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background())
	id := GetTraceID(ctx)
	assert.Len(t, id, 36)

	again := NewRequestContext(ctx)
	assert.Equal(t, id, GetTraceID(again))
	assert.NotEqual(t, NewRunID(), NewRunID())
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithSessionKey(WithRunID(context.Background(), "run-7"), "sess-7")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"run_id":"run-7"`)
	assert.Contains(t, buf.String(), `"session_key":"sess-7"`)
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestStartSpan(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("nava-test"))
	defer func() { _ = ShutdownOpenTelemetry(context.Background()) }()

	ctx, span := StartSpan(context.Background(), "nava.test", "unit", attribute.String("k", "v"))
	defer span.End()

	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
}
