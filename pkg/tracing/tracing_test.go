package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestStartSpan_EndSpan(t *testing.T) {
	recorder := setupRecorder(t)

	ctx, span := StartSpan(context.Background(), "lending", "CreateCheckout")
	assert.NotEmpty(t, ExtractTraceID(ctx))
	EndSpan(span, nil)

	_, failed := StartSpan(context.Background(), "lending", "CompleteCheckout")
	EndSpan(failed, errors.New("未归还"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "CreateCheckout", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Len(t, spans[1].Events(), 1, "RecordError会写入一个exception事件")
}

func TestExtractTraceID_NoSpan(t *testing.T) {
	assert.Equal(t, "", ExtractTraceID(context.Background()))
}
