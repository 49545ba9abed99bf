package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracerDisabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{ServiceName: "reqguard-test"})
	require.NoError(t, err)

	ctx, span := tracer.Start(context.Background(), "admission.check")
	assert.NotNil(t, ctx)
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracerEnabledNoEndpoint(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "reqguard-test",
		SamplingRate: 1.0,
		Enabled:      true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	_, span := tracer.Start(context.Background(), "admission.check")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}
