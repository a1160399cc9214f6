package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	provider, err := NewTracerProvider(context.Background(), "test-service", TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, provider.tp)

	tracer := Tracer("test")
	_, span := tracer.Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()
}

func TestTracerProvider_Shutdown_Noop(t *testing.T) {
	provider := &TracerProvider{}
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestTracerProvider_Shutdown_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &TracerProvider{}
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestTracer_ReturnsUsableTracer(t *testing.T) {
	_, err := NewTracerProvider(context.Background(), "test-service", TracingConfig{Enabled: false})
	require.NoError(t, err)

	tracer := Tracer("test-tracer")
	require.NotNil(t, tracer)

	ctx, span := tracer.Start(context.Background(), "test-span")
	require.NotNil(t, span)
	span.End()
	assert.NotNil(t, ctx)
}

func TestTracerProvider_ConcurrentShutdown(t *testing.T) {
	provider := &TracerProvider{}

	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_ = provider.Shutdown(ctx)
			done <- struct{}{}
		}()
	}

	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for concurrent shutdown")
		}
	}
}
