package reactions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/2389/coven-reactions/internal/store"
)

func TestEngineSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	cfg := singleConfig()
	cfg.ReactionTypes = []string{"like"}
	e, err := New(store.NewMockStore(store.ModeSingle), cfg, WithLogger(testLogger()), WithTracerProvider(tp))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.React(ctx, post, "alice", "like", nil)
	require.NoError(t, err)
	_, err = e.React(ctx, post, "alice", "nope", nil)
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "reactions.React", ok.Name())
	assert.Contains(t, ok.Attributes(), attribute.String("reactable.type", "Post"))
	assert.Contains(t, ok.Attributes(), attribute.String("reactions.mode", "single"))
	assert.Equal(t, codes.Unset, ok.Status().Code)

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.NotEmpty(t, failed.Events(), "the error is recorded on the span")
}
