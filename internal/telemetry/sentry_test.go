package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	shutdown, err := Init(Config{}, zap.NewNop())

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestStartSpan_NestsUnderParent(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "pipeline.run", SpanAttributes{RunID: "run-1"})
	require.NotNil(t, root)

	_, child := StartSpan(ctx, "pipeline.stage", SpanAttributes{TaskName: "legal_analysis"})
	require.NotNil(t, child)

	assert.Equal(t, root.inner.TraceID, child.inner.TraceID)
	assert.Equal(t, "legal_analysis", child.inner.Tags["task"])
	assert.Equal(t, "run-1", root.inner.Tags["run_id"])

	child.Finish(errors.New("boom"))
	assert.Equal(t, sentry.SpanStatusInternalError, child.inner.Status)
	root.Finish(nil)
	assert.Equal(t, sentry.SpanStatusOK, root.inner.Status)
}

func TestSpan_NilInnerIsSafe(t *testing.T) {
	s := &Span{}
	s.SetStatus(sentry.SpanStatusOK)
	s.SetError(errors.New("x"))
	s.End()
	assert.NotNil(t, s.Context())
}

func TestAddBreadcrumb_WithAndWithoutHub(t *testing.T) {
	hub := sentry.NewHub(nil, sentry.NewScope())
	ctx := sentry.SetHubOnContext(context.Background(), hub)

	assert.NotPanics(t, func() {
		AddBreadcrumb(ctx, "pipeline", "stage finished", map[string]any{"task": "legal_analysis"})
		AddBreadcrumb(context.Background(), "pipeline", "stage finished", nil)
	})
}
