package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseMetrics_TrackQuery(t *testing.T) {
	m := NewDatabaseMetrics("sqlite")
	before := testutil.CollectAndCount(DatabaseQueryLatency)

	done := m.TrackQuery("find", "posts_metrics_test")
	done()

	assert.Equal(t, before+1, testutil.CollectAndCount(DatabaseQueryLatency))
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "smedia-test", Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	span, ctx := NewSpan(context.Background(), "unit")
	defer span.End()
	assert.Equal(t, ctx, span.Context())
	span.SetError(errors.New("boom"))
	RecordErrorInContext(ctx, errors.New("boom"))
}

func TestTraceLayer_StartsSpans(t *testing.T) {
	layer := GetTraceLayer()

	ctx, span := layer.TraceRepositoryMethod(context.Background(), "mongodb", "GetByID", "posts")
	require.NotNil(t, ctx)
	span.End()

	_, span = layer.TraceRedisOperation(context.Background(), "publish")
	span.End()
}
