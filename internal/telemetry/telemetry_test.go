package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracer_NoEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "scry-notes-test", "")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()

	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}

func TestMetricsRegistered(t *testing.T) {
	before := testutil.ToFloat64(TasksRejected.WithLabelValues("admission"))
	TasksRejected.WithLabelValues("admission").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(TasksRejected.WithLabelValues("admission")))
}
