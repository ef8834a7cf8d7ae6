package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTracerDisabled(t *testing.T) {
	t.Parallel()

	shutdown, err := InitTracer(context.Background(), "voicehub-test", "test", "")
	require.NoError(t, err, "InitTracer error")
	require.NotNil(t, shutdown, "shutdown func")
	require.NoError(t, shutdown(context.Background()), "noop shutdown")
}
