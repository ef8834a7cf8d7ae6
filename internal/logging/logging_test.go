package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown", "upload_id", "up-1")

	out := buf.String()
	require.NotContains(t, out, "hidden", "info suppressed at warn")
	require.Contains(t, out, "shown", "warn emitted")
	require.Contains(t, out, "up-1", "attributes emitted")
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, "chatty")

	logger.Debug("hidden")
	logger.Info("shown")

	require.NotContains(t, buf.String(), "hidden", "debug suppressed")
	require.Contains(t, buf.String(), "shown", "info emitted")
}
