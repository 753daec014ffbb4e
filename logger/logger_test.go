package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/logger"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("verbose"))
}

func TestWithComponent_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeTo(&buf, "info", "json")
	t.Cleanup(func() { logger.InitializeTo(&bytes.Buffer{}, "info", "text") })

	logger.WithComponent("ledger").Debug("hidden")
	logger.WithComponent("ledger").Info("transaction recorded", "amount", "100.00")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ledger", line["component"])
	assert.Equal(t, "transaction recorded", line["msg"])
	assert.Equal(t, "100.00", line["amount"])
}
