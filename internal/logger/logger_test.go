package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practice-ledger/internal/logger"
)

func TestFromContext_AttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeWithWriter("debug", "json", &buf)
	defer logger.Initialize("info", "text")

	ctx := logger.WithRequestID(context.Background(), "req-123")
	logger.InfoContext(ctx, "payment created", "paymentID", 7)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-123", line["request_id"])
	assert.Equal(t, "payment created", line["msg"])
	assert.Equal(t, float64(7), line["paymentID"])
}

func TestInitialize_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.InitializeWithWriter("warn", "text", &buf)
	defer logger.Initialize("info", "text")

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
