package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	prev := defaultLogger
	defaultLogger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(func() { defaultLogger = prev })
	return &buf
}

func TestWithContext_AttachesRequestFields(t *testing.T) {
	buf := captureLogger(t)

	ctx := ContextWithAccount(context.Background(), "0xabc")
	ctx = ContextWithRequestID(ctx, "req-1")

	WithContext(ctx).Info("bid rejected")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "0xabc", entry["account"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestWithContext_EmptyContext(t *testing.T) {
	buf := captureLogger(t)

	WithContext(context.Background()).Info("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasAccount := entry["account"]
	assert.False(t, hasAccount)
	_, hasReqID := entry["request_id"]
	assert.False(t, hasReqID)
}

func TestAccountFromContext(t *testing.T) {
	_, ok := AccountFromContext(context.Background())
	assert.False(t, ok)

	account, ok := AccountFromContext(ContextWithAccount(context.Background(), "0xabc"))
	assert.True(t, ok)
	assert.Equal(t, "0xabc", account)
}
