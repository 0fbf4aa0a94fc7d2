package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, convertLevel(DEBUG))
	assert.Equal(t, slog.LevelWarn, convertLevel(WARN))
	assert.Equal(t, slog.LevelError, convertLevel(ERROR))
	assert.Equal(t, slog.LevelInfo, convertLevel("verbose"))
}

func TestNewDefault_Noop(t *testing.T) {
	l := NewDefault(Config{Provider: ProviderNoop})
	require.NotNil(t, l)
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}

func TestContextRoundTrip(t *testing.T) {
	l := NewNoop()
	ctx := NewContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestFromContextWithErr_AttachesStack(t *testing.T) {
	var buf bytes.Buffer
	ctx := NewContext(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	FromContextWithErr(ctx, errors.New("boom")).Error("failed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "boom", rec["error"])
	assert.Contains(t, rec, "stack")
}
