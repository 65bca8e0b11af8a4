package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "entry=%s", buf.String())
	return entry
}

func TestErrorCarriesContextFieldsAndCode(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "marketcore-test", Level: zerolog.DebugLevel, Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithOrderID(ctx, "0b0c2a4e")
	ctx = log.WithVendorID(ctx, 42)

	log.Error(ctx, "transition failed", pkgerrors.New(pkgerrors.CodeInvalidTransition, "shipped -> pending"))

	entry := decode(t, buf)
	assert.Equal(t, "marketcore-test", entry["service"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "0b0c2a4e", entry["order_id"])
	assert.EqualValues(t, 42, entry["vendor_id"])
	assert.Equal(t, string(pkgerrors.CodeInvalidTransition), entry["error_code"])
	assert.NotEmpty(t, entry["stack"])
}

func TestErrorWithPlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "marketcore-test", Output: buf})

	log.Error(context.Background(), "redis down", errors.New("dial tcp: refused"))

	entry := decode(t, buf)
	assert.Equal(t, "dial tcp: refused", entry["error"])
	assert.NotContains(t, entry, "error_code")
}

func TestWarnStackToggle(t *testing.T) {
	for _, withStack := range []bool{false, true} {
		buf := &bytes.Buffer{}
		log := New(Options{ServiceName: "marketcore-test", Output: buf, WarnStack: withStack})
		log.Warn(context.Background(), "lock contended")

		_, hasStack := decode(t, buf)["stack"]
		assert.Equal(t, withStack, hasStack)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "marketcore-test", Output: buf})
	log.Debug(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
}

func TestContextFieldsDoNotLeakToParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "marketcore-test", Output: buf})

	parent := log.WithField(context.Background(), "job", "stale-orders")
	_ = log.WithField(parent, "batch", 3)
	log.Info(parent, "cycle")

	entry := decode(t, buf)
	assert.Equal(t, "stale-orders", entry["job"])
	assert.NotContains(t, entry, "batch")
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	ctx := log.WithFields(context.Background(), map[string]any{"a": 1})
	log.Info(ctx, "ignored")
	log.Error(ctx, "ignored", errors.New("x"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
}
