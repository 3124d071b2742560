package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Level: slog.LevelDebug, Component: ComponentStore, Output: buf})
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)
	l.Info("hello", "k", "v")

	out := buf.String()
	assert.Contains(t, out, "component=store")
	assert.Contains(t, out, "k=v")
	assert.Equal(t, 1, strings.Count(out, "component="))
	assert.Equal(t, ComponentStore, l.Component())

	buf.Reset()
	l.WithComponent(ComponentHTTP).Info("x")
	assert.Contains(t, buf.String(), "component=http")
	assert.NotContains(t, buf.String(), "component=store")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestMiddlewareStoresLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	var got *Logger
	h := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Same(t, l, got)

	assert.Equal(t, "unknown", FromContext(context.Background()).Component())
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf))

	req := httptest.NewRequest(http.MethodPost, "/records?x=1", nil)
	sl.LogHTTPEnd(context.Background(), req, 404, 3, "1.2.3.4", "req_1")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "status_code=404")
	assert.Contains(t, buf.String(), "request_id=req_1")

	buf.Reset()
	sl.LogStoreChange(context.Background(), OpCreate, "direction", "n", 9)
	assert.Contains(t, buf.String(), "record_id=n")
	assert.Contains(t, buf.String(), "records=9")

	buf.Reset()
	sl.LogError(context.Background(), "boom", errors.New("bad"), OpImport, nil)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "error=bad")
}
