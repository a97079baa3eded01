package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return m
}

func TestSLogLoggerAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewSLogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	l.Error("refresh failed", "session", "s1", "error", errors.New("boom"), "took", 2*time.Second, "dangling")
	m := decodeLine(t, &buf)
	if m["msg"] != "refresh failed" || m["session"] != "s1" || m["error"] != "boom" {
		t.Fatalf("unexpected record %v", m)
	}
	if _, ok := m["dangling"]; ok {
		t.Fatalf("odd trailing key must be dropped")
	}

	buf.Reset()
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug below handler level should not be written")
	}
}

func TestNamedAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := Named(NewSLogLogger(slog.New(slog.NewJSONHandler(&buf, nil))), "store")
	l.Info("published", "generation", 3)
	m := decodeLine(t, &buf)
	if m["component"] != "store" {
		t.Fatalf("expected component=store, got %v", m)
	}
}

func TestLogrLoggerLiftsError(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogrLogger(logr.FromSlogHandler(slog.NewJSONHandler(&buf, nil)))
	l.Error("fetch failed", "error", errors.New("timeout"), "status", 502)
	m := decodeLine(t, &buf)
	if m["err"] != "timeout" {
		t.Fatalf("expected logr error argument, got %v", m)
	}
	if _, ok := m["error"]; ok {
		t.Fatalf("error key should not be duplicated: %v", m)
	}
}

func TestNullLogger(t *testing.T) {
	var l Logger = NewNullLogger()
	l.Error("ignored", "k", "v")
}
