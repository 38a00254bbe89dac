package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Writer: &buf})
	log.With(String("component", "solver")).Info(context.Background(), "step", Int("step", 3), Float("energy", 1.5), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "step" || rec["component"] != "solver" || rec["error"] != "boom" {
		t.Errorf("unexpected record %v", rec)
	}
	if rec["step"] != float64(3) || rec["energy"] != 1.5 {
		t.Errorf("unexpected numeric fields %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Writer: &buf})
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRunIDContext(t *testing.T) {
	ctx := context.Background()
	if RunIDFromContext(ctx) != "" {
		t.Error("expected no run id")
	}
	ctx, id := EnsureRunID(ctx)
	if id == "" || RunIDFromContext(ctx) != id {
		t.Fatalf("run id not attached: %q", id)
	}
	if _, again := EnsureRunID(ctx); again != id {
		t.Errorf("EnsureRunID replaced %s with %s", id, again)
	}

	var buf bytes.Buffer
	_, log := WithRunLogger(ContextWithRunID(context.Background(), "abc"), New(Config{Writer: &buf}))
	log.Info(context.Background(), "hello")
	if !strings.Contains(buf.String(), "run_id=abc") {
		t.Errorf("expected run_id in %q", buf.String())
	}
}

func TestLoggerFromContext(t *testing.T) {
	if _, ok := FromContext(context.Background()).(noopLogger); !ok {
		t.Error("expected noop logger by default")
	}
	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), New(Config{Writer: &buf}))
	FromContext(ctx).Info(ctx, "via context")
	if !strings.Contains(buf.String(), "via context") {
		t.Errorf("logger not taken from context: %q", buf.String())
	}
}
