package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.Info("graph built", "nodes", 4, "edges", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "graph built" {
		t.Errorf("msg = %v, want %q", entry["msg"], "graph built")
	}
	if entry["nodes"] != float64(4) {
		t.Errorf("nodes = %v, want 4", entry["nodes"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("output contains filtered entries: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("output missing WARN entry: %s", out)
	}
}

func TestLogger_ChildAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	child := l.WithComponent("classifier").WithProject("proj-1")
	child.Info("classified")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["component"] != "classifier" {
		t.Errorf("component = %v, want classifier", entry["component"])
	}
	if entry["project_id"] != "proj-1" {
		t.Errorf("project_id = %v, want proj-1", entry["project_id"])
	}
}

func TestLogger_ChildDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)

	_ = l.WithRequest("req-1")
	l.Info("plain")

	if strings.Contains(buf.String(), "req-1") {
		t.Errorf("parent logger inherited child attribute: %s", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("dropped")
	l.Error("dropped")
	if err := l.Close(); err != nil {
		t.Errorf("Close() on nop logger = %v, want nil", err)
	}
}

func TestOpen_CreatesFile(t *testing.T) {
	path := t.TempDir() + "/logs/engine.log"
	l, err := Open(path, LevelInfo)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	l.Info("first entry")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
