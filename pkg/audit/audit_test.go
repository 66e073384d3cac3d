package audit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ====== Default logger (must run before any SetDefaultLogger test) ======

func TestDefaultLogger_Unset(t *testing.T) {
	if err := Log(NewEvent("alice", "demo", OpSubmit)); err != nil {
		t.Fatalf("Log without default logger: %v", err)
	}
	events, err := Query(Filter{})
	if err != nil {
		t.Fatalf("Query without default logger: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

// ====== Events ======

func TestEvent_New(t *testing.T) {
	before := time.Now()
	event := NewEvent("alice", "demo-slice", OpSubmit)
	after := time.Now()

	if event.ID == "" {
		t.Error("ID should not be empty")
	}
	if event.User != "alice" {
		t.Errorf("User = %q, want %q", event.User, "alice")
	}
	if event.Slice != "demo-slice" {
		t.Errorf("Slice = %q, want %q", event.Slice, "demo-slice")
	}
	if event.Operation != "submit" {
		t.Errorf("Operation = %q, want %q", event.Operation, "submit")
	}
	if event.Timestamp.Before(before) || event.Timestamp.After(after) {
		t.Errorf("Timestamp %v outside [%v, %v]", event.Timestamp, before, after)
	}
	if event.Success {
		t.Error("new event should not be marked successful")
	}
}

func TestEvent_Chaining(t *testing.T) {
	event := NewEvent("bob", "exp1", OpExecute).
		WithSliceID("c7f3a2").
		WithNode("node1").
		WithCommand("uname -a").
		WithDuration(250 * time.Millisecond).
		WithSuccess()

	if event.SliceID != "c7f3a2" {
		t.Errorf("SliceID = %q", event.SliceID)
	}
	if event.Node != "node1" {
		t.Errorf("Node = %q", event.Node)
	}
	if event.Command != "uname -a" {
		t.Errorf("Command = %q", event.Command)
	}
	if event.Duration != 250*time.Millisecond {
		t.Errorf("Duration = %v", event.Duration)
	}
	if !event.Success {
		t.Error("Success should be true")
	}
}

func TestEvent_WithError(t *testing.T) {
	event := NewEvent("bob", "exp1", OpDelete).WithSuccess().WithError(errors.New("lease expired"))
	if event.Success {
		t.Error("WithError should clear Success")
	}
	if event.Error != "lease expired" {
		t.Errorf("Error = %q", event.Error)
	}

	event = NewEvent("bob", "exp1", OpDelete).WithError(nil)
	if event.Error != "" {
		t.Errorf("WithError(nil) set Error = %q", event.Error)
	}
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	event := NewEvent("carol", "exp2", OpUpload).
		WithNode("node2").
		WithCommand("/tmp/config.sh").
		WithDuration(3 * time.Second).
		WithSuccess()

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.User != "carol" || decoded.Slice != "exp2" || decoded.Operation != "upload" {
		t.Errorf("roundtrip mismatch: %+v", decoded)
	}
	if decoded.Duration != 3*time.Second {
		t.Errorf("Duration = %v", decoded.Duration)
	}
}

func TestEvent_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(NewEvent("dan", "exp3", OpRenew))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{"slice_id", "node", "command", "error"} {
		if strings.Contains(string(data), field) {
			t.Errorf("expected %q omitted from %s", field, data)
		}
	}
}

// ====== FileLogger ======

func newTestLogger(t *testing.T) (*FileLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewFileLogger(path, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, path
}

func TestFileLogger_LogAndQuery(t *testing.T) {
	logger, _ := newTestLogger(t)

	event := NewEvent("alice", "demo", OpSubmit).WithSliceID("abc123").WithSuccess()
	if err := logger.Log(event); err != nil {
		t.Fatalf("Log: %v", err)
	}

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID != event.ID {
		t.Errorf("ID = %q, want %q", events[0].ID, event.ID)
	}
	if events[0].SliceID != "abc123" {
		t.Errorf("SliceID = %q", events[0].SliceID)
	}
}

func TestFileLogger_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.log")
	logger, err := NewFileLogger(path, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestFileLogger_QueryFilters(t *testing.T) {
	logger, _ := newTestLogger(t)

	seed := []*Event{
		NewEvent("alice", "demo", OpSubmit).WithSuccess(),
		NewEvent("alice", "demo", OpExecute).WithNode("node1").WithSuccess(),
		NewEvent("alice", "demo", OpExecute).WithNode("node2").WithError(errors.New("timeout")),
		NewEvent("bob", "perf", OpSubmit).WithSuccess(),
		NewEvent("bob", "perf", OpDelete).WithError(errors.New("not found")),
	}
	for _, e := range seed {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 5},
		{"by slice", Filter{Slice: "demo"}, 3},
		{"by user", Filter{User: "bob"}, 2},
		{"by operation", Filter{Operation: string(OpExecute)}, 2},
		{"by node", Filter{Node: "node2"}, 1},
		{"success only", Filter{SuccessOnly: true}, 3},
		{"failure only", Filter{FailureOnly: true}, 2},
		{"slice and success", Filter{Slice: "demo", SuccessOnly: true}, 2},
		{"no match", Filter{Slice: "absent"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := logger.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(events) != tt.want {
				t.Errorf("got %d events, want %d", len(events), tt.want)
			}
		})
	}
}

func TestFileLogger_TimeFilters(t *testing.T) {
	logger, _ := newTestLogger(t)

	old := NewEvent("alice", "demo", OpSubmit)
	old.Timestamp = time.Now().Add(-2 * time.Hour)
	recent := NewEvent("alice", "demo", OpRenew)
	for _, e := range []*Event{old, recent} {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	events, err := logger.Query(Filter{StartTime: time.Now().Add(-time.Hour)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 || events[0].Operation != "renew" {
		t.Errorf("StartTime filter returned %d events", len(events))
	}

	events, err = logger.Query(Filter{EndTime: time.Now().Add(-time.Hour)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 || events[0].Operation != "submit" {
		t.Errorf("EndTime filter returned %d events", len(events))
	}
}

func TestFileLogger_LimitOffset(t *testing.T) {
	logger, _ := newTestLogger(t)

	for i := 0; i < 10; i++ {
		if err := logger.Log(NewEvent("alice", "demo", OpExecute).WithSuccess()); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	events, err := logger.Query(Filter{Limit: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("Limit 3 returned %d events", len(events))
	}

	events, err = logger.Query(Filter{Offset: 8})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("Offset 8 returned %d events", len(events))
	}

	events, err = logger.Query(Filter{Offset: 20})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Offset past end returned %d events", len(events))
	}

	events, err = logger.Query(Filter{Offset: 4, Limit: 4})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 4 {
		t.Errorf("Offset 4 Limit 4 returned %d events", len(events))
	}
}

func TestFileLogger_SkipsMalformedLines(t *testing.T) {
	logger, path := newTestLogger(t)

	if err := logger.Log(NewEvent("alice", "demo", OpSubmit)); err != nil {
		t.Fatalf("Log: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("not json at all\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	if err := logger.Log(NewEvent("alice", "demo", OpDelete)); err != nil {
		t.Fatalf("Log: %v", err)
	}

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events around malformed line, got %d", len(events))
	}
}

func TestFileLogger_QueryMissingFile(t *testing.T) {
	logger, path := newTestLogger(t)
	logger.Close()
	os.Remove(path)

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query on missing file: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

// ====== Rotation ======

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	logger, err := NewFileLogger(path, RotationConfig{MaxSize: 64})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	defer logger.Close()

	for i := 0; i < 5; i++ {
		if err := logger.Log(NewEvent("alice", "demo", OpExecute).WithCommand("run a fairly long command line")); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	rotated, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(rotated) == 0 {
		t.Error("expected at least one rotated file")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat active log: %v", err)
	}
	if info.Size() > 256 {
		t.Errorf("active log %d bytes, rotation seems inactive", info.Size())
	}
}

func TestFileLogger_RotationCleanup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	// Pre-seed rotated files with distinct ages.
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		name := path + ".2024010" + string(rune('1'+i)) + "-000000"
		if err := os.WriteFile(name, []byte("old\n"), 0644); err != nil {
			t.Fatalf("seed: %v", err)
		}
		mt := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(name, mt, mt); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	logger, err := NewFileLogger(path, RotationConfig{MaxSize: 8, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	defer logger.Close()

	// Two writes: the second triggers rotation and cleanup.
	for i := 0; i < 2; i++ {
		if err := logger.Log(NewEvent("alice", "demo", OpSubmit)); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	rotated, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(rotated) > 2 {
		t.Errorf("expected at most 2 rotated files after cleanup, got %d: %v", len(rotated), rotated)
	}
}

// ====== Default logger wiring ======

func TestDefaultLogger_SetAndUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewFileLogger(path, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	defer logger.Close()

	SetDefaultLogger(logger)

	if err := Log(NewEvent("alice", "demo", OpConfigure).WithSuccess()); err != nil {
		t.Fatalf("Log via default: %v", err)
	}
	events, err := Query(Filter{Operation: string(OpConfigure)})
	if err != nil {
		t.Fatalf("Query via default: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event via default logger, got %d", len(events))
	}
}

func TestDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	want := filepath.Join(home, ".weft", "audit.log")
	if got := DefaultPath(); got != want {
		t.Errorf("DefaultPath() = %q, want %q", got, want)
	}
}
