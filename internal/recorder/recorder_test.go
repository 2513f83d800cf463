package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"surfacemap-mcp-server/internal/discovery"
	"surfacemap-mcp-server/internal/operation"
	"surfacemap-mcp-server/internal/statepath"
)

func TestRecorderRotation(t *testing.T) {
	tempDir := t.TempDir()

	r, err := NewRecorder(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for i := 0; i < MaxRotatedFiles+2; i++ {
		if err := r.Start("run"); err != nil {
			t.Fatal(err)
		}
		r.Log("test", map[string]string{"msg": "hello"})
		time.Sleep(10 * time.Millisecond)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != MaxRotatedFiles {
		t.Errorf("expected %d files, got %d", MaxRotatedFiles, len(entries))
	}
	if _, err := os.Stat(r.Path()); err != nil {
		t.Errorf("expected current trace to survive rotation: %v", err)
	}
}

func TestRecorderIgnoresOtherFiles(t *testing.T) {
	tempDir := t.TempDir()
	notes := filepath.Join(tempDir, "notes.txt")
	if err := os.WriteFile(notes, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewRecorder(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < MaxRotatedFiles+1; i++ {
		if err := r.Start("run"); err != nil {
			t.Fatal(err)
		}
	}
	_ = r.Close()

	if _, err := os.Stat(notes); err != nil {
		t.Errorf("non-trace file should be kept: %v", err)
	}
}

func TestRecorderLogBeforeStart(t *testing.T) {
	r, err := NewRecorder(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r.Log("ignored", nil)
	if r.Path() != "" {
		t.Errorf("expected no trace before Start, got %s", r.Path())
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close before Start should succeed: %v", err)
	}
}

func TestRecorderTracesDiscoveryEvents(t *testing.T) {
	tempDir := t.TempDir()
	r, err := NewRecorder(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start("run-1"); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	users := statepath.New(statepath.Step{Locator: "a.users", OpensNewState: true})
	rec := operation.Record{Crud: operation.Read, Entity: operation.EntityTable, Selector: "#users", Path: users}

	r.OnEvent(ctx, discovery.Event{Type: discovery.EventStateVisited, Path: statepath.Root(), Address: "http://app.test/"})
	r.OnEvent(ctx, discovery.Event{Type: discovery.EventNavigationEdge, Path: statepath.Root(), Target: users, Locator: "a.users"})
	r.OnEvent(ctx, discovery.Event{Type: discovery.EventOperationRecorded, Path: users, Record: &rec})
	r.OnEvent(ctx, discovery.Event{Type: discovery.EventEntityFailed, Path: users, Err: "timeout"})
	path := r.Path()
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(filepath.Base(path), "trace_run-1_") {
		t.Errorf("unexpected trace name %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("invalid JSONL line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 4 {
		t.Fatalf("expected 4 events, got %d", len(lines))
	}

	wantTypes := []string{"state_visited", "navigation_edge", "operation_recorded", "entity_failed"}
	for i, want := range wantTypes {
		if lines[i]["type"] != want {
			t.Errorf("event %d: expected type %s, got %v", i, want, lines[i]["type"])
		}
		if lines[i]["run_id"] != "run-1" {
			t.Errorf("event %d: expected run id, got %v", i, lines[i]["run_id"])
		}
	}

	edge := lines[1]["data"].(map[string]interface{})
	if edge["target"] != users.Serialize() || edge["locator"] != "a.users" {
		t.Errorf("unexpected edge payload %v", edge)
	}
	op := lines[2]["data"].(map[string]interface{})
	if op["record"] == nil {
		t.Error("expected record in operation event")
	}
	failed := lines[3]["data"].(map[string]interface{})
	if failed["error"] != "timeout" {
		t.Errorf("expected error payload, got %v", failed)
	}
}
