// Package recorder writes a JSONL flight record of each discovery run.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"surfacemap-mcp-server/internal/discovery"
	"surfacemap-mcp-server/internal/operation"
)

const (
	MaxRotatedFiles = 3
	TraceDir        = "data/traces"
)

// Event is a single line of a trace.
type Event struct {
	Timestamp time.Time   `json:"ts"`
	Type      string      `json:"type"`
	RunID     string      `json:"run_id,omitempty"`
	Data      interface{} `json:"data"`
}

// Step is the trace payload of a traversal event.
type Step struct {
	Path    string            `json:"path"`
	Target  string            `json:"target,omitempty"`
	Locator string            `json:"locator,omitempty"`
	Address string            `json:"address,omitempty"`
	Depth   int               `json:"depth"`
	Record  *operation.Record `json:"record,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Recorder manages rotating traces, one file per run.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
	runID    string
	path     string
}

var _ discovery.Listener = (*Recorder)(nil)

// NewRecorder creates a recorder writing under basePath.
func NewRecorder(basePath string) (*Recorder, error) {
	if basePath == "" {
		basePath = TraceDir
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{basePath: basePath}, nil
}

// Start begins the trace of runID, keeping only the newest MaxRotatedFiles
// traces including the new one.
func (r *Recorder) Start(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	path := filepath.Join(r.basePath, fmt.Sprintf("trace_%s_%d.jsonl", runID, time.Now().UnixMilli()))
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	r.file = f
	r.encoder = json.NewEncoder(f)
	r.runID = runID
	r.path = path
	return nil
}

// Path returns the current trace file, empty before Start.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Log writes an event to the current trace. It is a no-op before Start.
func (r *Recorder) Log(eventType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}
	_ = r.encoder.Encode(Event{
		Timestamp: time.Now(),
		Type:      eventType,
		RunID:     r.runID,
		Data:      data,
	})
}

// OnEvent implements discovery.Listener.
func (r *Recorder) OnEvent(_ context.Context, ev discovery.Event) {
	step := Step{
		Path:    ev.Path.Serialize(),
		Locator: ev.Locator,
		Address: ev.Address,
		Depth:   ev.Depth,
		Record:  ev.Record,
		Error:   ev.Err,
	}
	if !ev.Target.IsRoot() {
		step.Target = ev.Target.Serialize()
	}
	r.Log(string(ev.Type), step)
}

// rotate keeps the newest MaxRotatedFiles-1 traces to make room for a new one.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	type trace struct {
		name string
		mod  time.Time
	}
	var traces []trace
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, trace{e.Name(), info.ModTime()})
	}

	sort.Slice(traces, func(i, j int) bool {
		if traces[i].mod.Equal(traces[j].mod) {
			return traces[i].name > traces[j].name
		}
		return traces[i].mod.After(traces[j].mod)
	})

	keep := MaxRotatedFiles - 1
	for i := keep; i < len(traces); i++ {
		_ = os.Remove(filepath.Join(r.basePath, traces[i].name))
	}
	return nil
}

// Close finishes the current trace.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.encoder = nil
	return err
}
