package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"surfacemap-mcp-server/internal/discovery"
	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/operation"
	"surfacemap-mcp-server/internal/oracle"
)

// State is the dispatcher's execution state.
type State string

const (
	StateIdle      State = "idle"
	StateExecuting State = "executing"
)

// Result is the structured outcome of one invocation.
type Result struct {
	Tool       string            `json:"tool"`
	Success    bool              `json:"success"`
	Record     *operation.Record `json:"record"`
	Fallback   bool              `json:"fallback"`
	FinalState string            `json:"final_state"`
	Outcome    string            `json:"outcome"`
}

// JSON renders the result as indented JSON.
func (r Result) JSON() string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"tool":%q,"success":false,"outcome":%q}`, r.Tool, err.Error())
	}
	return string(b)
}

// Dispatcher serializes invocations; each one runs on a fresh session.
type Dispatcher struct {
	registry *Registry
	records  []operation.Record
	factory  oracle.SessionFactory
	chooser  oracle.Chooser
	nav      discovery.Navigator
	log      logger.Logger

	mu    sync.Mutex
	state atomic.Value
}

// NewDispatcher returns an idle dispatcher over a read-only corpus.
func NewDispatcher(registry *Registry, corpus *operation.Corpus, factory oracle.SessionFactory, chooser oracle.Chooser, nav discovery.Navigator, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	d := &Dispatcher{
		registry: registry,
		records:  corpus.Records(),
		factory:  factory,
		chooser:  chooser,
		nav:      nav,
		log:      log.WithField("component", "dispatcher"),
	}
	d.state.Store(StateIdle)
	return d
}

// State reports whether an invocation is in flight.
func (d *Dispatcher) State() State { return d.state.Load().(State) }

// Registry returns the tool registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Records returns the corpus the dispatcher chooses from.
func (d *Dispatcher) Records() []operation.Record {
	return append([]operation.Record(nil), d.records...)
}

// Invoke selects one recorded operation for the tool call and replays it.
// Only an unknown tool is an error; every other failure is reported in Result.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]interface{}) (Result, error) {
	tool, ok := d.registry.Lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Store(StateExecuting)
	defer d.state.Store(StateIdle)

	log := d.log.WithField("tool", name)
	res := Result{Tool: name}

	rec, chosen := d.choose(ctx, log, tool, args)
	res.Record = &rec
	res.Fallback = !chosen

	sess, err := d.factory.Open(ctx)
	if err != nil {
		log.Error(ctx, "session open failed", map[string]interface{}{"error": err.Error()})
		res.Outcome = "session unavailable: " + err.Error()
		return res, nil
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn(ctx, "session close failed", map[string]interface{}{"error": cerr.Error()})
		}
	}()

	if err := d.nav.NavigateTo(ctx, sess, rec.Path); err != nil {
		log.Error(ctx, "replay failed", map[string]interface{}{"path": rec.Path.String(), "error": err.Error()})
		res.Outcome = "could not reach operation: " + err.Error()
		res.FinalState = address(ctx, sess)
		return res, nil
	}

	outcome, err := sess.Act(ctx, Instruction(tool, args, rec))
	res.FinalState = address(ctx, sess)
	if err != nil {
		log.Warn(ctx, "action failed", map[string]interface{}{"error": err.Error()})
		res.Outcome = "action failed: " + err.Error()
		return res, nil
	}
	res.Success = true
	res.Outcome = outcome
	log.Info(ctx, "invocation complete", map[string]interface{}{
		"crud":     string(rec.Crud),
		"selector": rec.Selector,
		"fallback": res.Fallback,
	})
	return res, nil
}

// choose asks the relevance oracle for an index; any failure or out-of-range
// answer falls back to the default record.
func (d *Dispatcher) choose(ctx context.Context, log logger.Logger, tool Tool, args map[string]interface{}) (operation.Record, bool) {
	if len(d.records) == 0 {
		log.Info(ctx, "empty corpus, using fallback record", nil)
		return operation.Fallback(), false
	}
	idx, err := d.chooser.Choose(ctx, Prompt(tool, args, d.records), len(d.records))
	if err != nil {
		log.Warn(ctx, "relevance oracle failed, using fallback record", map[string]interface{}{"error": err.Error()})
		return operation.Fallback(), false
	}
	if idx < 0 || idx >= len(d.records) {
		log.Warn(ctx, "relevance index out of range, using fallback record", map[string]interface{}{"index": idx, "size": len(d.records)})
		return operation.Fallback(), false
	}
	return d.records[idx], true
}

func address(ctx context.Context, sess oracle.Session) string {
	a, err := sess.Address(ctx)
	if err != nil {
		return ""
	}
	return a
}

// Prompt builds the relevance request: tool schema, arguments and the indexed corpus.
func Prompt(tool Tool, args map[string]interface{}, records []operation.Record) string {
	var b strings.Builder
	b.WriteString("A caller invoked a tool. Choose the ONE recorded operation that best performs it.\n\n")
	fmt.Fprintf(&b, "Tool: %s\nDescription: %s\n", tool.Name, tool.Description)
	if schema, err := json.Marshal(tool.Schema()); err == nil {
		fmt.Fprintf(&b, "Parameters: %s\n", schema)
	}
	fmt.Fprintf(&b, "Arguments: %s\n\n", formatArgs(args))
	b.WriteString("Operations:\n")
	for i, r := range records {
		fmt.Fprintf(&b, "[%d] %s %s %s %q inputs=%s\n", i, r.Crud, r.Entity, r.Selector, r.TextSummary, formatInputs(r.Inputs))
	}
	fmt.Fprintf(&b, "\nAnswer with the index only (0-%d), or -1 if none fits.", len(records)-1)
	return b.String()
}

// Instruction builds the action request for the chosen record.
func Instruction(tool Tool, args map[string]interface{}, rec operation.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Perform %q: %s.", tool.Name, strings.TrimSuffix(tool.Description, "."))
	if len(args) > 0 {
		fmt.Fprintf(&b, " Use these values: %s.", formatArgs(args))
	}
	if rec.IsFallback() {
		b.WriteString(" No recorded operation matched; use the current page as best you can.")
		return b.String()
	}
	fmt.Fprintf(&b, " Target the %s %s at %q (%s).", strings.ToLower(string(rec.Crud)), rec.Entity, rec.Selector, rec.TextSummary)
	if len(rec.Inputs) > 0 {
		fmt.Fprintf(&b, " Its inputs are %s.", formatInputs(rec.Inputs))
	}
	b.WriteString(" Submit when done and report what happened.")
	return b.String()
}

func formatArgs(args map[string]interface{}) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(args[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%q", fmt.Sprint(args[k])))
		}
		parts = append(parts, k+"="+string(v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatInputs(inputs []operation.Input) string {
	if len(inputs) == 0 {
		return "[]"
	}
	parts := make([]string, 0, len(inputs))
	for _, in := range inputs {
		s := in.Type
		if in.Label != "" {
			s += ":" + in.Label
		}
		if in.Required {
			s += "*"
		}
		if len(in.Options) > 0 {
			s += "(" + strings.Join(in.Options, "|") + ")"
		}
		parts = append(parts, s)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
