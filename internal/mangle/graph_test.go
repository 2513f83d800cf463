package mangle

import (
	"context"
	"testing"
	"time"

	"surfacemap-mcp-server/internal/discovery"
	"surfacemap-mcp-server/internal/operation"
	"surfacemap-mcp-server/internal/statepath"
)

func TestEventFacts(t *testing.T) {
	ts := time.Now()
	root := statepath.Root()
	users := root.Append(statepath.Step{Locator: "a.users", OpensNewState: true})
	rec := operation.Record{Crud: operation.Read, Entity: operation.EntityTable, Selector: "#users", Path: users}

	tests := []struct {
		name  string
		ev    discovery.Event
		preds []string
	}{
		{"root state", discovery.Event{Type: discovery.EventStateVisited, Path: root, Address: "http://app.test/"}, []string{"state", "root"}},
		{"inner state", discovery.Event{Type: discovery.EventStateVisited, Path: users, Address: "http://app.test/users"}, []string{"state"}},
		{"edge", discovery.Event{Type: discovery.EventNavigationEdge, Path: root, Target: users, Locator: "a.users"}, []string{"edge"}},
		{"modal", discovery.Event{Type: discovery.EventModalInteraction, Path: users, Locator: "#new"}, []string{"modal"}},
		{"operation", discovery.Event{Type: discovery.EventOperationRecorded, Path: users, Record: &rec}, []string{"operation"}},
		{"operation without record", discovery.Event{Type: discovery.EventOperationRecorded}, nil},
		{"failure", discovery.Event{Type: discovery.EventEntityFailed, Err: "boom"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := EventFacts(tt.ev, ts)
			if len(facts) != len(tt.preds) {
				t.Fatalf("expected %d facts, got %v", len(tt.preds), facts)
			}
			for i, p := range tt.preds {
				if facts[i].Predicate != p {
					t.Errorf("expected predicate %s, got %s", p, facts[i].Predicate)
				}
			}
		})
	}

	edge := EventFacts(discovery.Event{Type: discovery.EventNavigationEdge, Path: root, Target: users, Locator: "a.users"}, ts)[0]
	if edge.Args[0] != root.Hash() || edge.Args[1] != "a.users" || edge.Args[2] != users.Hash() {
		t.Errorf("unexpected edge args %v", edge.Args)
	}
	op := EventFacts(discovery.Event{Type: discovery.EventOperationRecorded, Record: &rec}, ts)[0]
	if op.Args[2] != "READ" || op.Args[3] != "table" {
		t.Errorf("unexpected operation args %v", op.Args)
	}
}

func TestGraphListenerFeedsEngine(t *testing.T) {
	engine := newTestEngine(t, 1000)
	g := NewGraphListener(engine, nil)
	ctx := context.Background()

	root := statepath.Root()
	users := root.Append(statepath.Step{Locator: "a.users", OpensNewState: true})
	rec := operation.Record{Crud: operation.Delete, Entity: operation.EntityForm, Selector: "#del", Path: users}

	g.OnEvent(ctx, discovery.Event{Type: discovery.EventStateVisited, Path: root, Address: "http://app.test/"})
	g.OnEvent(ctx, discovery.Event{Type: discovery.EventNavigationEdge, Path: root, Target: users, Locator: "a.users"})
	g.OnEvent(ctx, discovery.Event{Type: discovery.EventStateVisited, Path: users, Address: "http://app.test/users"})
	g.OnEvent(ctx, discovery.Event{Type: discovery.EventOperationRecorded, Path: users, Record: &rec})
	g.OnEvent(ctx, discovery.Event{Type: discovery.EventRunFailed, Err: "navigation failed"})

	summary, err := engine.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary["reachable"] != 2 {
		t.Errorf("expected 2 reachable states, got %d", summary["reachable"])
	}
	if summary["destructive_operation"] != 1 {
		t.Errorf("expected 1 destructive operation, got %d", summary["destructive_operation"])
	}
}

func TestCorpusFacts(t *testing.T) {
	users := statepath.New(statepath.Step{Locator: "a.users", OpensNewState: true})
	modal := users.Append(statepath.Step{Locator: "#new"})
	records := []operation.Record{
		{Crud: operation.Read, Entity: operation.EntityTable, Selector: "#users", Path: users},
		{Crud: operation.Create, Entity: operation.EntityModalForm, Selector: "#user-form", Path: modal},
		{Crud: operation.Update, Entity: operation.EntityForm, Selector: "#edit", Path: users},
	}

	facts := CorpusFacts(records, time.Now())
	counts := map[string]int{}
	for _, f := range facts {
		counts[f.Predicate]++
	}
	want := map[string]int{"root": 1, "edge": 1, "modal": 1, "operation": 3}
	for p, n := range want {
		if counts[p] != n {
			t.Errorf("expected %d %s facts, got %d", n, p, counts[p])
		}
	}

	engine := newTestEngine(t, 1000)
	ctx := context.Background()
	if err := engine.AddFacts(ctx, facts); err != nil {
		t.Fatalf("AddFacts failed: %v", err)
	}
	modalOps, err := engine.Evaluate(ctx, "modal_operation")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(modalOps) != 1 || modalOps[0].Args[1] != "#user-form" {
		t.Fatalf("expected the modal form operation, got %v", modalOps)
	}
	if modalOps[0].Args[0] != users.Hash() {
		t.Errorf("expected modal operation keyed by its owning state, got %v", modalOps[0].Args[0])
	}

	reachable, err := engine.Evaluate(ctx, "reachable")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	states := map[interface{}]bool{}
	for _, f := range reachable {
		states[f.Args[0]] = true
	}
	actionable, err := engine.Evaluate(ctx, "actionable_state")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(actionable) != 1 {
		t.Errorf("expected one actionable state, got %v", actionable)
	}
	for _, f := range actionable {
		if !states[f.Args[0]] {
			t.Errorf("actionable state %v is not a reachable state", f.Args[0])
		}
	}
}

func TestModalOperationEventKeyedByOwningState(t *testing.T) {
	users := statepath.New(statepath.Step{Locator: "a.users", OpensNewState: true})
	rec := operation.Record{Crud: operation.Create, Entity: operation.EntityModalForm, Selector: "#user-form",
		Path: users.Append(statepath.Step{Locator: "#new"})}

	facts := EventFacts(discovery.Event{Type: discovery.EventOperationRecorded, Path: rec.Path, Record: &rec}, time.Now())
	if len(facts) != 1 || facts[0].Args[0] != users.Hash() {
		t.Errorf("expected operation keyed by %s, got %v", users.Hash(), facts)
	}
}
