package mangle

import (
	"context"
	"time"

	"surfacemap-mcp-server/internal/discovery"
	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/operation"
	"surfacemap-mcp-server/internal/statepath"
)

// GraphListener turns traversal events into state-graph facts.
type GraphListener struct {
	engine *Engine
	log    logger.Logger
}

var _ discovery.Listener = (*GraphListener)(nil)

// NewGraphListener feeds engine from discovery events.
func NewGraphListener(engine *Engine, log logger.Logger) *GraphListener {
	if log == nil {
		log = logger.Nop()
	}
	return &GraphListener{engine: engine, log: log.WithField("component", "mangle")}
}

// OnEvent implements discovery.Listener. Store failures are logged and absorbed.
func (g *GraphListener) OnEvent(ctx context.Context, ev discovery.Event) {
	facts := EventFacts(ev, time.Now())
	if len(facts) == 0 {
		return
	}
	if err := g.engine.AddFacts(ctx, facts); err != nil {
		g.log.Warn(ctx, "failed to store state graph facts", map[string]interface{}{
			"event": string(ev.Type),
			"error": err.Error(),
		})
	}
}

// EventFacts maps one traversal event to facts. Failure events carry none.
func EventFacts(ev discovery.Event, ts time.Time) []Fact {
	switch ev.Type {
	case discovery.EventStateVisited:
		facts := []Fact{{Predicate: "state", Args: []interface{}{ev.Path.Hash(), ev.Address}, Timestamp: ts}}
		if ev.Path.IsRoot() {
			facts = append(facts, Fact{Predicate: "root", Args: []interface{}{ev.Path.Hash()}, Timestamp: ts})
		}
		return facts
	case discovery.EventNavigationEdge:
		return []Fact{{Predicate: "edge", Args: []interface{}{ev.Path.Hash(), ev.Locator, ev.Target.Hash()}, Timestamp: ts}}
	case discovery.EventModalInteraction:
		return []Fact{{Predicate: "modal", Args: []interface{}{ev.Path.Hash(), ev.Locator}, Timestamp: ts}}
	case discovery.EventOperationRecorded:
		if ev.Record == nil {
			return nil
		}
		return []Fact{recordFact(*ev.Record, ts)}
	}
	return nil
}

// CorpusFacts rebuilds the state graph implied by a corpus: every path prefix is
// a state, navigation steps are edges, in-place steps are modal triggers.
func CorpusFacts(records []operation.Record, ts time.Time) []Fact {
	seen := make(map[string]bool)
	var facts []Fact
	add := func(f Fact) {
		key := f.Predicate
		for _, a := range f.Args {
			key += "\x00" + a.(string)
		}
		if !seen[key] {
			seen[key] = true
			facts = append(facts, f)
		}
	}

	root := statepath.Root().Hash()
	add(Fact{Predicate: "root", Args: []interface{}{root}, Timestamp: ts})
	for _, rec := range records {
		steps := rec.Path.Steps()
		for i, step := range steps {
			from := owningState(statepath.New(steps[:i]...)).Hash()
			if step.OpensNewState {
				to := statepath.New(steps[:i+1]...).Hash()
				add(Fact{Predicate: "edge", Args: []interface{}{from, step.Locator, to}, Timestamp: ts})
			} else {
				add(Fact{Predicate: "modal", Args: []interface{}{from, step.Locator}, Timestamp: ts})
			}
		}
		add(recordFact(rec, ts))
	}
	return facts
}

// recordFact keys an operation by the state that owns it, so dialog forms
// found behind in-place steps hang off a real state.
func recordFact(rec operation.Record, ts time.Time) Fact {
	return Fact{
		Predicate: "operation",
		Args:      []interface{}{owningState(rec.Path).Hash(), rec.Selector, string(rec.Crud), string(rec.Entity)},
		Timestamp: ts,
	}
}

// owningState drops trailing steps that do not open a new state.
func owningState(p statepath.Path) statepath.Path {
	steps := p.Steps()
	n := len(steps)
	for n > 0 && !steps[n-1].OpensNewState {
		n--
	}
	if n == len(steps) {
		return p
	}
	return statepath.New(steps[:n]...)
}
