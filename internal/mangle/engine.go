// Package mangle keeps the discovered state graph as Datalog facts and derives
// reachability and operation summaries from it.
package mangle

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"sort"
	"sync"
	"time"

	"surfacemap-mcp-server/internal/config"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

//go:embed schema.mg
var schemaSource string

// Derived predicates reported by Summary.
var DerivedPredicates = []string{"reachable", "actionable_state", "destructive_operation", "modal_operation"}

// Fact is one ground atom of the state graph.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
	Timestamp time.Time     `json:"timestamp"`
}

// QueryResult binds query variables to values.
type QueryResult map[string]interface{}

// Engine wraps the Mangle deductive database.
type Engine struct {
	cfg          config.MangleConfig
	mu           sync.RWMutex
	schemaLoaded bool

	programInfo *analysis.ProgramInfo
	source      string
	store       factstore.FactStore

	// Insertion-ordered buffer of base facts, bounded by FactBufferLimit. The
	// store holds these plus what the program derives from them.
	facts []Fact
	index map[string][]int
}

// NewEngine creates an engine with the embedded state-graph schema loaded.
func NewEngine(cfg config.MangleConfig) (*Engine, error) {
	e := &Engine{
		cfg:   cfg,
		facts: make([]Fact, 0, cfg.FactBufferLimit),
		index: make(map[string][]int),
		store: factstore.NewSimpleInMemoryStore(),
	}
	if cfg.Enable {
		if err := e.loadSchema(schemaSource); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) loadSchema(source string) error {
	unit, err := parse.Unit(bytes.NewReader([]byte(source)))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, make(map[ast.PredicateSym]ast.Decl))
	if err != nil {
		return fmt.Errorf("analyze schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.programInfo = programInfo
	e.source = source
	e.schemaLoaded = true
	return nil
}

// AddRule adds declarations and rules on top of the schema. The whole program
// is re-analyzed so new rules take part in evaluation.
func (e *Engine) AddRule(ruleSource string) error {
	if !e.cfg.Enable {
		return nil
	}
	e.mu.RLock()
	source := e.source
	e.mu.RUnlock()
	return e.loadSchema(source + "\n" + ruleSource)
}

// AddFacts stores facts and re-evaluates the program. Once the buffer exceeds
// FactBufferLimit the oldest facts are evicted and the store is rebuilt from
// what remains, so derived predicates stay bounded too.
func (e *Engine) AddFacts(ctx context.Context, facts []Fact) error {
	if !e.cfg.Enable || len(facts) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	base := len(e.facts)
	e.facts = append(e.facts, facts...)
	if e.cfg.FactBufferLimit > 0 && len(e.facts) > e.cfg.FactBufferLimit {
		e.facts = e.facts[len(e.facts)-e.cfg.FactBufferLimit:]
		e.rebuildIndex()
		e.store = factstore.NewSimpleInMemoryStore()
		for _, f := range e.facts {
			e.store.Add(factToAtom(f))
		}
	} else {
		for i, f := range facts {
			e.index[f.Predicate] = append(e.index[f.Predicate], base+i)
			e.store.Add(factToAtom(f))
		}
	}

	if e.schemaLoaded && e.programInfo != nil {
		if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
			return fmt.Errorf("eval program after fact insertion: %w", err)
		}
	}
	return nil
}

// Query matches a single atom such as `edge(From, _, To).` against the store.
func (e *Engine) Query(ctx context.Context, queryStr string) ([]QueryResult, error) {
	if !e.cfg.Enable || !e.schemaLoaded {
		return nil, fmt.Errorf("engine not ready")
	}
	unit, err := parse.Unit(bytes.NewReader([]byte(queryStr)))
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if len(unit.Clauses) == 0 {
		return nil, fmt.Errorf("no query found")
	}
	queryAtom := unit.Clauses[0].Head

	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]QueryResult, 0)
	err = e.store.GetFacts(queryAtom, func(atom ast.Atom) error {
		result := make(QueryResult)
		for i, arg := range queryAtom.Args {
			if i >= len(atom.Args) {
				break
			}
			if v, ok := arg.(ast.Variable); ok && v.Symbol != "_" {
				result[v.Symbol] = convertConstant(atom.Args[i])
			}
		}
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}
	return results, nil
}

// Evaluate runs the program and returns every fact of predicate, base or derived.
func (e *Engine) Evaluate(ctx context.Context, predicate string) ([]Fact, error) {
	if !e.cfg.Enable || !e.schemaLoaded {
		return nil, fmt.Errorf("engine not ready")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
		return nil, fmt.Errorf("eval program: %w", err)
	}

	arity := -1
	for sym := range e.programInfo.Decls {
		if sym.Symbol == predicate {
			arity = sym.Arity
			break
		}
	}
	if arity < 0 {
		return nil, fmt.Errorf("unknown predicate %q", predicate)
	}

	args := make([]ast.BaseTerm, arity)
	for i := range args {
		args[i] = ast.Variable{Symbol: fmt.Sprintf("V%d", i)}
	}
	query := ast.Atom{Predicate: ast.PredicateSym{Symbol: predicate, Arity: arity}, Args: args}

	now := time.Now()
	facts := make([]Fact, 0)
	err := e.store.GetFacts(query, func(atom ast.Atom) error {
		facts = append(facts, atomToFact(atom, now))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get facts: %w", err)
	}
	sort.Slice(facts, func(i, j int) bool {
		return fmt.Sprint(facts[i].Args) < fmt.Sprint(facts[j].Args)
	})
	return facts, nil
}

// Summary counts the facts of every derived predicate.
func (e *Engine) Summary(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(DerivedPredicates))
	for _, p := range DerivedPredicates {
		facts, err := e.Evaluate(ctx, p)
		if err != nil {
			return nil, err
		}
		out[p] = len(facts)
	}
	return out, nil
}

// FactsByPredicate returns buffered base facts of predicate in insertion order.
func (e *Engine) FactsByPredicate(predicate string) []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()

	indices := e.index[predicate]
	out := make([]Fact, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(e.facts) {
			out = append(out, e.facts[idx])
		}
	}
	return out
}

// Facts returns a copy of the buffered base facts.
func (e *Engine) Facts() []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Fact, len(e.facts))
	copy(out, e.facts)
	return out
}

// Ready reports whether the engine can answer queries.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.schemaLoaded || !e.cfg.Enable
}

// Enabled reports whether facts are being kept.
func (e *Engine) Enabled() bool {
	return e.cfg.Enable
}

func factToAtom(f Fact) ast.Atom {
	args := make([]ast.BaseTerm, len(f.Args))
	for i, arg := range f.Args {
		args[i] = toConstant(arg)
	}
	return ast.Atom{Predicate: ast.PredicateSym{Symbol: f.Predicate, Arity: len(f.Args)}, Args: args}
}

func atomToFact(atom ast.Atom, ts time.Time) Fact {
	args := make([]interface{}, len(atom.Args))
	for i, arg := range atom.Args {
		args[i] = convertConstant(arg)
	}
	return Fact{Predicate: atom.Predicate.Symbol, Args: args, Timestamp: ts}
}

func toConstant(v interface{}) ast.Constant {
	switch val := v.(type) {
	case string:
		return ast.String(val)
	case int:
		return ast.Number(int64(val))
	case int64:
		return ast.Number(val)
	case float64:
		return ast.Float64(val)
	case bool:
		if val {
			return ast.String("true")
		}
		return ast.String("false")
	default:
		return ast.String(fmt.Sprintf("%v", v))
	}
}

func convertConstant(c ast.BaseTerm) interface{} {
	switch term := c.(type) {
	case nil:
		return nil
	case ast.Constant:
		switch term.Type {
		case ast.StringType:
			val, _ := term.StringValue()
			return val
		case ast.NumberType:
			return term.NumberValue
		case ast.Float64Type:
			if val, err := term.Float64Value(); err == nil {
				return val
			}
		}
		return term.String()
	case ast.Variable:
		return term.Symbol
	default:
		return fmt.Sprintf("%v", c)
	}
}

func (e *Engine) rebuildIndex() {
	e.index = make(map[string][]int)
	for i, f := range e.facts {
		e.index[f.Predicate] = append(e.index[f.Predicate], i)
	}
}
