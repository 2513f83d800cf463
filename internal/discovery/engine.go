package discovery

import (
	"context"
	"errors"
	"fmt"

	"surfacemap-mcp-server/internal/extract"
	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/operation"
	"surfacemap-mcp-server/internal/oracle"
	"surfacemap-mcp-server/internal/statepath"
)

// Options bound a discovery run.
type Options struct {
	MaxDepth     int
	Navigator    Navigator
	SummaryLimit int
}

// Stats summarizes a run.
type Stats struct {
	StatesVisited int
	Edges         int
	Modals        int
	Records       int
	FailedEntity  int
}

// Engine drives breadth-first traversal from the root state.
type Engine struct {
	factory   oracle.SessionFactory
	pipeline  *extract.Pipeline
	disc      *Discriminator
	synth     *operation.Synthesizer
	opts      Options
	log       logger.Logger
	listeners []Listener
	stats     Stats
}

// NewEngine wires a traversal engine. Listeners receive every traversal event.
func NewEngine(factory oracle.SessionFactory, pipeline *extract.Pipeline, opts Options, log logger.Logger, listeners ...Listener) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	if opts.Navigator.StepSettle <= 0 || opts.Navigator.StateSettle <= 0 {
		opts.Navigator = NewNavigator(opts.Navigator.StepSettle, opts.Navigator.StateSettle)
	}
	e := &Engine{
		factory:   factory,
		pipeline:  pipeline,
		synth:     operation.NewSynthesizer(opts.SummaryLimit),
		opts:      opts,
		log:       log.WithField("component", "traversal"),
		listeners: listeners,
	}
	e.disc = NewDiscriminator(opts.Navigator, pipeline, log)
	e.disc.emit = e.emit
	return e
}

// Stats returns counters for the last run.
func (e *Engine) Stats() Stats { return e.stats }

// Explore traverses every state reachable within MaxDepth navigation steps and
// returns the corpus. On a fatal error the corpus captured so far is returned
// together with the error.
func (e *Engine) Explore(ctx context.Context) (*operation.Corpus, error) {
	e.stats = Stats{}
	corpus := operation.NewCorpus()

	sess, err := e.factory.Open(ctx)
	if err != nil {
		return corpus, fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			e.log.Warn(ctx, "session close failed", map[string]interface{}{"error": cerr.Error()})
		}
	}()

	root := statepath.Root()
	frontier := statepath.NewFrontier(statepath.Item{Path: root, Depth: 0})
	visited := statepath.NewVisitedSet(root)

	for {
		item, ok := frontier.Pop()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return corpus, err
		}
		if err := e.visit(ctx, sess, item, frontier, visited, corpus); err != nil {
			e.log.Error(ctx, "discovery aborted", map[string]interface{}{
				"path":    item.Path.String(),
				"records": corpus.Len(),
				"error":   err.Error(),
			})
			e.emit(ctx, Event{Type: EventRunFailed, Path: item.Path, Depth: item.Depth, Err: err.Error()})
			return corpus, err
		}
	}

	e.log.Info(ctx, "discovery complete", map[string]interface{}{
		"states":  e.stats.StatesVisited,
		"edges":   e.stats.Edges,
		"modals":  e.stats.Modals,
		"records": corpus.Len(),
	})
	return corpus, nil
}

func (e *Engine) visit(ctx context.Context, sess oracle.Session, item statepath.Item, frontier *statepath.Frontier, visited *statepath.VisitedSet, corpus *operation.Corpus) error {
	if err := e.opts.Navigator.NavigateTo(ctx, sess, item.Path); err != nil {
		return err
	}
	address, err := sess.Address(ctx)
	if err != nil {
		return fmt.Errorf("%w: read address of %s: %v", ErrNavigation, item.Path, err)
	}
	e.stats.StatesVisited++
	e.emit(ctx, Event{Type: EventStateVisited, Path: item.Path, Address: address, Depth: item.Depth})
	e.log.Info(ctx, "visiting state", map[string]interface{}{"path": item.Path.String(), "depth": item.Depth, "address": address})

	res := e.pipeline.Extract(ctx, sess)
	e.record(ctx, corpus, e.synth.Synthesize(item.Path, res.Sources()...))

	outcome, derr := e.disc.Discriminate(ctx, sess, item.Path, res.Clickables, res.Claims)
	e.stats.FailedEntity += outcome.Failed

	for _, m := range outcome.Modals {
		e.stats.Modals++
		e.emit(ctx, Event{Type: EventModalInteraction, Path: item.Path, Target: m.Path, Locator: m.Trigger.Selector, Depth: item.Depth})
		sources := make([]operation.Source, 0, len(m.Forms))
		for _, f := range m.Forms {
			sources = append(sources, f.Source(operation.EntityModalForm))
		}
		e.record(ctx, corpus, e.synth.Synthesize(m.Path, sources...))
	}

	for _, c := range outcome.Edges {
		e.stats.Edges++
		child := item.Path.Append(statepath.Step{Locator: c.Selector, OpensNewState: true})
		e.emit(ctx, Event{Type: EventNavigationEdge, Path: item.Path, Target: child, Locator: c.Selector, Depth: item.Depth})
		if item.Depth >= e.opts.MaxDepth {
			continue
		}
		if visited.Add(child) {
			frontier.Push(statepath.Item{Path: child, Depth: item.Depth + 1})
		}
	}

	if derr != nil {
		if !errors.Is(derr, ErrNavigation) && ctx.Err() == nil {
			derr = fmt.Errorf("%w: %v", ErrNavigation, derr)
		}
		return derr
	}
	return nil
}

func (e *Engine) record(ctx context.Context, corpus *operation.Corpus, recs []operation.Record) {
	for i := range recs {
		rec := recs[i]
		if !corpus.Add(rec) {
			e.log.Debug(ctx, "duplicate operation skipped", map[string]interface{}{"path": rec.Path.String(), "selector": rec.Selector})
			continue
		}
		e.stats.Records++
		e.emit(ctx, Event{Type: EventOperationRecorded, Path: rec.Path, Locator: rec.Selector, Record: &rec})
	}
}

func (e *Engine) emit(ctx context.Context, ev Event) {
	for _, l := range e.listeners {
		l.OnEvent(ctx, ev)
	}
}
