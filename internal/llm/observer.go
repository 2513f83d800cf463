package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"surfacemap-mcp-server/internal/browser"
	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/oracle"
)

// Surface is the part of a live page the oracles read and drive.
// *browser.Page implements it.
type Surface interface {
	Snapshot(ctx context.Context, scope string) (browser.Snapshot, error)
	Overlay(ctx context.Context) (browser.Element, bool, error)
	Outline(ctx context.Context) (browser.Outline, error)
	Address(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string) error
	SetChecked(ctx context.Context, selector string, checked bool) error
	Press(ctx context.Context, key string) error
	Settle(ctx context.Context, d time.Duration) error
}

// Candidates returns the snapshot elements that can answer a query kind.
// Unknown kinds get every element.
func Candidates(snap browser.Snapshot, kind oracle.QueryKind) []browser.Element {
	switch kind {
	case oracle.KindContainers, oracle.KindCollections:
		return snap.Collections()
	case oracle.KindForms:
		return snap.Forms()
	case oracle.KindStandaloneInputs:
		return snap.Groups()
	case oracle.KindInputs:
		return snap.Controls()
	case oracle.KindSearch:
		return snap.Search()
	case oracle.KindClickables:
		return snap.Clickables()
	case oracle.KindCloseControl:
		return snap.CloseControls()
	case oracle.KindOverlay:
		if snap.Overlay != nil {
			return []browser.Element{*snap.Overlay}
		}
		return nil
	default:
		return snap.Elements
	}
}

// Entities converts snapshot elements to oracle entities.
func Entities(els []browser.Element) []oracle.Entity {
	out := make([]oracle.Entity, 0, len(els))
	for _, e := range els {
		out = append(out, oracle.Entity{Selector: e.Selector, Description: e.Describe()})
	}
	return out
}

// refineKinds are the queries whose structural candidates benefit from a
// model's judgement. Everything else is answered from the page probe alone.
var refineKinds = map[oracle.QueryKind]bool{
	oracle.KindCollections: true,
	oracle.KindSearch:      true,
	"":                     true,
}

const observeSystem = `You inspect a web page for an automated explorer. You receive an instruction and a numbered list of candidate elements taken from the live page.
Return a JSON array with the indices of the candidates that satisfy the instruction, for example [0, 3]. Return [] when none do.
Respond ONLY with the JSON array.`

// Observer answers observations from page snapshots, refining some query
// kinds with a model when one is configured.
type Observer struct {
	surface      Surface
	completer    Completer
	log          logger.Logger
	outlineLimit int
}

// NewObserver creates an observer; completer may be nil.
func NewObserver(s Surface, c Completer, log logger.Logger) *Observer {
	if log == nil {
		log = logger.Nop()
	}
	return &Observer{surface: s, completer: c, log: log.WithField("component", "observer"), outlineLimit: 60}
}

// Observe implements oracle.Observer.
func (o *Observer) Observe(ctx context.Context, q oracle.Query) ([]oracle.Entity, error) {
	snap, err := o.surface.Snapshot(ctx, q.Scope)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	candidates := Candidates(snap, q.Kind)
	if o.completer == nil || !refineKinds[q.Kind] || len(candidates) == 0 {
		return Entities(candidates), nil
	}

	refined, err := o.refine(ctx, q, snap, candidates)
	if err != nil {
		o.log.Warn(ctx, "model refinement failed, using page probe", map[string]interface{}{
			"kind":  string(q.Kind),
			"error": err.Error(),
		})
		return Entities(candidates), nil
	}
	return Entities(refined), nil
}

func (o *Observer) refine(ctx context.Context, q oracle.Query, snap browser.Snapshot, candidates []browser.Element) ([]browser.Element, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Page: %s (%s)\n", snap.URL, snap.Title)
	if outline, err := o.surface.Outline(ctx); err == nil && outline.Len() > 0 {
		fmt.Fprintf(&b, "Page outline:\n%s\n", outline.Text(o.outlineLimit))
	}
	fmt.Fprintf(&b, "\nInstruction: %s\n\nCandidates:\n", q.Instruction)
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s (%s)\n", i, c.Describe(), c.Selector)
	}

	reply, err := o.completer.Complete(ctx, observeSystem, b.String())
	if err != nil {
		return nil, err
	}
	var indices []int
	if err := DecodeJSON(reply, '[', &indices); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(indices))
	out := make([]browser.Element, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(candidates) || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, candidates[i])
	}
	return out, nil
}
