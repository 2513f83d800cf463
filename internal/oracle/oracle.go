// Package oracle defines the capabilities discovery and dispatch depend on but
// do not implement: inspecting a state, acting on it, and choosing among
// candidates. Every call is fallible and may return partial or empty results.
package oracle

import (
	"context"
	"time"
)

// QueryKind tags what an observation is looking for. Implementations may use it
// to answer with a deterministic probe instead of a free-text interpretation.
type QueryKind string

const (
	KindContainers       QueryKind = "containers"
	KindCollections      QueryKind = "collections"
	KindForms            QueryKind = "forms"
	KindInputs           QueryKind = "inputs"
	KindStandaloneInputs QueryKind = "standalone_inputs"
	KindSearch           QueryKind = "search"
	KindClickables       QueryKind = "clickables"
	KindOverlay          QueryKind = "overlay"
	KindCloseControl     QueryKind = "close_control"
)

// Entity is one element reported by an observation.
type Entity struct {
	Selector    string `json:"selector"`
	Description string `json:"description"`
}

// Query is a natural-language observation request. Scope is a container
// selector; empty means the whole state.
type Query struct {
	Kind        QueryKind
	Instruction string
	Scope       string
}

// Observer returns zero or more elements matching a query.
type Observer interface {
	Observe(ctx context.Context, q Query) ([]Entity, error)
}

// Actor performs a best-effort interaction and returns a free-text outcome.
type Actor interface {
	Act(ctx context.Context, instruction string) (string, error)
}

// Chooser picks one of n candidates described in prompt. Any value outside
// [0, n) means "none".
type Chooser interface {
	Choose(ctx context.Context, prompt string, n int) (int, error)
}

// Session is exclusive control of one live application session.
type Session interface {
	Observer
	Actor

	// GoRoot returns to the fixed root state.
	GoRoot(ctx context.Context) error
	// Activate deterministically activates the element at locator and waits settle.
	Activate(ctx context.Context, locator string, settle time.Duration) error
	// Address identifies the current state as seen from outside (usually a URL).
	Address(ctx context.Context) (string, error)
	// Close tears the session down.
	Close() error
}

// SessionFactory opens fresh, authenticated sessions.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// OverlayProber is implemented by sessions that can detect overlays without an
// observation round trip.
type OverlayProber interface {
	Overlay(ctx context.Context) (Entity, bool, error)
}
