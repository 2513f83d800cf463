// Package oracletest provides a deterministic scripted application that
// satisfies the oracle contracts, for exercising discovery and dispatch
// without a browser.
package oracletest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"surfacemap-mcp-server/internal/oracle"
)

// State is one scripted application state.
type State struct {
	// Address defaults to the state name.
	Address string
	// Answers are returned for unscoped queries of each kind.
	Answers map[oracle.QueryKind][]oracle.Entity
	// Scoped answers are returned for queries scoped to a container selector.
	Scoped map[string][]oracle.Entity
	// Links maps a locator to the state it navigates to.
	Links map[string]string
	// Overlays maps a locator to the overlay it opens.
	Overlays map[string]string
}

// Overlay is a scripted dialog that can open on top of a state.
type Overlay struct {
	Selector string
	Answers  map[oracle.QueryKind][]oracle.Entity
	Scoped   map[string][]oracle.Entity
	// CloseSelector is reported for close-control queries when set.
	CloseSelector string
	// Sticky overlays ignore escape instructions.
	Sticky bool
}

// App is a scripted application. It implements oracle.SessionFactory.
type App struct {
	Root     string
	States   map[string]*State
	Overlays map[string]*Overlay

	// FailOpen makes Open return an error.
	FailOpen error
	// FailObserve makes observations of a kind return an error.
	FailObserve map[oracle.QueryKind]error
	// FailActivate makes activating a locator return an error.
	FailActivate map[string]error
	// FailGoRoot makes GoRoot return an error.
	FailGoRoot error
	// ActOutcome produces the outcome text for Act; defaults to "done: <instruction>".
	ActOutcome func(instruction string) (string, error)

	mu           sync.Mutex
	opened       int
	closed       int
	activations  []string
	instructions []string
	queries      []oracle.Query
}

// Open returns a new session positioned at the root state.
func (a *App) Open(ctx context.Context) (oracle.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailOpen != nil {
		return nil, a.FailOpen
	}
	if _, ok := a.States[a.Root]; !ok {
		return nil, fmt.Errorf("root state %q not scripted", a.Root)
	}
	a.opened++
	return &Session{app: a, current: a.Root}, nil
}

// Opened returns the number of sessions opened.
func (a *App) Opened() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opened
}

// Closed returns the number of sessions closed.
func (a *App) Closed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Activations returns every locator activated across sessions, in order.
func (a *App) Activations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.activations...)
}

// Instructions returns every Act instruction across sessions, in order.
func (a *App) Instructions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.instructions...)
}

// Queries returns every observation issued across sessions, in order.
func (a *App) Queries() []oracle.Query {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]oracle.Query(nil), a.queries...)
}

// Session is a live cursor over an App.
type Session struct {
	app     *App
	current string
	overlay string
	closed  bool
}

var errClosed = errors.New("session closed")

// Current returns the current state name and open overlay, if any.
func (s *Session) Current() (string, string) {
	s.app.mu.Lock()
	defer s.app.mu.Unlock()
	return s.current, s.overlay
}

// GoRoot resets to the root state and closes any overlay.
func (s *Session) GoRoot(ctx context.Context) error {
	s.app.mu.Lock()
	defer s.app.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if s.app.FailGoRoot != nil {
		return s.app.FailGoRoot
	}
	s.current = s.app.Root
	s.overlay = ""
	return nil
}

// Address returns the current state's address.
func (s *Session) Address(ctx context.Context) (string, error) {
	s.app.mu.Lock()
	defer s.app.mu.Unlock()
	if s.closed {
		return "", errClosed
	}
	st := s.app.States[s.current]
	if st.Address != "" {
		return st.Address, nil
	}
	return s.current, nil
}

// Activate follows links, opens overlays, and closes overlays via their close control.
// Unknown locators fail like a missing element would.
func (s *Session) Activate(ctx context.Context, locator string, settle time.Duration) error {
	s.app.mu.Lock()
	defer s.app.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.app.activations = append(s.app.activations, locator)
	if err := s.app.FailActivate[locator]; err != nil {
		return err
	}

	if s.overlay != "" {
		ov := s.app.Overlays[s.overlay]
		if ov.CloseSelector != "" && locator == ov.CloseSelector {
			s.overlay = ""
			return nil
		}
		if knownIn(ov.Answers, ov.Scoped, locator) {
			return nil
		}
	}

	st := s.app.States[s.current]
	if target, ok := st.Links[locator]; ok {
		if _, exists := s.app.States[target]; !exists {
			return fmt.Errorf("link %q targets unscripted state %q", locator, target)
		}
		s.current = target
		s.overlay = ""
		return nil
	}
	if name, ok := st.Overlays[locator]; ok {
		if _, exists := s.app.Overlays[name]; !exists {
			return fmt.Errorf("overlay %q not scripted", name)
		}
		s.overlay = name
		return nil
	}
	if knownIn(st.Answers, st.Scoped, locator) {
		return nil
	}
	return fmt.Errorf("element not found: %s", locator)
}

func knownIn(answers map[oracle.QueryKind][]oracle.Entity, scoped map[string][]oracle.Entity, locator string) bool {
	for _, ents := range answers {
		for _, e := range ents {
			if e.Selector == locator {
				return true
			}
		}
	}
	for _, ents := range scoped {
		for _, e := range ents {
			if e.Selector == locator {
				return true
			}
		}
	}
	return false
}

// Observe answers from the scripted tables of the current state or open overlay.
func (s *Session) Observe(ctx context.Context, q oracle.Query) ([]oracle.Entity, error) {
	s.app.mu.Lock()
	defer s.app.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	s.app.queries = append(s.app.queries, q)
	if err := s.app.FailObserve[q.Kind]; err != nil {
		return nil, err
	}

	var ov *Overlay
	if s.overlay != "" {
		ov = s.app.Overlays[s.overlay]
	}

	switch q.Kind {
	case oracle.KindOverlay:
		if ov == nil {
			return nil, nil
		}
		return []oracle.Entity{{Selector: ov.Selector, Description: "dialog " + s.overlay}}, nil
	case oracle.KindCloseControl:
		if ov == nil || ov.CloseSelector == "" {
			return nil, nil
		}
		return []oracle.Entity{{Selector: ov.CloseSelector, Description: "close button"}}, nil
	}

	if ov != nil && q.Scope != "" {
		if q.Scope == ov.Selector {
			return clone(ov.Answers[q.Kind]), nil
		}
		if ents, ok := ov.Scoped[q.Scope]; ok {
			return clone(ents), nil
		}
	}

	st := s.app.States[s.current]
	if q.Scope != "" {
		return clone(st.Scoped[q.Scope]), nil
	}
	return clone(st.Answers[q.Kind]), nil
}

// Act records the instruction. Escape-like instructions close non-sticky overlays.
func (s *Session) Act(ctx context.Context, instruction string) (string, error) {
	s.app.mu.Lock()
	defer s.app.mu.Unlock()
	if s.closed {
		return "", errClosed
	}
	s.app.instructions = append(s.app.instructions, instruction)

	lower := strings.ToLower(instruction)
	if s.overlay != "" && (strings.Contains(lower, "escape") || strings.Contains(lower, "cancel")) {
		if !s.app.Overlays[s.overlay].Sticky {
			s.overlay = ""
		}
	}
	if s.app.ActOutcome != nil {
		return s.app.ActOutcome(instruction)
	}
	return "done: " + instruction, nil
}

// Close ends the session.
func (s *Session) Close() error {
	s.app.mu.Lock()
	defer s.app.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.app.closed++
	return nil
}

func clone(in []oracle.Entity) []oracle.Entity {
	if len(in) == 0 {
		return nil
	}
	return append([]oracle.Entity(nil), in...)
}

// Chooser returns a fixed index and records prompts.
type Chooser struct {
	Index int
	Err   error

	mu      sync.Mutex
	prompts []string
}

// Choose implements oracle.Chooser.
func (c *Chooser) Choose(ctx context.Context, prompt string, n int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.Err != nil {
		return -1, c.Err
	}
	return c.Index, nil
}

// Prompts returns recorded prompts.
func (c *Chooser) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}
