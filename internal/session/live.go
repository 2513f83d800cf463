// Package session assembles live browser pages and model-backed oracles into
// the sessions discovery and dispatch drive.
package session

import (
	"context"
	"fmt"
	"time"

	"surfacemap-mcp-server/internal/llm"
	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/oracle"
)

// Page is a live page: the oracle surface plus navigation and teardown.
// *browser.Page implements it.
type Page interface {
	llm.Surface
	Navigate(ctx context.Context, url string) error
	Close() error
}

// Live is an oracle.Session over one page.
type Live struct {
	page     Page
	root     string
	observer *llm.Observer
	actor    *llm.Actor
	log      logger.Logger
}

var (
	_ oracle.Session       = (*Live)(nil)
	_ oracle.OverlayProber = (*Live)(nil)
)

// NewLive wraps page. completer may be nil.
func NewLive(page Page, root string, completer llm.Completer, actSettle time.Duration, log logger.Logger) *Live {
	if log == nil {
		log = logger.Nop()
	}
	return &Live{
		page:     page,
		root:     root,
		observer: llm.NewObserver(page, completer, log),
		actor:    llm.NewActor(page, completer, actSettle, log),
		log:      log,
	}
}

// Observe implements oracle.Observer.
func (l *Live) Observe(ctx context.Context, q oracle.Query) ([]oracle.Entity, error) {
	return l.observer.Observe(ctx, q)
}

// Act implements oracle.Actor.
func (l *Live) Act(ctx context.Context, instruction string) (string, error) {
	return l.actor.Act(ctx, instruction)
}

// GoRoot navigates to the root address.
func (l *Live) GoRoot(ctx context.Context) error {
	if err := l.page.Navigate(ctx, l.root); err != nil {
		return fmt.Errorf("go to root: %w", err)
	}
	return nil
}

// Activate clicks locator and waits settle.
func (l *Live) Activate(ctx context.Context, locator string, settle time.Duration) error {
	if err := l.page.Click(ctx, locator); err != nil {
		return err
	}
	return l.page.Settle(ctx, settle)
}

// Address returns the current URL.
func (l *Live) Address(ctx context.Context) (string, error) {
	return l.page.Address(ctx)
}

// Overlay reports the open dialog straight from the page probe.
func (l *Live) Overlay(ctx context.Context) (oracle.Entity, bool, error) {
	el, ok, err := l.page.Overlay(ctx)
	if err != nil || !ok {
		return oracle.Entity{}, false, err
	}
	return oracle.Entity{Selector: el.Selector, Description: el.Describe()}, true, nil
}

// Close closes the page.
func (l *Live) Close() error {
	return l.page.Close()
}
