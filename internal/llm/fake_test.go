package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"surfacemap-mcp-server/internal/browser"
)

// fakeSurface is a scripted page recording every interaction.
type fakeSurface struct {
	mu      sync.Mutex
	snaps   map[string]browser.Snapshot
	overlay *browser.Element
	outline browser.Outline
	address string
	fail    map[string]error
	calls   []string
	snapErr error
	settled time.Duration
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		snaps:   map[string]browser.Snapshot{},
		fail:    map[string]error{},
		address: "http://app.test/",
		outline: browser.Outline{Items: []browser.Outline{{Label: "Inbox"}, {Label: "Compose"}}},
	}
}

func (f *fakeSurface) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if err, ok := f.fail[call]; ok {
		return err
	}
	return nil
}

func (f *fakeSurface) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSurface) Snapshot(_ context.Context, scope string) (browser.Snapshot, error) {
	if f.snapErr != nil {
		return browser.Snapshot{}, f.snapErr
	}
	snap, ok := f.snaps[scope]
	if !ok {
		return browser.Snapshot{}, fmt.Errorf("scope %q not found", scope)
	}
	snap.Overlay = f.overlay
	return snap, nil
}

func (f *fakeSurface) Overlay(context.Context) (browser.Element, bool, error) {
	if f.overlay == nil {
		return browser.Element{}, false, nil
	}
	return *f.overlay, true, nil
}

func (f *fakeSurface) Outline(context.Context) (browser.Outline, error) { return f.outline, nil }

func (f *fakeSurface) Address(context.Context) (string, error) { return f.address, nil }

func (f *fakeSurface) Click(_ context.Context, sel string) error { return f.record("click " + sel) }

func (f *fakeSurface) Fill(_ context.Context, sel, v string) error {
	return f.record("fill " + sel + "=" + v)
}

func (f *fakeSurface) SelectOption(_ context.Context, sel, v string) error {
	return f.record("select " + sel + "=" + v)
}

func (f *fakeSurface) SetChecked(_ context.Context, sel string, on bool) error {
	return f.record(fmt.Sprintf("check %s=%v", sel, on))
}

func (f *fakeSurface) Press(_ context.Context, key string) error {
	err := f.record("press " + key)
	if err == nil && key == "Escape" {
		f.overlay = nil
	}
	return err
}

func (f *fakeSurface) Settle(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	f.settled += d
	f.mu.Unlock()
	return nil
}

// scriptedCompleter replies in order and records prompts.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
	systems []string
	users   []string
}

func (c *scriptedCompleter) Complete(_ context.Context, system, user string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systems = append(c.systems, system)
	c.users = append(c.users, user)
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}

func pageSnapshot() browser.Snapshot {
	return browser.Snapshot{
		URL:   "http://app.test/",
		Title: "Mail",
		Elements: []browser.Element{
			{Selector: "#messages", Category: browser.CategoryCollection, Tag: "ul", Shape: "list", Items: 20, Label: "Messages"},
			{Selector: "#nav", Category: browser.CategoryCollection, Tag: "div", Shape: "list", Items: 4},
			{Selector: "#compose-form", Category: browser.CategoryForm, Tag: "form", Label: "Compose", Text: "Send"},
			{Selector: "#to", Category: browser.CategoryControl, Tag: "input", Type: "email", Label: "To", Form: "#compose-form"},
			{Selector: "#q", Category: browser.CategoryControl, Tag: "input", Type: "search", Search: true},
			{Selector: "a.inbox", Category: browser.CategoryClickable, Tag: "a", Text: "Inbox", Href: "/inbox"},
		},
	}
}
