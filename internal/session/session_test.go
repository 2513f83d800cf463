package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"surfacemap-mcp-server/internal/browser"
	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/oracle"
)

type fakePage struct {
	mu      sync.Mutex
	id      int
	address string
	snap    browser.Snapshot
	overlay *browser.Element
	calls   []string
	closed  bool
	navErr  error
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) Snapshot(context.Context, string) (browser.Snapshot, error) { return p.snap, nil }

func (p *fakePage) Overlay(context.Context) (browser.Element, bool, error) {
	if p.overlay == nil {
		return browser.Element{}, false, nil
	}
	return *p.overlay, true, nil
}

func (p *fakePage) Outline(context.Context) (browser.Outline, error) { return browser.Outline{}, nil }

func (p *fakePage) Address(context.Context) (string, error) { return p.address, nil }

func (p *fakePage) Click(_ context.Context, sel string) error {
	p.record("click " + sel)
	return nil
}

func (p *fakePage) Fill(_ context.Context, sel, v string) error {
	p.record("fill " + sel + "=" + v)
	return nil
}

func (p *fakePage) SelectOption(_ context.Context, sel, v string) error {
	p.record("select " + sel + "=" + v)
	return nil
}

func (p *fakePage) SetChecked(_ context.Context, sel string, on bool) error {
	p.record(fmt.Sprintf("check %s=%v", sel, on))
	return nil
}

func (p *fakePage) Press(_ context.Context, key string) error {
	p.record("press " + key)
	return nil
}

func (p *fakePage) Settle(_ context.Context, d time.Duration) error {
	p.record("settle " + d.String())
	return nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.record("navigate " + url)
	if p.navErr != nil {
		return p.navErr
	}
	p.address = url
	return nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakePages struct {
	mu      sync.Mutex
	snap    browser.Snapshot
	opened  []*fakePage
	forks   int
	forkErr error
	newErr  error
	navErr  error
}

func (f *fakePages) newPage() *fakePage {
	p := &fakePage{id: len(f.opened), snap: f.snap, navErr: f.navErr}
	f.opened = append(f.opened, p)
	return p
}

func (f *fakePages) NewPage(context.Context, string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	return f.newPage(), nil
}

func (f *fakePages) Fork(_ context.Context, src Page, url string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forkErr != nil {
		return nil, f.forkErr
	}
	f.forks++
	p := f.newPage()
	p.address = url
	return p, nil
}

func loginSnapshot() browser.Snapshot {
	return browser.Snapshot{
		URL: "http://app.test/login",
		Elements: []browser.Element{
			{Selector: "#login", Category: browser.CategoryForm, Tag: "form", Label: "Sign in"},
			{Selector: "#remember", Category: browser.CategoryControl, Tag: "input", Type: "checkbox", Form: "#login"},
			{Selector: "#user", Category: browser.CategoryControl, Tag: "input", Type: "text", Label: "Username", Form: "#login"},
			{Selector: "#pass", Category: browser.CategoryControl, Tag: "input", Type: "password", Label: "Password", Form: "#login"},
			{Selector: "#go", Category: browser.CategoryControl, Tag: "button", Type: "submit", Submit: true, Form: "#login"},
			{Selector: "#q", Category: browser.CategoryControl, Tag: "input", Type: "search", Search: true},
		},
	}
}

func credentialOptions() Options {
	return Options{
		RootURL:    "http://app.test/",
		LoginURL:   "http://app.test/login",
		Username:   "admin",
		Password:   "secret",
		Settle:     time.Millisecond,
		ReuseLogin: true,
	}
}

func TestOpenWithoutCredentials(t *testing.T) {
	pages := &fakePages{}
	f := NewFactory(pages, nil, Options{RootURL: "http://app.test/"}, logger.Nop())

	sess, err := f.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	addr, _ := sess.Address(context.Background())
	if addr != "http://app.test/" {
		t.Errorf("expected session at root, got %s", addr)
	}
	if diff := cmp.Diff([]string{"navigate http://app.test/"}, pages.opened[0].Calls()); diff != "" {
		t.Errorf("unexpected calls (-want +got):\n%s", diff)
	}
}

func TestOpenLogsInOnceAndForks(t *testing.T) {
	pages := &fakePages{snap: loginSnapshot()}
	f := NewFactory(pages, nil, credentialOptions(), logger.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sess, err := f.Open(ctx)
		if err != nil {
			t.Fatalf("Open %d failed: %v", i, err)
		}
		_ = sess.Close()
	}

	if pages.forks != 2 {
		t.Errorf("expected 2 forks, got %d", pages.forks)
	}
	if len(pages.opened) != 3 {
		t.Fatalf("expected template plus 2 forks, got %d pages", len(pages.opened))
	}

	want := []string{
		"navigate http://app.test/login",
		"fill #user=admin",
		"fill #pass=secret",
		"click #go",
		"settle 1ms",
	}
	if diff := cmp.Diff(want, pages.opened[0].Calls()); diff != "" {
		t.Errorf("unexpected login calls (-want +got):\n%s", diff)
	}
	if pages.opened[0].closed {
		t.Error("template should stay open until Close")
	}
	if !pages.opened[1].closed {
		t.Error("expected session page to be closed")
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !pages.opened[0].closed {
		t.Error("expected template closed after factory Close")
	}
}

func TestOpenFreshLoginWithoutReuse(t *testing.T) {
	pages := &fakePages{snap: loginSnapshot()}
	opts := credentialOptions()
	opts.ReuseLogin = false
	f := NewFactory(pages, nil, opts, logger.Nop())

	if _, err := f.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if pages.forks != 0 {
		t.Errorf("expected no forks, got %d", pages.forks)
	}
	calls := pages.opened[0].Calls()
	if calls[len(calls)-1] != "navigate http://app.test/" {
		t.Errorf("expected session to end at root, got %v", calls)
	}
}

func TestOpenForkFailureFallsBackToLogin(t *testing.T) {
	pages := &fakePages{snap: loginSnapshot(), forkErr: errors.New("target closed")}
	log := logger.NewTestLogger()
	f := NewFactory(pages, nil, credentialOptions(), log)

	if _, err := f.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !pages.opened[0].closed {
		t.Error("expected stale template to be closed")
	}
	if len(pages.opened) != 2 {
		t.Errorf("expected a second login page, got %d pages", len(pages.opened))
	}
	if !log.Contains("warn", "forking authenticated page failed") {
		t.Error("expected fork failure warning")
	}
}

func TestOpenFailures(t *testing.T) {
	pages := &fakePages{newErr: browser.ErrNotConnected}
	f := NewFactory(pages, nil, Options{RootURL: "http://app.test/"}, nil)
	if _, err := f.Open(context.Background()); !errors.Is(err, browser.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	pages = &fakePages{navErr: errors.New("net::ERR_CONNECTION_REFUSED")}
	f = NewFactory(pages, nil, Options{RootURL: "http://app.test/"}, nil)
	if _, err := f.Open(context.Background()); err == nil || !strings.Contains(err.Error(), "go to root") {
		t.Errorf("expected root navigation error, got %v", err)
	}
	if !pages.opened[0].closed {
		t.Error("expected page closed after failed root navigation")
	}
}

func TestLoginWithoutFormOrModel(t *testing.T) {
	page := &fakePage{snap: browser.Snapshot{}}
	err := Login(context.Background(), page, credentialOptions(), nil, logger.Nop())
	if !errors.Is(err, ErrLoginForm) {
		t.Errorf("expected ErrLoginForm, got %v", err)
	}
}

type recordingActor struct{ instructions []string }

func (a *recordingActor) Act(_ context.Context, instruction string) (string, error) {
	a.instructions = append(a.instructions, instruction)
	return "done", nil
}

func TestLoginDelegatesToActor(t *testing.T) {
	page := &fakePage{snap: browser.Snapshot{}}
	actor := &recordingActor{}
	if err := Login(context.Background(), page, credentialOptions(), actor, logger.Nop()); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if len(actor.instructions) != 1 || !strings.Contains(actor.instructions[0], `"admin"`) {
		t.Errorf("expected actor instruction with username, got %v", actor.instructions)
	}
}

func TestLoginPressesEnterWithoutSubmit(t *testing.T) {
	snap := browser.Snapshot{Elements: []browser.Element{
		{Selector: "#email", Category: browser.CategoryControl, Tag: "input", Type: "email"},
		{Selector: "#pw", Category: browser.CategoryControl, Tag: "input", Type: "password"},
	}}
	page := &fakePage{snap: snap}
	if err := Login(context.Background(), page, credentialOptions(), nil, logger.Nop()); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	want := []string{
		"navigate http://app.test/login",
		"fill #email=admin",
		"fill #pw=secret",
		"press Enter",
		"settle 1ms",
	}
	if diff := cmp.Diff(want, page.Calls()); diff != "" {
		t.Errorf("unexpected calls (-want +got):\n%s", diff)
	}
}

func TestLiveSession(t *testing.T) {
	page := &fakePage{
		snap: browser.Snapshot{Elements: []browser.Element{
			{Selector: "a.users", Category: browser.CategoryClickable, Tag: "a", Text: "Users", Href: "/users"},
		}},
		overlay: &browser.Element{Selector: "#dlg", Category: browser.CategoryOverlay, Tag: "dialog", Label: "Confirm"},
	}
	live := NewLive(page, "http://app.test/", nil, time.Millisecond, nil)
	ctx := context.Background()

	if err := live.GoRoot(ctx); err != nil {
		t.Fatalf("GoRoot failed: %v", err)
	}
	if err := live.Activate(ctx, "a.users", 2*time.Millisecond); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	want := []string{"navigate http://app.test/", "click a.users", "settle 2ms"}
	if diff := cmp.Diff(want, page.Calls()); diff != "" {
		t.Errorf("unexpected calls (-want +got):\n%s", diff)
	}

	got, err := live.Observe(ctx, oracle.Query{Kind: oracle.KindClickables})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if len(got) != 1 || got[0].Selector != "a.users" {
		t.Errorf("expected the users link, got %+v", got)
	}

	ov, ok, err := live.Overlay(ctx)
	if err != nil || !ok {
		t.Fatalf("expected open overlay, got ok=%v err=%v", ok, err)
	}
	if ov.Selector != "#dlg" || !strings.Contains(ov.Description, "Confirm") {
		t.Errorf("unexpected overlay entity %+v", ov)
	}

	if err := live.Close(); err != nil || !page.closed {
		t.Errorf("expected page closed, err=%v", err)
	}
}
