package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"surfacemap-mcp-server/internal/browser"
	"surfacemap-mcp-server/internal/config"
	"surfacemap-mcp-server/internal/llm"
	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/oracle"
)

// Pages opens live pages. Fork clones the authenticated state of src.
type Pages interface {
	NewPage(ctx context.Context, url string) (Page, error)
	Fork(ctx context.Context, src Page, url string) (Page, error)
}

// ManagerPages adapts a browser.Manager to Pages.
type ManagerPages struct {
	Manager *browser.Manager
}

// NewPage implements Pages. The browser is started on first use and outlives
// the request that started it.
func (m ManagerPages) NewPage(ctx context.Context, url string) (Page, error) {
	if !m.Manager.IsConnected() {
		if err := m.Manager.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
	}
	p, err := m.Manager.NewPage(ctx, url)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Fork implements Pages.
func (m ManagerPages) Fork(ctx context.Context, src Page, url string) (Page, error) {
	bp, ok := src.(*browser.Page)
	if !ok {
		return nil, fmt.Errorf("fork: unsupported page type %T", src)
	}
	p, err := m.Manager.Fork(ctx, bp, url)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Options configures how sessions are opened.
type Options struct {
	RootURL  string
	LoginURL string
	Username string
	Password string
	// Settle is waited after login and after actor plans.
	Settle time.Duration
	// ReuseLogin keeps the first authenticated page as a template and forks
	// its cookies and storage into later sessions.
	ReuseLogin bool
}

// OptionsFromConfig derives Options from the target and discovery sections.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		RootURL:    cfg.Target.RootURL,
		LoginURL:   cfg.Target.LoginAddress(),
		Username:   cfg.Target.Username,
		Password:   cfg.Target.Password,
		Settle:     cfg.Discovery.StateSettleDuration(),
		ReuseLogin: true,
	}
}

func (o Options) hasCredentials() bool {
	return o.Username != "" && o.Password != ""
}

// Factory opens fresh authenticated sessions.
type Factory struct {
	pages     Pages
	completer llm.Completer
	opts      Options
	log       logger.Logger

	mu       sync.Mutex
	template Page
}

var _ oracle.SessionFactory = (*Factory)(nil)

// NewFactory creates a factory; completer may be nil.
func NewFactory(pages Pages, completer llm.Completer, opts Options, log logger.Logger) *Factory {
	if log == nil {
		log = logger.Nop()
	}
	return &Factory{pages: pages, completer: completer, opts: opts, log: log.WithField("component", "session")}
}

// Open implements oracle.SessionFactory. The returned session is at the root.
func (f *Factory) Open(ctx context.Context) (oracle.Session, error) {
	page, err := f.open(ctx)
	if err != nil {
		return nil, err
	}
	live := NewLive(page, f.opts.RootURL, f.completer, f.opts.Settle, f.log)
	if err := live.GoRoot(ctx); err != nil {
		_ = page.Close()
		return nil, err
	}
	return live, nil
}

func (f *Factory) open(ctx context.Context) (Page, error) {
	if !f.opts.hasCredentials() {
		return f.pages.NewPage(ctx, "")
	}
	if !f.opts.ReuseLogin {
		return f.loginPage(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.template == nil {
		tpl, err := f.loginPage(ctx)
		if err != nil {
			return nil, err
		}
		f.template = tpl
	}
	page, err := f.pages.Fork(ctx, f.template, f.opts.RootURL)
	if err == nil {
		return page, nil
	}
	f.log.Warn(ctx, "forking authenticated page failed, logging in again", map[string]interface{}{"error": err.Error()})
	_ = f.template.Close()
	f.template = nil
	return f.loginPage(ctx)
}

func (f *Factory) loginPage(ctx context.Context) (Page, error) {
	page, err := f.pages.NewPage(ctx, "")
	if err != nil {
		return nil, err
	}
	if err := Login(ctx, page, f.opts, llm.NewActor(page, f.completer, f.opts.Settle, f.log), f.log); err != nil {
		_ = page.Close()
		return nil, err
	}
	return page, nil
}

// Close releases the login template.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.template == nil {
		return nil
	}
	err := f.template.Close()
	f.template = nil
	return err
}

var userFieldPattern = regexp.MustCompile(`(?i)user|e-?mail|login|account|name`)

// ErrLoginForm is returned when no credential form can be found or filled.
var ErrLoginForm = errors.New("login form not found")

// Login authenticates page with the configured credentials. It fills the
// password field and the user field of the same form directly; when that is not
// possible and the actor has a model, it asks the actor instead.
func Login(ctx context.Context, page Page, opts Options, actor oracle.Actor, log logger.Logger) error {
	if err := page.Navigate(ctx, opts.LoginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	err := fillLogin(ctx, page, opts)
	if errors.Is(err, ErrLoginForm) && actor != nil {
		log.Info(ctx, "no direct login form, delegating to actor", nil)
		_, err = actor.Act(ctx, fmt.Sprintf("Log in with username %q and password %q, then submit.", opts.Username, opts.Password))
	}
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	_ = page.Settle(ctx, opts.Settle)
	log.Info(ctx, "logged in", map[string]interface{}{"login_url": opts.LoginURL})
	return nil
}

func fillLogin(ctx context.Context, page Page, opts Options) error {
	snap, err := page.Snapshot(ctx, "")
	if err != nil {
		return err
	}
	controls := snap.Controls()

	var password *browser.Element
	for i := range controls {
		if controls[i].Type == "password" {
			password = &controls[i]
			break
		}
	}
	if password == nil {
		return ErrLoginForm
	}

	var user, fallback, submit *browser.Element
	for i := range controls {
		c := &controls[i]
		if c.Form != password.Form || c.Selector == password.Selector {
			continue
		}
		switch {
		case c.Submit:
			if submit == nil {
				submit = c
			}
		case !isTextField(*c):
		case user == nil && (c.Type == "email" || userFieldPattern.MatchString(c.Label+" "+c.Placeholder+" "+c.Selector)):
			user = c
		case fallback == nil:
			fallback = c
		}
	}
	if user == nil {
		user = fallback
	}
	if user == nil {
		return ErrLoginForm
	}

	if err := page.Fill(ctx, user.Selector, opts.Username); err != nil {
		return err
	}
	if err := page.Fill(ctx, password.Selector, opts.Password); err != nil {
		return err
	}
	if submit != nil {
		return page.Click(ctx, submit.Selector)
	}
	return page.Press(ctx, "Enter")
}

func isTextField(e browser.Element) bool {
	if e.Tag != "input" {
		return false
	}
	switch e.Type {
	case "", "text", "email", "tel":
		return true
	}
	return false
}
