package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"surfacemap-mcp-server/internal/config"
	"surfacemap-mcp-server/internal/logger"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// ErrNotConnected is returned when a page is requested before Start.
var ErrNotConnected = errors.New("browser not connected")

// PageInfo describes the public metadata for a tracked page.
type PageInfo struct {
	ID        string    `json:"id"`
	TargetID  string    `json:"target_id,omitempty"`
	URL       string    `json:"url,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager owns the Chrome instance and tracks the pages opened on it.
// Each page lives in its own incognito context so sessions never share state.
type Manager struct {
	cfg        config.BrowserConfig
	log        logger.Logger
	mu         sync.RWMutex
	browser    *rod.Browser
	pages      map[string]*Page
	controlURL string
}

// NewManager creates a manager; call Start before opening pages.
func NewManager(cfg config.BrowserConfig, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		cfg:   cfg,
		log:   log.WithField("component", "browser"),
		pages: make(map[string]*Page),
	}
}

// Start connects to debugger_url when set, otherwise launches Chrome with Rod's launcher.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.log.Warn(ctx, "stale browser connection detected, reconnecting", nil)
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.pages = make(map[string]*Page)
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" {
		u, err := m.launch()
		if err != nil {
			return err
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	m.log.Info(ctx, "browser connected", map[string]interface{}{"control_url": controlURL})
	return nil
}

// launch starts a local Chrome. An explicit launch command is honoured first;
// if it fails, Rod picks the binary and port itself.
func (m *Manager) launch() (string, error) {
	l := launcher.New().Headless(m.cfg.IsHeadless())
	if len(m.cfg.Launch) > 0 {
		l = l.Bin(m.cfg.Launch[0])
		for _, raw := range m.cfg.Launch[1:] {
			name, val, hasVal := parseFlag(raw)
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
	}
	u, err := l.Launch()
	if err == nil {
		return u, nil
	}
	if len(m.cfg.Launch) == 0 {
		return "", fmt.Errorf("launch chrome: %w", err)
	}
	alt, altErr := launcher.New().Headless(m.cfg.IsHeadless()).Launch()
	if altErr != nil {
		return "", fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
	}
	return alt, nil
}

// parseFlag splits "--name=value" into its parts.
func parseFlag(raw string) (name, val string, hasVal bool) {
	return strings.Cut(strings.TrimLeft(raw, "-"), "=")
}

// ControlURL returns the DevTools WebSocket URL of the connected browser.
func (m *Manager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected reports whether Start has succeeded.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// NewPage opens url in a fresh incognito context.
func (m *Manager) NewPage(ctx context.Context, url string) (*Page, error) {
	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()
	if browser == nil {
		return nil, ErrNotConnected
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	rp, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(rp); err != nil {
		m.log.Warn(ctx, "failed to set viewport", map[string]interface{}{"error": err.Error()})
	}

	p := &Page{
		info: PageInfo{
			ID:        uuid.NewString(),
			TargetID:  string(rp.TargetID),
			URL:       url,
			Status:    "active",
			CreatedAt: time.Now(),
		},
		page:      rp,
		context:   incognito,
		timeout:   m.cfg.NavigationTimeout(),
		log:       m.log,
		onRelease: m.release,
	}

	m.mu.Lock()
	m.pages[p.info.ID] = p
	m.mu.Unlock()

	if url != "" {
		if err := p.Navigate(ctx, url); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	return p, nil
}

// Fork opens url in a new incognito context seeded with the cookies and
// storage of src, so an authenticated state can be cloned without logging in again.
func (m *Manager) Fork(ctx context.Context, src *Page, url string) (*Page, error) {
	if src == nil {
		return nil, errors.New("fork: nil source page")
	}
	cookies, err := proto.NetworkGetCookies{}.Call(src.page)
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	local := snapshotStorage(src.page, "localStorage")
	session := snapshotStorage(src.page, "sessionStorage")

	dest, err := m.NewPage(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("create forked page: %w", err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies.Cookies))
	for _, c := range cookies.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
			Priority: c.Priority,
		})
	}
	if len(params) > 0 {
		if err := dest.page.SetCookies(params); err != nil {
			m.log.Warn(ctx, "failed to restore cookies", map[string]interface{}{"error": err.Error()})
		}
	}

	if url == "" {
		return dest, nil
	}
	// Storage is origin-bound: load the origin once, restore, then reload.
	if err := dest.Navigate(ctx, url); err != nil {
		_ = dest.Close()
		return nil, err
	}
	restoreStorage(dest.page, local, session)
	if err := dest.Navigate(ctx, url); err != nil {
		_ = dest.Close()
		return nil, err
	}
	dest.setStatus("forked")
	return dest, nil
}

// Pages returns metadata for all open pages.
func (m *Manager) Pages() []PageInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PageInfo, 0, len(m.pages))
	for _, p := range m.pages {
		out = append(out, p.Info())
	}
	return out
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.pages, id)
	m.mu.Unlock()
}

// Shutdown closes tracked pages and the underlying browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	pages := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		pages = append(pages, p)
	}
	m.mu.Unlock()

	for _, p := range pages {
		_ = p.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	m.log.Info(ctx, "browser shutdown complete", nil)
	return err
}

func snapshotStorage(page *rod.Page, store string) string {
	js := fmt.Sprintf(`() => {
		try {
			const out = {};
			for (const key of Object.keys(%s)) {
				out[key] = %s.getItem(key);
			}
			return JSON.stringify(out);
		} catch (e) {
			return "{}";
		}
	}`, store, store)

	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return "{}"
	}
	return res.Value.String()
}

func restoreStorage(page *rod.Page, localJSON, sessionJSON string) {
	_, _ = page.Evaluate(&rod.EvalOptions{
		JS: `(local, session) => {
			try {
				Object.entries(JSON.parse(local || "{}")).forEach(([k, v]) => localStorage.setItem(k, v));
			} catch (e) {}
			try {
				Object.entries(JSON.parse(session || "{}")).forEach(([k, v]) => sessionStorage.setItem(k, v));
			} catch (e) {}
		}`,
		JSArgs:       []interface{}{localJSON, sessionJSON},
		ByValue:      true,
		AwaitPromise: true,
		UserGesture:  true,
	})
}
