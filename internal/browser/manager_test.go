package browser

import (
	"context"
	"errors"
	"testing"

	"surfacemap-mcp-server/internal/config"
	"surfacemap-mcp-server/internal/logger"
)

func TestNewManager(t *testing.T) {
	m := NewManager(config.BrowserConfig{}, nil)
	if m == nil {
		t.Fatal("expected non-nil manager")
	}
	if m.IsConnected() {
		t.Error("expected manager to start disconnected")
	}
	if m.ControlURL() != "" {
		t.Errorf("expected empty control URL, got %q", m.ControlURL())
	}
	if len(m.Pages()) != 0 {
		t.Errorf("expected no pages, got %d", len(m.Pages()))
	}
}

func TestManagerNewPageNoBrowser(t *testing.T) {
	m := NewManager(config.BrowserConfig{}, logger.NewTestLogger())
	_, err := m.NewPage(context.Background(), "http://app.test")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestManagerForkNilSource(t *testing.T) {
	m := NewManager(config.BrowserConfig{}, nil)
	if _, err := m.Fork(context.Background(), nil, ""); err == nil {
		t.Error("expected error for nil source page")
	}
}

func TestManagerShutdownNoBrowser(t *testing.T) {
	log := logger.NewTestLogger()
	m := NewManager(config.BrowserConfig{}, log)
	if err := m.Shutdown(context.Background()); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if !log.Contains("info", "browser shutdown complete") {
		t.Error("expected shutdown to be logged")
	}
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		raw, name, val string
		hasVal         bool
	}{
		{"--no-sandbox", "no-sandbox", "", false},
		{"--window-size=1280,720", "window-size", "1280,720", true},
		{"-user-data-dir=/tmp/x", "user-data-dir", "/tmp/x", true},
	}
	for _, tt := range tests {
		name, val, hasVal := parseFlag(tt.raw)
		if name != tt.name || val != tt.val || hasVal != tt.hasVal {
			t.Errorf("parseFlag(%q) = %q, %q, %v", tt.raw, name, val, hasVal)
		}
	}
}

func TestClosedPageOperations(t *testing.T) {
	released := ""
	p := &Page{info: PageInfo{ID: "p1"}, log: logger.Nop(), onRelease: func(id string) { released = id }}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if released != "p1" {
		t.Errorf("expected release of p1, got %q", released)
	}
	if p.Info().Status != "closed" {
		t.Errorf("expected closed status, got %q", p.Info().Status)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	ctx := context.Background()
	if err := p.Navigate(ctx, "http://app.test"); !errors.Is(err, ErrPageClosed) {
		t.Errorf("expected ErrPageClosed from Navigate, got %v", err)
	}
	if _, err := p.Address(ctx); !errors.Is(err, ErrPageClosed) {
		t.Errorf("expected ErrPageClosed from Address, got %v", err)
	}
	if err := p.Click(ctx, "#x"); !errors.Is(err, ErrPageClosed) {
		t.Errorf("expected ErrPageClosed from Click, got %v", err)
	}
	if _, err := p.Snapshot(ctx, ""); !errors.Is(err, ErrPageClosed) {
		t.Errorf("expected ErrPageClosed from Snapshot, got %v", err)
	}
}
