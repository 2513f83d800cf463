package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"surfacemap-mcp-server/internal/logger"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

var (
	// ErrPageClosed is returned by operations on a closed page.
	ErrPageClosed = errors.New("page closed")

	errEmptyResult = errors.New("evaluate: empty result")
)

// Page is one tab in its own incognito context.
type Page struct {
	mu        sync.Mutex
	info      PageInfo
	page      *rod.Page
	context   *rod.Browser
	timeout   time.Duration
	log       logger.Logger
	onRelease func(id string)
	closed    bool
}

// Info returns the page metadata.
func (p *Page) Info() PageInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

func (p *Page) setStatus(status string) {
	p.mu.Lock()
	p.info.Status = status
	p.mu.Unlock()
}

func (p *Page) live() (*rod.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPageClosed
	}
	return p.page, nil
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	rp, err := p.live()
	if err != nil {
		return err
	}
	if err := rp.Context(ctx).Timeout(p.timeout).Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := rp.Context(ctx).Timeout(p.timeout).WaitLoad(); err != nil {
		p.log.Debug(ctx, "wait load incomplete", map[string]interface{}{"url": url, "error": err.Error()})
	}
	p.mu.Lock()
	p.info.URL = url
	p.mu.Unlock()
	return nil
}

// Address returns the current URL.
func (p *Page) Address(ctx context.Context) (string, error) {
	rp, err := p.live()
	if err != nil {
		return "", err
	}
	info, err := rp.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	rp, err := p.live()
	if err != nil {
		return "", err
	}
	info, err := rp.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.Title, nil
}

func (p *Page) element(ctx context.Context, selector string) (*rod.Element, error) {
	rp, err := p.live()
	if err != nil {
		return nil, err
	}
	el, err := rp.Context(ctx).Timeout(p.timeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el.CancelTimeout().Context(ctx), nil
}

// Click scrolls the element at selector into view and clicks it.
func (p *Page) Click(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	if visible, err := el.Visible(); err != nil || !visible {
		return fmt.Errorf("element %q not visible", selector)
	}
	_ = el.ScrollIntoView()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// Fill replaces the value of a text control.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	_ = el.ScrollIntoView()
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

// SelectOption picks an option of a native select by visible text, then by value.
func (p *Page) SelectOption(ctx context.Context, selector, value string) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Select([]string{value}, true, rod.SelectorTypeText); err == nil {
		return nil
	}
	css := fmt.Sprintf(`option[value="%s"]`, strings.ReplaceAll(value, `"`, `\"`))
	if err := el.Select([]string{css}, true, rod.SelectorTypeCSSSector); err != nil {
		return fmt.Errorf("option %q not found in %q", value, selector)
	}
	return nil
}

// SetChecked toggles a checkbox or radio to the wanted state.
func (p *Page) SetChecked(ctx context.Context, selector string, checked bool) error {
	el, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	prop, err := el.Property("checked")
	if err != nil {
		return fmt.Errorf("read checked %q: %w", selector, err)
	}
	if prop.Bool() == checked {
		return nil
	}
	_ = el.ScrollIntoView()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("toggle %q: %w", selector, err)
	}
	return nil
}

var keyMap = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Space":      input.Space,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
}

// ParseKey maps a key name or single character to a rod key.
func ParseKey(key string) (input.Key, error) {
	if k, ok := keyMap[key]; ok {
		return k, nil
	}
	for name, k := range keyMap {
		if strings.EqualFold(name, key) {
			return k, nil
		}
	}
	if r := []rune(key); len(r) == 1 {
		return input.Key(r[0]), nil
	}
	return 0, fmt.Errorf("unknown key: %s", key)
}

// Press sends one key press to the focused element.
func (p *Page) Press(ctx context.Context, key string) error {
	rp, err := p.live()
	if err != nil {
		return err
	}
	k, err := ParseKey(key)
	if err != nil {
		return err
	}
	if err := rp.Context(ctx).Keyboard.Press(k); err != nil {
		return fmt.Errorf("key press %s: %w", key, err)
	}
	return nil
}

// Settle waits d for the page to react, returning early only on cancellation.
func (p *Page) Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	start := time.Now()
	if rp, err := p.live(); err == nil {
		_ = rp.Context(ctx).Timeout(d).WaitLoad()
	}
	remaining := d - time.Since(start)
	if remaining <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// evaluate runs js with args and decodes its JSON value into out.
func (p *Page) evaluate(ctx context.Context, js string, out interface{}, args ...interface{}) error {
	rp, err := p.live()
	if err != nil {
		return err
	}
	res, err := rp.Context(ctx).Timeout(p.timeout).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return errEmptyResult
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode evaluation result: %w", err)
	}
	return nil
}

// Snapshot collects the visible actionable elements and containers under scope.
// An empty scope means the whole document.
func (p *Page) Snapshot(ctx context.Context, scope string) (Snapshot, error) {
	var snap Snapshot
	if err := p.evaluate(ctx, snapshotJS, &snap, scope, maxSnapshotElements); err != nil {
		return Snapshot{}, err
	}
	if snap.Missing {
		return snap, fmt.Errorf("scope %q not found", scope)
	}
	return snap, nil
}

// Overlay reports the topmost visible dialog, if any.
func (p *Page) Overlay(ctx context.Context) (Element, bool, error) {
	var el *Element
	if err := p.evaluate(ctx, overlayJS, &el); err != nil {
		// null is the common "no overlay" answer.
		if errors.Is(err, errEmptyResult) {
			return Element{}, false, nil
		}
		return Element{}, false, err
	}
	if el == nil || el.Selector == "" {
		return Element{}, false, nil
	}
	return *el, true, nil
}

// Outline returns the nested actionable-label outline of the document.
func (p *Page) Outline(ctx context.Context) (Outline, error) {
	var root DOMNode
	if err := p.evaluate(ctx, domTreeJS, &root); err != nil {
		return Outline{}, err
	}
	return BuildOutline(root), nil
}

// Close closes the page and its incognito context.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.info.Status = "closed"
	rp, bc, id := p.page, p.context, p.info.ID
	p.mu.Unlock()

	var err error
	if rp != nil {
		err = rp.Close()
	}
	if bc != nil {
		if cerr := bc.Close(); err == nil {
			err = cerr
		}
	}
	if p.onRelease != nil {
		p.onRelease(id)
	}
	return err
}
