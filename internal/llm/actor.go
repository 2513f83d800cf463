package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"surfacemap-mcp-server/internal/browser"
	"surfacemap-mcp-server/internal/logger"
)

// Action is one step of a model-produced plan.
type Action struct {
	Type     string `json:"action"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	Key      string `json:"key,omitempty"`
	Wait     int    `json:"wait,omitempty"`
}

func (a Action) String() string {
	switch a.Type {
	case "fill", "select":
		return fmt.Sprintf("%s %s=%q", a.Type, a.Selector, a.Value)
	case "press":
		return "press " + a.Key
	case "wait":
		return fmt.Sprintf("wait %dms", a.Wait)
	default:
		return a.Type + " " + a.Selector
	}
}

const actSystem = `You operate a web page for an automated agent. You receive an instruction, the page address, an outline of the page and a list of its elements with CSS selectors.
Output a JSON array of actions that carries out the instruction. Each action has:
- "action": one of "click", "fill", "select", "check", "uncheck", "press", "wait"
- "selector": CSS selector from the element list (not needed for press and wait)
- "value": text for fill, option text for select
- "key": key name for press, e.g. "Enter" or "Escape"
- "wait": milliseconds for wait
Use only selectors from the element list. Keep the sequence minimal but complete.
Respond ONLY with the JSON array, no explanation or markdown.`

// Actor performs free-text instructions by asking a model for an action plan
// and executing it on the page.
type Actor struct {
	surface    Surface
	completer  Completer
	log        logger.Logger
	settle     time.Duration
	maxActions int
}

// NewActor creates an actor; completer may be nil, in which case only
// dismissal instructions are understood.
func NewActor(s Surface, c Completer, settle time.Duration, log logger.Logger) *Actor {
	if log == nil {
		log = logger.Nop()
	}
	return &Actor{surface: s, completer: c, log: log.WithField("component", "actor"), settle: settle, maxActions: 20}
}

// IsDismissal reports whether an instruction only asks to close a dialog.
func IsDismissal(instruction string) bool {
	lower := strings.ToLower(instruction)
	return strings.Contains(lower, "escape") ||
		(strings.Contains(lower, "cancel") && strings.Contains(lower, "dialog"))
}

// Act implements oracle.Actor.
func (a *Actor) Act(ctx context.Context, instruction string) (string, error) {
	if a.completer == nil {
		if IsDismissal(instruction) {
			return a.Execute(ctx, []Action{{Type: "press", Key: "Escape"}})
		}
		return "", ErrNoModel
	}

	plan, err := a.Plan(ctx, instruction)
	if err != nil {
		if IsDismissal(instruction) {
			a.log.Warn(ctx, "planning failed, pressing Escape", map[string]interface{}{"error": err.Error()})
			return a.Execute(ctx, []Action{{Type: "press", Key: "Escape"}})
		}
		return "", err
	}
	return a.Execute(ctx, plan)
}

// Plan asks the model for the actions that carry out instruction.
func (a *Actor) Plan(ctx context.Context, instruction string) ([]Action, error) {
	snap, err := a.surface.Snapshot(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Instruction: %s\n\nPage: %s (%s)\n", instruction, snap.URL, snap.Title)
	if snap.Overlay != nil {
		fmt.Fprintf(&b, "Open dialog: %s (%s)\n", snap.Overlay.Describe(), snap.Overlay.Selector)
	}
	if outline, err := a.surface.Outline(ctx); err == nil && outline.Len() > 0 {
		fmt.Fprintf(&b, "Outline:\n%s\n", outline.Text(80))
	}
	b.WriteString("\nElements:\n")
	for _, e := range snap.Elements {
		if e.Category == browser.CategoryCollection || e.Category == browser.CategoryGroup {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", e.Selector, e.Describe())
	}

	reply, err := a.completer.Complete(ctx, actSystem, b.String())
	if err != nil {
		return nil, err
	}
	var plan []Action
	if err := DecodeJSON(reply, '[', &plan); err != nil {
		return nil, fmt.Errorf("parse action plan: %w", err)
	}
	if len(plan) > a.maxActions {
		plan = plan[:a.maxActions]
	}
	return plan, nil
}

// Execute runs plan and describes what happened. It stops at the first failing
// step; the error is returned only when no step succeeded.
func (a *Actor) Execute(ctx context.Context, plan []Action) (string, error) {
	if len(plan) == 0 {
		return "no actions were needed", nil
	}

	var done []string
	var failure error
	for _, act := range plan {
		if err := a.step(ctx, act); err != nil {
			failure = fmt.Errorf("%s: %w", act, err)
			break
		}
		done = append(done, act.String())
	}
	_ = a.surface.Settle(ctx, a.settle)

	if len(done) == 0 && failure != nil {
		return "", failure
	}

	var b strings.Builder
	fmt.Fprintf(&b, "performed %d of %d actions: %s", len(done), len(plan), strings.Join(done, "; "))
	if failure != nil {
		fmt.Fprintf(&b, "; stopped at %v", failure)
	}
	if addr, err := a.surface.Address(ctx); err == nil {
		fmt.Fprintf(&b, "; now at %s", addr)
	}
	if ov, open, err := a.surface.Overlay(ctx); err == nil && open {
		fmt.Fprintf(&b, "; dialog open: %s", ov.Describe())
	}
	return b.String(), nil
}

func (a *Actor) step(ctx context.Context, act Action) error {
	switch strings.ToLower(act.Type) {
	case "click":
		return a.surface.Click(ctx, act.Selector)
	case "fill", "type":
		return a.surface.Fill(ctx, act.Selector, act.Value)
	case "select":
		return a.surface.SelectOption(ctx, act.Selector, act.Value)
	case "check":
		return a.surface.SetChecked(ctx, act.Selector, true)
	case "uncheck":
		return a.surface.SetChecked(ctx, act.Selector, false)
	case "press":
		return a.surface.Press(ctx, act.Key)
	case "wait":
		return a.surface.Settle(ctx, time.Duration(act.Wait)*time.Millisecond)
	default:
		return errors.New("unknown action")
	}
}
