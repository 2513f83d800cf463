package discovery

import (
	"context"
	"errors"

	"surfacemap-mcp-server/internal/extract"
	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/oracle"
	"surfacemap-mcp-server/internal/statepath"
)

// EscapeInstruction is issued when an overlay has no observable close control.
const EscapeInstruction = "Press Escape or click cancel to close the open dialog without submitting it."

// Modal is a clickable that revealed an overlay instead of changing state.
type Modal struct {
	Trigger extract.Clickable
	Overlay oracle.Entity
	// Path is the owning path plus a non-navigating step for the trigger.
	Path  statepath.Path
	Forms []extract.Form
}

// Outcome is the classification of one state's clickables.
type Outcome struct {
	Edges  []extract.Clickable
	Modals []Modal
	// Inert counts clickables with no observable effect.
	Inert int
	// Failed counts clickables whose test failed.
	Failed int
}

// Discriminator decides whether activating a clickable navigates or opens an overlay.
type Discriminator struct {
	nav      Navigator
	pipeline *extract.Pipeline
	log      logger.Logger
	emit     func(context.Context, Event)
}

// NewDiscriminator returns a discriminator replaying through nav.
func NewDiscriminator(nav Navigator, pipeline *extract.Pipeline, log logger.Logger) *Discriminator {
	if log == nil {
		log = logger.Nop()
	}
	return &Discriminator{
		nav:      nav,
		pipeline: pipeline,
		log:      log.WithField("component", "discriminator"),
		emit:     func(context.Context, Event) {},
	}
}

// Discriminate tests each clickable in the state reached by path. Per-entity
// failures are logged and the entity dropped. A failure to restore the state
// by replay is returned wrapped in ErrNavigation with the partial outcome.
func (d *Discriminator) Discriminate(ctx context.Context, sess oracle.Session, path statepath.Path, clickables []extract.Clickable, claims *extract.DedupContext) (Outcome, error) {
	var out Outcome
	if claims == nil {
		claims = extract.NewDedupContext()
	}
	for _, c := range clickables {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		err := d.test(ctx, sess, path, c, claims, &out)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrNavigation) {
			return out, err
		}
		out.Failed++
		d.log.Warn(ctx, "clickable test failed", map[string]interface{}{
			"path":     path.String(),
			"selector": c.Selector,
			"error":    err.Error(),
		})
		d.emit(ctx, Event{Type: EventEntityFailed, Path: path, Locator: c.Selector, Err: err.Error()})
		// The state is unknown after a failed test.
		if err := d.nav.NavigateTo(ctx, sess, path); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (d *Discriminator) test(ctx context.Context, sess oracle.Session, path statepath.Path, c extract.Clickable, claims *extract.DedupContext, out *Outcome) error {
	before, err := sess.Address(ctx)
	if err != nil {
		return err
	}
	if err := sess.Activate(ctx, c.Selector, d.nav.StepSettle); err != nil {
		return err
	}
	after, err := sess.Address(ctx)
	if err != nil {
		return err
	}

	if after != before {
		out.Edges = append(out.Edges, c)
		d.log.Debug(ctx, "navigation edge", map[string]interface{}{"selector": c.Selector, "from": before, "to": after})
		return d.nav.NavigateTo(ctx, sess, path)
	}

	overlay, open, err := extract.DetectOverlay(ctx, sess)
	if err != nil {
		return err
	}
	if !open {
		out.Inert++
		return nil
	}

	modal := Modal{
		Trigger: c,
		Overlay: overlay,
		Path:    path.Append(statepath.Step{Locator: c.Selector, OpensNewState: false}),
		Forms:   d.pipeline.Forms(ctx, sess, overlay.Selector, claims.Fork()),
	}
	out.Modals = append(out.Modals, modal)
	d.log.Debug(ctx, "modal interaction", map[string]interface{}{
		"selector": c.Selector,
		"overlay":  overlay.Selector,
		"forms":    len(modal.Forms),
	})
	return d.dismiss(ctx, sess, path, overlay)
}

// dismiss closes the overlay via its close control or an escape instruction.
// If the overlay survives, the state is restored by replay.
func (d *Discriminator) dismiss(ctx context.Context, sess oracle.Session, path statepath.Path, overlay oracle.Entity) error {
	closed := false
	if ctl, ok := d.pipeline.CloseControl(ctx, sess, overlay.Selector); ok {
		if err := sess.Activate(ctx, ctl.Selector, d.nav.StepSettle); err != nil {
			d.log.Debug(ctx, "close control failed", map[string]interface{}{"selector": ctl.Selector, "error": err.Error()})
		} else {
			closed = true
		}
	}
	if !closed {
		if _, err := sess.Act(ctx, EscapeInstruction); err != nil {
			d.log.Debug(ctx, "escape instruction failed", map[string]interface{}{"error": err.Error()})
		}
	}

	_, still, err := extract.DetectOverlay(ctx, sess)
	if err == nil && !still {
		return nil
	}
	d.log.Debug(ctx, "overlay persisted, replaying path", map[string]interface{}{"path": path.String()})
	return d.nav.NavigateTo(ctx, sess, path)
}
