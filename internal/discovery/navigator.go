// Package discovery explores an application as a graph of replayable states
// and records the operations found in each one.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"surfacemap-mcp-server/internal/oracle"
	"surfacemap-mcp-server/internal/statepath"
)

// ErrNavigation marks a failure to reach a state by replay. It is fatal to a
// discovery run: continuing would operate on an unknown state.
var ErrNavigation = errors.New("navigation failed")

// Default settle allowances.
const (
	DefaultStepSettle  = 500 * time.Millisecond
	DefaultStateSettle = 2 * time.Second
)

// Navigator replays paths from the root state.
type Navigator struct {
	StepSettle  time.Duration
	StateSettle time.Duration
}

// NewNavigator returns a navigator with the given settle allowances; zero values use defaults.
func NewNavigator(step, state time.Duration) Navigator {
	if step <= 0 {
		step = DefaultStepSettle
	}
	if state <= 0 {
		state = DefaultStateSettle
	}
	return Navigator{StepSettle: step, StateSettle: state}
}

// NavigateTo returns to the root and performs every step of p in order.
// Steps that open a new state get the longer settle allowance.
func (n Navigator) NavigateTo(ctx context.Context, sess oracle.Session, p statepath.Path) error {
	if err := sess.GoRoot(ctx); err != nil {
		return fmt.Errorf("%w: go to root: %v", ErrNavigation, err)
	}
	for i, s := range p.Steps() {
		if err := ctx.Err(); err != nil {
			return err
		}
		settle := n.StepSettle
		if s.OpensNewState {
			settle = n.StateSettle
		}
		if err := sess.Activate(ctx, s.Locator, settle); err != nil {
			return fmt.Errorf("%w: step %d (%s) of %s: %v", ErrNavigation, i, s.Locator, p, err)
		}
	}
	return nil
}
