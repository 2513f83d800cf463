// Package statepath models UI states as replayable step sequences from a fixed root.
//
// A Path is the sole identity of a state: two states are the same iff their
// serialized step sequences are equal. Paths are immutable and are only ever
// derived by Append.
package statepath

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Step is one interaction inside a state.
type Step struct {
	Locator       string `json:"locator"`
	OpensNewState bool   `json:"opens_new_state"`
}

// Path is an ordered, immutable sequence of steps from the root state.
// The zero value is the root path.
type Path struct {
	steps []Step
}

// Root returns the empty path.
func Root() Path { return Path{} }

// New builds a path from steps. The slice is copied.
func New(steps ...Step) Path {
	if len(steps) == 0 {
		return Path{}
	}
	cp := make([]Step, len(steps))
	copy(cp, steps)
	return Path{steps: cp}
}

// Append returns a new path with s appended. p is unchanged.
func (p Path) Append(s Step) Path {
	cp := make([]Step, len(p.steps), len(p.steps)+1)
	copy(cp, p.steps)
	return Path{steps: append(cp, s)}
}

// Steps returns a copy of the step sequence.
func (p Path) Steps() []Step {
	cp := make([]Step, len(p.steps))
	copy(cp, p.steps)
	return cp
}

// Len returns the number of steps.
func (p Path) Len() int { return len(p.steps) }

// IsRoot reports whether p is the empty path.
func (p Path) IsRoot() bool { return len(p.steps) == 0 }

// Last returns the final step and false for the root path.
func (p Path) Last() (Step, bool) {
	if len(p.steps) == 0 {
		return Step{}, false
	}
	return p.steps[len(p.steps)-1], true
}

// NavigationDepth counts steps that open a new state.
func (p Path) NavigationDepth() int {
	n := 0
	for _, s := range p.steps {
		if s.OpensNewState {
			n++
		}
	}
	return n
}

// Serialize returns the canonical JSON encoding of the step sequence.
// The root path serializes to "[]".
func (p Path) Serialize() string {
	steps := p.steps
	if steps == nil {
		steps = []Step{}
	}
	b, err := json.Marshal(steps)
	if err != nil {
		// Step holds only a string and a bool.
		panic("statepath: marshal steps: " + err.Error())
	}
	return string(b)
}

// Hash returns the hex SHA-256 digest of the raw step bytes. Each locator is
// length-prefixed and followed by its flag, so distinct step sequences never
// share an input, including locators that are not valid UTF-8.
func (p Path) Hash() string {
	h := sha256.New()
	var buf [binary.MaxVarintLen64 + 1]byte
	for _, s := range p.steps {
		n := binary.PutUvarint(buf[:], uint64(len(s.Locator)))
		h.Write(buf[:n])
		h.Write([]byte(s.Locator))
		flag := byte(0)
		if s.OpensNewState {
			flag = 1
		}
		h.Write([]byte{flag})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Equal reports whether both paths have identical step sequences.
func (p Path) Equal(o Path) bool {
	if len(p.steps) != len(o.steps) {
		return false
	}
	for i := range p.steps {
		if p.steps[i] != o.steps[i] {
			return false
		}
	}
	return true
}

// String renders the path as "/" for root or "a > b* > c" where * marks state-opening steps.
func (p Path) String() string {
	if len(p.steps) == 0 {
		return "/"
	}
	parts := make([]string, len(p.steps))
	for i, s := range p.steps {
		parts[i] = s.Locator
		if s.OpensNewState {
			parts[i] += "*"
		}
	}
	return strings.Join(parts, " > ")
}

// MarshalJSON encodes the path as its step array.
func (p Path) MarshalJSON() ([]byte, error) {
	return []byte(p.Serialize()), nil
}

// UnmarshalJSON decodes a step array. null decodes to the root path.
func (p *Path) UnmarshalJSON(data []byte) error {
	var steps []Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return err
	}
	*p = New(steps...)
	return nil
}
