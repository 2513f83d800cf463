package extract

// DedupContext records the selectors claimed during one extraction call.
// It is created per call and passed explicitly; nothing is shared between calls.
type DedupContext struct {
	inputs     map[string]struct{}
	containers map[string]struct{}
}

// NewDedupContext returns an empty context.
func NewDedupContext() *DedupContext {
	return &DedupContext{
		inputs:     make(map[string]struct{}),
		containers: make(map[string]struct{}),
	}
}

// ClaimInput records an input selector and reports whether it was unclaimed.
func (d *DedupContext) ClaimInput(selector string) bool {
	return claim(d.inputs, selector)
}

// InputClaimed reports whether selector was claimed by a form.
func (d *DedupContext) InputClaimed(selector string) bool {
	_, ok := d.inputs[selector]
	return ok
}

// ClaimContainer records a form container and reports whether it was unclaimed.
func (d *DedupContext) ClaimContainer(selector string) bool {
	return claim(d.containers, selector)
}

// ContainerClaimed reports whether a form container was claimed.
func (d *DedupContext) ContainerClaimed(selector string) bool {
	_, ok := d.containers[selector]
	return ok
}

// Inputs returns the number of claimed inputs.
func (d *DedupContext) Inputs() int { return len(d.inputs) }

// Fork returns an independent copy seeded with the current claims.
func (d *DedupContext) Fork() *DedupContext {
	f := NewDedupContext()
	for k := range d.inputs {
		f.inputs[k] = struct{}{}
	}
	for k := range d.containers {
		f.containers[k] = struct{}{}
	}
	return f
}

func claim(set map[string]struct{}, selector string) bool {
	if _, ok := set[selector]; ok {
		return false
	}
	set[selector] = struct{}{}
	return true
}
