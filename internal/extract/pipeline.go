package extract

import (
	"context"

	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/oracle"
)

// Observation instructions issued by the pipeline.
const (
	InstructionContainers       = "Find containers that group multiple similar items, such as tables, lists, grids or card layouts."
	InstructionCollections      = "Find collections of domain records such as emails, messages, products, users, orders or posts."
	InstructionForms            = "Find all forms and form-like containers that accept user input."
	InstructionInputs           = "Find every input control inside this container: text fields, selects, checkboxes, radios, textareas and submit buttons. Describe type, label, placeholder, required state and options."
	InstructionStandaloneInputs = "Find groups of input controls that are not wrapped in a form element."
	InstructionSearch           = "Find search boxes, find fields and filter controls."
	InstructionClickables       = "Find interactive elements such as links, buttons and menu items. Exclude form inputs. Describe visible text and href."
	InstructionOverlay          = "Is a modal, dialog or overlay currently visible? Return its container."
	InstructionCloseControl     = "Find the control that closes or cancels this dialog."
)

// Pipeline runs the collection, form and clickable classifiers over one state.
type Pipeline struct {
	cls Classifiers
	log logger.Logger
}

// NewPipeline returns a pipeline using the given tables.
func NewPipeline(cls Classifiers, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{cls: cls, log: log.WithField("component", "extract")}
}

// Classifiers returns the pipeline's tables.
func (p *Pipeline) Classifiers() Classifiers { return p.cls }

// Extract runs collections, then forms, then clickables. Each classifier that
// fails is logged and contributes nothing; Extract itself never fails.
func (p *Pipeline) Extract(ctx context.Context, obs oracle.Observer) Result {
	claims := NewDedupContext()
	res := Result{Claims: claims}
	res.Collections = p.Collections(ctx, obs)
	res.Forms = p.Forms(ctx, obs, "", claims)
	res.Clickables = p.Clickables(ctx, obs, claims)
	return res
}

// Collections runs the generic then the domain-specific container pass.
// Only plural descriptions are accepted; selectors are unique across passes.
func (p *Pipeline) Collections(ctx context.Context, obs oracle.Observer) []Collection {
	seen := make(map[string]struct{})
	var out []Collection
	passes := []oracle.Query{
		{Kind: oracle.KindContainers, Instruction: InstructionContainers},
		{Kind: oracle.KindCollections, Instruction: InstructionCollections},
	}
	for _, q := range passes {
		ents := p.observe(ctx, obs, q, "collections")
		for _, e := range ents {
			if e.Selector == "" {
				continue
			}
			if _, dup := seen[e.Selector]; dup {
				continue
			}
			if !p.cls.Plurality.Matches(e.Description) {
				continue
			}
			seen[e.Selector] = struct{}{}
			out = append(out, Collection{
				Selector:    e.Selector,
				Description: e.Description,
				Type:        CollectionType(p.cls.Collection.Classify(e.Description, e.Selector)),
			})
		}
	}
	return out
}

// Forms runs the primary form pass and both supplementary passes. When scope
// is empty and an overlay is visible, every pass is restricted to the overlay.
func (p *Pipeline) Forms(ctx context.Context, obs oracle.Observer, scope string, claims *DedupContext) []Form {
	if scope == "" {
		if ov, ok, err := DetectOverlay(ctx, obs); err != nil {
			p.log.Warn(ctx, "overlay probe failed", map[string]interface{}{"error": err.Error()})
		} else if ok {
			scope = ov.Selector
			p.log.Debug(ctx, "overlay visible, scoping forms", map[string]interface{}{"scope": scope})
		}
	}

	var out []Form

	for _, e := range p.observe(ctx, obs, oracle.Query{Kind: oracle.KindForms, Instruction: InstructionForms, Scope: scope}, "forms") {
		if f, ok := p.buildForm(ctx, obs, e, OriginForm, claims); ok {
			out = append(out, f)
		}
	}

	for _, e := range p.observe(ctx, obs, oracle.Query{Kind: oracle.KindStandaloneInputs, Instruction: InstructionStandaloneInputs, Scope: scope}, "standalone_inputs") {
		if f, ok := p.buildForm(ctx, obs, e, OriginStandalone, claims); ok {
			out = append(out, f)
		}
	}

	for _, e := range p.observe(ctx, obs, oracle.Query{Kind: oracle.KindSearch, Instruction: InstructionSearch, Scope: scope}, "search") {
		if !p.cls.Search.Matches(e.Description, e.Selector) {
			continue
		}
		if f, ok := p.buildForm(ctx, obs, e, OriginSearch, claims); ok {
			out = append(out, f)
		}
	}

	return out
}

// buildForm enumerates the inputs of one container, skipping claimed inputs.
// The form is kept only if at least one input or submit control survives.
func (p *Pipeline) buildForm(ctx context.Context, obs oracle.Observer, e oracle.Entity, origin FormOrigin, claims *DedupContext) (Form, bool) {
	if e.Selector == "" || claims.ContainerClaimed(e.Selector) || claims.InputClaimed(e.Selector) {
		return Form{}, false
	}

	ents, err := obs.Observe(ctx, oracle.Query{Kind: oracle.KindInputs, Instruction: InstructionInputs, Scope: e.Selector})
	if err != nil {
		p.log.Warn(ctx, "input enumeration failed", map[string]interface{}{"container": e.Selector, "error": err.Error()})
		return Form{}, false
	}
	// A lone control reported as a group is its own only input.
	if len(ents) == 0 && origin != OriginForm {
		ents = []oracle.Entity{e}
	}

	formType := FormType(p.cls.Form.Classify(e.Description, e.Selector))
	if origin == OriginSearch && formType != FormFilter {
		formType = FormSearch
	}
	f := Form{
		Selector:    e.Selector,
		Description: e.Description,
		Type:        formType,
		Crud:        CrudFor(formType),
		Origin:      origin,
	}

	var candidates []Input
	seen := make(map[string]struct{})
	for _, ie := range ents {
		if ie.Selector == "" || claims.InputClaimed(ie.Selector) {
			continue
		}
		if _, dup := seen[ie.Selector]; dup {
			continue
		}
		seen[ie.Selector] = struct{}{}
		in := Input{
			Selector:    ie.Selector,
			Description: ie.Description,
			Kind:        InputKind(p.cls.Input.Classify(ie.Description, ie.Selector)),
		}
		parseInput(&in)
		candidates = append(candidates, in)
	}
	if len(candidates) == 0 {
		return Form{}, false
	}

	claims.ClaimContainer(e.Selector)
	for _, in := range candidates {
		claims.ClaimInput(in.Selector)
		if in.Kind == InputSubmit {
			f.Submit = append(f.Submit, in)
		} else {
			f.Inputs = append(f.Inputs, in)
		}
	}
	if f.Inputs == nil {
		f.Inputs = []Input{}
	}
	return f, true
}

// Clickables returns interactive elements not claimed by forms and not ending the session.
func (p *Pipeline) Clickables(ctx context.Context, obs oracle.Observer, claims *DedupContext) []Clickable {
	seen := make(map[string]struct{})
	var out []Clickable
	for _, e := range p.observe(ctx, obs, oracle.Query{Kind: oracle.KindClickables, Instruction: InstructionClickables}, "clickables") {
		if e.Selector == "" || claims.InputClaimed(e.Selector) {
			continue
		}
		if _, dup := seen[e.Selector]; dup {
			continue
		}
		c := Clickable{
			Selector:    e.Selector,
			Description: e.Description,
			Type:        ClickableType(p.cls.Clickable.Classify(e.Description, e.Selector)),
			Href:        parseHref(e.Description),
			Text:        parseDisplayText(e.Description),
		}
		if p.cls.Logout.Matches(c.Text, c.Description, c.Href) {
			p.log.Debug(ctx, "skipping session-ending control", map[string]interface{}{"selector": c.Selector})
			continue
		}
		seen[e.Selector] = struct{}{}
		out = append(out, c)
	}
	return out
}

// CloseControl looks for an explicit close control inside an overlay.
func (p *Pipeline) CloseControl(ctx context.Context, obs oracle.Observer, overlay string) (oracle.Entity, bool) {
	ents := p.observe(ctx, obs, oracle.Query{Kind: oracle.KindCloseControl, Instruction: InstructionCloseControl, Scope: overlay}, "close_control")
	var first *oracle.Entity
	for i, e := range ents {
		if e.Selector == "" {
			continue
		}
		if p.cls.CloseLabel.Matches(e.Description, e.Selector) {
			return e, true
		}
		if first == nil {
			first = &ents[i]
		}
	}
	if first != nil {
		return *first, true
	}
	return oracle.Entity{}, false
}

func (p *Pipeline) observe(ctx context.Context, obs oracle.Observer, q oracle.Query, pass string) []oracle.Entity {
	ents, err := obs.Observe(ctx, q)
	if err != nil {
		p.log.Warn(ctx, "extractor failed", map[string]interface{}{
			"pass":  pass,
			"scope": q.Scope,
			"error": err.Error(),
		})
		return nil
	}
	return ents
}

// DetectOverlay reports the visible overlay, preferring a direct probe when
// the observer supports one.
func DetectOverlay(ctx context.Context, obs oracle.Observer) (oracle.Entity, bool, error) {
	if prober, ok := obs.(oracle.OverlayProber); ok {
		return prober.Overlay(ctx)
	}
	ents, err := obs.Observe(ctx, oracle.Query{Kind: oracle.KindOverlay, Instruction: InstructionOverlay})
	if err != nil {
		return oracle.Entity{}, false, err
	}
	for _, e := range ents {
		if e.Selector != "" {
			return e, true, nil
		}
	}
	return oracle.Entity{}, false, nil
}
