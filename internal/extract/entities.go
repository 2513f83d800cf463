package extract

import (
	"regexp"
	"strings"

	"surfacemap-mcp-server/internal/operation"
)

// Collection is a container grouping many similar items.
type Collection struct {
	Selector    string
	Description string
	Type        CollectionType
}

// Input is one form control.
type Input struct {
	Selector    string
	Description string
	Kind        InputKind
	Required    bool
	Label       string
	Placeholder string
	Options     []string
}

// FormOrigin records which pass produced a form.
type FormOrigin string

const (
	OriginForm       FormOrigin = "form"
	OriginStandalone FormOrigin = "standalone"
	OriginSearch     FormOrigin = "search"
)

// Form is a container with at least one input or submit control.
// Submit controls count toward retention but are kept out of Inputs.
type Form struct {
	Selector    string
	Description string
	Type        FormType
	Crud        operation.CrudKind
	Inputs      []Input
	Submit      []Input
	Origin      FormOrigin
}

// Clickable is an interactive element that is not a form control.
type Clickable struct {
	Selector    string
	Description string
	Type        ClickableType
	Href        string
	Text        string
}

// Result is everything extracted from one state.
type Result struct {
	Collections []Collection
	Forms       []Form
	Clickables  []Clickable
	// Claims holds the selectors claimed by forms, for scoped follow-up passes.
	Claims *DedupContext
}

// Sources converts the collections and forms of r to synthesizer input.
func (r Result) Sources() []operation.Source {
	out := make([]operation.Source, 0, len(r.Collections)+len(r.Forms))
	for _, c := range r.Collections {
		out = append(out, c.Source())
	}
	for _, f := range r.Forms {
		out = append(out, f.Source(operation.EntityForm))
	}
	return out
}

// Source converts a collection to synthesizer input.
func (c Collection) Source() operation.Source {
	return operation.Source{
		Kind:        operation.EntityKind(c.Type),
		Crud:        operation.Read,
		Selector:    c.Selector,
		Description: c.Description,
	}
}

// Source converts a form to synthesizer input of the given kind.
func (f Form) Source(kind operation.EntityKind) operation.Source {
	inputs := make([]operation.Input, 0, len(f.Inputs))
	for _, in := range f.Inputs {
		inputs = append(inputs, operation.Input{
			Type:        string(in.Kind),
			Required:    in.Required,
			Label:       in.Label,
			Placeholder: in.Placeholder,
			Options:     in.Options,
		})
	}
	return operation.Source{
		Kind:        kind,
		Crud:        f.Crud,
		Selector:    f.Selector,
		Description: f.Description,
		Inputs:      inputs,
	}
}

var (
	hrefPattern        = regexp.MustCompile(`(?i)href\s*[=:]\s*["']?([^"'\s,)]+)`)
	quotedTextPattern  = regexp.MustCompile(`["“']([^"”']{1,80})["”']`)
	labelTextPattern   = regexp.MustCompile(`(?i)(?:text|labeled|labelled|titled)\s*[:=]?\s*([A-Za-z0-9][^,;()]{0,60})`)
	labelPattern       = regexp.MustCompile(`(?i)\blabel(?:ed|led)?\s*[:=]?\s*["']([^"']+)["']`)
	placeholderPattern = regexp.MustCompile(`(?i)placeholder\s*[:=]?\s*["']([^"']+)["']`)
	optionsPattern     = regexp.MustCompile(`(?i)options?\s*[:=]\s*\[?([^\];)]+)`)
	requiredPattern    = regexp.MustCompile(`(?i)\brequired\b|\[required\]|aria-required="true"`)
)

// parseHref extracts an href from a description.
func parseHref(description string) string {
	if m := hrefPattern.FindStringSubmatch(description); m != nil {
		return m[1]
	}
	return ""
}

// parseDisplayText extracts display text: a quoted string, else a "text: ..." phrase.
func parseDisplayText(description string) string {
	if m := quotedTextPattern.FindStringSubmatch(description); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := labelTextPattern.FindStringSubmatch(description); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// parseInput fills hint fields of an input from its description and selector.
func parseInput(in *Input) {
	text := in.Description + " " + in.Selector
	in.Required = requiredPattern.MatchString(text)
	if m := labelPattern.FindStringSubmatch(in.Description); m != nil {
		in.Label = strings.TrimSpace(m[1])
	}
	if m := placeholderPattern.FindStringSubmatch(text); m != nil {
		in.Placeholder = strings.TrimSpace(m[1])
	}
	if in.Label == "" {
		in.Label = strings.Join(strings.Fields(in.Description), " ")
	}
	switch in.Kind {
	case InputSelect, InputRadio, InputCheckbox:
		if m := optionsPattern.FindStringSubmatch(in.Description); m != nil {
			for _, opt := range strings.Split(m[1], ",") {
				opt = strings.Trim(strings.TrimSpace(opt), `"'`)
				if opt != "" {
					in.Options = append(in.Options, opt)
				}
			}
		}
	}
}
