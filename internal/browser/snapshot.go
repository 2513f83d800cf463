package browser

import (
	"fmt"
	"strings"
)

// Category groups snapshot elements by the role they play in a state.
type Category string

const (
	CategoryCollection Category = "collection"
	CategoryForm       Category = "form"
	CategoryGroup      Category = "group"
	CategoryControl    Category = "control"
	CategoryClickable  Category = "clickable"
	CategoryOverlay    Category = "overlay"
)

const maxSnapshotElements = 400

// Element is one visible element reported by a snapshot. Selectors are unique
// in the document at capture time.
type Element struct {
	Selector    string   `json:"selector"`
	Category    Category `json:"category"`
	Tag         string   `json:"tag"`
	Role        string   `json:"role,omitempty"`
	Type        string   `json:"type,omitempty"`
	Text        string   `json:"text,omitempty"`
	Label       string   `json:"label,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Href        string   `json:"href,omitempty"`
	Action      string   `json:"action,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Options     []string `json:"options,omitempty"`
	// Shape and Items describe collections: table/list/grid/card and their row count.
	Shape string `json:"shape,omitempty"`
	Items int    `json:"items,omitempty"`
	// Form is the selector of the enclosing form of a control, if any.
	Form   string `json:"form,omitempty"`
	Search bool   `json:"search,omitempty"`
	Close  bool   `json:"close,omitempty"`
	Submit bool   `json:"submit,omitempty"`
}

// Snapshot is the structured content of one state.
type Snapshot struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Overlay  *Element  `json:"overlay,omitempty"`
	Elements []Element `json:"elements"`
	Missing  bool      `json:"missing,omitempty"`
}

func (s Snapshot) filter(keep func(Element) bool) []Element {
	var out []Element
	for _, e := range s.Elements {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Collections returns grouping containers.
func (s Snapshot) Collections() []Element {
	return s.filter(func(e Element) bool { return e.Category == CategoryCollection })
}

// Forms returns form elements and form-like landmarks.
func (s Snapshot) Forms() []Element {
	return s.filter(func(e Element) bool { return e.Category == CategoryForm })
}

// Groups returns containers of controls that are not inside a form.
func (s Snapshot) Groups() []Element {
	return s.filter(func(e Element) bool { return e.Category == CategoryGroup })
}

// Controls returns form controls, submit buttons included.
func (s Snapshot) Controls() []Element {
	return s.filter(func(e Element) bool { return e.Category == CategoryControl })
}

// Search returns search forms and search controls outside forms.
func (s Snapshot) Search() []Element {
	return s.filter(func(e Element) bool {
		if !e.Search {
			return false
		}
		return e.Category == CategoryForm || (e.Category == CategoryControl && e.Form == "")
	})
}

// Clickables returns links, buttons and faux controls.
func (s Snapshot) Clickables() []Element {
	return s.filter(func(e Element) bool { return e.Category == CategoryClickable })
}

// CloseControls returns controls that look like they dismiss a dialog.
func (s Snapshot) CloseControls() []Element {
	return s.filter(func(e Element) bool {
		return e.Close && (e.Category == CategoryClickable || e.Category == CategoryControl)
	})
}

var quoteStripper = strings.NewReplacer(`"`, "", `'`, "", "“", "", "”", "")

func quote(s string) string {
	return `"` + strings.Join(strings.Fields(quoteStripper.Replace(s)), " ") + `"`
}

// Describe renders e as the short phrase the extraction classifiers read.
func (e Element) Describe() string {
	var parts []string
	add := func(s string) {
		if s != "" {
			parts = append(parts, s)
		}
	}
	name := e.Text
	if name == "" {
		name = e.Label
	}

	switch e.Category {
	case CategoryCollection:
		add(e.Shape)
		if name != "" {
			add(quote(name))
		}
		unit := "items"
		if e.Shape == "table" {
			unit = "rows"
		}
		if e.Items > 0 {
			add(fmt.Sprintf("with %d %s", e.Items, unit))
		}
	case CategoryForm:
		add("form")
		if e.Label != "" {
			add(quote(e.Label))
		}
		if e.Text != "" {
			add("submit " + quote(e.Text))
		}
		if e.Search {
			add("search")
		}
		if e.Action != "" {
			add(fmt.Sprintf(`action="%s"`, quoteStripper.Replace(e.Action)))
		}
	case CategoryGroup:
		add("input group")
		if e.Label != "" {
			add(quote(e.Label))
		}
		if e.Items > 0 {
			add(fmt.Sprintf("with %d inputs", e.Items))
		}
	case CategoryControl:
		add(e.controlWords())
		if e.Label != "" {
			add("label " + quote(e.Label))
		}
		if e.Submit && e.Text != "" {
			add(quote(e.Text))
		}
		if e.Placeholder != "" {
			add("placeholder " + quote(e.Placeholder))
		}
		if e.Required {
			add("required")
		}
		if len(e.Options) > 0 {
			add("options: " + strings.Join(e.Options, ", "))
		}
	case CategoryClickable:
		add(e.clickableWord())
		if name != "" {
			add(quote(name))
		}
		if e.Href != "" {
			add(fmt.Sprintf(`href="%s"`, quoteStripper.Replace(e.Href)))
		}
	case CategoryOverlay:
		add("dialog")
		if name != "" {
			add(quote(name))
		}
	default:
		add(e.Tag)
		add(quote(name))
	}
	return strings.Join(parts, " ")
}

func (e Element) controlWords() string {
	switch {
	case e.Submit:
		return `submit button type="submit"`
	case e.Tag == "textarea" || e.Role == "textbox":
		return "textarea"
	case e.Tag == "select" || e.Role == "combobox" || e.Role == "listbox":
		return "select dropdown"
	case e.Type == "checkbox" || e.Role == "checkbox" || e.Role == "switch":
		return "checkbox"
	case e.Type == "radio" || e.Role == "radiogroup" || e.Role == "radio":
		return "radio group"
	case e.Type == "file":
		return `file input type="file"`
	case e.Type == "hidden":
		return `hidden input type="hidden"`
	case e.Type == "" || e.Type == "text":
		return "text input"
	default:
		return fmt.Sprintf(`input type="%s"`, e.Type)
	}
}

func (e Element) clickableWord() string {
	switch {
	case e.Role == "menuitem":
		return "menu item"
	case e.Role == "tab":
		return "tab"
	case e.Tag == "button" || e.Role == "button":
		return "button"
	case e.Tag == "a" || e.Role == "link":
		return "link"
	default:
		return "clickable"
	}
}
