package browser

import (
	"encoding/json"
	"strings"
)

// DOMNode is the lightweight element tree a page reports for outlining.
type DOMNode struct {
	Tag      string    `json:"tag"`
	Role     string    `json:"role,omitempty"`
	TabIndex *string   `json:"tabindex,omitempty"`
	Href     string    `json:"href,omitempty"`
	Hidden   bool      `json:"hidden,omitempty"`
	Label    string    `json:"label,omitempty"`
	Children []DOMNode `json:"children,omitempty"`
}

var outlineSkipTags = map[string]bool{"script": true, "style": true, "template": true, "noscript": true}

func (n DOMNode) hidden() bool {
	return n.Hidden || outlineSkipTags[n.Tag]
}

// actionable reports native links and buttons, button/link roles, and
// div/span faux controls reachable by tab.
func (n DOMNode) actionable() bool {
	switch {
	case n.Tag == "a" && n.Href != "":
		return true
	case n.Tag == "button":
		return true
	}
	switch strings.ToLower(n.Role) {
	case "button", "link":
		return true
	}
	if (n.Tag == "div" || n.Tag == "span") && n.TabIndex != nil && strings.TrimSpace(*n.TabIndex) != "-1" {
		return true
	}
	return false
}

// Outline is a nested list of actionable labels. A leaf carries Label; a
// branch carries Items.
type Outline struct {
	Label string
	Items []Outline
}

// IsLabel reports whether o is a leaf.
func (o Outline) IsLabel() bool { return o.Items == nil }

// Len counts the labels in o.
func (o Outline) Len() int {
	if o.IsLabel() {
		if o.Label == "" {
			return 0
		}
		return 1
	}
	n := 0
	for _, c := range o.Items {
		n += c.Len()
	}
	return n
}

// BuildOutline extracts and squashes the actionable outline of root.
func BuildOutline(root DOMNode) Outline {
	o, ok := extractOutline(root)
	if !ok {
		return Outline{Items: []Outline{}}
	}
	return Squash(o)
}

func extractOutline(n DOMNode) (Outline, bool) {
	if n.hidden() {
		return Outline{}, false
	}
	if n.actionable() {
		if label := strings.Join(strings.Fields(n.Label), " "); label != "" {
			return Outline{Label: label}, true
		}
	}
	var kids []Outline
	for _, c := range n.Children {
		if o, ok := extractOutline(c); ok {
			kids = append(kids, o)
		}
	}
	if len(kids) == 0 {
		return Outline{}, false
	}
	return Outline{Items: kids}, true
}

// Squash removes wrapper nesting from o: single-child lists collapse into
// their child and adjacent lists of labels merge.
func Squash(o Outline) Outline {
	if o.IsLabel() {
		return o
	}

	kids := make([]Outline, 0, len(o.Items))
	for _, c := range o.Items {
		if !c.IsLabel() && len(c.Items) == 0 {
			continue
		}
		kids = append(kids, Squash(c))
	}

	for len(kids) == 1 && !kids[0].IsLabel() {
		kids = append([]Outline(nil), kids[0].Items...)
	}

	for i, c := range kids {
		for !c.IsLabel() && len(c.Items) == 1 {
			c = c.Items[0]
		}
		kids[i] = c
	}

	merged := make([]Outline, 0, len(kids))
	for _, c := range kids {
		if n := len(merged); n > 0 && c.labelList() && merged[n-1].labelList() {
			items := append(append([]Outline(nil), merged[n-1].Items...), c.Items...)
			merged[n-1] = Outline{Items: items}
			continue
		}
		merged = append(merged, c)
	}

	if len(merged) == 1 && !merged[0].IsLabel() {
		return merged[0]
	}
	return Outline{Items: merged}
}

func (o Outline) labelList() bool {
	if o.IsLabel() {
		return false
	}
	for _, c := range o.Items {
		if !c.IsLabel() {
			return false
		}
	}
	return true
}

// MarshalJSON renders leaves as strings and branches as arrays.
func (o Outline) MarshalJSON() ([]byte, error) {
	if o.IsLabel() {
		return json.Marshal(o.Label)
	}
	return json.Marshal(o.Items)
}

// UnmarshalJSON accepts the form MarshalJSON produces.
func (o *Outline) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		*o = Outline{Label: label}
		return nil
	}
	var items []Outline
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if items == nil {
		items = []Outline{}
	}
	*o = Outline{Items: items}
	return nil
}

// Text renders o as an indented bullet list, truncated to max labels when max > 0.
func (o Outline) Text(max int) string {
	var b strings.Builder
	count := 0
	var walk func(Outline, int)
	walk = func(n Outline, depth int) {
		if max > 0 && count >= max {
			return
		}
		if n.IsLabel() {
			b.WriteString(strings.Repeat("  ", depth))
			b.WriteString("- ")
			b.WriteString(n.Label)
			b.WriteByte('\n')
			count++
			return
		}
		for _, c := range n.Items {
			next := depth
			if !c.IsLabel() {
				next = depth + 1
			}
			walk(c, next)
		}
	}
	walk(o, 0)
	return strings.TrimRight(b.String(), "\n")
}
