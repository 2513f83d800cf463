package operation

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"surfacemap-mcp-server/internal/statepath"
)

func TestSynthesizeCollectionsAreRead(t *testing.T) {
	s := NewSynthesizer(0)
	path := statepath.Root()

	recs := s.Synthesize(path,
		Source{Kind: EntityTable, Crud: Delete, Selector: "table#inbox", Description: "list of emails",
			Inputs: []Input{{Type: "checkbox"}}},
		Source{Kind: EntityGrid, Selector: "div.products", Description: "grid of products"},
	)

	want := []Record{
		{Crud: Read, Entity: EntityTable, Selector: "table#inbox", Inputs: []Input{}, TextSummary: "list of emails", Path: path},
		{Crud: Read, Entity: EntityGrid, Selector: "div.products", Inputs: []Input{}, TextSummary: "grid of products", Path: path},
	}
	if diff := cmp.Diff(want, recs, cmp.Comparer(func(a, b statepath.Path) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestSynthesizeFormsMirrorInputs(t *testing.T) {
	s := NewSynthesizer(0)
	modal := statepath.Root().Append(statepath.Step{Locator: "#delete-btn"})

	recs := s.Synthesize(modal, Source{
		Kind:        EntityModalForm,
		Crud:        Delete,
		Selector:    "form#confirm",
		Description: "confirm   deletion\n form",
		Inputs: []Input{
			{Type: "checkbox", Required: true, Label: "I understand", Options: []string{"yes"}},
		},
	})
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Crud != Delete || r.Entity != EntityModalForm {
		t.Errorf("unexpected kinds %s/%s", r.Crud, r.Entity)
	}
	if r.TextSummary != "confirm deletion form" {
		t.Errorf("expected collapsed whitespace, got %q", r.TextSummary)
	}
	if !r.Path.Equal(modal) {
		t.Errorf("expected modal path, got %s", r.Path)
	}
	if diff := cmp.Diff([]Input{{Type: "checkbox", Required: true, Label: "I understand", Options: []string{"yes"}}}, r.Inputs); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}
}

func TestSynthesizeFormDefaultsToCreate(t *testing.T) {
	recs := NewSynthesizer(0).Synthesize(statepath.Root(), Source{Kind: EntityForm, Selector: "form"})
	if recs[0].Crud != Create {
		t.Errorf("expected CREATE default, got %s", recs[0].Crud)
	}
}

func TestSummarizeTruncatesRunes(t *testing.T) {
	s := NewSynthesizer(5)
	if got := s.Summarize("héllo wörld"); got != "héllo" {
		t.Errorf("expected 'héllo', got %q", got)
	}
	long := strings.Repeat("x", 500)
	if got := NewSynthesizer(0).Summarize(long); len(got) != DefaultSummaryLimit {
		t.Errorf("expected default limit %d, got %d", DefaultSummaryLimit, len(got))
	}
}

func TestFallback(t *testing.T) {
	fb := Fallback()
	if fb.Crud != Unspecified || !fb.Path.IsRoot() || !fb.IsFallback() {
		t.Errorf("unexpected fallback %+v", fb)
	}
	if fb.Inputs == nil {
		t.Error("fallback inputs should be an empty slice")
	}
}

func TestParseCrudKind(t *testing.T) {
	tests := []struct {
		in      string
		want    CrudKind
		wantErr bool
	}{
		{"read", Read, false},
		{" DELETE ", Delete, false},
		{"unspecified", Unspecified, false},
		{"upsert", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCrudKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
