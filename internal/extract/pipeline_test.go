package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"surfacemap-mcp-server/internal/logger"
	"surfacemap-mcp-server/internal/operation"
	"surfacemap-mcp-server/internal/oracle"
	"surfacemap-mcp-server/internal/oracle/oracletest"
)

type ents = []oracle.Entity

func openRoot(t *testing.T, app *oracletest.App) oracle.Session {
	t.Helper()
	sess, err := app.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func newPipeline() (*Pipeline, *logger.TestLogger) {
	log := logger.NewTestLogger()
	return NewPipeline(DefaultClassifiers(), log), log
}

func TestCollectionsPluralityAndDedup(t *testing.T) {
	app := &oracletest.App{Root: "home", States: map[string]*oracletest.State{
		"home": {Answers: map[oracle.QueryKind][]oracle.Entity{
			oracle.KindContainers: {
				{Selector: "table#mails", Description: "table of emails"},
				{Selector: "header", Description: "page header"},
			},
			oracle.KindCollections: {
				{Selector: "table#mails", Description: "list of emails"},
				{Selector: "ul#folders", Description: "list of folders with items"},
			},
		}},
	}}
	p, _ := newPipeline()
	got := p.Collections(context.Background(), openRoot(t, app))

	want := []Collection{
		{Selector: "table#mails", Description: "table of emails", Type: CollectionTable},
		{Selector: "ul#folders", Description: "list of folders with items", Type: CollectionList},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("collections mismatch (-want +got):\n%s", diff)
	}
}

func signInApp() *oracletest.App {
	return &oracletest.App{Root: "home", States: map[string]*oracletest.State{
		"home": {
			Answers: map[oracle.QueryKind][]oracle.Entity{
				oracle.KindForms: {{Selector: "form#login", Description: "Sign In form"}},
				oracle.KindClickables: {
					{Selector: "button#signin", Description: "Sign In button"},
					{Selector: "a#forgot", Description: `link "Forgot password?" href="/forgot"`},
				},
			},
			Scoped: map[string][]oracle.Entity{
				"form#login": {
					{Selector: "input#email", Description: "Email address field, required"},
					{Selector: "input#password", Description: "Password field, required"},
					{Selector: "button#signin", Description: "Sign In submit button"},
				},
			},
		},
	}}
}

func TestSignInFormExcludesSubmitFromInputs(t *testing.T) {
	p, _ := newPipeline()
	res := p.Extract(context.Background(), openRoot(t, signInApp()))

	if len(res.Forms) != 1 {
		t.Fatalf("expected 1 form, got %d", len(res.Forms))
	}
	f := res.Forms[0]
	if f.Type != FormLogin || f.Crud != operation.Create {
		t.Errorf("expected login/CREATE, got %s/%s", f.Type, f.Crud)
	}
	if len(f.Inputs) != 2 {
		t.Fatalf("expected 2 inputs (submit excluded), got %d", len(f.Inputs))
	}
	if f.Inputs[0].Kind != InputEmail || f.Inputs[1].Kind != InputPassword {
		t.Errorf("unexpected input kinds %s, %s", f.Inputs[0].Kind, f.Inputs[1].Kind)
	}
	if !f.Inputs[0].Required {
		t.Error("email should be required")
	}
	if len(f.Submit) != 1 || f.Submit[0].Selector != "button#signin" {
		t.Errorf("expected submit control carried separately, got %+v", f.Submit)
	}

	// The submit button is claimed by the form and must not surface as a clickable.
	if len(res.Clickables) != 1 || res.Clickables[0].Selector != "a#forgot" {
		t.Fatalf("unexpected clickables %+v", res.Clickables)
	}
	c := res.Clickables[0]
	if c.Type != ClickLink || c.Href != "/forgot" || c.Text != "Forgot password?" {
		t.Errorf("unexpected clickable %+v", c)
	}

	srcs := res.Sources()
	if len(srcs) != 1 || len(srcs[0].Inputs) != 2 || srcs[0].Kind != operation.EntityForm {
		t.Errorf("unexpected sources %+v", srcs)
	}
}

func TestStructuralInputsStayInForm(t *testing.T) {
	app := &oracletest.App{Root: "home", States: map[string]*oracletest.State{
		"home": {
			Answers: map[oracle.QueryKind][]oracle.Entity{
				oracle.KindForms: {{Selector: "form#settings", Description: "Settings form"}},
			},
			Scoped: map[string][]oracle.Entity{
				"form#settings": {
					{Selector: "#prio", Description: "Priority radio button, options: Low, Normal, High"},
					{Selector: "#all", Description: `checkbox label "Select all"`},
					{Selector: "button#save", Description: "Save"},
				},
			},
		},
	}}
	p, _ := newPipeline()
	res := p.Extract(context.Background(), openRoot(t, app))

	if len(res.Forms) != 1 {
		t.Fatalf("expected 1 form, got %d", len(res.Forms))
	}
	f := res.Forms[0]
	if len(f.Inputs) != 2 || len(f.Submit) != 1 {
		t.Fatalf("expected 2 inputs and 1 submit, got %d and %d", len(f.Inputs), len(f.Submit))
	}
	if f.Inputs[0].Kind != InputRadio || f.Inputs[1].Kind != InputCheckbox {
		t.Errorf("unexpected input kinds %s, %s", f.Inputs[0].Kind, f.Inputs[1].Kind)
	}
	if diff := cmp.Diff([]string{"Low", "Normal", "High"}, f.Inputs[0].Options); diff != "" {
		t.Errorf("radio options mismatch (-want +got):\n%s", diff)
	}

	srcs := res.Sources()
	if len(srcs) != 1 || len(srcs[0].Inputs) != 2 {
		t.Errorf("expected both controls in the record source, got %+v", srcs)
	}
}

func TestOverlappingInputsGoToEarlierForm(t *testing.T) {
	app := &oracletest.App{Root: "home", States: map[string]*oracletest.State{
		"home": {
			Answers: map[oracle.QueryKind][]oracle.Entity{
				oracle.KindForms: {
					{Selector: "form#a", Description: "Contact form"},
					{Selector: "form#b", Description: "Feedback form"},
				},
			},
			Scoped: map[string][]oracle.Entity{
				"form#a": {{Selector: "#shared", Description: "Name field"}, {Selector: "#a-msg", Description: "message textarea"}},
				"form#b": {{Selector: "#shared", Description: "Name field"}, {Selector: "#b-rating", Description: "rating select"}},
			},
		},
	}}
	p, _ := newPipeline()
	forms := p.Forms(context.Background(), openRoot(t, app), "", NewDedupContext())
	if len(forms) != 2 {
		t.Fatalf("expected 2 forms, got %d", len(forms))
	}

	count := 0
	for _, f := range forms {
		for _, in := range f.Inputs {
			if in.Selector == "#shared" {
				count++
				if f.Selector != "form#a" {
					t.Errorf("shared input attributed to %s", f.Selector)
				}
			}
		}
	}
	if count != 1 {
		t.Errorf("shared input must appear exactly once, got %d", count)
	}
	if len(forms[1].Inputs) != 1 || forms[1].Inputs[0].Selector != "#b-rating" {
		t.Errorf("unexpected second form inputs %+v", forms[1].Inputs)
	}
}

func TestFormWithoutInputsDropped(t *testing.T) {
	app := &oracletest.App{Root: "home", States: map[string]*oracletest.State{
		"home": {Answers: map[oracle.QueryKind][]oracle.Entity{
			oracle.KindForms: {{Selector: "form#empty", Description: "Newsletter form"}},
		}},
	}}
	p, _ := newPipeline()
	if forms := p.Forms(context.Background(), openRoot(t, app), "", NewDedupContext()); len(forms) != 0 {
		t.Errorf("expected no forms, got %+v", forms)
	}
}

func TestSupplementaryPasses(t *testing.T) {
	app := &oracletest.App{Root: "home", States: map[string]*oracletest.State{
		"home": {
			Answers: map[oracle.QueryKind][]oracle.Entity{
				oracle.KindForms: {{Selector: "form#compose", Description: "Compose form"}},
				oracle.KindStandaloneInputs: {
					{Selector: "div.quick-reply", Description: "Quick reply group"},
					{Selector: "form#compose", Description: "Compose form again"},
				},
				oracle.KindSearch: {
					{Selector: "input#q", Description: "Search mail box"},
					{Selector: "div.quick-reply", Description: "search-ish group already claimed"},
					{Selector: "div.banner", Description: "Promotional banner"},
				},
			},
			Scoped: map[string][]oracle.Entity{
				"form#compose":     {{Selector: "input#to", Description: "Recipient email"}},
				"div.quick-reply": {{Selector: "textarea#reply", Description: "reply textarea"}},
			},
		},
	}}
	p, _ := newPipeline()
	forms := p.Forms(context.Background(), openRoot(t, app), "", NewDedupContext())

	var got []string
	for _, f := range forms {
		got = append(got, string(f.Origin)+":"+f.Selector+":"+string(f.Crud))
	}
	want := []string{
		"form:form#compose:CREATE",
		"standalone:div.quick-reply:CREATE",
		"search:input#q:READ",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("forms mismatch (-want +got):\n%s", diff)
	}
	search := forms[2]
	if len(search.Inputs) != 1 || search.Inputs[0].Selector != "input#q" || search.Type != FormSearch {
		t.Errorf("lone search control should be its own input, got %+v", search)
	}
}

func TestFormsScopedToVisibleOverlay(t *testing.T) {
	app := &oracletest.App{
		Root: "home",
		States: map[string]*oracletest.State{
			"home": {
				Answers: map[oracle.QueryKind][]oracle.Entity{
					oracle.KindForms:      {{Selector: "form#search", Description: "Search form"}},
					oracle.KindClickables: {{Selector: "#delete", Description: "Delete button"}},
				},
				Scoped:   map[string][]oracle.Entity{"form#search": {{Selector: "input#q", Description: "search query"}}},
				Overlays: map[string]string{"#delete": "confirm"},
			},
		},
		Overlays: map[string]*oracletest.Overlay{
			"confirm": {
				Selector: "div[role=dialog]",
				Answers: map[oracle.QueryKind][]oracle.Entity{
					oracle.KindForms: {{Selector: "form#confirm", Description: "Confirm delete form"}},
				},
				Scoped: map[string][]oracle.Entity{
					"form#confirm": {{Selector: "button#yes", Description: "Yes, delete submit"}},
				},
			},
		},
	}
	sess := openRoot(t, app)
	if err := sess.Activate(context.Background(), "#delete", 0); err != nil {
		t.Fatalf("activate: %v", err)
	}

	p, _ := newPipeline()
	forms := p.Forms(context.Background(), sess, "", NewDedupContext())
	if len(forms) != 1 || forms[0].Selector != "form#confirm" {
		t.Fatalf("background forms must be ignored while an overlay is open, got %+v", forms)
	}
	if forms[0].Crud != operation.Delete {
		t.Errorf("expected DELETE, got %s", forms[0].Crud)
	}
	for _, q := range app.Queries() {
		if q.Kind == oracle.KindForms && q.Scope != "div[role=dialog]" {
			t.Errorf("form query not scoped to overlay: %+v", q)
		}
	}
}

func TestClickablesDropLogoutAndDuplicates(t *testing.T) {
	app := &oracletest.App{Root: "home", States: map[string]*oracletest.State{
		"home": {Answers: map[oracle.QueryKind][]oracle.Entity{
			oracle.KindClickables: {
				{Selector: "#inbox", Description: `link "Inbox"`},
				{Selector: "#inbox", Description: `link "Inbox" again`},
				{Selector: "#logout", Description: `button "Log out"`},
				{Selector: "a.exit", Description: `link href="/signout"`},
				{Selector: "", Description: "no selector"},
			},
		}},
	}}
	p, log := newPipeline()
	got := p.Clickables(context.Background(), openRoot(t, app), NewDedupContext())
	if len(got) != 1 || got[0].Selector != "#inbox" {
		t.Errorf("unexpected clickables %+v", got)
	}
	if !log.Contains("debug", "session-ending") {
		t.Error("expected logout skip to be logged")
	}
}

func TestExtractorFailureIsIsolated(t *testing.T) {
	app := signInApp()
	app.FailObserve = map[oracle.QueryKind]error{oracle.KindForms: errors.New("oracle timeout")}

	p, log := newPipeline()
	res := p.Extract(context.Background(), openRoot(t, app))
	if len(res.Forms) != 0 {
		t.Errorf("failed form pass should yield no forms, got %d", len(res.Forms))
	}
	// Without forms the submit button is unclaimed and becomes a clickable.
	if len(res.Clickables) != 2 {
		t.Errorf("clickable pass should still run, got %d", len(res.Clickables))
	}
	if !log.Contains("warn", "extractor failed") {
		t.Error("expected failure to be logged at warn")
	}
}

func TestCloseControlPrefersCloseVocabulary(t *testing.T) {
	app := &oracletest.App{Root: "home", States: map[string]*oracletest.State{"home": {}}}
	sess := openRoot(t, app)
	p, _ := newPipeline()
	if _, ok := p.CloseControl(context.Background(), sess, "div.modal"); ok {
		t.Error("no overlay open, expected no close control")
	}
}
