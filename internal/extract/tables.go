package extract

import "surfacemap-mcp-server/internal/operation"

// CollectionType is the shape of a grouping container.
type CollectionType string

const (
	CollectionTable CollectionType = "table"
	CollectionList  CollectionType = "list"
	CollectionGrid  CollectionType = "grid"
	CollectionCard  CollectionType = "card"
)

// FormType is the semantic purpose of a form.
type FormType string

const (
	FormLogin        FormType = "login"
	FormRegistration FormType = "registration"
	FormSearch       FormType = "search"
	FormContact      FormType = "contact"
	FormSettings     FormType = "settings"
	FormCheckout     FormType = "checkout"
	FormFeedback     FormType = "feedback"
	FormNewsletter   FormType = "newsletter"
	FormFilter       FormType = "filter"
	FormDelete       FormType = "delete"
	FormRemove       FormType = "remove"
	FormUnsubscribe  FormType = "unsubscribe"
	FormOther        FormType = "other"
)

// FormTypes lists every form type.
var FormTypes = []FormType{
	FormLogin, FormRegistration, FormSearch, FormContact, FormSettings, FormCheckout,
	FormFeedback, FormNewsletter, FormFilter, FormDelete, FormRemove, FormUnsubscribe, FormOther,
}

// InputKind is the type of one form control.
type InputKind string

const (
	InputText     InputKind = "text"
	InputEmail    InputKind = "email"
	InputPassword InputKind = "password"
	InputNumber   InputKind = "number"
	InputTel      InputKind = "tel"
	InputURL      InputKind = "url"
	InputSearch   InputKind = "search"
	InputTextarea InputKind = "textarea"
	InputSelect   InputKind = "select"
	InputCheckbox InputKind = "checkbox"
	InputRadio    InputKind = "radio"
	InputFile     InputKind = "file"
	InputDate     InputKind = "date"
	InputTime     InputKind = "time"
	InputSubmit   InputKind = "submit"
	InputHidden   InputKind = "hidden"
	InputOther    InputKind = "other"
)

// ClickableType is the shape of an interactive non-form element.
type ClickableType string

const (
	ClickLink   ClickableType = "link"
	ClickButton ClickableType = "button"
	ClickOther  ClickableType = "other"
)

// crudByFormType is the fixed formType -> crudKind table.
var crudByFormType = map[FormType]operation.CrudKind{
	FormSearch:       operation.Read,
	FormFilter:       operation.Read,
	FormDelete:       operation.Delete,
	FormRemove:       operation.Delete,
	FormUnsubscribe:  operation.Delete,
	FormLogin:        operation.Create,
	FormRegistration: operation.Create,
	FormContact:      operation.Create,
	FormFeedback:     operation.Create,
	FormNewsletter:   operation.Create,
	FormCheckout:     operation.Create,
	FormSettings:     operation.Update,
}

// CrudFor maps a form type to its crud kind. Unknown types are CREATE.
func CrudFor(t FormType) operation.CrudKind {
	if k, ok := crudByFormType[t]; ok {
		return k
	}
	return operation.Create
}

// CollectionRules classify grouping containers.
var CollectionRules = []Rule{
	{Label: string(CollectionTable), Keywords: []string{"table", "<tr", "tbody", "rows"}},
	{Label: string(CollectionGrid), Keywords: []string{"grid", "gallery", "tiles"}},
	{Label: string(CollectionCard), Keywords: []string{"card"}},
	{Label: string(CollectionList), Keywords: []string{"list", "feed", "items"}},
	{Label: string(CollectionList), Keywords: []string{"ul", "ol"}, SelectorOnly: true},
}

// FormRules classify form purpose. Order matters: "unsubscribe" must be
// checked before "subscribe", "delete" before generic account wording.
var FormRules = []Rule{
	{Label: string(FormUnsubscribe), Keywords: []string{"unsubscribe", "opt out", "opt-out"}},
	{Label: string(FormDelete), Keywords: []string{"delete", "confirm deletion", "trash"}},
	{Label: string(FormRemove), Keywords: []string{"remove"}},
	{Label: string(FormLogin), Keywords: []string{"login", "log in", "sign in", "signin", "sign-in"}},
	{Label: string(FormRegistration), Keywords: []string{"register", "registration", "sign up", "signup", "sign-up", "create account"}},
	{Label: string(FormFilter), Keywords: []string{"filter", "refine", "sort by"}},
	{Label: string(FormSearch), Keywords: []string{"search", "find", "lookup"}},
	{Label: string(FormCheckout), Keywords: []string{"checkout", "payment", "billing", "shipping"}},
	{Label: string(FormFeedback), Keywords: []string{"feedback", "review", "rating", "survey"}},
	{Label: string(FormNewsletter), Keywords: []string{"newsletter", "subscribe", "mailing list"}},
	{Label: string(FormContact), Keywords: []string{"contact", "get in touch", "message us"}},
	{Label: string(FormSettings), Keywords: []string{"settings", "preferences", "edit profile", "update profile", "account"}},
}

// InputRules classify form controls. An explicit submit type wins, then the
// structural kinds, so "Priority radio button" is a radio and
// `checkbox label "Select all"` a checkbox. Bare "button" and "select" only
// count in the selector.
var InputRules = []Rule{
	{Label: string(InputHidden), Keywords: []string{`type="hidden"`, "type=hidden", "hidden input"}},
	{Label: string(InputSubmit), Keywords: []string{`type="submit"`, "type=submit"}},
	{Label: string(InputCheckbox), Keywords: []string{"checkbox", "check box", `type="checkbox"`}},
	{Label: string(InputRadio), Keywords: []string{"radio"}},
	{Label: string(InputSelect), Keywords: []string{"select dropdown", "select menu", "dropdown", "drop-down", "combobox", "listbox"}},
	{Label: string(InputSelect), Keywords: []string{"select"}, SelectorOnly: true},
	{Label: string(InputTextarea), Keywords: []string{"textarea", "text area", "multi-line", "multiline"}},
	{Label: string(InputSubmit), Keywords: []string{"submit", "send button"}},
	{Label: string(InputSubmit), Keywords: []string{"button"}, SelectorOnly: true},
	{Label: string(InputFile), Keywords: []string{`type="file"`, "file input", "choose file", "upload", "attachment"}},
	{Label: string(InputPassword), Keywords: []string{"password", "passcode"}},
	{Label: string(InputEmail), Keywords: []string{"email", "e-mail"}},
	{Label: string(InputDate), Keywords: []string{"date", "birthday"}},
	{Label: string(InputTime), Keywords: []string{`type="time"`, "time"}},
	{Label: string(InputTel), Keywords: []string{"phone", `type="tel"`, "telephone", "mobile"}},
	{Label: string(InputURL), Keywords: []string{`type="url"`, "url", "website"}},
	{Label: string(InputNumber), Keywords: []string{`type="number"`, "number", "quantity", "amount"}},
	{Label: string(InputSearch), Keywords: []string{"search", "query"}},
	{Label: string(InputText), Keywords: []string{"text", "input", "field", "name", "subject"}},
}

// ClickableRules classify interactive elements.
var ClickableRules = []Rule{
	{Label: string(ClickButton), Keywords: []string{"button", "btn", `role="button"`}},
	{Label: string(ClickLink), Keywords: []string{"href", "link", `role="link"`, "nav"}},
	{Label: string(ClickLink), Keywords: []string{"a[", "a#", "a."}, SelectorOnly: true},
}

// PluralityVocabulary marks descriptions of containers holding many items.
var PluralityVocabulary = Vocabulary{
	"multiple", "list of", "collection", "several", "many", "table of", "grid of", "rows",
	"items", "entries", "records", "results",
	"emails", "messages", "products", "users", "orders", "posts", "files", "contacts",
	"articles", "comments", "tasks", "projects", "customers", "documents",
}

// LogoutVocabulary marks session-ending controls.
var LogoutVocabulary = Vocabulary{"logout", "log out", "log-out", "sign out", "signout", "sign-out", "log off", "end session"}

// SearchVocabulary marks search-like elements.
var SearchVocabulary = Vocabulary{"search", "find", "filter"}

// CloseVocabulary marks overlay close controls.
var CloseVocabulary = Vocabulary{"close", "cancel", "dismiss", "×", "back"}
