// Package extract turns oracle observations of one state into typed
// collections, forms and clickables.
//
// All heuristics live in keyword tables (see tables.go) behind the Classifier
// interface, so they can be swapped and tested without a traversal.
package extract

import (
	"strings"
)

// Classifier maps an element's description and selector to a label.
type Classifier interface {
	Classify(description, selector string) string
}

// Rule assigns Label when any keyword occurs in the element text.
type Rule struct {
	Label    string
	Keywords []string
	// SelectorOnly restricts matching to the selector.
	SelectorOnly bool
}

// KeywordClassifier applies Rules in order; the first match wins.
type KeywordClassifier struct {
	Rules   []Rule
	Default string
}

// Classify implements Classifier.
func (k KeywordClassifier) Classify(description, selector string) string {
	desc := strings.ToLower(description)
	sel := strings.ToLower(selector)
	for _, r := range k.Rules {
		for _, kw := range r.Keywords {
			if strings.Contains(sel, kw) {
				return r.Label
			}
			if !r.SelectorOnly && strings.Contains(desc, kw) {
				return r.Label
			}
		}
	}
	return k.Default
}

// Vocabulary is a keyword set matched against lowercased text.
type Vocabulary []string

// Matches reports whether any keyword occurs in any of texts.
func (v Vocabulary) Matches(texts ...string) bool {
	for _, t := range texts {
		lower := strings.ToLower(t)
		for _, kw := range v {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// Classifiers bundles the tables used by one pipeline.
type Classifiers struct {
	Collection Classifier
	Form       Classifier
	Input      Classifier
	Clickable  Classifier

	Plurality  Vocabulary
	Logout     Vocabulary
	Search     Vocabulary
	CloseLabel Vocabulary
}

// DefaultClassifiers returns the built-in keyword tables.
func DefaultClassifiers() Classifiers {
	return Classifiers{
		Collection: KeywordClassifier{Rules: CollectionRules, Default: string(CollectionList)},
		Form:       KeywordClassifier{Rules: FormRules, Default: string(FormOther)},
		Input:      KeywordClassifier{Rules: InputRules, Default: string(InputOther)},
		Clickable:  KeywordClassifier{Rules: ClickableRules, Default: string(ClickOther)},
		Plurality:  PluralityVocabulary,
		Logout:     LogoutVocabulary,
		Search:     SearchVocabulary,
		CloseLabel: CloseVocabulary,
	}
}
