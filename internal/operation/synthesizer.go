package operation

import (
	"strings"
	"unicode/utf8"

	"surfacemap-mcp-server/internal/statepath"
)

// DefaultSummaryLimit bounds TextSummary in runes.
const DefaultSummaryLimit = 120

// Source is one extracted entity handed to the synthesizer.
type Source struct {
	Kind        EntityKind
	Crud        CrudKind
	Selector    string
	Description string
	Inputs      []Input
}

// Synthesizer turns extracted entities into records.
type Synthesizer struct {
	summaryLimit int
}

// NewSynthesizer returns a synthesizer truncating summaries to limit runes.
func NewSynthesizer(limit int) *Synthesizer {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	return &Synthesizer{summaryLimit: limit}
}

// Synthesize builds one record per source, all owned by path.
// Collections are always READ with no inputs; forms keep their precomputed kind.
func (s *Synthesizer) Synthesize(path statepath.Path, sources ...Source) []Record {
	out := make([]Record, 0, len(sources))
	for _, src := range sources {
		rec := Record{
			Crud:        src.Crud,
			Entity:      src.Kind,
			Selector:    src.Selector,
			Inputs:      []Input{},
			TextSummary: s.Summarize(src.Description),
			Path:        path,
		}
		if src.Kind.IsCollection() {
			rec.Crud = Read
		} else {
			if !rec.Crud.Valid() || rec.Crud == Unspecified {
				rec.Crud = Create
			}
			for _, in := range src.Inputs {
				rec.Inputs = append(rec.Inputs, Input{
					Type:        in.Type,
					Required:    in.Required,
					Label:       in.Label,
					Placeholder: in.Placeholder,
					Options:     append([]string(nil), in.Options...),
				})
			}
		}
		out = append(out, rec)
	}
	return out
}

// Summarize collapses whitespace and truncates to the configured rune limit.
func (s *Synthesizer) Summarize(description string) string {
	text := strings.Join(strings.Fields(description), " ")
	if utf8.RuneCountInString(text) <= s.summaryLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:s.summaryLimit])
}
