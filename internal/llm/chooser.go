package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"surfacemap-mcp-server/internal/logger"
)

const chooseSystem = `You map tool invocations onto recorded web-application operations. Read the tool, its arguments and the numbered operations.
Answer with the index of the single best operation, or -1 if none fits. Respond with the number only.`

// Chooser asks a model to pick one candidate.
type Chooser struct {
	completer Completer
	log       logger.Logger
}

// NewChooser creates a model-backed chooser.
func NewChooser(c Completer, log logger.Logger) *Chooser {
	if log == nil {
		log = logger.Nop()
	}
	return &Chooser{completer: c, log: log.WithField("component", "chooser")}
}

// Choose implements oracle.Chooser.
func (c *Chooser) Choose(ctx context.Context, prompt string, n int) (int, error) {
	if c.completer == nil {
		return -1, ErrNoModel
	}
	reply, err := c.completer.Complete(ctx, chooseSystem, prompt)
	if err != nil {
		return -1, err
	}
	idx, err := ParseIndex(reply)
	if err != nil {
		return -1, err
	}
	c.log.Debug(ctx, "model chose operation", map[string]interface{}{"index": idx, "candidates": n})
	return idx, nil
}

var (
	candidateLine = regexp.MustCompile(`^\[(\d+)\]\s+(.*)$`)
	wordPattern   = regexp.MustCompile(`[a-z0-9]+`)
)

// stopWords carry no signal when matching tools to operations.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "and": true, "or": true, "in": true,
	"on": true, "for": true, "with": true, "by": true, "is": true, "it": true, "this": true, "that": true,
	"inputs": true, "form": true, "true": true, "false": true, "null": true, "type": true, "object": true,
	"properties": true, "string": true, "required": true,
}

var crudVerbs = map[string][]string{
	"CREATE": {"create", "add", "new", "submit", "send", "compose", "register", "post", "write"},
	"READ":   {"read", "list", "get", "show", "view", "search", "find", "browse", "fetch", "filter"},
	"UPDATE": {"update", "edit", "change", "modify", "rename", "set", "save", "settings"},
	"DELETE": {"delete", "remove", "archive", "unsubscribe", "cancel", "trash", "clear"},
}

// KeywordChooser picks by word overlap between the invocation and each
// numbered candidate line of a relevance prompt. It needs no model and
// serves as the offline fallback.
type KeywordChooser struct{}

// Choose implements oracle.Chooser.
func (KeywordChooser) Choose(_ context.Context, prompt string, n int) (int, error) {
	var query []string
	type candidate struct {
		index int
		text  string
	}
	var cands []candidate

	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if m := candidateLine.FindStringSubmatch(line); m != nil {
			idx, _ := strconv.Atoi(m[1])
			cands = append(cands, candidate{index: idx, text: m[2]})
			continue
		}
		for _, prefix := range []string{"Tool:", "Description:", "Arguments:"} {
			if strings.HasPrefix(line, prefix) {
				query = append(query, strings.TrimPrefix(line, prefix))
			}
		}
	}

	words := tokenize(strings.Join(query, " "))
	best, bestScore := -1, 0
	for _, c := range cands {
		if c.index >= n {
			continue
		}
		score := overlap(words, tokenize(c.text))
		for crud, verbs := range crudVerbs {
			if !strings.HasPrefix(c.text, crud+" ") {
				continue
			}
			for _, v := range verbs {
				if words[v] {
					score += 2
					break
				}
			}
		}
		if score > bestScore {
			best, bestScore = c.index, score
		}
	}
	return best, nil
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
		if stopWords[w] || len(w) < 2 {
			continue
		}
		out[w] = true
		// Naive singular so "users" matches "user".
		if strings.HasSuffix(w, "s") && len(w) > 3 {
			out[strings.TrimSuffix(w, "s")] = true
		}
	}
	return out
}

func overlap(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}
