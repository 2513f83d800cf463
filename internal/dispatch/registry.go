// Package dispatch maps abstract tool invocations to recorded operations and
// replays them against a fresh session.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"surfacemap-mcp-server/internal/logger"
)

// ErrToolNotFound is returned when an invocation names an undeclared tool.
var ErrToolNotFound = errors.New("tool configuration not found")

// Tool is one declared tool.
type Tool struct {
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description" json:"description"`
	Parameters  map[string]interface{} `yaml:"parameters" json:"parameters"`
}

// Schema returns the tool's parameter schema, defaulting to an empty object schema.
func (t Tool) Schema() map[string]interface{} {
	if len(t.Parameters) > 0 {
		return t.Parameters
	}
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}

type toolFile struct {
	Tools []Tool `yaml:"tools"`
}

// Registry holds unique tool declarations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
	log   logger.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{tools: make(map[string]Tool), log: log.WithField("component", "registry")}
}

// Register adds a tool. A duplicate name is a logged no-op and reports false.
func (r *Registry) Register(t Tool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[t.Name]; dup {
		r.log.Warn(context.Background(), "duplicate tool declaration ignored", map[string]interface{}{"tool": t.Name})
		return false
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return true
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns declarations in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n])
	}
	return out
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// LoadFile reads tool declarations from YAML or JSON. The document is either a
// list of tools or a mapping with a "tools" list. Any malformed declaration
// fails the whole load so a partial tool set is never served.
func (r *Registry) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read tool declarations: %w", err)
	}
	tools, err := ParseTools(data)
	if err != nil {
		return 0, fmt.Errorf("parse tool declarations %s: %w", path, err)
	}
	added := 0
	for _, t := range tools {
		if r.Register(t) {
			added++
		}
	}
	return added, nil
}

// ParseTools decodes and validates tool declarations.
func ParseTools(data []byte) ([]Tool, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, errors.New("empty document")
	}

	var tools []Tool
	switch node.Content[0].Kind {
	case yaml.SequenceNode:
		if err := node.Content[0].Decode(&tools); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var f toolFile
		if err := node.Content[0].Decode(&f); err != nil {
			return nil, err
		}
		if f.Tools == nil {
			return nil, errors.New(`missing "tools" list`)
		}
		tools = f.Tools
	default:
		return nil, errors.New("expected a list of tools or a mapping with a tools key")
	}

	for i, t := range tools {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("tool %d: name is required", i)
		}
		if t.Parameters != nil {
			if typ, ok := t.Parameters["type"]; ok && typ != "object" {
				return nil, fmt.Errorf("tool %q: parameters must be an object schema", t.Name)
			}
		}
	}
	return tools, nil
}

// ParameterNames returns the declared property names, sorted.
func (t Tool) ParameterNames() []string {
	props, _ := t.Parameters["properties"].(map[string]interface{})
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
