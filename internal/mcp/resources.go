package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"surfacemap-mcp-server/internal/mangle"
	"surfacemap-mcp-server/internal/operation"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON = "application/json"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"surfacemap://about",
			"Surfacemap About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info, declared tools and corpus statistics."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"surfacemap://corpus{?crud}",
			"Operation Corpus",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Discovered operation records, optionally filtered by crud kind."),
		),
		s.handleCorpusResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"surfacemap://facts/{predicate}",
			"State Graph Facts",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Base or derived facts of the discovered state graph (state, edge, reachable, destructive_operation, ...)."),
		),
		s.handleFactsResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	counts := make(map[string]int)
	for _, r := range s.dispatcher.Records() {
		counts[string(r.Crud)]++
	}
	payload := map[string]interface{}{
		"name":         s.cfg.Server.Name,
		"version":      s.cfg.Server.Version,
		"run_id":       s.corpus.RunID,
		"root_url":     s.corpus.RootURL,
		"tools":        s.ToolNames(),
		"records":      len(s.dispatcher.Records()),
		"crud_counts":  counts,
		"state":        string(s.dispatcher.State()),
		"timestamp_ms": time.Now().UnixMilli(),
		"notes": []string{
			"Each declared tool replays the recorded operation that best matches the call on a fresh session.",
			"Calls are serialized; results report success, the chosen record and the final address.",
		},
	}
	return jsonContents(request.Params.URI, payload)
}

func (s *Server) handleCorpusResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	records := s.dispatcher.Records()
	filter := argString(request.Params.Arguments["crud"])
	if filter != "" {
		kind, err := operation.ParseCrudKind(filter)
		if err != nil {
			return nil, err
		}
		filtered := make([]operation.Record, 0, len(records))
		for _, r := range records {
			if r.Crud == kind {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	if records == nil {
		records = []operation.Record{}
	}

	payload := map[string]interface{}{
		"run_id":  s.corpus.RunID,
		"crud":    filter,
		"count":   len(records),
		"records": records,
	}
	return jsonContents(request.Params.URI, payload)
}

func (s *Server) handleFactsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if s.engine == nil || !s.engine.Enabled() {
		return nil, fmt.Errorf("mangle engine unavailable")
	}
	predicate := argString(request.Params.Arguments["predicate"])
	if predicate == "" {
		return nil, fmt.Errorf("missing predicate")
	}

	facts, err := s.engine.Evaluate(ctx, predicate)
	if err != nil {
		return nil, err
	}
	if facts == nil {
		facts = []mangle.Fact{}
	}

	payload := map[string]interface{}{
		"predicate": predicate,
		"count":     len(facts),
		"facts":     facts,
	}
	return jsonContents(request.Params.URI, payload)
}

func jsonContents(uri string, payload interface{}) ([]mcp.ResourceContents, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func argString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		if len(value) == 0 {
			return ""
		}
		return value[0]
	default:
		return fmt.Sprintf("%v", value)
	}
}
