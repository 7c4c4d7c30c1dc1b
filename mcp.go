package carcatalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/carcatalog/enrich"
	"github.com/hazyhaar/carcatalog/filters"
	"github.com/hazyhaar/carcatalog/kit"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// NewMCPServer returns an MCP server with the carcatalog tools registered.
func (s *Service) NewMCPServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "carcatalog", Version: Version}, nil)
	s.RegisterMCP(srv)
	return srv
}

// RegisterMCP registers the carcatalog tools on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSearchTool(srv)
	s.registerDetailsTool(srv)
}

func (s *Service) toolMiddleware(name string) kit.Middleware {
	return kit.Chain(kit.Logging(s.logger, name), kit.Recover(s.logger))
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- search ---

type searchRequest struct {
	Search   string `json:"search,omitempty"`
	Make     string `json:"make,omitempty"`
	YearFrom int    `json:"year_from,omitempty"`
	YearTo   int    `json:"year_to,omitempty"`
}

func (s *Service) registerSearchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "carcatalog_search",
		Description: "List catalog vehicles matching optional text, make and year range filters.",
		InputSchema: inputSchema(map[string]any{
			"search":    map[string]any{"type": "string", "description": "Case-insensitive text matched against \"make model\""},
			"make":      map[string]any{"type": "string", "description": "Exact make, case-insensitive"},
			"year_from": map[string]any{"type": "integer", "description": "Inclusive lower year bound"},
			"year_to":   map[string]any{"type": "integer", "description": "Inclusive upper year bound"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchRequest)
		st := filters.State{Search: r.Search, Make: r.Make}
		if r.YearFrom != 0 {
			st.YearFrom = filters.Year(r.YearFrom)
		}
		if r.YearTo != 0 {
			st.YearTo = filters.Year(r.YearTo)
		}
		cars := s.Search(st)
		return listResponse{Query: st.Query().Encode(), Count: len(cars), Cars: cars}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.toolMiddleware("carcatalog_search")(endpoint),
		kit.DecodeInto[searchRequest](), s.newID)
}

// --- details ---

type detailsRequest struct {
	ID   int    `json:"id,omitempty"`
	Slug string `json:"slug,omitempty"`
}

func (s *Service) registerDetailsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "carcatalog_details",
		Description: "Fetch extended specifications (engine, transmission, trims, price) for one vehicle by id or slug. Results are cached.",
		InputSchema: inputSchema(map[string]any{
			"id":   map[string]any{"type": "integer", "description": "Vehicle id"},
			"slug": map[string]any{"type": "string", "description": "Vehicle slug, e.g. toyota-camry-2020"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*detailsRequest)
		ref := r.Slug
		if r.ID != 0 {
			ref = strconv.Itoa(r.ID)
		}
		if ref == "" {
			return nil, errors.New("id or slug is required")
		}
		view, err := s.DetailsByRef(ctx, ref)
		if errors.Is(err, enrich.ErrNotFound) {
			return nil, errors.New("car not found")
		}
		return view, err
	}

	kit.RegisterMCPTool(srv, tool, s.toolMiddleware("carcatalog_details")(endpoint),
		kit.DecodeInto[detailsRequest](), s.newID)
}
