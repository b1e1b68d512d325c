// Package mcpserver exposes the query evaluator over the Model Context
// Protocol, stdio transport, as a single search_code tool. It deliberately
// stays to one tool: source-fast's job is substring search, not a general
// code-intelligence surface.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	srcerrors "github.com/standardbeagle/source-fast/internal/errors"
	"github.com/standardbeagle/source-fast/internal/queryeval"
)

// Server wraps the MCP server and the evaluator it delegates searches to.
type Server struct {
	server *mcp.Server
	eval   *queryeval.Evaluator
	logger *zap.Logger
}

// searchCodeParams is the JSON shape of the search_code tool's arguments.
type searchCodeParams struct {
	Query     string `json:"query"`
	FileRegex string `json:"file_regex,omitempty"`
}

// New builds a Server ready to Serve over stdio.
func New(eval *queryeval.Evaluator, logger *zap.Logger) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "source-fast",
			Version: "0.1.0",
		}, nil),
		eval:   eval,
		logger: logger,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "search_code",
		Description: "Search the indexed repository for a literal substring. Optionally restrict results to paths matching file_regex.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Literal substring to search for; must be at least 3 bytes",
				},
				"file_regex": {
					Type:        "string",
					Description: "RE2 regular expression restricting matches to paths it matches",
				},
			},
			Required: []string{"query"},
		},
	}, s.handleSearchCode)
}

func (s *Server) handleSearchCode(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params searchCodeParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult(fmt.Errorf("invalid parameters: %w", err)), nil
	}

	matches, err := s.eval.SearchContent(ctx, params.Query, params.FileRegex)
	if err != nil {
		return errorResult(err), nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
	}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	message := err.Error()
	if srcerrors.IsKind(err, srcerrors.KindQueryTooShort) {
		message = "query must be at least 3 bytes"
	} else if srcerrors.IsKind(err, srcerrors.KindInvalidRegex) {
		message = "file_regex is not a valid regular expression"
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
	}
}

// Serve runs the server over stdio until ctx is cancelled or the transport
// closes.
func (s *Server) Serve(ctx context.Context) error {
	if s.logger != nil {
		s.logger.Info("mcp server starting", zap.String("transport", "stdio"))
	}
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
