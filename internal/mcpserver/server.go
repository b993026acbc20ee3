// Package mcpserver exposes the index over the Model Context Protocol: one
// tool, search_code, backed by the read-only search evaluator.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/irvingoujAtDevolution/source-fast/internal/search"
)

const buildingWarning = "Warning (source_fast): the index is still building. " +
	"Results come from the existing on-disk index and may be stale or incomplete " +
	"relative to the current working tree. Retry the same query shortly for up-to-date results."

// searchCodeArgs is the search_code tool's input.
type searchCodeArgs struct {
	Query     string `json:"query"`
	FileRegex string `json:"file_regex,omitempty"`
}

// Server wraps the go-sdk MCP server with the handle it needs to answer
// search_code calls against a specific database.
type Server struct {
	dbPath string
	ready  *atomic.Bool
	log    zerolog.Logger
	mcp    *mcp.Server
}

// New builds a server bound to dbPath. ready is shared with the lease
// manager's scan-completion signal; search_code consults it on every call
// rather than blocking until it flips.
func New(dbPath string, ready *atomic.Bool, log zerolog.Logger) *Server {
	s := &Server{dbPath: dbPath, ready: ready, log: log}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "source-fast-mcp-server",
		Version: "0.1.0",
	}, nil)

	s.mcp.AddTool(&mcp.Tool{
		Name: "search_code",
		Description: "Stateful code search over the current workspace using a persistent on-disk " +
			"trigram index kept up-to-date with file changes. For large monorepos, prefer this tool " +
			"over ad-hoc text search.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Substring to search for (minimum 3 characters).",
				},
				"file_regex": {
					Type:        "string",
					Description: "Optional regular expression filtering hits by path.",
				},
			},
			Required: []string{"query"},
		},
	}, s.handleSearchCode)

	return s
}

// Run serves the MCP protocol over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) handleSearchCode(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args searchCodeArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return textErrorResult("invalid_parameters", err), nil
	}

	var fileRegex *regexp.Regexp
	if args.FileRegex != "" {
		re, err := regexp.Compile(args.FileRegex)
		if err != nil {
			return textErrorResult("invalid_file_regex", err), nil
		}
		fileRegex = re
	}

	building := !s.ready.Load()

	hits, err := search.Search(ctx, s.dbPath, args.Query, fileRegex, true)
	if err != nil {
		return textErrorResult("search_failed", err), nil
	}

	var contents []mcp.Content
	if building {
		contents = append(contents, &mcp.TextContent{Text: buildingWarning})
	}

	for _, hit := range hits {
		if hit.SnippetError != "" {
			s.log.Warn().Str("path", hit.Path).Str("error", hit.SnippetError).Msg("failed to extract snippet")
		}

		if hit.Snippet != nil {
			text := fmt.Sprintf("File: %s:%d\n", hit.Path, hit.Snippet.LineNumber)
			for _, line := range hit.Snippet.Lines {
				text += fmt.Sprintf("%d: %s\n", line.Number, line.Text)
			}
			contents = append(contents, &mcp.TextContent{Text: text})
		} else {
			contents = append(contents, &mcp.TextContent{Text: fmt.Sprintf("File: %s\n", hit.Path)})
		}
	}

	return &mcp.CallToolResult{Content: contents}, nil
}

func textErrorResult(code string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %s", code, err.Error())},
		},
	}
}
