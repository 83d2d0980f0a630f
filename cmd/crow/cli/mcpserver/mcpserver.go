// Package mcpserver exposes schema path lookup and question answering as
// MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/drugcrow/crow/cmd/crow/cli/answer"
	"github.com/drugcrow/crow/cmd/crow/cli/logging"
	"github.com/drugcrow/crow/cmd/crow/cli/prompt"
	"github.com/drugcrow/crow/cmd/crow/cli/schema"
	"github.com/drugcrow/crow/cmd/crow/cli/schemagraph"
)

// Answerer answers one question.
type Answerer interface {
	Answer(ctx context.Context, question string) (*answer.Answer, error)
}

// Deps holds what the tools need. Answerer may be nil, in which case the
// answer tool is not offered.
type Deps struct {
	Graph    *schemagraph.Graph
	Tables   []schema.Table
	Answerer Answerer
	Logger   *zap.Logger
}

// ErrorResponse is the JSON body of a tool error result.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorResult builds a tool result flagged as an error.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	b, _ := json.Marshal(ErrorResponse{Error: true, Code: code, Message: message})
	r := mcp.NewToolResultText(string(b))
	r.IsError = true
	return r
}

// New builds the MCP server with its tools registered.
func New(version string, deps *Deps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := server.NewMCPServer("crow", version, server.WithToolCapabilities(true))
	registerFindPathTool(s, deps)
	if deps.Answerer != nil {
		registerAnswerTool(s, deps)
	}
	return s
}

// Serve speaks MCP over in/out until ctx is cancelled or in closes.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	err := server.NewStdioServer(s).Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func registerFindPathTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"find_path",
		mcp.WithDescription(
			"Find the shortest join path between two columns of the drug database schema and "+
				"return a prompt describing every table on it. Use the result as context for writing SQL.",
		),
		mcp.WithString("start", mcp.Required(), mcp.Description("Column name the path starts at, e.g. WARNING_TYPE")),
		mcp.WithString("end", mcp.Required(), mcp.Description("Column name the path ends at, e.g. ALOGP")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start, err := req.RequireString("start")
		if err != nil {
			return nil, err
		}
		end, err := req.RequireString("end")
		if err != nil {
			return nil, err
		}
		start, end = strings.TrimSpace(start), strings.TrimSpace(end)
		if start == "" || end == "" {
			return NewErrorResult("invalid_parameters", "parameters 'start' and 'end' cannot be empty"), nil
		}

		steps, err := deps.Graph.ShortestPath(start, end)
		switch {
		case errors.Is(err, schemagraph.ErrUnknownNode):
			return NewErrorResult("unknown_column", err.Error()), nil
		case errors.Is(err, schemagraph.ErrNoPath):
			return NewErrorResult("no_path", err.Error()), nil
		case err != nil:
			return nil, err
		}

		text, err := prompt.PathPrompt(start, end, steps, deps.Tables)
		if err != nil {
			return NewErrorResult("stale_schema", err.Error()), nil
		}
		deps.Logger.Debug("find_path", zap.String("start", start), zap.String("end", end), zap.Int("steps", len(steps)))
		return mcp.NewToolResultText(text), nil
	})
}

type answerResult struct {
	ID      string   `json:"id"`
	SQL     string   `json:"sql"`
	Columns []string `json:"columns"`
	Data    string   `json:"data"`
}

func registerAnswerTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"answer",
		mcp.WithDescription(
			"Answer a natural-language question about drugs by generating a read-only SQL query, "+
				"running it against the warehouse and returning the rows as a text table.",
		),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return nil, err
		}

		a, err := deps.Answerer.Answer(ctx, question)
		if err != nil {
			code := "answer_failed"
			if errors.Is(err, answer.ErrEmptyQuestion) || errors.Is(err, answer.ErrSuspiciousQuestion) {
				code = "invalid_question"
			}
			return NewErrorResult(code, logging.SanitizeError(err)), nil
		}

		b, err := json.Marshal(answerResult{ID: a.ID, SQL: a.SQL, Columns: a.Columns, Data: a.Result})
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(b)), nil
	})
}
