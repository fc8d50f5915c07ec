// Package mcpserver exposes message routing, the agent catalog and goal
// delegation as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"agenthq/internal/domain"
	"agenthq/internal/usecase/delegation"
)

// Tool names.
const (
	ToolRouteMessage = "route_message"
	ToolListAgents   = "list_agents"
	ToolDelegateGoal = "delegate_goal"
)

// MessageRouter routes a message to an agent and returns the reply and agent name.
type MessageRouter interface {
	Route(ctx context.Context, message string) (string, string)
}

// Catalog lists registered agents.
type Catalog interface {
	ListAll() []domain.RegisteredAgent
	FindByTags(tags []string) []domain.RegisteredAgent
}

// Delegator runs a goal through the delegation hierarchy.
type Delegator interface {
	DelegateWithReport(ctx context.Context, goal string) (delegation.Result, delegation.Report)
}

// Deps are the use cases behind the tools. Nil members disable their tool.
type Deps struct {
	Router    MessageRouter
	Catalog   Catalog
	Delegator Delegator
}

// Server wraps an MCP server with the agenthq tools registered.
type Server struct {
	mcp    *server.MCPServer
	deps   Deps
	logger *slog.Logger
}

// New builds the MCP server.
func New(name, version string, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		mcp:    server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		deps:   deps,
		logger: logger,
	}

	if deps.Router != nil {
		s.mcp.AddTool(mcp.NewTool(ToolRouteMessage,
			mcp.WithDescription("Route a message to the best matching agent and return its reply."),
			mcp.WithString("message", mcp.Required(), mcp.Description("Text to send")),
		), s.RouteMessage)
	}
	if deps.Catalog != nil {
		s.mcp.AddTool(mcp.NewTool(ToolListAgents,
			mcp.WithDescription("List registered agents, optionally only those with any of the given skill tags."),
			mcp.WithArray("tags", mcp.Description("Skill tags to match"), mcp.Items(map[string]any{"type": "string"})),
		), s.ListAgents)
	}
	if deps.Delegator != nil {
		s.mcp.AddTool(mcp.NewTool(ToolDelegateGoal,
			mcp.WithDescription("Run a goal through the director and project manager and report each step."),
			mcp.WithString("goal", mcp.Required(), mcp.Description("Goal to accomplish")),
		), s.DelegateGoal)
	}
	return s
}

// ServeStdio serves MCP over in and out until ctx is done or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server listening on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// RouteMessage handles route_message. A blank message goes to the default agent.
func (s *Server) RouteMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message must be a string"), nil
	}
	reply, agent := s.deps.Router.Route(ctx, msg)
	return jsonResult(map[string]string{"agent_name": agent, "response": reply})
}

// agentSummary is the list_agents row.
type agentSummary struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Status string   `json:"status"`
	Tags   []string `json:"tags,omitempty"`
}

// ListAgents handles list_agents.
func (s *Server) ListAgents(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agents := s.deps.Catalog.ListAll()
	if tags := req.GetStringSlice("tags", nil); len(tags) > 0 {
		agents = s.deps.Catalog.FindByTags(tags)
	}
	out := make([]agentSummary, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentSummary{
			ID:     a.ID,
			Name:   a.Descriptor.Name,
			URL:    a.URL,
			Status: string(a.Status),
			Tags:   a.Descriptor.AllTags(),
		})
	}
	return jsonResult(out)
}

// DelegateGoal handles delegate_goal. A failed plan is reported as a tool error.
func (s *Server) DelegateGoal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	goal, err := req.RequireString("goal")
	if err != nil || strings.TrimSpace(goal) == "" {
		return mcp.NewToolResultError("goal is required"), nil
	}
	res, report := s.deps.Delegator.DelegateWithReport(ctx, goal)
	result, err := jsonResult(report)
	if err != nil {
		return nil, err
	}
	result.IsError = res.Failed()
	return result, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
