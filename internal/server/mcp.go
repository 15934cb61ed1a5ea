package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// mcpTools exposes the backend commands as MCP tools.
type mcpTools struct {
	backend Backend
}

func newMCPServer(backend Backend, version string) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(
		"testctl",
		version,
		mcpserver.WithToolCapabilities(true),
	)
	t := &mcpTools{backend: backend}
	for _, tool := range t.tools() {
		s.AddTool(tool.Tool, tool.Handler)
	}
	return s
}

func nodeIDParam(description string, required bool) mcp.ToolOption {
	opts := []mcp.PropertyOption{mcp.Description(description)}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithString("nodeid", opts...)
}

func (t *mcpTools) tools() []mcpserver.ServerTool {
	return []mcpserver.ServerTool{
		{
			Tool: mcp.NewTool("get_tree",
				mcp.WithDescription("Get the result tree, or the subtree below a node id"),
				nodeIDParam("Node id of the subtree to return; empty for the whole tree", false),
			),
			Handler: t.handleGetTree,
		},
		{
			Tool: mcp.NewTool("run_tests",
				mcp.WithDescription("Run the tests below a node id. Returns the run ID; results arrive as tree updates"),
				nodeIDParam("Node id to run; empty runs every test", true),
			),
			Handler: t.handleRunTests,
		},
		{
			Tool: mcp.NewTool("start_environment",
				mcp.WithDescription("Start the environment attached to a directory node"),
				nodeIDParam("Node id of the directory", true),
			),
			Handler: t.handleStartEnvironment,
		},
		{
			Tool: mcp.NewTool("stop_environment",
				mcp.WithDescription("Stop the environment attached to a directory node and wait for teardown"),
				nodeIDParam("Node id of the directory", true),
			),
			Handler: t.handleStopEnvironment,
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (t *mcpTools) handleGetTree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("nodeid", "")
	node, err := t.backend.GetNode(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get tree: %v", err)), nil
	}
	return jsonResult(node)
}

func (t *mcpTools) handleRunTests(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("nodeid")
	if err != nil {
		return mcp.NewToolResultError("nodeid parameter is required"), nil
	}
	runID, err := t.backend.RunTests(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to run %q: %v", id, err)), nil
	}
	return jsonResult(runResponse{RunID: runID, NodeID: id})
}

func (t *mcpTools) handleStartEnvironment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("nodeid")
	if err != nil {
		return mcp.NewToolResultError("nodeid parameter is required"), nil
	}
	if err := t.backend.StartEnvironment(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start environment %q: %v", id, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Environment %q started", id)), nil
}

func (t *mcpTools) handleStopEnvironment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("nodeid")
	if err != nil {
		return mcp.NewToolResultError("nodeid parameter is required"), nil
	}
	if err := t.backend.StopEnvironment(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to stop environment %q: %v", id, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Environment %q stopped", id)), nil
}
