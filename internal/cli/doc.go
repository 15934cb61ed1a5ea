// Package cli talks to a running testctl server over MCP.
//
// CLIClient connects to the server's SSE endpoint and calls its tools.
// ToolExecutor prints tool results as a table, JSON or YAML, rendering
// result trees one row per node.
package cli
