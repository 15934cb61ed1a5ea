// Package server is the network surface of testctl.
//
// It serves three transports over one HTTP listener:
//
//   - A JSON API under /api/v1 for reading the tree and issuing commands.
//   - A websocket at /ws. The current tree is pushed on connect and every
//     tree update after that as {"event":"update","data":...}. Clients send
//     {"command":"run test"|"start env"|"stop env","nodeid":...}.
//   - MCP tools over SSE at /sse and /message, when enabled.
//
// Precondition failures (unknown identifiers, invalid environment
// transitions) are reported to the caller and never stop the server.
package server
