// Package color provides terminal theming for testctl's console output.
//
// Colors are semantic and adaptive: each has a light and a dark variant,
// and lipgloss picks one based on the terminal background, which
// Initialize can force.
//
// # Theme System
//
//   - Success: passed tests, started environments
//   - Error: failed tests (bold)
//   - Warning: skipped tests, stopping environments
//   - Info: running tests
//   - Muted: tests that have not run yet, stopped environments
//
// # Usage Example
//
//	color.Initialize(true)
//	fmt.Println(color.RenderStatus(resulttree.StatusFailed))
//
// # Environment Variables
//
// NO_COLOR disables all color output.
package color
