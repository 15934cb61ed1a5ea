package color

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"testctl/internal/environment"
	"testctl/internal/resulttree"
)

// Semantic colors with light/dark variants.
var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#10B981"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#3B82F6"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

var (
	PassedStyle  = lipgloss.NewStyle().Foreground(ColorSuccess)
	FailedStyle  = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	SkippedStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	RunningStyle = lipgloss.NewStyle().Foreground(ColorInfo)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	BranchStyle  = lipgloss.NewStyle().Bold(true)
)

// Initialize sets the background mode the adaptive colors resolve
// against, and disables color when NO_COLOR is set.
func Initialize(isDarkMode bool) {
	lipgloss.SetHasDarkBackground(isDarkMode)
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// StatusStyle is the style for a test status.
func StatusStyle(s resulttree.Status) lipgloss.Style {
	switch s {
	case resulttree.StatusPassed:
		return PassedStyle
	case resulttree.StatusFailed:
		return FailedStyle
	case resulttree.StatusSkipped:
		return SkippedStyle
	case resulttree.StatusRunning:
		return RunningStyle
	default:
		return MutedStyle
	}
}

// StatusSymbol is the one-character marker printed before a node.
func StatusSymbol(s resulttree.Status) string {
	switch s {
	case resulttree.StatusPassed:
		return "✓"
	case resulttree.StatusFailed:
		return "✗"
	case resulttree.StatusSkipped:
		return "s"
	case resulttree.StatusRunning:
		return "…"
	default:
		return "·"
	}
}

// RenderStatus renders the symbol and name of s.
func RenderStatus(s resulttree.Status) string {
	return StatusStyle(s).Render(StatusSymbol(s) + " " + s.String())
}

// EnvironmentStyle is the style for an environment state.
func EnvironmentStyle(s environment.State) lipgloss.Style {
	switch s {
	case environment.StateStarted:
		return PassedStyle
	case environment.StateStopping:
		return SkippedStyle
	case environment.StateStopped:
		return MutedStyle
	default:
		return lipgloss.NewStyle()
	}
}
