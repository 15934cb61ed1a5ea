package reporting

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"testctl/internal/color"
	"testctl/internal/environment"
	"testctl/internal/resulttree"
)

const indentWidth = 2

// RenderTree draws s one node per line, children indented under their
// parent. Names longer than width are truncated; width <= 0 disables
// truncation.
func RenderTree(s *resulttree.Serialized, width int) string {
	var sb strings.Builder
	renderNode(&sb, s, 0, width, true)
	return sb.String()
}

func renderNode(sb *strings.Builder, s *resulttree.Serialized, depth, width int, branch bool) {
	prefix := strings.Repeat(" ", depth*indentWidth)
	symbol := color.StatusSymbol(s.Status)

	name := s.ShortID
	var badge string
	if s.EnvironmentState != "" && s.EnvironmentState != environment.StateInactive {
		badge = " [env " + string(s.EnvironmentState) + "]"
	}
	if width > 0 {
		room := width - runewidth.StringWidth(prefix) - runewidth.StringWidth(symbol) - 1 - runewidth.StringWidth(badge)
		name = truncate(name, room)
	}

	sb.WriteString(prefix)
	sb.WriteString(color.StatusStyle(s.Status).Render(symbol))
	sb.WriteByte(' ')
	if branch {
		sb.WriteString(color.BranchStyle.Render(name))
	} else {
		sb.WriteString(name)
	}
	if badge != "" {
		sb.WriteString(color.EnvironmentStyle(s.EnvironmentState).Render(badge))
	}
	sb.WriteByte('\n')

	for _, c := range s.ChildBranches {
		renderNode(sb, c, depth+1, width, true)
	}
	for _, c := range s.ChildLeaves {
		renderNode(sb, c, depth+1, width, false)
	}
}

// truncate shortens s to at most width display cells, marking the cut.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}
