package reporting

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"testctl/internal/color"
	"testctl/internal/events"
	"testctl/internal/resulttree"
	"testctl/pkg/logging"
)

// maxDetailLines bounds the failure detail printed per test.
const maxDetailLines = 20

// ConsoleReporter prints test outcomes as they arrive and a summary when
// a run finishes.
type ConsoleReporter struct {
	out   io.Writer
	width int

	mu      sync.Mutex
	results map[string]resulttree.Status
	order   []string

	summarized chan struct{}
	once       sync.Once
}

// NewConsoleReporter creates a reporter writing to out. Lines wider than
// width are truncated; width <= 0 disables truncation.
func NewConsoleReporter(out io.Writer, width int) *ConsoleReporter {
	return &ConsoleReporter{
		out:        out,
		width:      width,
		results:    make(map[string]resulttree.Status),
		summarized: make(chan struct{}),
	}
}

// Summarized is closed after the first run summary has been printed.
func (c *ConsoleReporter) Summarized() <-chan struct{} { return c.summarized }

// Run reports events from sub until the subscription closes or ctx ends.
func (c *ConsoleReporter) Run(ctx context.Context, sub *events.EventSubscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Channel:
			if !ok {
				return
			}
			c.Report(ev)
		}
	}
}

// Report handles one event. Updates carrying a final status print one
// line per node; a finished run prints the summary.
func (c *ConsoleReporter) Report(ev events.Event) {
	switch e := ev.(type) {
	case *events.UpdateEvent:
		c.reportUpdate(e)
	case *events.RunEvent:
		if e.Type() == events.EventTypeRunFinished {
			c.reportSummary(e)
		}
	default:
		logging.Debug("ConsoleReporter", "Ignoring %s", ev)
	}
}

func (c *ConsoleReporter) reportUpdate(e *events.UpdateEvent) {
	switch e.Status {
	case resulttree.StatusPassed, resulttree.StatusFailed, resulttree.StatusSkipped:
	default:
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.results[e.NodeID]; !seen {
		c.order = append(c.order, e.NodeID)
	}
	c.results[e.NodeID] = e.Status

	fmt.Fprintf(c.out, "%s %s\n", color.StatusStyle(e.Status).Render(fmt.Sprintf("%-7s", strings.ToUpper(e.Status.String()))), c.fit(e.NodeID, 8))
	if e.Status == resulttree.StatusFailed {
		c.writeDetail(e.Detail)
	}
}

func (c *ConsoleReporter) writeDetail(detail string) {
	if detail == "" {
		return
	}
	lines := strings.Split(strings.TrimRight(detail, "\n"), "\n")
	if len(lines) > maxDetailLines {
		omitted := len(lines) - maxDetailLines
		lines = append(lines[:maxDetailLines], fmt.Sprintf("... %d more lines", omitted))
	}
	for _, line := range lines {
		fmt.Fprintf(c.out, "    %s\n", color.MutedStyle.Render(c.fit(line, 4)))
	}
}

func (c *ConsoleReporter) reportSummary(e *events.RunEvent) {
	passed, failed, skipped := c.Counts()

	parts := []string{
		color.PassedStyle.Render(fmt.Sprintf("%d passed", passed)),
		color.FailedStyle.Render(fmt.Sprintf("%d failed", failed)),
		color.SkippedStyle.Render(fmt.Sprintf("%d skipped", skipped)),
	}
	fmt.Fprintf(c.out, "\n%s: %s\n", displayTarget(e.Target), strings.Join(parts, ", "))
	if e.Error != "" {
		fmt.Fprintf(c.out, "%s %s\n", color.FailedStyle.Render("error:"), e.Error)
	}
	c.once.Do(func() { close(c.summarized) })
}

// Counts returns how many reported nodes ended in each final status.
func (c *ConsoleReporter) Counts() (passed, failed, skipped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.results {
		switch s {
		case resulttree.StatusPassed:
			passed++
		case resulttree.StatusFailed:
			failed++
		case resulttree.StatusSkipped:
			skipped++
		}
	}
	return passed, failed, skipped
}

// Failures lists the nodes whose latest status is failed, in report order.
func (c *ConsoleReporter) Failures() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, id := range c.order {
		if c.results[id] == resulttree.StatusFailed {
			out = append(out, id)
		}
	}
	return out
}

// fit truncates s to the reporter width minus the given indent.
func (c *ConsoleReporter) fit(s string, indent int) string {
	if c.width <= 0 {
		return s
	}
	return truncate(s, c.width-indent)
}

func displayTarget(target string) string {
	if target == "" {
		return "all tests"
	}
	return target
}
