package reporting

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testctl/internal/color"
	"testctl/internal/environment"
	"testctl/internal/events"
	"testctl/internal/resulttree"
)

func init() {
	color.Initialize(true)
}

func update(id string, status resulttree.Status, detail string) *events.UpdateEvent {
	return events.NewUpdateEvent("test", "run-1", id, status, detail, nil)
}

func TestRenderTree(t *testing.T) {
	tree := &resulttree.Serialized{
		ShortID:          "project",
		Status:           resulttree.StatusFailed,
		EnvironmentState: environment.StateStarted,
		ChildBranches: resulttree.Children{
			{
				NodeID:           "pkg",
				ShortID:          "pkg",
				Status:           resulttree.StatusPassed,
				EnvironmentState: environment.StateInactive,
				ChildLeaves: resulttree.Children{
					{NodeID: "pkg/test_b.py", ShortID: "test_b.py", Status: resulttree.StatusPassed},
				},
			},
		},
		ChildLeaves: resulttree.Children{
			{NodeID: "test_a.py", ShortID: "test_a.py", Status: resulttree.StatusFailed},
		},
	}

	lines := strings.Split(strings.TrimRight(RenderTree(tree, 0), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "project")
	assert.Contains(t, lines[0], "[env started]")
	assert.Contains(t, lines[1], "  ")
	assert.Contains(t, lines[1], "pkg")
	assert.NotContains(t, lines[1], "[env")
	assert.True(t, strings.HasPrefix(lines[2], "    "))
	assert.Contains(t, lines[2], "test_b.py")
	assert.Contains(t, lines[3], "test_a.py")
	assert.Contains(t, lines[3], color.StatusSymbol(resulttree.StatusFailed))
}

func TestRenderTree_Truncates(t *testing.T) {
	tree := &resulttree.Serialized{ShortID: "a_very_long_directory_name", Status: resulttree.StatusInit}

	out := RenderTree(tree, 10)
	assert.Contains(t, out, "…")
	assert.NotContains(t, out, "a_very_long_directory_name")
}

func TestTruncate_WideRunes(t *testing.T) {
	assert.Equal(t, "テス…", truncate("テストケース", 5))
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "", truncate("abc", 0))
}

func TestConsoleReporter_Outcomes(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, 0)

	r.Report(update("", resulttree.StatusRunning, ""))
	r.Report(update("test_a.py::test_ok", resulttree.StatusPassed, ""))
	r.Report(update("test_a.py::test_bad", resulttree.StatusFailed, "assert 1 == 2"))
	r.Report(update("test_a.py::test_skip", resulttree.StatusSkipped, ""))

	out := buf.String()
	assert.NotContains(t, out, "RUNNING")
	assert.Contains(t, out, "PASSED")
	assert.Contains(t, out, "test_a.py::test_bad")
	assert.Contains(t, out, "assert 1 == 2")

	passed, failed, skipped := r.Counts()
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []string{"test_a.py::test_bad"}, r.Failures())
}

func TestConsoleReporter_LatestStatusWins(t *testing.T) {
	r := NewConsoleReporter(&bytes.Buffer{}, 0)

	r.Report(update("t.py::x", resulttree.StatusFailed, ""))
	r.Report(update("t.py::x", resulttree.StatusPassed, ""))

	passed, failed, _ := r.Counts()
	assert.Equal(t, 1, passed)
	assert.Equal(t, 0, failed)
	assert.Empty(t, r.Failures())
}

func TestConsoleReporter_DetailLimit(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, 0)

	detail := strings.Repeat("line\n", maxDetailLines+5)
	r.Report(update("t.py::x", resulttree.StatusFailed, detail))

	assert.Equal(t, maxDetailLines, strings.Count(buf.String(), "line\n"))
	assert.Contains(t, buf.String(), "... 5 more lines")
}

func TestConsoleReporter_Summary(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, 0)

	r.Report(update("t.py::x", resulttree.StatusPassed, ""))
	r.Report(events.NewRunEvent(events.EventTypeRunFinished, "test", "run-1", "", resulttree.StatusPassed, errors.New("pytest exited 2")))

	out := buf.String()
	assert.Contains(t, out, "all tests: ")
	assert.Contains(t, out, "1 passed")
	assert.Contains(t, out, "0 failed")
	assert.Contains(t, out, "pytest exited 2")

	select {
	case <-r.Summarized():
	default:
		t.Fatal("Summarized not closed after run finished")
	}
}

func TestConsoleReporter_Run(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	sub := bus.SubscribeChannel(nil, 16)

	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, sub)
	}()

	bus.Publish(update("t.py::x", resulttree.StatusPassed, ""))
	require.Eventually(t, func() bool {
		passed, _, _ := r.Counts()
		return passed == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
