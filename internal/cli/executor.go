package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"

	"testctl/internal/resulttree"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format %q: must be table, json or yaml", s)
}

// ExecutorOptions contains options for tool execution
type ExecutorOptions struct {
	Format OutputFormat
	Quiet  bool
	// Out defaults to stdout.
	Out io.Writer
}

// Caller is the part of CLIClient the executor needs.
type Caller interface {
	CallToolText(ctx context.Context, name string, args map[string]any) (string, error)
}

// ToolExecutor calls a tool and prints its result in the chosen format.
type ToolExecutor struct {
	caller  Caller
	options ExecutorOptions
}

// NewToolExecutor creates a new tool executor
func NewToolExecutor(caller Caller, options ExecutorOptions) *ToolExecutor {
	if options.Out == nil {
		options.Out = os.Stdout
	}
	if options.Format == "" {
		options.Format = OutputFormatTable
	}
	return &ToolExecutor{caller: caller, options: options}
}

// Execute calls toolName and prints the result.
func (e *ToolExecutor) Execute(ctx context.Context, toolName string, args map[string]any) error {
	result, err := e.caller.CallToolText(ctx, toolName, args)
	if err != nil {
		return fmt.Errorf("%s: %w", toolName, err)
	}
	if e.options.Quiet {
		return nil
	}
	return e.formatOutput(result)
}

func (e *ToolExecutor) formatOutput(result string) error {
	if result == "" {
		fmt.Fprintln(e.options.Out, "No results")
		return nil
	}

	switch e.options.Format {
	case OutputFormatJSON:
		fmt.Fprintln(e.options.Out, result)
		return nil
	case OutputFormatYAML:
		return e.outputYAML(result)
	case OutputFormatTable:
		return e.outputTable(result)
	default:
		return fmt.Errorf("unsupported output format: %s", e.options.Format)
	}
}

// outputYAML converts JSON to YAML and prints it
func (e *ToolExecutor) outputYAML(jsonData string) error {
	var data any
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		// plain text results have no YAML form
		fmt.Fprintln(e.options.Out, jsonData)
		return nil
	}

	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	_, err = e.options.Out.Write(yamlData)
	return err
}

// outputTable renders a tree as one row per node and anything else as
// key/value pairs.
func (e *ToolExecutor) outputTable(jsonData string) error {
	var data map[string]any
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		fmt.Fprintln(e.options.Out, jsonData)
		return nil
	}

	if _, isNode := data["short_id"]; isNode {
		var node resulttree.Serialized
		if err := json.Unmarshal([]byte(jsonData), &node); err != nil {
			return fmt.Errorf("failed to parse tree: %w", err)
		}
		e.formatTreeTable(&node)
		return nil
	}
	e.formatKeyValueTable(data)
	return nil
}

func (e *ToolExecutor) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(e.options.Out)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatUpper
	return t
}

func (e *ToolExecutor) formatTreeTable(root *resulttree.Serialized) {
	t := e.newTable()
	t.AppendHeader(table.Row{"Node", "Status", "Environment", "Detail"})

	var walk func(n *resulttree.Serialized, depth int)
	walk = func(n *resulttree.Serialized, depth int) {
		name := strings.Repeat("  ", depth) + n.ShortID
		env := ""
		if n.EnvironmentState != "" {
			env = string(n.EnvironmentState)
		}
		t.AppendRow(table.Row{name, formatStatus(n.Status), env, firstLine(n.LongRepr)})
		for _, c := range n.ChildBranches {
			walk(c, depth+1)
		}
		for _, c := range n.ChildLeaves {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	t.Render()
}

func (e *ToolExecutor) formatKeyValueTable(data map[string]any) {
	t := e.newTable()
	t.AppendHeader(table.Row{"Property", "Value"})
	for _, key := range sortedKeys(data) {
		t.AppendRow(table.Row{text.FgHiCyan.Sprint(key), fmt.Sprint(data[key])})
	}
	t.Render()
}

func formatStatus(s resulttree.Status) string {
	switch s {
	case resulttree.StatusPassed:
		return text.FgGreen.Sprint(s.String())
	case resulttree.StatusFailed:
		return text.FgRed.Sprint(s.String())
	case resulttree.StatusSkipped:
		return text.FgYellow.Sprint(s.String())
	case resulttree.StatusRunning:
		return text.FgHiBlue.Sprint(s.String())
	default:
		return text.FgHiBlack.Sprint(s.String())
	}
}

// firstLine shortens a failure detail to its first line for a table cell.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return runewidth.Truncate(s, 60, "...")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
