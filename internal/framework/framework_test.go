package framework

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testctl/internal/nodeid"
)

func TestDecodeLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		ok      bool
		wantErr bool
		check   func(t *testing.T, msg Message)
	}{
		{
			name: "collection",
			line: `{"kind":"collection","outcome":"passed","items":["a.py::t1","a.py::t2"]}`,
			ok:   true,
			check: func(t *testing.T, msg Message) {
				require.NotNil(t, msg.Collection)
				assert.Equal(t, []string{"a.py::t1", "a.py::t2"}, msg.Collection.Items)
				assert.False(t, msg.Collection.Failed())
			},
		},
		{
			name: "failed collection",
			line: `{"kind":"collection","outcome":"failed","failure_nodeid":"b.py","longrepr":"SyntaxError"}`,
			ok:   true,
			check: func(t *testing.T, msg Message) {
				assert.True(t, msg.Collection.Failed())
				assert.Equal(t, "b.py", msg.Collection.FailureID)
				assert.Equal(t, "SyntaxError", msg.Collection.Detail)
			},
		},
		{
			name: "report",
			line: `  {"kind":"report","nodeid":"a.py::t1","outcome":"failed","when":"call","longrepr":"assert 0"}`,
			ok:   true,
			check: func(t *testing.T, msg Message) {
				require.NotNil(t, msg.Report)
				assert.Equal(t, "a.py::t1", msg.Report.NodeID)
				assert.Equal(t, "assert 0", msg.Report.Detail)
			},
		},
		{name: "done", line: `{"kind":"done"}`, ok: true},
		{name: "framework output", line: "============ 2 passed ============", ok: false},
		{name: "other json", line: `{"hello":"world"}`, ok: false},
		{name: "broken json", line: `{"kind":`, ok: false},
		{name: "report without outcome", line: `{"kind":"report","nodeid":"a.py::t1"}`, ok: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok, err := decodeLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.ok, ok)
			if tt.check != nil {
				tt.check(t, msg)
			}
		})
	}
}

func TestReport_Relevant(t *testing.T) {
	assert.True(t, (&Report{Outcome: "passed", When: "call"}).Relevant())
	assert.False(t, (&Report{Outcome: "passed", When: "setup"}).Relevant())
	assert.False(t, (&Report{Outcome: "passed", When: "teardown"}).Relevant())
	assert.True(t, (&Report{Outcome: "failed", When: "setup"}).Relevant())
	assert.True(t, (&Report{Outcome: "skipped", When: "setup"}).Relevant())
}

func shellCommand(script string) []string {
	return []string{"sh", "-c", script, "sh", "{path}", "{rootdir}", "{target}"}
}

func TestCommand_Collect(t *testing.T) {
	root := t.TempDir()
	c := &Command{
		CollectArgs: shellCommand(`echo "collecting $1 under $2"; echo '{"kind":"collection","outcome":"passed","items":["a.py::t1"]}'`),
	}

	coll, err := c.Collect(context.Background(), filepath.Join(root, "a.py"), root)
	require.NoError(t, err)
	require.NotNil(t, coll)
	assert.Equal(t, []string{"a.py::t1"}, coll.Items)
}

func TestCommand_CollectExitErrorKeepsResult(t *testing.T) {
	root := t.TempDir()
	c := &Command{
		CollectArgs: shellCommand(`echo '{"kind":"collection","outcome":"failed","failure_nodeid":"a.py"}'; echo oops >&2; exit 2`),
	}

	coll, err := c.Collect(context.Background(), root, root)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.ExitCode)
	assert.Equal(t, "oops", exitErr.Stderr)
	require.NotNil(t, coll)
	assert.Equal(t, "a.py", coll.FailureID)
}

func TestCommand_RunFiltersAndExpands(t *testing.T) {
	root := t.TempDir()
	script := strings.Join([]string{
		`echo "{\"kind\":\"collection\",\"items\":[\"$3\"]}"`,
		`echo '{"kind":"report","nodeid":"a.py::t1","outcome":"passed","when":"setup"}'`,
		`echo '{"kind":"report","nodeid":"a.py::t1","outcome":"failed","when":"call","longrepr":"boom"}'`,
		`echo '{"kind":"report","nodeid":"a.py::t1","outcome":"passed","when":"teardown"}'`,
		`exit 1`,
	}, "\n")
	c := &Command{RunArgs: shellCommand(script)}

	var got []Message
	err := c.Run(context.Background(), nodeid.MustParse("a.py::t1"), root, func(m Message) {
		got = append(got, m)
	})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, KindCollection, got[0].Kind)
	assert.Equal(t, []string{"a.py::t1"}, got[0].Collection.Items)
	assert.Equal(t, KindReport, got[1].Kind)
	assert.Equal(t, "boom", got[1].Report.Detail)
}

func TestCommand_StartFailure(t *testing.T) {
	c := &Command{CollectArgs: []string{"/definitely/not/a/binary"}}
	_, err := c.Collect(context.Background(), t.TempDir(), t.TempDir())
	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))

	_, err = (&Command{}).Collect(context.Background(), "", "")
	assert.Error(t, err)
}

func TestCommand_Env(t *testing.T) {
	root := t.TempDir()
	c := &Command{
		CollectArgs: shellCommand(`echo "{\"kind\":\"collection\",\"items\":[\"$TESTCTL_ITEM\"]}"`),
		Env:         map[string]string{"TESTCTL_ITEM": "x.py::t"},
	}
	coll, err := c.Collect(context.Background(), root, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.py::t"}, coll.Items)
}

func TestInstallPytestPlugin(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plugins")
	require.NoError(t, InstallPytestPlugin(dir))
	require.NoError(t, InstallPytestPlugin(dir))

	data, err := os.ReadFile(filepath.Join(dir, PytestPluginModule+".py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "pytest_runtest_logreport")
}

func TestNewPytest(t *testing.T) {
	c := NewPytest(nil, nil, map[string]string{"PYTHONPATH": "/src"}, "/plugins")
	assert.Equal(t, DefaultCollectArgs, c.CollectArgs)
	assert.Equal(t, DefaultRunArgs, c.RunArgs)
	assert.Equal(t, "/plugins"+string(os.PathListSeparator)+"/src", c.Env["PYTHONPATH"])

	custom := NewPytest([]string{"tox"}, []string{"tox", "run"}, nil, "")
	assert.Equal(t, []string{"tox"}, custom.CollectArgs)
	_, set := custom.Env["PYTHONPATH"]
	assert.False(t, set)
}
