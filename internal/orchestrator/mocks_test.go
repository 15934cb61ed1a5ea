package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"testctl/internal/environment"
	"testctl/internal/events"
	"testctl/internal/framework"
	"testctl/internal/nodeid"
	"testctl/internal/resulttree"
)

// mockFramework answers collections by path and replays a scripted stream
// for runs.
type mockFramework struct {
	mu          sync.Mutex
	collections map[string]*framework.Collection
	script      []framework.Message
	runErr      error
	targets     []string
}

func newMockFramework() *mockFramework {
	return &mockFramework{collections: make(map[string]*framework.Collection)}
}

func (m *mockFramework) setCollection(path string, items ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[path] = &framework.Collection{Outcome: "passed", Items: items}
}

func (m *mockFramework) setScript(msgs ...framework.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = msgs
}

func (m *mockFramework) Collect(_ context.Context, path, _ string) (*framework.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collections[path], nil
}

func (m *mockFramework) Run(ctx context.Context, target nodeid.ID, _ string, emit func(framework.Message)) error {
	m.mu.Lock()
	m.targets = append(m.targets, target.String())
	script := append([]framework.Message(nil), m.script...)
	err := m.runErr
	m.mu.Unlock()

	for _, msg := range script {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		emit(msg)
	}
	return err
}

func collection(items ...string) framework.Message {
	return framework.Message{Kind: framework.KindCollection, Collection: &framework.Collection{Outcome: "passed", Items: items}}
}

func report(id, outcome, detail string) framework.Message {
	return framework.Message{Kind: framework.KindReport, Report: &framework.Report{NodeID: id, Outcome: outcome, When: "call", Detail: detail}}
}

type mockProcess struct{}

func (mockProcess) Wait() error { return nil }

type mockLauncher struct {
	mu      sync.Mutex
	ups     int
	downs   int
	downErr error
}

func (l *mockLauncher) Up(string) (environment.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ups++
	return mockProcess{}, nil
}

func (l *mockLauncher) counts() (ups, downs int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ups, l.downs
}

func (l *mockLauncher) Down(string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.downs++
	return l.downErr
}

type harness struct {
	root     string
	fw       *mockFramework
	launcher *mockLauncher
	o        *Orchestrator
	updates  *events.EventSubscription
}

// newHarness creates an orchestrator over a temporary directory holding the
// files implied by items.
func newHarness(t *testing.T, mode WatchMode, items ...string) *harness {
	t.Helper()
	root := t.TempDir()
	for _, item := range items {
		file := filepath.Join(root, filepath.FromSlash(nodeid.MustParse(item).PathPortion()))
		require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
		require.NoError(t, os.WriteFile(file, []byte("def test(): pass\n"), 0o644))
	}

	fw := newMockFramework()
	fw.setCollection(root, items...)
	launcher := &mockLauncher{}
	opts := resulttree.Options{Environments: &environment.Provider{Launcher: launcher}}
	cfg := Config{
		RootDir:         root,
		WatchMode:       mode,
		PollInterval:    time.Millisecond,
		MaxPollInterval: 5 * time.Millisecond,
	}
	o := New(cfg, fw, opts, nil)
	h := &harness{
		root:     root,
		fw:       fw,
		launcher: launcher,
		o:        o,
		updates:  o.EventBus().SubscribeChannel(events.FilterByType(events.EventTypeTreeUpdate), 1000),
	}
	t.Cleanup(func() {
		_ = o.Stop(context.Background())
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.o.Start(context.Background()))
}

// drainUpdates returns the updates published so far. A GetTree round trip
// first flushes tasks already posted to the loop.
func (h *harness) drainUpdates(t *testing.T) []*events.UpdateEvent {
	t.Helper()
	_, err := h.o.GetTree(context.Background())
	require.NoError(t, err)

	var out []*events.UpdateEvent
	for {
		select {
		case ev := <-h.updates.Channel:
			out = append(out, ev.(*events.UpdateEvent))
		default:
			return out
		}
	}
}

func (h *harness) node(t *testing.T, id string) *resulttree.Serialized {
	t.Helper()
	n, err := h.o.GetNode(context.Background(), id)
	require.NoError(t, err)
	return n
}

func writeDescriptor(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, environment.DefaultDescriptor), []byte("services: {}\n"), 0o644))
}
