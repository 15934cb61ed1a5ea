package reconciler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testctl/internal/nodeid"
	"testctl/internal/resulttree"
	"testctl/internal/watcher"
)

const rootDir = "/work/project"

// inlineExecutor runs tasks on the calling goroutine.
type inlineExecutor struct {
	mu    sync.Mutex
	calls int
}

func (e *inlineExecutor) Do(_ context.Context, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return fn()
}

type fakeCollector struct {
	nodes map[string]resulttree.Node
	err   error
	paths []string
}

func (c *fakeCollector) Collect(_ context.Context, path string) (resulttree.Node, error) {
	c.paths = append(c.paths, path)
	if c.err != nil {
		return nil, c.err
	}
	return c.nodes[path], nil
}

type recorder struct {
	changed   []string
	collected []string
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		Changed:   func(id nodeid.ID) { r.changed = append(r.changed, id.String()) },
		Collected: func(n resulttree.Node) { r.collected = append(r.collected, n.ID().String()) },
	}
}

func newTree(t *testing.T, items ...string) *resulttree.Tree {
	t.Helper()
	opts := resulttree.Options{RootDir: rootDir}
	tree := resulttree.NewTree(opts)
	root, err := resulttree.BuildFromItems(items, nodeid.Root, opts)
	require.NoError(t, err)
	require.NoError(t, tree.Merge(root))
	return tree
}

func branch(t *testing.T, prefix string, items ...string) resulttree.Node {
	t.Helper()
	b, err := resulttree.BuildFromItems(items, nodeid.MustParse(prefix), resulttree.Options{RootDir: rootDir})
	require.NoError(t, err)
	return b
}

var pyFilter = Filter{Extensions: []string{".py"}, IgnoredDirs: []string{"__pycache__"}}

func TestFilter_Accept(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/work/project/test_a.py", true},
		{"/work/project/pkg/test_b.py", true},
		{"/work/project/README.md", false},
		{"/work/project/.hidden/test_a.py", false},
		{"/work/project/pkg/.test_a.py", false},
		{"/work/project/__pycache__/test_a.py", false},
		{"/work/project", false},
		{"/elsewhere/test_a.py", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, pyFilter.Accept(rootDir, tt.path))
		})
	}

	assert.True(t, Filter{}.Accept(rootDir, "/work/project/data.json"))
}

func TestFilter_Watched(t *testing.T) {
	assert.True(t, pyFilter.Watched(rootDir, "/work/project/pkg"))
	assert.True(t, pyFilter.Watched(rootDir, "/work/project/README.md"))
	assert.False(t, pyFilter.Watched(rootDir, "/work/project/.git"))
	assert.False(t, pyFilter.Watched(rootDir, "/work/project/pkg/__pycache__"))
	assert.False(t, pyFilter.Watched(rootDir, "/work/project"))
	assert.False(t, pyFilter.Watched(rootDir, "/elsewhere/pkg"))
}

func TestHandle_CreatedMergesCollection(t *testing.T) {
	tree := newTree(t, "test_a.py::t1")
	path := filepath.Join(rootDir, "test_b.py")
	coll := &fakeCollector{nodes: map[string]resulttree.Node{path: branch(t, "test_b.py", "test_b.py::t1")}}
	rec := &recorder{}
	r := New(rootDir, pyFilter, coll, &inlineExecutor{}, tree, rec.hooks())

	r.Handle(context.Background(), watcher.Event{Kind: watcher.Created, Path: path})

	_, err := tree.Lookup(nodeid.MustParse("test_b.py::t1"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"test_b.py"}, rec.changed)
	assert.Equal(t, []string{"test_b.py"}, rec.collected)
}

func TestHandle_ModifiedReplacesChildren(t *testing.T) {
	tree := newTree(t, "test_a.py::t1", "test_a.py::t2")
	path := filepath.Join(rootDir, "test_a.py")
	coll := &fakeCollector{nodes: map[string]resulttree.Node{path: branch(t, "test_a.py", "test_a.py::t3")}}
	r := New(rootDir, pyFilter, coll, &inlineExecutor{}, tree, Hooks{})

	r.Handle(context.Background(), watcher.Event{Kind: watcher.Modified, Path: path})

	a, err := tree.LookupBranch(nodeid.MustParse("test_a.py"))
	require.NoError(t, err)
	require.Len(t, a.Leaves(), 1)
	assert.Equal(t, "t3", a.Leaves()[0].ShortID())
}

func TestHandle_CollectErrorLeavesTreeAlone(t *testing.T) {
	tree := newTree(t, "test_a.py::t1")
	exec := &inlineExecutor{}
	r := New(rootDir, pyFilter, &fakeCollector{err: errors.New("python missing")}, exec, tree, Hooks{})

	r.Handle(context.Background(), watcher.Event{Kind: watcher.Modified, Path: filepath.Join(rootDir, "test_a.py")})

	assert.Equal(t, 0, exec.calls)
	assert.Equal(t, 3, tree.Len())
}

func TestHandle_NilCollectionIsSkipped(t *testing.T) {
	tree := newTree(t, "test_a.py::t1")
	exec := &inlineExecutor{}
	r := New(rootDir, pyFilter, &fakeCollector{}, exec, tree, Hooks{})

	r.Handle(context.Background(), watcher.Event{Kind: watcher.Created, Path: filepath.Join(rootDir, "helpers.py")})
	assert.Equal(t, 0, exec.calls)
}

func TestHandle_DeletedPrunes(t *testing.T) {
	tree := newTree(t, "pkg/test_a.py::t1", "test_b.py::t1")
	rec := &recorder{}
	r := New(rootDir, pyFilter, &fakeCollector{}, &inlineExecutor{}, tree, rec.hooks())

	r.Handle(context.Background(), watcher.Event{Kind: watcher.Deleted, Path: filepath.Join(rootDir, "pkg", "test_a.py")})

	_, err := tree.Lookup(nodeid.MustParse("pkg"))
	assert.True(t, errors.Is(err, resulttree.ErrNotFound))
	assert.Equal(t, []string{"pkg/test_a.py"}, rec.changed)
	assert.Equal(t, 3, tree.Len())
}

func TestHandle_DeleteUnknownIsDropped(t *testing.T) {
	tree := newTree(t, "test_a.py::t1")
	rec := &recorder{}
	r := New(rootDir, pyFilter, &fakeCollector{}, &inlineExecutor{}, tree, rec.hooks())

	r.Handle(context.Background(), watcher.Event{Kind: watcher.Deleted, Path: filepath.Join(rootDir, "never_collected.py")})

	assert.Empty(t, rec.changed)
	assert.Equal(t, 3, tree.Len())
}

func TestHandle_MovedDeletesThenCreates(t *testing.T) {
	tree := newTree(t, "test_old.py::t1")
	dest := filepath.Join(rootDir, "test_new.py")
	coll := &fakeCollector{nodes: map[string]resulttree.Node{dest: branch(t, "test_new.py", "test_new.py::t1")}}
	rec := &recorder{}
	r := New(rootDir, pyFilter, coll, &inlineExecutor{}, tree, rec.hooks())

	r.Handle(context.Background(), watcher.Event{Kind: watcher.Moved, Path: filepath.Join(rootDir, "test_old.py"), Dest: dest})

	_, err := tree.Lookup(nodeid.MustParse("test_old.py"))
	assert.True(t, errors.Is(err, resulttree.ErrNotFound))
	_, err = tree.Lookup(nodeid.MustParse("test_new.py::t1"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"test_old.py", "test_new.py"}, rec.changed)
}

func TestEnqueue_FiltersAndRunsInOrder(t *testing.T) {
	tree := newTree(t, "test_a.py::t1", "test_b.py::t1")
	coll := &fakeCollector{}
	rec := &recorder{}
	exec := &inlineExecutor{}
	r := New(rootDir, pyFilter, coll, exec, tree, rec.hooks())

	r.Enqueue(watcher.Event{Kind: watcher.Modified, Path: filepath.Join(rootDir, "notes.txt")})
	r.Enqueue(watcher.Event{Kind: watcher.Deleted, Path: filepath.Join(rootDir, "test_a.py")})
	r.Enqueue(watcher.Event{Kind: watcher.Deleted, Path: filepath.Join(rootDir, "__pycache__", "test_a.py")})
	r.Enqueue(watcher.Event{Kind: watcher.Deleted, Path: filepath.Join(rootDir, "test_b.py")})
	r.Close()

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after Close")
	}

	assert.Empty(t, coll.paths)
	assert.Equal(t, []string{"test_a.py", "test_b.py"}, rec.changed)
	assert.Equal(t, 1, tree.Len())
}

func TestEnqueue_DeletedDirectoryRemovesSubtree(t *testing.T) {
	tree := newTree(t, "test_a.py::t1", "pkg/test_b.py::t2", "pkg/sub/test_c.py::t3")
	rec := &recorder{}
	r := New(rootDir, pyFilter, &fakeCollector{}, &inlineExecutor{}, tree, rec.hooks())

	r.Enqueue(watcher.Event{Kind: watcher.Deleted, Path: filepath.Join(rootDir, "pkg")})
	r.Enqueue(watcher.Event{Kind: watcher.Deleted, Path: filepath.Join(rootDir, "notes")})
	r.Enqueue(watcher.Event{Kind: watcher.Deleted, Path: filepath.Join(rootDir, ".cache")})
	r.Close()
	r.Run(context.Background())

	for _, id := range []string{"pkg", "pkg/test_b.py::t2", "pkg/sub/test_c.py::t3"} {
		_, err := tree.Lookup(nodeid.MustParse(id))
		assert.True(t, errors.Is(err, resulttree.ErrNotFound), id)
	}
	_, err := tree.Lookup(nodeid.MustParse("test_a.py::t1"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"pkg"}, rec.changed)
	assert.Equal(t, 3, tree.Len())
}
