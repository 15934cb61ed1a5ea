package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"testctl/internal/framework"
	"testctl/internal/nodeid"
	"testctl/internal/resulttree"
	"testctl/pkg/logging"
)

// ErrNoFailureID is returned for a failed collection that names nothing.
var ErrNoFailureID = errors.New("failed collection without an identifier")

// Collector turns framework collections into result tree fragments.
type Collector struct {
	fw   framework.Framework
	opts resulttree.Options
}

func New(fw framework.Framework, opts resulttree.Options) *Collector {
	return &Collector{fw: fw, opts: opts}
}

// Options returns the tree options fragments are built with.
func (c *Collector) Options() resulttree.Options { return c.opts }

// Collect discovers the tests under path, which must lie under the root
// directory. It returns the branch for path. When a collection step failed
// the failure shows up as a leaf beside the tests that were collected, or
// replaces the branch entirely when nothing was collected. The node is nil
// when the framework produced no collection at all.
func (c *Collector) Collect(ctx context.Context, path string) (resulttree.Node, error) {
	id, err := nodeid.FromPath(path, c.opts.RootDir)
	if err != nil {
		return nil, err
	}

	coll, err := c.fw.Collect(ctx, path, c.opts.RootDir)
	if err != nil {
		var exitErr *framework.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to collect tests from %s: %w", path, err)
		}
		logging.Warn("Collector", "Failed to collect tests from %s: %v", path, exitErr)
	}
	if coll == nil {
		logging.Warn("Collector", "No collection report for %s", path)
		return nil, nil
	}

	if coll.Failed() {
		if len(coll.Items) == 0 {
			return c.failedLeaf(coll, id)
		}
		tree, err := c.build(coll, id)
		if err != nil {
			return nil, err
		}
		return tree.Lookup(id)
	}
	branch, err := resulttree.BuildFromItems(coll.Items, id, c.opts)
	if err != nil {
		return nil, err
	}
	return branch, nil
}

// RunFragment is the first fragment folded into the tree during a run: the
// subtree rooted at target, or the failed pseudo-leaf if collection failed
// without collecting anything. The node is nil when target is absent from
// the collection.
func (c *Collector) RunFragment(coll *framework.Collection, target nodeid.ID) (resulttree.Node, error) {
	if coll.Failed() && len(coll.Items) == 0 {
		return c.failedLeaf(coll, target)
	}

	tree, err := c.build(coll, target)
	if err != nil {
		return nil, err
	}
	if target.IsRoot() {
		return tree.Root(), nil
	}
	node, err := tree.Lookup(target)
	if errors.Is(err, resulttree.ErrNotFound) {
		return nil, nil
	}
	return node, err
}

// build assembles the collected items into a scratch tree. A failure reported
// next to the items is grafted in as a failed leaf when it lies strictly
// below scope.
func (c *Collector) build(coll *framework.Collection, scope nodeid.ID) (*resulttree.Tree, error) {
	root, err := resulttree.BuildFromItems(coll.Items, nodeid.Root, c.opts)
	if err != nil {
		return nil, err
	}
	tree := resulttree.NewTree(c.opts)
	if err := tree.Merge(root); err != nil {
		return nil, err
	}
	if !coll.Failed() {
		return tree, nil
	}

	leaf, err := c.failedLeaf(coll, nodeid.Root)
	if err != nil || !leaf.ID().HasPrefix(scope) || leaf.ID().Equal(scope) {
		logging.Warn("Collector", "Collection of %s failed at %q: %s", displayScope(scope), coll.FailureID, firstLine(coll.Detail))
		return tree, nil
	}
	if err := tree.Merge(leaf); err != nil {
		return nil, err
	}
	return tree, nil
}

func displayScope(id nodeid.ID) string {
	if id.IsRoot() {
		return "the root directory"
	}
	return id.String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func (c *Collector) failedLeaf(coll *framework.Collection, fallback nodeid.ID) (resulttree.Node, error) {
	raw := coll.FailureID
	if raw == "" {
		if fallback.IsRoot() {
			return nil, ErrNoFailureID
		}
		raw = fallback.String()
	}
	failureID, err := nodeid.Parse(raw)
	if err != nil {
		return nil, err
	}
	if failureID.IsRoot() {
		return nil, ErrNoFailureID
	}

	status, err := resulttree.ParseStatus(coll.Outcome)
	if err != nil {
		status = resulttree.StatusFailed
	}
	leaf := resulttree.NewLeaf(failureID)
	leaf.ApplyReport(status, coll.Detail)
	return leaf, nil
}
