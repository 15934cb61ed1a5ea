package resulttree

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"testctl/internal/environment"
	"testctl/internal/nodeid"
)

// Tree is the live result tree together with an identifier index. It is
// not safe for concurrent use: every call must come from the goroutine
// that owns the tree.
type Tree struct {
	root     *BranchNode
	index    map[string]Node
	opts     Options
	detached func([]*environment.Environment)
}

// NewTree creates a tree holding only the root branch.
func NewTree(opts Options) *Tree {
	t := &Tree{
		root:  opts.newBranch(nodeid.Root, rootShortID(nodeid.Root, opts.RootDir)),
		index: make(map[string]Node),
		opts:  opts,
	}
	t.index[nodeid.Root.String()] = t.root
	return t
}

// Root returns the root branch.
func (t *Tree) Root() *BranchNode { return t.root }

// OnDetach registers fn to receive the environments of branches that leave
// the tree through Merge, Remove or pruning. Environments carried over to a
// branch with the same identifier stay attached and are not reported. fn
// runs on the goroutine that mutates the tree.
func (t *Tree) OnDetach(fn func(envs []*environment.Environment)) { t.detached = fn }

func (t *Tree) detach(envs []*environment.Environment) {
	if t.detached != nil && len(envs) > 0 {
		t.detached(envs)
	}
}

// Options returns the options used to create branches in this tree.
func (t *Tree) Options() Options { return t.opts }

// Len is the number of indexed nodes, including the root.
func (t *Tree) Len() int { return len(t.index) }

// Lookup finds a node through the index.
func (t *Tree) Lookup(id nodeid.ID) (Node, error) {
	n, ok := t.index[id.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return n, nil
}

// LookupBranch finds a branch through the index.
func (t *Tree) LookupBranch(id nodeid.ID) (*BranchNode, error) {
	n, err := t.Lookup(id)
	if err != nil {
		return nil, err
	}
	b, ok := n.(*BranchNode)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotBranch, id)
	}
	return b, nil
}

// Walk finds a node by descending fragment by fragment through child
// branches, falling back to child leaves on the final fragment.
func (t *Tree) Walk(id nodeid.ID) (Node, error) {
	node := t.root
	frags := id.Fragments()
	for i, f := range frags {
		if child, ok := node.branches.get(f.Value); ok {
			node = child
			continue
		}
		if i == len(frags)-1 {
			if leaf, ok := node.leaves.get(f.Value); ok {
				return leaf, nil
			}
		}
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return node, nil
}

// Merge replaces the subtree at the incoming node's identifier.
//
// For a branch, the live branch with the same identifier is located (and
// created along the path if needed) and its children are replaced wholesale
// by the incoming children. Grandchildren are not merged recursively. An
// incoming branch without children removes the identifier instead.
//
// For a leaf, the entry in its parent branch is replaced.
func (t *Tree) Merge(incoming Node) error {
	switch n := incoming.(type) {
	case *BranchNode:
		return t.mergeBranch(n)
	case *LeafNode:
		return t.mergeLeaf(n)
	default:
		return fmt.Errorf("%w: cannot merge %T", ErrStructural, incoming)
	}
}

func (t *Tree) mergeBranch(incoming *BranchNode) error {
	id := incoming.ID()

	if incoming.Len() == 0 && !id.IsRoot() {
		if _, err := t.Lookup(id); errors.Is(err, ErrNotFound) {
			return nil
		}
		_, err := t.Remove(id)
		return err
	}

	target, err := t.ensurePath(id)
	if err != nil {
		return err
	}

	envs := make(map[string]*environment.Environment)
	for _, c := range target.Children() {
		collectEnvironments(c, envs)
		t.unindex(c)
	}

	target.branches = incoming.branches
	target.leaves = incoming.leaves

	for _, c := range target.Children() {
		restoreEnvironments(c, envs)
		t.reindex(c)
	}

	orphaned := make([]*environment.Environment, 0, len(envs))
	for _, key := range slices.Sorted(maps.Keys(envs)) {
		orphaned = append(orphaned, envs[key])
	}
	t.detach(orphaned)
	return nil
}

func (t *Tree) mergeLeaf(incoming *LeafNode) error {
	parentID, err := incoming.ID().Parent()
	if err != nil {
		return fmt.Errorf("%w: leaf without parent: %v", ErrStructural, err)
	}
	parent, err := t.ensurePath(parentID)
	if err != nil {
		return err
	}

	short := incoming.ShortID()
	if old, ok := parent.branches.remove(short); ok {
		t.unindex(old)
		t.detach(Environments(old))
	}
	parent.AddLeaf(incoming)
	t.index[incoming.ID().String()] = incoming
	return nil
}

// ensurePath returns the branch at id, creating branches along the path.
// A leaf standing where a branch is needed is replaced.
func (t *Tree) ensurePath(id nodeid.ID) (*BranchNode, error) {
	node := t.root
	frags := id.Fragments()
	for i, f := range frags {
		child, ok := node.branches.get(f.Value)
		if !ok {
			if old, clash := node.leaves.remove(f.Value); clash {
				t.unindex(old)
			}
			child = t.opts.newBranch(id.Prefix(i+1), "")
			node.AddBranch(child)
			t.index[child.ID().String()] = child
		}
		node = child
	}
	return node, nil
}

// Remove detaches the node at id from its parent, then prunes every
// ancestor branch left without children. The root is never removed.
func (t *Tree) Remove(id nodeid.ID) (Node, error) {
	if id.IsRoot() {
		return nil, fmt.Errorf("%w: the root cannot be removed", ErrStructural)
	}
	node, err := t.Lookup(id)
	if err != nil {
		return nil, err
	}
	parentID, err := id.Parent()
	if err != nil {
		return nil, err
	}
	parent, err := t.LookupBranch(parentID)
	if err != nil {
		return nil, err
	}

	switch n := node.(type) {
	case *BranchNode:
		parent.branches.remove(n.ShortID())
	case *LeafNode:
		parent.leaves.remove(n.ShortID())
	}
	t.unindex(node)
	t.detach(append(Environments(node), t.prune(parent)...))
	return node, nil
}

// prune removes b and its ancestors while they are empty and returns the
// environments of the pruned branches.
func (t *Tree) prune(b *BranchNode) []*environment.Environment {
	var envs []*environment.Environment
	for b != t.root && b.Len() == 0 {
		parentID, err := b.ID().Parent()
		if err != nil {
			break
		}
		parent, err := t.LookupBranch(parentID)
		if err != nil {
			break
		}
		parent.branches.remove(b.ShortID())
		delete(t.index, b.ID().String())
		if b.env != nil {
			envs = append(envs, b.env)
		}
		b = parent
	}
	return envs
}

func (t *Tree) reindex(n Node) {
	t.index[n.ID().String()] = n
	if b, ok := n.(*BranchNode); ok {
		for _, c := range b.Children() {
			t.reindex(c)
		}
	}
}

func (t *Tree) unindex(n Node) {
	delete(t.index, n.ID().String())
	if b, ok := n.(*BranchNode); ok {
		for _, c := range b.Children() {
			t.unindex(c)
		}
	}
}

// verifyIndex checks that the index holds exactly the reachable nodes.
func (t *Tree) verifyIndex() error {
	seen := 0
	var visit func(n Node) error
	visit = func(n Node) error {
		seen++
		indexed, ok := t.index[n.ID().String()]
		if !ok || indexed != n {
			return fmt.Errorf("node %q missing from index", n.ID())
		}
		if b, ok := n.(*BranchNode); ok {
			for _, c := range b.Children() {
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := visit(t.root); err != nil {
		return err
	}
	if seen != len(t.index) {
		return fmt.Errorf("index holds %d entries for %d reachable nodes", len(t.index), seen)
	}
	return nil
}

func collectEnvironments(n Node, into map[string]*environment.Environment) {
	b, ok := n.(*BranchNode)
	if !ok {
		return
	}
	if b.env != nil {
		into[b.ID().String()] = b.env
	}
	for _, c := range b.branches.values() {
		collectEnvironments(c, into)
	}
}

func restoreEnvironments(n Node, from map[string]*environment.Environment) {
	b, ok := n.(*BranchNode)
	if !ok {
		return
	}
	if env, ok := from[b.ID().String()]; ok {
		b.env = env
		delete(from, b.ID().String())
	}
	for _, c := range b.branches.values() {
		restoreEnvironments(c, from)
	}
}
