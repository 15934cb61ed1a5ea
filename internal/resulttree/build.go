package resulttree

import (
	"fmt"
	"path/filepath"
	"strings"

	"testctl/internal/nodeid"
)

// BuildFromItems builds a tree from a flat list of collected test ids.
// Every item must lie under prefix; the returned branch has prefix as its
// identifier. Intermediate branches are created on demand and shared between
// items with a common leading path.
func BuildFromItems(items []string, prefix nodeid.ID, opts Options) (*BranchNode, error) {
	root := opts.newBranch(prefix, rootShortID(prefix, opts.RootDir))

	for _, raw := range items {
		itemID, err := nodeid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: item %q: %v", ErrStructural, raw, err)
		}
		if itemID.IsRoot() {
			return nil, fmt.Errorf("%w: item %q has no fragments", ErrStructural, raw)
		}
		if !itemID.HasPrefix(prefix) || itemID.Len() == prefix.Len() {
			return nil, fmt.Errorf("%w: item %q is not below %q", ErrStructural, raw, prefix)
		}

		parent, err := ensureBranch(root, itemID, itemID.Len()-1, opts)
		if err != nil {
			return nil, err
		}
		parent.AddLeaf(NewLeaf(itemID))
	}

	return root, nil
}

// ensureBranch walks from start down to the branch made of the first depth
// fragments of id, creating missing branches along the way.
func ensureBranch(start *BranchNode, id nodeid.ID, depth int, opts Options) (*BranchNode, error) {
	node := start
	frags := id.Fragments()
	for i := start.ID().Len(); i < depth; i++ {
		short := frags[i].Value
		child, ok := node.branches.get(short)
		if !ok {
			if _, clash := node.leaves.get(short); clash {
				return nil, fmt.Errorf("%w: %q is both a test and a group", ErrStructural, id.Prefix(i+1))
			}
			child = opts.newBranch(id.Prefix(i+1), "")
			node.AddBranch(child)
		}
		node = child
	}
	return node, nil
}

// BuildFromLeaf wraps a single leaf in the chain of branches leading to it
// from prefix.
func BuildFromLeaf(leaf *LeafNode, prefix nodeid.ID, opts Options) (*BranchNode, error) {
	if !leaf.ID().HasPrefix(prefix) || leaf.ID().Len() == prefix.Len() {
		return nil, fmt.Errorf("%w: leaf %q is not below %q", ErrStructural, leaf.ID(), prefix)
	}
	root := opts.newBranch(prefix, rootShortID(prefix, opts.RootDir))
	parent, err := ensureBranch(root, leaf.ID(), leaf.ID().Len()-1, opts)
	if err != nil {
		return nil, err
	}
	parent.AddLeaf(leaf)
	return root, nil
}

func rootShortID(prefix nodeid.ID, rootDir string) string {
	if !prefix.IsRoot() || rootDir == "" {
		return ""
	}
	return filepath.Base(strings.TrimRight(rootDir, string(filepath.Separator)))
}
