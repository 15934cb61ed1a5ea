package resulttree

import (
	"bytes"
	"encoding/json"
	"fmt"

	"testctl/internal/environment"
	"testctl/internal/nodeid"
)

// Serialized is the transport shape of a node. Leaves leave the branch-only
// fields empty.
type Serialized struct {
	NodeID           string            `json:"nodeid"`
	ShortID          string            `json:"short_id"`
	Status           Status            `json:"status"`
	LongRepr         string            `json:"longrepr,omitempty"`
	EnvironmentState environment.State `json:"environment_state,omitempty"`
	ChildBranches    Children          `json:"child_branches,omitempty"`
	ChildLeaves      Children          `json:"child_leaves,omitempty"`
}

// Children marshals as a JSON object keyed by short id, keeping the slice
// order.
type Children []*Serialized

func (c Children) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, child := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(child.ShortID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(child)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object form written by MarshalJSON, keeping the
// key order of the document.
func (c *Children) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("children: expected object, got %v", tok)
	}

	out := Children{}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return err
		}
		var child Serialized
		if err := dec.Decode(&child); err != nil {
			return err
		}
		out = append(out, &child)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// Serialize renders n and all of its descendants.
func Serialize(n Node) *Serialized {
	switch n := n.(type) {
	case *LeafNode:
		return serializeLeaf(n)
	case *BranchNode:
		out := serializeShallow(n)
		out.ChildBranches = make(Children, 0, n.branches.len())
		for _, c := range n.branches.values() {
			out.ChildBranches = append(out.ChildBranches, Serialize(c))
		}
		out.ChildLeaves = make(Children, 0, n.leaves.len())
		for _, l := range n.leaves.values() {
			out.ChildLeaves = append(out.ChildLeaves, serializeLeaf(l))
		}
		return out
	default:
		return nil
	}
}

// SerializeSlice renders the chain from the root down to id. Every
// ancestor carries only the next link of the chain; the node at id is
// rendered in full.
func SerializeSlice(t *Tree, id nodeid.ID) (*Serialized, error) {
	target, err := t.Lookup(id)
	if err != nil {
		return nil, err
	}
	if id.IsRoot() {
		return Serialize(target), nil
	}

	out := serializeShallow(t.root)
	cur := out
	node := t.root
	frags := id.Fragments()
	for _, f := range frags[:len(frags)-1] {
		next, ok := node.branches.get(f.Value)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		link := serializeShallow(next)
		cur.ChildBranches = Children{link}
		cur, node = link, next
	}

	switch target.(type) {
	case *BranchNode:
		cur.ChildBranches = Children{Serialize(target)}
	case *LeafNode:
		cur.ChildLeaves = Children{Serialize(target)}
	}
	return out, nil
}

func serializeShallow(b *BranchNode) *Serialized {
	return &Serialized{
		NodeID:           b.id.String(),
		ShortID:          b.ShortID(),
		Status:           b.Status(),
		EnvironmentState: b.EnvironmentState(),
	}
}

func serializeLeaf(l *LeafNode) *Serialized {
	return &Serialized{
		NodeID:   l.id.String(),
		ShortID:  l.ShortID(),
		Status:   l.status,
		LongRepr: l.detail,
	}
}
