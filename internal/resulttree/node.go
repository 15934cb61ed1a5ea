package resulttree

import (
	"errors"
	"fmt"
	"strings"

	"testctl/internal/environment"
	"testctl/internal/nodeid"
)

var (
	ErrNotFound      = errors.New("node not found")
	ErrStructural    = errors.New("invalid tree structure")
	ErrInvalidStatus = errors.New("status cannot be set directly")
	ErrNotBranch     = errors.New("node is not a branch")
)

// Node is either a *BranchNode or a *LeafNode. Call sites that need
// variant-specific fields use a type switch.
type Node interface {
	ID() nodeid.ID
	ShortID() string
	Status() Status
	// PrettyFormat renders the node and its descendants for debugging.
	PrettyFormat() string

	sealed()
}

// EnvironmentProvider attaches an environment to branches that map to a
// directory. It returns nil when the location is not a directory.
type EnvironmentProvider interface {
	ForDir(dir string) *environment.Environment
}

// Options carries what tree construction needs to know about the world.
type Options struct {
	RootDir      string
	Environments EnvironmentProvider
}

func (o Options) newBranch(id nodeid.ID, shortID string) *BranchNode {
	b := &BranchNode{
		id:       id,
		shortID:  shortID,
		fspath:   id.FSPath(o.RootDir),
		branches: newChildSet[*BranchNode](),
		leaves:   newChildSet[*LeafNode](),
	}
	if o.Environments != nil && id.IsPathOnly() {
		b.env = o.Environments.ForDir(b.fspath)
	}
	return b
}

// BranchNode groups tests: a directory, module, class or parameter group.
type BranchNode struct {
	id       nodeid.ID
	shortID  string
	fspath   string
	branches *childSet[*BranchNode]
	leaves   *childSet[*LeafNode]
	env      *environment.Environment
}

// NewBranch creates an empty branch.
func NewBranch(id nodeid.ID, opts Options) *BranchNode {
	return opts.newBranch(id, id.ShortID())
}

func (b *BranchNode) sealed() {}

func (b *BranchNode) ID() nodeid.ID { return b.id }

func (b *BranchNode) ShortID() string {
	if b.shortID != "" {
		return b.shortID
	}
	return b.id.ShortID()
}

// FSPath is the filesystem location the branch corresponds to.
func (b *BranchNode) FSPath() string { return b.fspath }

// Environment returns the attached environment, or nil.
func (b *BranchNode) Environment() *environment.Environment { return b.env }

// EnvironmentState is StateInactive when no environment is attached.
func (b *BranchNode) EnvironmentState() environment.State {
	if b.env == nil {
		return environment.StateInactive
	}
	return b.env.State()
}

// Branch returns the child branch with the given short id.
func (b *BranchNode) Branch(shortID string) (*BranchNode, bool) {
	return b.branches.get(shortID)
}

// Leaf returns the child leaf with the given short id.
func (b *BranchNode) Leaf(shortID string) (*LeafNode, bool) {
	return b.leaves.get(shortID)
}

// Branches returns child branches in insertion order.
func (b *BranchNode) Branches() []*BranchNode { return b.branches.values() }

// Leaves returns child leaves in insertion order.
func (b *BranchNode) Leaves() []*LeafNode { return b.leaves.values() }

// Children returns branches followed by leaves, each in insertion order.
func (b *BranchNode) Children() []Node {
	out := make([]Node, 0, b.branches.len()+b.leaves.len())
	for _, c := range b.branches.values() {
		out = append(out, c)
	}
	for _, c := range b.leaves.values() {
		out = append(out, c)
	}
	return out
}

// Len is the number of direct children.
func (b *BranchNode) Len() int {
	return b.branches.len() + b.leaves.len()
}

// AddBranch attaches a child branch, replacing any branch with the same
// short id.
func (b *BranchNode) AddBranch(child *BranchNode) {
	b.branches.set(child.ShortID(), child)
}

// AddLeaf attaches a child leaf, replacing any leaf with the same short id.
func (b *BranchNode) AddLeaf(child *LeafNode) {
	b.leaves.set(child.ShortID(), child)
}

// Status is the highest precedence status among all children, or
// StatusInit when there are none.
func (b *BranchNode) Status() Status {
	out := StatusInit
	for _, c := range b.Children() {
		out = highest(out, c.Status())
	}
	return out
}

// SetStatus assigns s to every descendant leaf.
func (b *BranchNode) SetStatus(s Status) {
	for _, c := range b.branches.values() {
		c.SetStatus(s)
	}
	for _, l := range b.leaves.values() {
		l.assign(s)
	}
}

func (b *BranchNode) String() string {
	return fmt.Sprintf("BranchNode <%s %s>", b.id, b.Status())
}

func (b *BranchNode) PrettyFormat() string {
	var sb strings.Builder
	b.prettyFormat(&sb, 0)
	return strings.TrimRight(sb.String(), "\n")
}

func (b *BranchNode) prettyFormat(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(b.String())
	sb.WriteString("\n")
	for _, c := range b.branches.values() {
		c.prettyFormat(sb, depth+1)
	}
	for _, l := range b.leaves.values() {
		sb.WriteString(strings.Repeat("  ", depth+1))
		sb.WriteString(l.String())
		sb.WriteString("\n")
	}
}

// LeafNode is a single test case.
type LeafNode struct {
	id     nodeid.ID
	status Status
	detail string
}

// NewLeaf creates a leaf in StatusInit.
func NewLeaf(id nodeid.ID) *LeafNode {
	return &LeafNode{id: id}
}

func (l *LeafNode) sealed() {}

func (l *LeafNode) ID() nodeid.ID   { return l.id }
func (l *LeafNode) ShortID() string { return l.id.ShortID() }
func (l *LeafNode) Status() Status  { return l.status }

// Detail is the failure detail of the last report, if any.
func (l *LeafNode) Detail() string { return l.detail }

// SetStatus is the externally settable path: only StatusInit and
// StatusRunning are accepted. StatusRunning clears the previous failure
// detail.
func (l *LeafNode) SetStatus(s Status) error {
	if s != StatusInit && s != StatusRunning {
		return fmt.Errorf("%w: %s on %s", ErrInvalidStatus, s, l.id)
	}
	l.assign(s)
	return nil
}

// ApplyReport records the outcome of a test report.
func (l *LeafNode) ApplyReport(s Status, detail string) {
	l.status = s
	l.detail = detail
}

func (l *LeafNode) assign(s Status) {
	if s == StatusRunning {
		l.detail = ""
	}
	l.status = s
}

func (l *LeafNode) String() string {
	return fmt.Sprintf("LeafNode <%s %s>", l.id, l.status)
}

func (l *LeafNode) PrettyFormat() string {
	return l.String()
}

// SetStatus applies s to any node, enforcing the leaf restrictions.
func SetStatus(n Node, s Status) error {
	switch n := n.(type) {
	case *BranchNode:
		n.SetStatus(s)
		return nil
	case *LeafNode:
		return n.SetStatus(s)
	default:
		return fmt.Errorf("%w: unexpected node type %T", ErrStructural, n)
	}
}

// Environments returns every environment attached to n or its descendants.
func Environments(n Node) []*environment.Environment {
	b, ok := n.(*BranchNode)
	if !ok {
		return nil
	}
	var out []*environment.Environment
	if b.env != nil {
		out = append(out, b.env)
	}
	for _, c := range b.branches.values() {
		out = append(out, Environments(c)...)
	}
	return out
}
