package nodeid

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// PathSeparator joins filesystem path segments.
	PathSeparator = "/"
	// GroupSeparator joins module, class and function segments.
	GroupSeparator = "::"

	paramOpen  = "["
	paramClose = "]"
)

var (
	ErrEmptyID      = errors.New("empty node id has no parent")
	ErrNotUnderRoot = errors.New("path is not within root directory")
	ErrUnknownKind  = errors.New("unknown fragment kind")
	ErrMalformed    = errors.New("malformed node id")
)

// Kind tags a fragment with the separator that precedes it.
type Kind int

const (
	PathSegment Kind = iota
	GroupSegment
	Parameter
)

func (k Kind) String() string {
	switch k {
	case PathSegment:
		return "path"
	case GroupSegment:
		return "group"
	case Parameter:
		return "parameter"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Fragment is a single component of an ID.
type Fragment struct {
	Value string
	Kind  Kind
}

// ID is a parsed, hierarchical test identifier such as
// "path/to/test_a.py::TestSuite::test_method[1]". The zero value is the
// root of the tree.
type ID struct {
	raw   string
	frags []Fragment
}

// Root is the identifier of the tree root.
var Root = ID{}

// Parse splits a raw identifier into fragments. A trailing "[...]" block is
// treated as a parameter of the preceding group segment, so parameter values
// may themselves contain separators.
func Parse(raw string) (ID, error) {
	if raw == "" {
		return Root, nil
	}

	rest, param, hasParam := splitParameter(raw)

	clusters := strings.Split(rest, GroupSeparator)
	frags := make([]Fragment, 0, len(clusters)+4)
	for _, seg := range strings.Split(clusters[0], PathSeparator) {
		frags = append(frags, Fragment{Value: seg, Kind: PathSegment})
	}
	for _, seg := range clusters[1:] {
		frags = append(frags, Fragment{Value: seg, Kind: GroupSegment})
	}
	for _, f := range frags {
		if f.Value == "" {
			return Root, fmt.Errorf("%w: empty fragment in %q", ErrMalformed, raw)
		}
	}
	if hasParam {
		frags = append(frags, Fragment{Value: param, Kind: Parameter})
	}

	return ID{raw: raw, frags: frags}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constant identifiers.
func MustParse(raw string) ID {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// splitParameter detects a "name[param]" suffix. The parameter opens at the
// bracket matching the final "]", which must sit past the first group
// separator; brackets in earlier group segments are part of their names.
func splitParameter(raw string) (rest, param string, ok bool) {
	if !strings.HasSuffix(raw, paramClose) {
		return raw, "", false
	}
	groupAt := strings.Index(raw, GroupSeparator)
	if groupAt < 0 {
		return raw, "", false
	}
	open := matchingOpen(raw)
	if open < groupAt+len(GroupSeparator) {
		return raw, "", false
	}
	return raw[:open], raw[open+1 : len(raw)-1], true
}

// matchingOpen returns the index of the "[" balancing the "]" that ends raw,
// or -1.
func matchingOpen(raw string) int {
	depth := 0
	for i := len(raw) - 1; i >= 0; i-- {
		switch raw[i] {
		case ']':
			depth++
		case '[':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Compose builds an ID from fragments, joining each with the separator
// implied by its kind.
func Compose(frags []Fragment) (ID, error) {
	if len(frags) == 0 {
		return Root, nil
	}

	var b strings.Builder
	for i, f := range frags {
		switch f.Kind {
		case PathSegment:
			if i > 0 {
				if frags[i-1].Kind != PathSegment {
					return Root, fmt.Errorf("%w: path segment %q follows a %s", ErrMalformed, f.Value, frags[i-1].Kind)
				}
				b.WriteString(PathSeparator)
			}
			b.WriteString(f.Value)
		case GroupSegment:
			if i == 0 {
				return Root, fmt.Errorf("%w: identifier cannot start with group segment %q", ErrMalformed, f.Value)
			}
			b.WriteString(GroupSeparator)
			b.WriteString(f.Value)
		case Parameter:
			if i == 0 || frags[i-1].Kind != GroupSegment {
				return Root, fmt.Errorf("%w: parameter %q must follow a group segment", ErrMalformed, f.Value)
			}
			b.WriteString(paramOpen)
			b.WriteString(f.Value)
			b.WriteString(paramClose)
		default:
			return Root, fmt.Errorf("%w: %v", ErrUnknownKind, f.Kind)
		}
	}

	out := make([]Fragment, len(frags))
	copy(out, frags)
	return ID{raw: b.String(), frags: out}, nil
}

// FromPath converts a filesystem path under rootDir into an ID.
func FromPath(path, rootDir string) (ID, error) {
	cleanPath := filepath.Clean(path)
	cleanRoot := filepath.Clean(rootDir)

	if cleanPath == cleanRoot {
		return Root, nil
	}
	prefix := cleanRoot
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(cleanPath, prefix) {
		return Root, fmt.Errorf("%w: %s not in %s", ErrNotUnderRoot, path, rootDir)
	}

	return Parse(filepath.ToSlash(strings.TrimPrefix(cleanPath, prefix)))
}

// String returns the canonical form of the identifier.
func (id ID) String() string {
	return id.raw
}

// Fragments returns a copy of the identifier's fragments.
func (id ID) Fragments() []Fragment {
	out := make([]Fragment, len(id.frags))
	copy(out, id.frags)
	return out
}

// Len is the number of fragments.
func (id ID) Len() int {
	return len(id.frags)
}

// IsRoot reports whether id is the empty identifier.
func (id ID) IsRoot() bool {
	return len(id.frags) == 0
}

// Equal compares canonical forms.
func (id ID) Equal(other ID) bool {
	return id.raw == other.raw
}

// Append returns a new ID with f added at the end.
func (id ID) Append(f Fragment) (ID, error) {
	frags := make([]Fragment, 0, len(id.frags)+1)
	frags = append(frags, id.frags...)
	frags = append(frags, f)
	return Compose(frags)
}

// Parent strips the last fragment.
func (id ID) Parent() (ID, error) {
	if id.IsRoot() {
		return Root, ErrEmptyID
	}
	return Compose(id.frags[:len(id.frags)-1])
}

// ShortID is the value of the final fragment, or "" for the root.
func (id ID) ShortID() string {
	if id.IsRoot() {
		return ""
	}
	return id.frags[len(id.frags)-1].Value
}

// Last returns the final fragment.
func (id ID) Last() (Fragment, bool) {
	if id.IsRoot() {
		return Fragment{}, false
	}
	return id.frags[len(id.frags)-1], true
}

// HasPrefix reports whether prefix's fragments lead id's fragments.
func (id ID) HasPrefix(prefix ID) bool {
	if len(prefix.frags) > len(id.frags) {
		return false
	}
	for i, f := range prefix.frags {
		if id.frags[i] != f {
			return false
		}
	}
	return true
}

// Prefix returns the identifier made of the first n fragments.
func (id ID) Prefix(n int) ID {
	if n <= 0 {
		return Root
	}
	if n >= len(id.frags) {
		return id
	}
	// A prefix of a valid ID is always composable.
	p, _ := Compose(id.frags[:n])
	return p
}

// PathPortion returns the leading path segments joined with "/", i.e. the
// file or directory this identifier lives in.
func (id ID) PathPortion() string {
	segs := make([]string, 0, len(id.frags))
	for _, f := range id.frags {
		if f.Kind != PathSegment {
			break
		}
		segs = append(segs, f.Value)
	}
	return strings.Join(segs, PathSeparator)
}

// IsPathOnly reports whether every fragment is a path segment.
func (id ID) IsPathOnly() bool {
	for _, f := range id.frags {
		if f.Kind != PathSegment {
			return false
		}
	}
	return true
}

// FSPath is the filesystem location of the identifier's path portion.
func (id ID) FSPath(rootDir string) string {
	return filepath.Join(rootDir, filepath.FromSlash(id.PathPortion()))
}
