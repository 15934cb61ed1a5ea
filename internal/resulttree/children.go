package resulttree

// childSet is a map that remembers insertion order, giving the tree a
// stable traversal order for serialization.
type childSet[T any] struct {
	keys []string
	byID map[string]T
}

func newChildSet[T any]() *childSet[T] {
	return &childSet[T]{byID: make(map[string]T)}
}

func (c *childSet[T]) get(key string) (T, bool) {
	v, ok := c.byID[key]
	return v, ok
}

// set inserts or replaces. Replacing keeps the original position.
func (c *childSet[T]) set(key string, v T) {
	if _, exists := c.byID[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.byID[key] = v
}

func (c *childSet[T]) remove(key string) (T, bool) {
	v, ok := c.byID[key]
	if !ok {
		return v, false
	}
	delete(c.byID, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
	return v, true
}

func (c *childSet[T]) len() int {
	return len(c.keys)
}

func (c *childSet[T]) values() []T {
	out := make([]T, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.byID[k])
	}
	return out
}
