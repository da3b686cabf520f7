package state

import (
	"bytes"
	"iter"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// nodeMap is a persistent map from encoded key to child node. Every write
// returns a new map sharing untouched radix nodes with the receiver, so a
// nodeMap held by a published version never changes.
type nodeMap[V comparable] struct {
	tree *iradix.Tree
}

func (m nodeMap[V]) get(k []byte) (V, bool) {
	var zero V
	if m.tree == nil {
		return zero, false
	}
	raw, ok := m.tree.Get(k)
	if !ok {
		return zero, false
	}
	return raw.(V), true
}

func (m nodeMap[V]) with(k []byte, v V) nodeMap[V] {
	t := m.tree
	if t == nil {
		t = iradix.New()
	}
	t, _, _ = t.Insert(k, v)
	return nodeMap[V]{tree: t}
}

func (m nodeMap[V]) without(k []byte) (nodeMap[V], bool) {
	if m.tree == nil {
		return m, false
	}
	t, _, ok := m.tree.Delete(k)
	if !ok {
		return m, false
	}
	return nodeMap[V]{tree: t}, true
}

func (m nodeMap[V]) len() int {
	if m.tree == nil {
		return 0
	}
	return m.tree.Len()
}

// all yields children in key order.
func (m nodeMap[V]) all() iter.Seq[V] {
	return func(yield func(V) bool) {
		if m.tree == nil {
			return
		}
		it := m.tree.Root().Iterator()
		for _, raw, ok := it.Next(); ok; _, raw, ok = it.Next() {
			if !yield(raw.(V)) {
				return
			}
		}
	}
}

// same reports whether both maps are the same persistent version.
func (m nodeMap[V]) same(o nodeMap[V]) bool {
	return m.tree == o.tree
}

// diffMaps merge-walks two versions of a map in key order. Children present in
// both with the same node pointer are unchanged; a different pointer under the
// same key is reported as Changed.
func diffMaps[V comparable](old, new nodeMap[V]) iter.Seq[Change[V]] {
	return func(yield func(Change[V]) bool) {
		if old.same(new) {
			return
		}
		oldNext, newNext := cursor(old), cursor(new)
		k1, v1, ok1 := oldNext()
		k2, v2, ok2 := newNext()
		for ok1 || ok2 {
			var c Change[V]
			switch cmp := compareKeys(k1, ok1, k2, ok2); {
			case cmp < 0:
				c = Change[V]{Kind: Removed, Old: v1}
				k1, v1, ok1 = oldNext()
			case cmp > 0:
				c = Change[V]{Kind: Added, New: v2}
				k2, v2, ok2 = newNext()
			default:
				if v1 != v2 {
					c = Change[V]{Kind: Changed, Old: v1, New: v2}
				}
				k1, v1, ok1 = oldNext()
				k2, v2, ok2 = newNext()
			}
			if c.Kind != 0 && !yield(c) {
				return
			}
		}
	}
}

// compareKeys orders keys with an exhausted side sorting last.
func compareKeys(k1 []byte, ok1 bool, k2 []byte, ok2 bool) int {
	switch {
	case !ok1:
		return 1
	case !ok2:
		return -1
	default:
		return bytes.Compare(k1, k2)
	}
}

func cursor[V comparable](m nodeMap[V]) func() ([]byte, V, bool) {
	var it *iradix.Iterator
	if m.tree != nil {
		it = m.tree.Root().Iterator()
	}
	return func() ([]byte, V, bool) {
		var zero V
		if it == nil {
			return nil, zero, false
		}
		k, raw, ok := it.Next()
		if !ok {
			return nil, zero, false
		}
		return k, raw.(V), true
	}
}
