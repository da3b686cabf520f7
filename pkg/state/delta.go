package state

import "iter"

// ChangeKind classifies one entry of a delta.
type ChangeKind uint8

const (
	Added ChangeKind = iota + 1
	Removed
	Changed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// Change is one keyed difference between two versions. Old is nil for Added,
// New is nil for Removed.
type Change[T any] struct {
	Kind ChangeKind
	Old  T
	New  T
}

// StateDelta describes the differences between two published versions. The
// per-kind sequences are computed lazily on each call by walking both trees in
// key order; subtrees shared by the two versions are skipped without being
// visited.
type StateDelta struct {
	old *SwitchState
	new *SwitchState
}

// NewDelta returns the delta from old to new. A nil version is treated as
// the empty state.
func NewDelta(old, new *SwitchState) *StateDelta {
	if old == nil {
		old = Empty()
	}
	if new == nil {
		new = Empty()
	}
	return &StateDelta{old: old, new: new}
}

func (d *StateDelta) Old() *SwitchState { return d.old }
func (d *StateDelta) New() *SwitchState { return d.new }

// Ports yields port changes in port ID order.
func (d *StateDelta) Ports() iter.Seq[Change[*Port]] {
	return diffMaps(d.old.ports, d.new.ports)
}

// Vlans yields VLAN changes. A VLAN is Changed when anything it owns changed.
func (d *StateDelta) Vlans() iter.Seq[Change[*Vlan]] {
	return diffMaps(d.old.vlans, d.new.vlans)
}

// Interfaces yields interface changes.
func (d *StateDelta) Interfaces() iter.Seq[Change[*Interface]] {
	return diffMaps(d.old.intfs, d.new.intfs)
}

// Neighbors yields neighbor changes of family f across all VLANs. Neighbors
// of an added or removed VLAN are reported as added or removed.
func (d *StateDelta) Neighbors(f Family) iter.Seq[Change[*Neighbor]] {
	return nested(d.Vlans(), func(v *Vlan) nodeMap[*Neighbor] { return v.neighbors[f] })
}

// MacEntries yields MAC table changes across all VLANs.
func (d *StateDelta) MacEntries() iter.Seq[Change[*MacEntry]] {
	return nested(d.Vlans(), func(v *Vlan) nodeMap[*MacEntry] { return v.macs })
}

// Routes yields route changes of family f across all router tables.
func (d *StateDelta) Routes(f Family) iter.Seq[Change[*Route]] {
	return nested(diffMaps(d.old.routers, d.new.routers), func(rt *RouterTable) nodeMap[*Route] { return rt.routes[f] })
}

// nested expands parent changes into changes of the children selected by
// children. Children of a removed parent are all Removed, those of an added
// parent all Added.
func nested[P, C comparable](parents iter.Seq[Change[P]], children func(P) nodeMap[C]) iter.Seq[Change[C]] {
	return func(yield func(Change[C]) bool) {
		var empty nodeMap[C]
		for pc := range parents {
			var inner iter.Seq[Change[C]]
			switch pc.Kind {
			case Added:
				inner = diffMaps(empty, children(pc.New))
			case Removed:
				inner = diffMaps(children(pc.Old), empty)
			default:
				inner = diffMaps(children(pc.Old), children(pc.New))
			}
			for c := range inner {
				if !yield(c) {
					return
				}
			}
		}
	}
}
