package sonic

import (
	"slices"

	"github.com/newtron-network/lookupclass/pkg/mactable"
	"github.com/newtron-network/lookupclass/pkg/state"
)

// mergeState makes b match desired, except for MAC tables, which are left
// alone, and route classIDs: a route whose next hops did not change keeps
// the node already in b, so its computed classID survives. Unchanged nodes
// are not rewritten, so the resulting delta only holds real changes.
func mergeState(b *state.Builder, desired state.Reader) {
	for v := range desired.Vlans() {
		b.SetVlan(v.ID(), v.Name(), v.Interface())
	}
	for intf := range desired.Interfaces() {
		if cur, ok := b.Interface(intf.ID()); !ok || !cur.Equal(intf) {
			b.SetInterface(intf)
		}
	}
	for p := range desired.Ports() {
		if cur, ok := b.Port(p.ID()); !ok || !cur.Equal(p) {
			b.SetPort(p)
		}
	}
	for v := range desired.Vlans() {
		for _, f := range state.Families {
			for n := range v.Neighbors(f).All() {
				if cur, ok := b.Neighbor(n.Vlan(), n.IP()); !ok || !cur.Equal(n) {
					// The VLAN was set above.
					_ = b.SetNeighbor(n)
				}
			}
		}
	}
	for _, f := range state.Families {
		for r := range desired.Routes(f) {
			if cur, ok := b.Route(r.Router(), r.Prefix()); !ok || !cur.SameNextHops(r) {
				b.SetRoute(r)
			}
		}
	}

	for _, f := range state.Families {
		for _, r := range slices.Collect(b.Routes(f)) {
			if _, ok := desired.Route(r.Router(), r.Prefix()); !ok {
				b.RemoveRoute(r.Router(), r.Prefix())
			}
		}
	}
	for _, v := range slices.Collect(b.Vlans()) {
		for _, f := range state.Families {
			for _, n := range slices.Collect(v.Neighbors(f).All()) {
				if _, ok := desired.Neighbor(n.Vlan(), n.IP()); !ok {
					_, _ = b.RemoveNeighbor(n.Vlan(), n.IP())
				}
			}
		}
	}
	for _, p := range slices.Collect(b.Ports()) {
		if _, ok := desired.Port(p.ID()); !ok {
			b.RemovePort(p.ID())
		}
	}
	for _, intf := range slices.Collect(b.Interfaces()) {
		if _, ok := desired.Interface(intf.ID()); !ok {
			b.RemoveInterface(intf.ID())
		}
	}
	for _, v := range slices.Collect(b.Vlans()) {
		if _, ok := desired.Vlan(v.ID()); !ok {
			b.RemoveVlan(v.ID())
		}
	}
}

// macDiff is what it takes to move the MAC tables of one version to those
// of another, expressed as hardware events and classifier calls.
type macDiff struct {
	ages       []mactable.L2Event // must run while the entries' VLANs exist
	learns     []mactable.L2Event
	classify   []mactable.L2Entry
	declassify []mactable.L2Entry
}

// diffMacs compares the MAC tables of cur and desired. Ages carry the
// current classID so they are never treated as stale.
func diffMacs(cur, desired state.Reader) macDiff {
	var d macDiff
	for v := range cur.Vlans() {
		for e := range v.MacTable().All() {
			if _, ok := desired.MacEntry(e.Vlan(), e.MAC()); !ok {
				d.ages = append(d.ages, mactable.L2Event{Entry: entryOf(e), Type: mactable.Delete})
			}
		}
	}
	for v := range desired.Vlans() {
		for e := range v.MacTable().All() {
			old, ok := cur.MacEntry(e.Vlan(), e.MAC())
			moved := !ok || old.Port() != e.Port()
			if moved {
				d.learns = append(d.learns, mactable.L2Event{
					Entry: mactable.L2Entry{Vlan: e.Vlan(), MAC: e.MAC(), Port: e.Port()},
					Type:  mactable.Add,
				})
			}
			switch {
			case e.ClassID().Valid() && (moved || old.ClassID() != e.ClassID()):
				d.classify = append(d.classify, entryOf(e))
			case !e.ClassID().Valid() && !moved && old.ClassID().Valid():
				d.declassify = append(d.declassify, entryOf(e))
			}
		}
	}
	return d
}

func entryOf(e *state.MacEntry) mactable.L2Entry {
	return mactable.L2Entry{Vlan: e.Vlan(), MAC: e.MAC(), Port: e.Port(), ClassID: e.ClassID()}
}
