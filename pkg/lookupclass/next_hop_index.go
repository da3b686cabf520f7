package lookupclass

import (
	"cmp"
	"fmt"
	"maps"
	"net/netip"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/lookupclass/pkg/state"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// RouteKey identifies a route across router tables.
type RouteKey struct {
	Router state.RouterID
	Prefix netip.Prefix
}

func routeKeyOf(r *state.Route) RouteKey {
	return RouteKey{Router: r.Router(), Prefix: r.Prefix()}
}

func (k RouteKey) String() string {
	return fmt.Sprintf("%s:%s", k.Router, k.Prefix)
}

func compareRouteKeys(a, b RouteKey) int {
	if c := cmp.Compare(a.Router, b.Router); c != 0 {
		return c
	}
	return comparePrefixes(a.Prefix, b.Prefix)
}

// NextHopKey identifies a next hop. The same address may exist in several
// VLANs, so the VLAN is part of the identity.
type NextHopKey struct {
	Addr netip.Addr
	Vlan state.VlanID
}

func nextHopKeyOf(n *state.Neighbor) NextHopKey {
	return NextHopKey{Addr: n.IP(), Vlan: n.Vlan()}
}

func (k NextHopKey) String() string {
	return fmt.Sprintf("%s@%s", k.Addr, k.Vlan)
}

func compareNextHopKeys(a, b NextHopKey) int {
	if c := cmp.Compare(a.Vlan, b.Vlan); c != 0 {
		return c
	}
	return a.Addr.Compare(b.Addr)
}

type routeSet = map[RouteKey]struct{}

// prefixPartition splits the routes depending on one next hop into those
// inheriting its classID and the rest.
type prefixPartition struct {
	withClassID    routeSet
	withoutClassID routeSet
}

func (p *prefixPartition) empty() bool {
	return len(p.withClassID) == 0 && len(p.withoutClassID) == 0
}

// NextHopIndex maps (next hop, VLAN) to the routes that depend on it. Each
// route appears in exactly one partition of every next hop it is registered
// with, and in the inheriting partition of at most one of them. The set of
// routes inheriting from some next hop is the set of classified prefixes.
type NextHopIndex struct {
	nextHops   map[NextHopKey]*prefixPartition
	prefixes   map[RouteKey]map[NextHopKey]struct{}
	classified map[RouteKey]NextHopKey
}

// NewNextHopIndex returns an empty index.
func NewNextHopIndex() *NextHopIndex {
	return &NextHopIndex{
		nextHops:   make(map[NextHopKey]*prefixPartition),
		prefixes:   make(map[RouteKey]map[NextHopKey]struct{}),
		classified: make(map[RouteKey]NextHopKey),
	}
}

// Register records that route depends on nh. It reports false if the pair
// was already registered.
func (idx *NextHopIndex) Register(route RouteKey, nh NextHopKey) bool {
	p, ok := idx.nextHops[nh]
	if !ok {
		p = &prefixPartition{withClassID: make(routeSet), withoutClassID: make(routeSet)}
		idx.nextHops[nh] = p
	}
	if _, ok := p.withClassID[route]; ok {
		return false
	}
	if _, ok := p.withoutClassID[route]; ok {
		return false
	}
	p.withoutClassID[route] = struct{}{}
	nhs, ok := idx.prefixes[route]
	if !ok {
		nhs = make(map[NextHopKey]struct{})
		idx.prefixes[route] = nhs
	}
	nhs[nh] = struct{}{}
	return true
}

// Deregister forgets route entirely, pruning next hops left without routes.
func (idx *NextHopIndex) Deregister(route RouteKey) {
	for nh := range idx.prefixes[route] {
		p := idx.nextHops[nh]
		delete(p.withClassID, route)
		delete(p.withoutClassID, route)
		if p.empty() {
			delete(idx.nextHops, nh)
		}
	}
	delete(idx.prefixes, route)
	delete(idx.classified, route)
}

// Inherit makes route inherit its classID from nh, moving it out of the
// inheriting partition of any previous source. nh must be registered for route.
func (idx *NextHopIndex) Inherit(route RouteKey, nh NextHopKey) {
	p, ok := idx.nextHops[nh]
	if !ok || !p.contains(route) {
		util.Logger.WithFields(logrus.Fields{
			"route":   route.String(),
			"nexthop": nh.String(),
		}).Panic("route inherits classID from a next hop it is not registered with")
	}
	if cur, ok := idx.classified[route]; ok {
		if cur == nh {
			return
		}
		idx.moveToWithout(route, cur)
	}
	delete(p.withoutClassID, route)
	p.withClassID[route] = struct{}{}
	idx.classified[route] = nh
}

// Declassify removes route from the classified set. It reports whether the
// route was classified.
func (idx *NextHopIndex) Declassify(route RouteKey) bool {
	cur, ok := idx.classified[route]
	if !ok {
		return false
	}
	idx.moveToWithout(route, cur)
	delete(idx.classified, route)
	return true
}

func (idx *NextHopIndex) moveToWithout(route RouteKey, nh NextHopKey) {
	if p, ok := idx.nextHops[nh]; ok {
		delete(p.withClassID, route)
		p.withoutClassID[route] = struct{}{}
	}
}

func (p *prefixPartition) contains(route RouteKey) bool {
	_, with := p.withClassID[route]
	_, without := p.withoutClassID[route]
	return with || without
}

// ClassifiedBy returns the next hop route currently inherits from.
func (idx *NextHopIndex) ClassifiedBy(route RouteKey) (NextHopKey, bool) {
	nh, ok := idx.classified[route]
	return nh, ok
}

// NextHops returns the next hops route is registered with.
func (idx *NextHopIndex) NextHops(route RouteKey) []NextHopKey {
	return slices.SortedFunc(maps.Keys(idx.prefixes[route]), compareNextHopKeys)
}

// Inheriting returns the routes inheriting their classID from nh.
func (idx *NextHopIndex) Inheriting(nh NextHopKey) []RouteKey {
	p, ok := idx.nextHops[nh]
	if !ok {
		return nil
	}
	return slices.SortedFunc(maps.Keys(p.withClassID), compareRouteKeys)
}

// Unclassified returns the routes depending on nh that carry no classID
// from any next hop.
func (idx *NextHopIndex) Unclassified(nh NextHopKey) []RouteKey {
	p, ok := idx.nextHops[nh]
	if !ok {
		return nil
	}
	var out []RouteKey
	for route := range p.withoutClassID {
		if _, ok := idx.classified[route]; !ok {
			out = append(out, route)
		}
	}
	slices.SortFunc(out, compareRouteKeys)
	return out
}

// Tracked reports whether any route depends on nh.
func (idx *NextHopIndex) Tracked(nh NextHopKey) bool {
	_, ok := idx.nextHops[nh]
	return ok
}

// Registered reports whether route depends on any tracked next hop.
func (idx *NextHopIndex) Registered(route RouteKey) bool {
	_, ok := idx.prefixes[route]
	return ok
}

// ClassifiedPrefixes returns every route currently inheriting a classID.
func (idx *NextHopIndex) ClassifiedPrefixes() []RouteKey {
	return slices.SortedFunc(maps.Keys(idx.classified), compareRouteKeys)
}

// NumClassified counts classified routes.
func (idx *NextHopIndex) NumClassified() int { return len(idx.classified) }

// Len counts tracked next hops.
func (idx *NextHopIndex) Len() int { return len(idx.nextHops) }

// RemoveNextHopsInSubnet drops every next hop of vlan inside subnet, except
// those some prefix of covered still contains. Routes that were inheriting
// from a dropped next hop lose their classified status and are returned so
// the caller can reassign or clear their classID.
func (idx *NextHopIndex) RemoveNextHopsInSubnet(vlan state.VlanID, subnet netip.Prefix, covered []netip.Prefix) []RouteKey {
	return idx.removeNextHops(func(nh NextHopKey) bool {
		if nh.Vlan != vlan || !subnet.Contains(nh.Addr) {
			return false
		}
		return !slices.ContainsFunc(covered, func(p netip.Prefix) bool { return p.Contains(nh.Addr) })
	})
}

func (idx *NextHopIndex) removeNextHops(match func(NextHopKey) bool) []RouteKey {
	affected := make(routeSet)
	for nh, p := range idx.nextHops {
		if !match(nh) {
			continue
		}
		for route := range p.withClassID {
			affected[route] = struct{}{}
			delete(idx.classified, route)
		}
		for _, set := range []routeSet{p.withClassID, p.withoutClassID} {
			for route := range set {
				nhs := idx.prefixes[route]
				delete(nhs, nh)
				if len(nhs) == 0 {
					delete(idx.prefixes, route)
				}
			}
		}
		delete(idx.nextHops, nh)
	}
	return slices.SortedFunc(maps.Keys(affected), compareRouteKeys)
}

// checkStructure verifies that the forward map, the reverse map and the
// classified set describe the same relation.
func (idx *NextHopIndex) checkStructure(c *util.InvariantChecker) {
	for nh, p := range idx.nextHops {
		c.Check(!p.empty(), "next hop %s has no routes but was not pruned", nh)
		for route := range p.withClassID {
			_, dup := p.withoutClassID[route]
			c.Check(!dup, "route %s is in both partitions of %s", route, nh)
			c.Check(idx.classified[route] == nh, "route %s inherits from %s but is recorded against %s", route, nh, idx.classified[route])
		}
		for _, set := range []routeSet{p.withClassID, p.withoutClassID} {
			for route := range set {
				_, ok := idx.prefixes[route][nh]
				c.Check(ok, "route %s missing reverse entry for %s", route, nh)
			}
		}
	}
	for route, nhs := range idx.prefixes {
		c.Check(len(nhs) > 0, "route %s registered with no next hops", route)
		for nh := range nhs {
			p, ok := idx.nextHops[nh]
			c.Check(ok && p.contains(route), "reverse entry %s -> %s has no forward entry", route, nh)
		}
	}
	for route, nh := range idx.classified {
		p, ok := idx.nextHops[nh]
		if !ok {
			c.Check(false, "route %s classified by untracked next hop %s", route, nh)
			continue
		}
		_, ok = p.withClassID[route]
		c.Check(ok, "route %s classified by %s but not in its inheriting partition", route, nh)
	}
}
