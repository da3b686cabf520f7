// Package lookupclass propagates lookup classes (classIDs) from resolved next
// hops to the routes that use them.
//
// A route inherits the classID of one of its reachable, classified next hops.
// Only next hops inside a subnet served by a port with lookup classes are
// considered. RouteUpdater watches state deltas and keeps three private
// structures in step with the tree: the SubnetCache of eligible subnets, the
// NextHopIndex of next hop to dependent routes, and the set of classified
// prefixes inside that index. Each delta is handled in three stages, ports
// (and interfaces) first, then neighbors, then routes, because the later
// stages read cache state built by the earlier ones.
package lookupclass

import (
	"maps"
	"net/netip"
	"slices"

	"github.com/newtron-network/lookupclass/pkg/metrics"
	"github.com/newtron-network/lookupclass/pkg/state"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// RouteUpdater recomputes route classIDs incrementally from state deltas.
// It is not safe for concurrent use; deltas must be delivered one at a time
// in publish order.
type RouteUpdater struct {
	subnets *SubnetCache
	index   *NextHopIndex
}

// NewRouteUpdater returns an updater with empty caches.
func NewRouteUpdater() *RouteUpdater {
	return &RouteUpdater{
		subnets: NewSubnetCache(),
		index:   NewNextHopIndex(),
	}
}

// Subnets exposes the subnet cache for inspection.
func (u *RouteUpdater) Subnets() *SubnetCache { return u.subnets }

// Index exposes the next-hop index for inspection.
func (u *RouteUpdater) Index() *NextHopIndex { return u.index }

// updatePass is the working state of one UpdateState call.
type updatePass struct {
	delta *state.StateDelta
	b     *state.Builder
	// reAddEnabled is false for a delta whose old version had no routes:
	// every route is then new and handled by route processing anyway.
	reAddEnabled bool
	reAddPending bool
}

// UpdateState processes one delta and returns the version carrying the
// recomputed route classIDs, or nil if no route needed to change.
func (u *RouteUpdater) UpdateState(delta *state.StateDelta) *state.SwitchState {
	p := &updatePass{
		delta:        delta,
		b:            delta.New().Modify(),
		reAddEnabled: delta.Old().NumRoutes() > 0,
	}

	u.processPortUpdates(p)
	u.processInterfaceUpdates(p)
	if p.reAddPending {
		u.reAddAllRoutes(p)
	}
	for _, f := range state.Families {
		u.processNeighborUpdates(p, f)
	}
	for _, f := range state.Families {
		u.processRouteUpdates(p, f)
	}

	metrics.DeltasProcessed.Inc()
	metrics.ClassifiedPrefixes.Set(float64(u.index.NumClassified()))
	metrics.TrackedNextHops.Set(float64(u.index.Len()))
	metrics.CachedSubnets.Set(float64(u.subnets.Len()))

	if !p.b.Changed() {
		return nil
	}
	return p.b.Publish()
}

// --- ports and interfaces ---

func (u *RouteUpdater) processPortUpdates(p *updatePass) {
	for c := range p.delta.Ports() {
		switch c.Kind {
		case state.Added:
			u.processPortAdded(p, c.New)
		case state.Removed:
			u.processPortRemoved(p, c.Old)
		case state.Changed:
			u.processPortChanged(p, c.Old, c.New)
		}
	}
}

func (u *RouteUpdater) processPortAdded(p *updatePass, port *state.Port) {
	if !port.HasLookupClasses() {
		return
	}
	inserted := false
	for _, subnet := range vlanSubnets(p.b, port.Vlan()) {
		if u.subnets.Add(port.Vlan(), subnet) {
			inserted = true
		}
	}
	if inserted {
		util.WithPort(uint32(port.ID())).WithField("vlan", port.Vlan()).Debug("cached subnets for port with lookup classes")
		p.reAddPending = p.reAddPending || p.reAddEnabled
	}
}

func (u *RouteUpdater) processPortRemoved(p *updatePass, port *state.Port) {
	if !port.HasLookupClasses() {
		return
	}
	vlan := port.Vlan()
	if vlanHasOtherPortsWithClassIDs(p.b, vlan, port) {
		return
	}
	for _, subnet := range u.subnets.Subnets(vlan) {
		u.subnets.Remove(vlan, subnet)
		u.removeNextHopsForSubnet(p, vlan, subnet)
	}
}

func (u *RouteUpdater) processPortChanged(p *updatePass, oldPort, newPort *state.Port) {
	if oldPort.Vlan() == newPort.Vlan() && oldPort.SameLookupClasses(newPort) {
		return
	}
	u.processPortRemoved(p, oldPort)
	u.processPortAdded(p, newPort)
}

// processInterfaceUpdates re-derives the cached subnets of every VLAN whose
// interfaces changed, so address changes on a VLAN with classified ports are
// reflected without a port event. Any interface change also re-evaluates all
// routes, since next-hop eligibility depends on the interface a route uses.
func (u *RouteUpdater) processInterfaceUpdates(p *updatePass) {
	vlans := make(map[state.VlanID]struct{})
	for c := range p.delta.Interfaces() {
		if c.Old != nil {
			vlans[c.Old.Vlan()] = struct{}{}
		}
		if c.New != nil {
			vlans[c.New.Vlan()] = struct{}{}
		}
	}
	if len(vlans) == 0 {
		return
	}
	for _, vlan := range slices.Sorted(maps.Keys(vlans)) {
		u.resyncVlanSubnets(p, vlan)
	}
	p.reAddPending = p.reAddPending || p.reAddEnabled
}

func (u *RouteUpdater) resyncVlanSubnets(p *updatePass, vlan state.VlanID) {
	var want []netip.Prefix
	if vlanHasOtherPortsWithClassIDs(p.b, vlan, nil) {
		want = vlanSubnets(p.b, vlan)
	}
	for _, subnet := range want {
		u.subnets.Add(vlan, subnet)
	}
	for _, subnet := range u.subnets.Subnets(vlan) {
		if !slices.Contains(want, subnet) {
			u.subnets.Remove(vlan, subnet)
			u.removeNextHopsForSubnet(p, vlan, subnet)
		}
	}
}

// removeNextHopsForSubnet stops tracking next hops of vlan inside subnet that
// no remaining cached subnet covers. Routes that inherited from one of them
// move to another classified next hop or lose their classID.
func (u *RouteUpdater) removeNextHopsForSubnet(p *updatePass, vlan state.VlanID, subnet netip.Prefix) {
	for _, key := range u.index.RemoveNextHopsInSubnet(vlan, subnet, u.subnets.Subnets(vlan)) {
		u.reassignOrClear(p, key, NextHopKey{})
	}
}

// reAddAllRoutes re-evaluates every route against the current subnet cache.
func (u *RouteUpdater) reAddAllRoutes(p *updatePass) {
	metrics.ReAddAllRoutes.Inc()
	util.WithOperation("reAddAllRoutes").Infof("re-evaluating %d routes after subnet cache change", p.b.NumRoutes())
	for _, f := range state.Families {
		for _, route := range slices.Collect(p.b.Routes(f)) {
			u.processRouteAdded(p, route)
		}
	}
}

// --- neighbors ---

func (u *RouteUpdater) processNeighborUpdates(p *updatePass, f state.Family) {
	for c := range p.delta.Neighbors(f) {
		switch c.Kind {
		case state.Added:
			u.processNeighborAdded(p, c.New)
		case state.Removed:
			u.processNeighborRemoved(p, c.Old)
		case state.Changed:
			u.processNeighborChanged(p, c.Old, c.New)
		}
	}
}

// processNeighborAdded hands the neighbor's classID to every dependent route
// that has none. Routes already classified through another next hop keep
// their classID.
func (u *RouteUpdater) processNeighborAdded(p *updatePass, n *state.Neighbor) {
	classID, ok := n.Classified()
	if !ok {
		return
	}
	nh := nextHopKeyOf(n)
	for _, key := range u.index.Unclassified(nh) {
		route, ok := p.b.Route(key.Router, key.Prefix)
		if !ok {
			continue
		}
		u.index.Inherit(key, nh)
		u.setRouteClassID(p, route, classID)
	}
}

func (u *RouteUpdater) processNeighborRemoved(p *updatePass, n *state.Neighbor) {
	nh := nextHopKeyOf(n)
	for _, key := range u.index.Inheriting(nh) {
		u.reassignOrClear(p, key, nh)
	}
}

func (u *RouteUpdater) processNeighborChanged(p *updatePass, oldNeighbor, newNeighbor *state.Neighbor) {
	oldClass, oldOK := oldNeighbor.Classified()
	newClass, newOK := newNeighbor.Classified()
	if oldOK == newOK && oldClass == newClass {
		return
	}
	util.WithNextHop(newNeighbor.IP(), uint16(newNeighbor.Vlan())).
		Debugf("neighbor classID %s -> %s", classOrNone(oldClass, oldOK), classOrNone(newClass, newOK))
	if oldOK {
		u.processNeighborRemoved(p, oldNeighbor)
	}
	if newOK {
		u.processNeighborAdded(p, newNeighbor)
	}
}

func classOrNone(c state.ClassID, ok bool) state.ClassID {
	if !ok {
		return state.NoClassID
	}
	return c
}

// reassignOrClear moves route key to another classified next hop, skipping
// exclude, or clears its classID if there is none.
func (u *RouteUpdater) reassignOrClear(p *updatePass, key RouteKey, exclude NextHopKey) {
	u.index.Declassify(key)
	route, ok := p.b.Route(key.Router, key.Prefix)
	if !ok {
		return
	}
	for _, nh := range u.index.NextHops(key) {
		if nh == exclude {
			continue
		}
		if classID, ok := nextHopClassID(p.b, nh); ok {
			u.index.Inherit(key, nh)
			u.setRouteClassID(p, route, classID)
			return
		}
	}
	u.setRouteClassID(p, route, state.NoClassID)
}

// --- routes ---

func (u *RouteUpdater) processRouteUpdates(p *updatePass, f state.Family) {
	for c := range p.delta.Routes(f) {
		switch c.Kind {
		case state.Added:
			u.processRouteAdded(p, c.New)
		case state.Removed:
			u.index.Deregister(routeKeyOf(c.Old))
		case state.Changed:
			u.processRouteChanged(p, c.Old, c.New)
		}
	}
}

// processRouteAdded registers the route's eligible next hops and resolves its
// classID. It is idempotent: a route that already inherits from a next hop
// that is still eligible and classified keeps that source.
func (u *RouteUpdater) processRouteAdded(p *updatePass, route *state.Route) {
	key := routeKeyOf(route)
	eligible := u.eligibleNextHops(p.b, route)

	prev, hadPrev := u.index.ClassifiedBy(key)
	u.index.Deregister(key)
	for _, nh := range eligible {
		u.index.Register(key, nh)
	}
	if hadPrev && slices.Contains(eligible, prev) {
		u.index.Inherit(key, prev)
	}
	u.resolveRoute(p, key, eligible)
}

// processRouteChanged re-registers a route whose next-hop set changed; its
// classID is recomputed from the new set rather than carried over. A change
// that left the next hops alone only re-resolves the classID.
func (u *RouteUpdater) processRouteChanged(p *updatePass, oldRoute, newRoute *state.Route) {
	if !oldRoute.SameNextHops(newRoute) {
		u.index.Deregister(routeKeyOf(oldRoute))
	}
	u.processRouteAdded(p, newRoute)
}

// resolveRoute makes the route's classID agree with the index: the classID of
// its current source if that is still classified, otherwise the first
// classified candidate, otherwise none.
func (u *RouteUpdater) resolveRoute(p *updatePass, key RouteKey, candidates []NextHopKey) {
	route, ok := p.b.Route(key.Router, key.Prefix)
	if !ok {
		return
	}
	want := state.NoClassID
	if src, ok := u.index.ClassifiedBy(key); ok {
		if classID, ok := nextHopClassID(p.b, src); ok {
			want = classID
		} else {
			u.index.Declassify(key)
		}
	}
	if !want.Valid() {
		for _, nh := range candidates {
			if classID, ok := nextHopClassID(p.b, nh); ok {
				u.index.Inherit(key, nh)
				want = classID
				break
			}
		}
	}
	u.setRouteClassID(p, route, want)
}

func (u *RouteUpdater) setRouteClassID(p *updatePass, route *state.Route, classID state.ClassID) {
	if route.ClassID() == classID {
		return
	}
	p.b.SetRoute(route.WithClassID(classID))

	action := "set"
	if !classID.Valid() {
		action = "clear"
	}
	metrics.RouteClassChanges.WithLabelValues(action).Inc()
	util.WithRoute(uint32(route.Router()), route.Prefix()).
		WithField("classID", classID.String()).
		Debugf("route classID %s (was %s)", action, route.ClassID())
}

// eligibleNextHops returns the route's next hops that resolve through a known
// interface and fall inside a cached subnet of that interface's VLAN, in
// route order without duplicates.
func (u *RouteUpdater) eligibleNextHops(r state.Reader, route *state.Route) []NextHopKey {
	var out []NextHopKey
	for _, nh := range route.NextHops() {
		if util.IsUnspecifiedNextHop(nh.Addr) {
			continue
		}
		intf, ok := r.Interface(nh.Interface)
		if !ok {
			util.WithRoute(uint32(route.Router()), route.Prefix()).
				WithField("interface", nh.Interface.String()).
				Debug("next hop resolves through unknown interface")
			continue
		}
		key := NextHopKey{Addr: nh.Addr.Unmap(), Vlan: intf.Vlan()}
		if !u.subnets.Contains(key.Vlan, key.Addr) {
			continue
		}
		if !slices.Contains(out, key) {
			out = append(out, key)
		}
	}
	return out
}

// nextHopClassID returns the classID of the neighbor behind nh if that
// neighbor is reachable and classified.
func nextHopClassID(r state.Reader, nh NextHopKey) (state.ClassID, bool) {
	n, ok := r.Neighbor(nh.Vlan, nh.Addr)
	if !ok {
		return state.NoClassID, false
	}
	return n.Classified()
}

// vlanHasOtherPortsWithClassIDs reports whether any port of vlan other than
// removed has lookup classes.
func vlanHasOtherPortsWithClassIDs(r state.Reader, vlan state.VlanID, removed *state.Port) bool {
	for port := range r.Ports() {
		if removed != nil && port.ID() == removed.ID() {
			continue
		}
		if port.Vlan() == vlan && port.HasLookupClasses() {
			return true
		}
	}
	return false
}

// vlanSubnets returns the subnets of every interface bound to vlan.
func vlanSubnets(r state.Reader, vlan state.VlanID) []netip.Prefix {
	var out []netip.Prefix
	for intf := range r.Interfaces() {
		if intf.Vlan() != vlan {
			continue
		}
		for _, s := range intf.Subnets() {
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}
