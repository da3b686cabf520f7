package lookupclass

import (
	"errors"
	"maps"
	"slices"

	"github.com/newtron-network/lookupclass/pkg/state"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// Validate cross-checks the updater's caches against s, which must be the
// latest version the updater has processed (including its own output). It
// returns nil or an error joining one *util.InvariantError per broken check.
func (u *RouteUpdater) Validate(s state.Reader) error {
	return errors.Join(
		u.validateSubnetCache(s),
		u.validateIndex(s),
		u.validateRouteClassIDs(s),
	)
}

// validateSubnetCache checks that each VLAN caches exactly the subnets of its
// interfaces when it has a port with lookup classes, and nothing otherwise.
func (u *RouteUpdater) validateSubnetCache(s state.Reader) error {
	c := util.NewInvariantChecker("subnet-cache")
	vlans := make(map[state.VlanID]struct{})
	for _, v := range u.subnets.Vlans() {
		vlans[v] = struct{}{}
	}
	for port := range s.Ports() {
		vlans[port.Vlan()] = struct{}{}
	}
	for _, vlan := range slices.Sorted(maps.Keys(vlans)) {
		var want []string
		if vlanHasOtherPortsWithClassIDs(s, vlan, nil) {
			for _, p := range vlanSubnets(s, vlan) {
				want = append(want, p.String())
			}
		}
		var got []string
		for _, p := range u.subnets.Subnets(vlan) {
			got = append(got, p.String())
		}
		slices.Sort(want)
		slices.Sort(got)
		c.Check(slices.Equal(want, got), "%s caches %v, want %v", vlan, got, want)
	}
	return c.Err()
}

// validateIndex checks that every route is registered with exactly its
// eligible next hops and that the classified set is exactly the routes with a
// classID.
func (u *RouteUpdater) validateIndex(s state.Reader) error {
	c := util.NewInvariantChecker("next-hop-index")
	u.index.checkStructure(c)

	seen := make(map[RouteKey]struct{})
	for _, f := range state.Families {
		for route := range s.Routes(f) {
			key := routeKeyOf(route)
			seen[key] = struct{}{}

			want := u.eligibleNextHops(s, route)
			slices.SortFunc(want, compareNextHopKeys)
			got := u.index.NextHops(key)
			c.Check(slices.Equal(want, got), "route %s registered with %v, want %v", key, got, want)

			_, classified := u.index.ClassifiedBy(key)
			c.Check(classified == route.ClassID().Valid(),
				"route %s has classID %s but classified=%v", key, route.ClassID(), classified)
		}
	}
	for key := range u.index.prefixes {
		_, ok := seen[key]
		c.Check(ok, "index tracks route %s which is not in the state", key)
	}
	return c.Err()
}

// validateRouteClassIDs checks that every route classID is the classID of a
// reachable next hop of that route, and that a route without a classID has no
// classified eligible next hop it could inherit from.
func (u *RouteUpdater) validateRouteClassIDs(s state.Reader) error {
	c := util.NewInvariantChecker("route-classid")
	for _, f := range state.Families {
		for route := range s.Routes(f) {
			key := routeKeyOf(route)
			eligible := u.eligibleNextHops(s, route)
			if route.ClassID().Valid() {
				src, ok := u.index.ClassifiedBy(key)
				if !ok {
					c.Check(false, "route %s has classID %s with no source next hop", key, route.ClassID())
					continue
				}
				classID, ok := nextHopClassID(s, src)
				c.Check(ok && classID == route.ClassID(),
					"route %s has classID %s but source %s has %s (classified=%v)", key, route.ClassID(), src, classID, ok)
				c.Check(slices.Contains(eligible, src), "route %s inherits from %s which is not one of its eligible next hops", key, src)
				continue
			}
			for _, nh := range eligible {
				classID, ok := nextHopClassID(s, nh)
				c.Check(!ok, "route %s has no classID although next hop %s has %s", key, nh, classID)
			}
		}
	}
	return c.Err()
}
