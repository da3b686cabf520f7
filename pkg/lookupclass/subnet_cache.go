package lookupclass

import (
	"maps"
	"net/netip"
	"slices"

	"github.com/gaissmai/bart"

	"github.com/newtron-network/lookupclass/pkg/state"
)

// SubnetCache holds, per VLAN, the subnets served by ports that have lookup
// classes. Only next hops inside a cached subnet take part in classID
// bookkeeping.
type SubnetCache struct {
	vlans map[state.VlanID]*subnetSet
}

type subnetSet struct {
	subnets map[netip.Prefix]struct{}
	table   *bart.Table[struct{}]
}

// NewSubnetCache returns an empty cache.
func NewSubnetCache() *SubnetCache {
	return &SubnetCache{vlans: make(map[state.VlanID]*subnetSet)}
}

// Add caches subnet for vlan, reporting whether it was not cached before.
func (c *SubnetCache) Add(vlan state.VlanID, subnet netip.Prefix) bool {
	subnet = subnet.Masked()
	vs, ok := c.vlans[vlan]
	if !ok {
		vs = &subnetSet{
			subnets: make(map[netip.Prefix]struct{}),
			table:   new(bart.Table[struct{}]),
		}
		c.vlans[vlan] = vs
	}
	if _, ok := vs.subnets[subnet]; ok {
		return false
	}
	vs.subnets[subnet] = struct{}{}
	vs.table.Insert(subnet, struct{}{})
	return true
}

// Remove drops subnet from vlan, reporting whether it was cached. A VLAN left
// without subnets is pruned.
func (c *SubnetCache) Remove(vlan state.VlanID, subnet netip.Prefix) bool {
	subnet = subnet.Masked()
	vs, ok := c.vlans[vlan]
	if !ok {
		return false
	}
	if _, ok := vs.subnets[subnet]; !ok {
		return false
	}
	delete(vs.subnets, subnet)
	vs.table.Delete(subnet)
	if len(vs.subnets) == 0 {
		delete(c.vlans, vlan)
	}
	return true
}

// Contains reports whether ip falls inside any subnet cached for vlan.
func (c *SubnetCache) Contains(vlan state.VlanID, ip netip.Addr) bool {
	vs, ok := c.vlans[vlan]
	if !ok {
		return false
	}
	return vs.table.Contains(ip.Unmap())
}

// Subnets returns the subnets cached for vlan in address order.
func (c *SubnetCache) Subnets(vlan state.VlanID) []netip.Prefix {
	vs, ok := c.vlans[vlan]
	if !ok {
		return nil
	}
	return slices.SortedFunc(maps.Keys(vs.subnets), comparePrefixes)
}

// Vlans returns the VLANs with at least one cached subnet.
func (c *SubnetCache) Vlans() []state.VlanID {
	return slices.Sorted(maps.Keys(c.vlans))
}

// Len counts cached subnets across all VLANs.
func (c *SubnetCache) Len() int {
	n := 0
	for _, vs := range c.vlans {
		n += len(vs.subnets)
	}
	return n
}

func comparePrefixes(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return a.Bits() - b.Bits()
}
