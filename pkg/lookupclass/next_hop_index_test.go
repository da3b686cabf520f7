package lookupclass

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/lookupclass/pkg/util"
)

var (
	routeA = RouteKey{Router: 0, Prefix: pfx("20.0.0.0/24")}
	routeB = RouteKey{Router: 0, Prefix: pfx("20.0.1.0/24")}
	hopA   = NextHopKey{Addr: addr("10.0.0.2"), Vlan: vlanServers}
	hopB   = NextHopKey{Addr: addr("10.0.0.3"), Vlan: vlanServers}
)

func checkIndex(t *testing.T, idx *NextHopIndex) {
	t.Helper()
	c := util.NewInvariantChecker("next-hop-index")
	idx.checkStructure(c)
	require.NoError(t, c.Err())
}

func TestNextHopIndexRegister(t *testing.T) {
	idx := NewNextHopIndex()
	assert.True(t, idx.Register(routeA, hopA))
	assert.False(t, idx.Register(routeA, hopA))
	assert.True(t, idx.Register(routeA, hopB))
	assert.True(t, idx.Register(routeB, hopA))
	checkIndex(t, idx)

	assert.Equal(t, []NextHopKey{hopA, hopB}, idx.NextHops(routeA))
	assert.Equal(t, []RouteKey{routeA, routeB}, idx.Unclassified(hopA))
	assert.Empty(t, idx.Inheriting(hopA))
	assert.Equal(t, 2, idx.Len())

	idx.Deregister(routeA)
	checkIndex(t, idx)
	assert.False(t, idx.Tracked(hopB), "next hop without routes is pruned")
	assert.True(t, idx.Tracked(hopA))
	assert.False(t, idx.Registered(routeA))
}

func TestNextHopIndexInherit(t *testing.T) {
	idx := NewNextHopIndex()
	idx.Register(routeA, hopA)
	idx.Register(routeA, hopB)
	idx.Register(routeB, hopB)

	idx.Inherit(routeA, hopA)
	checkIndex(t, idx)
	src, ok := idx.ClassifiedBy(routeA)
	require.True(t, ok)
	assert.Equal(t, hopA, src)
	assert.Equal(t, []RouteKey{routeA}, idx.Inheriting(hopA))
	assert.Equal(t, []RouteKey{routeB}, idx.Unclassified(hopB), "classified routes are not offered again")

	idx.Inherit(routeA, hopB)
	checkIndex(t, idx)
	assert.Empty(t, idx.Inheriting(hopA))
	assert.Equal(t, []RouteKey{routeA}, idx.Inheriting(hopB))
	assert.Equal(t, []RouteKey{routeA}, idx.ClassifiedPrefixes())

	assert.True(t, idx.Declassify(routeA))
	assert.False(t, idx.Declassify(routeA))
	checkIndex(t, idx)
	assert.Zero(t, idx.NumClassified())

	idx.Inherit(routeB, hopB)
	idx.Deregister(routeB)
	checkIndex(t, idx)
	assert.Zero(t, idx.NumClassified())
}

func TestNextHopIndexInheritUnregisteredPanics(t *testing.T) {
	idx := NewNextHopIndex()
	idx.Register(routeA, hopA)
	assert.Panics(t, func() { idx.Inherit(routeA, hopB) })
	assert.Panics(t, func() { idx.Inherit(routeB, hopA) })
}

func TestNextHopIndexRemoveNextHopsInSubnet(t *testing.T) {
	idx := NewNextHopIndex()
	other := NextHopKey{Addr: addr("10.0.0.2"), Vlan: vlanUplink}
	idx.Register(routeA, hopA)
	idx.Register(routeA, other)
	idx.Register(routeB, hopB)
	idx.Inherit(routeA, hopA)
	idx.Inherit(routeB, hopB)

	affected := idx.RemoveNextHopsInSubnet(vlanServers, pfx("10.0.0.0/24"), nil)
	checkIndex(t, idx)
	assert.Equal(t, []RouteKey{routeA, routeB}, affected)
	assert.Zero(t, idx.NumClassified())
	assert.Equal(t, []NextHopKey{other}, idx.NextHops(routeA))
	assert.False(t, idx.Registered(routeB))
	assert.Equal(t, 1, idx.Len())
}

func TestNextHopIndexRemoveNextHopsInSubnetKeepsCovered(t *testing.T) {
	idx := NewNextHopIndex()
	idx.Register(routeA, hopA)
	idx.Register(routeB, hopB)
	idx.Inherit(routeA, hopA)
	idx.Inherit(routeB, hopB)

	affected := idx.RemoveNextHopsInSubnet(vlanServers, pfx("10.0.0.0/24"), []netip.Prefix{pfx("10.0.0.2/31")})
	checkIndex(t, idx)
	assert.Equal(t, []RouteKey{routeB}, affected)
	assert.Equal(t, []RouteKey{routeA}, idx.ClassifiedPrefixes())
	assert.True(t, idx.Tracked(hopA))
	assert.False(t, idx.Tracked(hopB))
}
