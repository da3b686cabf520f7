package lookupclass

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/newtron-network/lookupclass/pkg/state"
)

const (
	vlanServers state.VlanID = 100
	vlanUplink  state.VlanID = 200
)

var testMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 1}

func pfx(s string) netip.Prefix { return netip.MustParsePrefix(s) }
func addr(s string) netip.Addr  { return netip.MustParseAddr(s) }

func nh(ip string, intf state.InterfaceID) state.NextHop {
	return state.NextHop{Addr: addr(ip), Interface: intf}
}

// harness drives a RouteUpdater the way the agent does: every published
// version is delivered as a delta and the updater's follow-up version is
// published and delivered in turn.
type harness struct {
	t   *testing.T
	u   *RouteUpdater
	cur *state.SwitchState
}

func newHarness(t *testing.T) *harness {
	return &harness{t: t, u: NewRouteUpdater(), cur: state.Empty()}
}

func (h *harness) apply(fn func(b *state.Builder)) *state.SwitchState {
	h.t.Helper()
	b := h.cur.Modify()
	fn(b)
	next := b.Publish()
	for i := 0; next != nil; i++ {
		require.Less(h.t, i, 4, "follow-up versions did not converge")
		delta := state.NewDelta(h.cur, next)
		h.cur = next
		next = h.u.UpdateState(delta)
	}
	require.NoError(h.t, h.u.Validate(h.cur))
	return h.cur
}

// topology installs two VLANs: vlanServers (10.0.0.0/24, 2001:db8::/64)
// with port 1 carrying lookup classes and port 2 without, and vlanUplink
// (10.0.1.0/24) with port 3 without lookup classes.
func (h *harness) topology() {
	h.apply(func(b *state.Builder) {
		b.SetVlan(vlanServers, "Vlan100", 100)
		b.SetVlan(vlanUplink, "Vlan200", 200)
		b.SetInterface(state.NewInterface(100, 0, vlanServers, pfx("10.0.0.1/24"), pfx("2001:db8::1/64")))
		b.SetInterface(state.NewInterface(200, 0, vlanUplink, pfx("10.0.1.1/24")))
		b.SetPort(state.NewPort(1, "Ethernet0", vlanServers, 10, 11))
		b.SetPort(state.NewPort(2, "Ethernet4", vlanServers))
		b.SetPort(state.NewPort(3, "Ethernet8", vlanUplink))
	})
}

func setNeighbor(t *testing.T, b *state.Builder, ip string, vlan state.VlanID, classID state.ClassID) {
	t.Helper()
	n := state.NewNeighbor(addr(ip), vlan, testMAC, 1, state.NeighborReachable).WithClassID(classID)
	require.NoError(t, b.SetNeighbor(n))
}

func removeNeighbor(t *testing.T, b *state.Builder, ip string, vlan state.VlanID) {
	t.Helper()
	ok, err := b.RemoveNeighbor(vlan, addr(ip))
	require.NoError(t, err)
	require.True(t, ok)
}

func (h *harness) routeClass(router state.RouterID, prefix string) state.ClassID {
	h.t.Helper()
	r, ok := h.cur.Route(router, pfx(prefix))
	require.True(h.t, ok, "route %s missing", prefix)
	return r.ClassID()
}
