package sonic

import (
	"context"
	"net"
	"net/netip"
	"sync"
)

func pfx(s string) netip.Prefix { return netip.MustParsePrefix(s) }
func addr(s string) netip.Addr  { return netip.MustParseAddr(s) }

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

const (
	macServer   = "02:00:00:00:00:02"
	macServerV6 = "02:00:00:00:00:03"
	macUplink   = "02:00:00:00:00:04"
)

// testSnapshot describes a switch with a classified server VLAN (100) and an
// unclassified uplink VLAN (200) in Vrf2.
func testSnapshot() *Snapshot {
	s := NewSnapshot()
	s.Ports["Ethernet0"] = PortEntry{Index: "1", LookupClasses: "10,11"}
	s.Ports["Ethernet4"] = PortEntry{Index: "2"}
	s.Ports["Ethernet8"] = PortEntry{Index: "3"}

	s.Vlans["Vlan100"] = VlanEntry{VlanID: "100"}
	s.Vlans["Vlan200"] = VlanEntry{VlanID: "200"}
	s.VlanMembers["Vlan100|Ethernet0"] = VlanMemberEntry{TaggingMode: "untagged"}
	s.VlanMembers["Vlan100|Ethernet4"] = VlanMemberEntry{TaggingMode: "untagged"}
	s.VlanMembers["Vlan200|Ethernet8"] = VlanMemberEntry{TaggingMode: "untagged"}
	s.VlanMembers["Vlan200|Ethernet0"] = VlanMemberEntry{TaggingMode: "tagged"}

	s.VlanInterfaces["Vlan100"] = VlanInterfaceEntry{}
	s.VlanInterfaces["Vlan100|10.0.0.1/24"] = VlanInterfaceEntry{}
	s.VlanInterfaces["Vlan100|2001:db8::1/64"] = VlanInterfaceEntry{}
	s.VlanInterfaces["Vlan200"] = VlanInterfaceEntry{VRFName: "Vrf2"}
	s.VlanInterfaces["Vlan200|10.0.1.1/24"] = VlanInterfaceEntry{}

	s.Neighbors["Vlan100:10.0.0.2"] = NeighEntry{MAC: macServer, Family: "IPv4"}
	s.Neighbors["Vlan100:2001:db8::2"] = NeighEntry{MAC: macServerV6, Family: "IPv6"}
	s.Neighbors["Vlan100:10.0.0.9"] = NeighEntry{MAC: "00:00:00:00:00:00", Family: "IPv4"}
	s.Neighbors["Vlan200:10.0.1.2"] = NeighEntry{MAC: macUplink, Family: "IPv4"}
	s.Neighbors["Ethernet12:192.168.0.1"] = NeighEntry{MAC: "02:00:00:00:00:99", Family: "IPv4"}
	s.NeighClasses["Vlan100|10.0.0.2"] = ClassEntry{ClassID: "5"}
	s.NeighClasses["Vlan100|2001:db8::2"] = ClassEntry{ClassID: "6"}
	s.NeighClasses["Vlan200|10.0.1.2"] = ClassEntry{ClassID: "8"}

	s.Routes["20.0.0.0/24"] = RouteEntry{NextHop: "10.0.0.2,10.0.1.2", Interface: "Vlan100,Vlan200", Protocol: "bgp"}
	s.Routes["Vrf2:20.0.1.0/24"] = RouteEntry{NextHop: "10.0.1.2", Interface: "Vlan200", Protocol: "bgp"}
	s.Routes["2001:db8:100::/48"] = RouteEntry{NextHop: "2001:db8::2", Interface: "Vlan100", Protocol: "bgp"}
	s.Routes["10.0.0.0/24"] = RouteEntry{NextHop: "0.0.0.0", Interface: "Vlan100"}
	s.Routes["30.0.0.1"] = RouteEntry{NextHop: "192.168.0.1", Interface: "Ethernet12", Protocol: "static"}

	s.FDB["Vlan100:"+macServer] = FDBEntry{Port: "Ethernet0", Type: "dynamic"}
	s.FDB["Vlan100:"+macServerV6] = FDBEntry{Port: "Ethernet4", Type: "dynamic"}
	s.MacClasses["Vlan100|"+macServer] = ClassEntry{ClassID: "7"}
	return s
}

// fakeSource returns the current snapshot on every call.
type fakeSource struct {
	mu    sync.Mutex
	snap  *Snapshot
	err   error
	count int
}

func (f *fakeSource) Snapshot(context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return f.snap, f.err
}

func (f *fakeSource) set(s *Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = s
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}
