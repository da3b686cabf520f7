package state

import (
	"bytes"
	"iter"
	"net"
	"net/netip"
	"slices"
)

// Port is a front-panel port. A port belongs to exactly one VLAN; a non-empty
// lookup class list enables per-host classification on it.
type Port struct {
	id            PortID
	name          string
	vlan          VlanID
	lookupClasses []ClassID
}

// NewPort creates a port node.
func NewPort(id PortID, name string, vlan VlanID, lookupClasses ...ClassID) *Port {
	return &Port{id: id, name: name, vlan: vlan, lookupClasses: slices.Clone(lookupClasses)}
}

func (p *Port) ID() PortID     { return p.id }
func (p *Port) Name() string   { return p.name }
func (p *Port) Vlan() VlanID   { return p.vlan }
func (p *Port) String() string { return p.name }

// LookupClasses returns a copy of the port's ordered lookup class list.
func (p *Port) LookupClasses() []ClassID { return slices.Clone(p.lookupClasses) }

// HasLookupClasses reports whether classification is enabled on the port.
func (p *Port) HasLookupClasses() bool { return len(p.lookupClasses) > 0 }

// SameLookupClasses compares the ordered lookup class lists of two ports.
func (p *Port) SameLookupClasses(o *Port) bool {
	return slices.Equal(p.lookupClasses, o.lookupClasses)
}

// Equal reports whether p and o describe the same port.
func (p *Port) Equal(o *Port) bool {
	return p.id == o.id && p.name == o.name && p.vlan == o.vlan && p.SameLookupClasses(o)
}

// WithVlan returns a copy of p moved to vlan.
func (p *Port) WithVlan(vlan VlanID) *Port {
	c := *p
	c.vlan = vlan
	return &c
}

// WithLookupClasses returns a copy of p with a new lookup class list.
func (p *Port) WithLookupClasses(classes ...ClassID) *Port {
	c := *p
	c.lookupClasses = slices.Clone(classes)
	return &c
}

// Interface is an L3 interface bound to a VLAN. Its addresses define the
// subnets reachable through the VLAN.
type Interface struct {
	id     InterfaceID
	router RouterID
	vlan   VlanID
	addrs  []netip.Prefix
}

// NewInterface creates an interface node. addrs are interface addresses in
// CIDR form (e.g. 10.0.0.1/24).
func NewInterface(id InterfaceID, router RouterID, vlan VlanID, addrs ...netip.Prefix) *Interface {
	return &Interface{id: id, router: router, vlan: vlan, addrs: slices.Clone(addrs)}
}

func (i *Interface) ID() InterfaceID  { return i.id }
func (i *Interface) Router() RouterID { return i.router }
func (i *Interface) Vlan() VlanID     { return i.vlan }

// Addresses returns a copy of the interface addresses.
func (i *Interface) Addresses() []netip.Prefix { return slices.Clone(i.addrs) }

// Subnets returns the distinct masked subnets of the interface addresses.
func (i *Interface) Subnets() []netip.Prefix {
	out := make([]netip.Prefix, 0, len(i.addrs))
	for _, a := range i.addrs {
		s := a.Masked()
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Equal reports whether i and o describe the same interface.
func (i *Interface) Equal(o *Interface) bool {
	return i.id == o.id && i.router == o.router && i.vlan == o.vlan && slices.Equal(i.addrs, o.addrs)
}

// WithAddresses returns a copy of i with a new address list.
func (i *Interface) WithAddresses(addrs ...netip.Prefix) *Interface {
	c := *i
	c.addrs = slices.Clone(addrs)
	return &c
}

// WithVlan returns a copy of i bound to vlan.
func (i *Interface) WithVlan(vlan VlanID) *Interface {
	c := *i
	c.vlan = vlan
	return &c
}

// Neighbor is an ARP or NDP entry keyed by (IP, VLAN).
type Neighbor struct {
	ip      netip.Addr
	vlan    VlanID
	mac     net.HardwareAddr
	port    PortID
	state   NeighborState
	classID ClassID
}

// NewNeighbor creates a neighbor entry without a class.
func NewNeighbor(ip netip.Addr, vlan VlanID, mac net.HardwareAddr, port PortID, st NeighborState) *Neighbor {
	return &Neighbor{ip: ip.Unmap(), vlan: vlan, mac: slices.Clone(mac), port: port, state: st}
}

func (n *Neighbor) IP() netip.Addr        { return n.ip }
func (n *Neighbor) Vlan() VlanID          { return n.vlan }
func (n *Neighbor) MAC() net.HardwareAddr { return slices.Clone(n.mac) }
func (n *Neighbor) Port() PortID          { return n.port }
func (n *Neighbor) State() NeighborState  { return n.state }
func (n *Neighbor) ClassID() ClassID      { return n.classID }
func (n *Neighbor) Family() Family        { return FamilyOf(n.ip) }
func (n *Neighbor) Reachable() bool       { return n.state == NeighborReachable }

// Classified returns the neighbor's class if it is reachable and has one.
// Only classified neighbors pass a class on to routes.
func (n *Neighbor) Classified() (ClassID, bool) {
	if !n.Reachable() || !n.classID.Valid() {
		return NoClassID, false
	}
	return n.classID, true
}

// WithClassID returns a copy of n carrying class c.
func (n *Neighbor) WithClassID(c ClassID) *Neighbor {
	cp := *n
	cp.classID = c
	return &cp
}

// WithState returns a copy of n in state st.
func (n *Neighbor) WithState(st NeighborState) *Neighbor {
	cp := *n
	cp.state = st
	return &cp
}

// Equal reports whether n and o describe the same neighbor entry.
func (n *Neighbor) Equal(o *Neighbor) bool {
	return n.ip == o.ip && n.vlan == o.vlan && bytes.Equal(n.mac, o.mac) &&
		n.port == o.port && n.state == o.state && n.classID == o.classID
}

// WithResolution returns a copy of n resolved to mac on port.
func (n *Neighbor) WithResolution(mac net.HardwareAddr, port PortID) *Neighbor {
	cp := *n
	cp.mac = slices.Clone(mac)
	cp.port = port
	return &cp
}

// NextHop is one forwarding target of a route.
type NextHop struct {
	Addr      netip.Addr
	Interface InterfaceID
}

func (nh NextHop) String() string {
	return nh.Addr.String() + "@" + nh.Interface.String()
}

// Route is keyed by (RouterID, prefix). A route carries at most one class
// regardless of how many next hops it has.
type Route struct {
	router   RouterID
	prefix   netip.Prefix
	nextHops []NextHop
	classID  ClassID
}

// NewRoute creates a route without a class. The prefix is masked.
func NewRoute(router RouterID, prefix netip.Prefix, nextHops ...NextHop) *Route {
	return &Route{router: router, prefix: prefix.Masked(), nextHops: slices.Clone(nextHops)}
}

func (r *Route) Router() RouterID     { return r.router }
func (r *Route) Prefix() netip.Prefix { return r.prefix }
func (r *Route) ClassID() ClassID     { return r.classID }
func (r *Route) Family() Family       { return FamilyOf(r.prefix.Addr()) }

// NextHops returns a copy of the route's next hops.
func (r *Route) NextHops() []NextHop { return slices.Clone(r.nextHops) }

// SameNextHops compares next-hop sets, ignoring order and duplicates.
func (r *Route) SameNextHops(o *Route) bool {
	for _, nh := range r.nextHops {
		if !slices.Contains(o.nextHops, nh) {
			return false
		}
	}
	for _, nh := range o.nextHops {
		if !slices.Contains(r.nextHops, nh) {
			return false
		}
	}
	return true
}

// WithClassID returns a copy of r carrying class c.
func (r *Route) WithClassID(c ClassID) *Route {
	cp := *r
	cp.classID = c
	return &cp
}

// WithNextHops returns a copy of r with a new next-hop set.
func (r *Route) WithNextHops(nextHops ...NextHop) *Route {
	cp := *r
	cp.nextHops = slices.Clone(nextHops)
	return &cp
}

// MacEntry is a learned or programmed MAC address within a VLAN.
type MacEntry struct {
	vlan    VlanID
	mac     net.HardwareAddr
	port    PortID
	classID ClassID
}

// NewMacEntry creates a MAC table entry.
func NewMacEntry(vlan VlanID, mac net.HardwareAddr, port PortID, classID ClassID) *MacEntry {
	return &MacEntry{vlan: vlan, mac: slices.Clone(mac), port: port, classID: classID}
}

func (e *MacEntry) Vlan() VlanID          { return e.vlan }
func (e *MacEntry) MAC() net.HardwareAddr { return slices.Clone(e.mac) }
func (e *MacEntry) Port() PortID          { return e.port }
func (e *MacEntry) ClassID() ClassID      { return e.classID }

// SameMAC reports whether e is for mac.
func (e *MacEntry) SameMAC(mac net.HardwareAddr) bool { return bytes.Equal(e.mac, mac) }

// WithPort returns a copy of e on port with class c.
func (e *MacEntry) WithPort(port PortID, c ClassID) *MacEntry {
	cp := *e
	cp.port = port
	cp.classID = c
	return &cp
}

// WithClassID returns a copy of e carrying class c.
func (e *MacEntry) WithClassID(c ClassID) *MacEntry {
	cp := *e
	cp.classID = c
	return &cp
}

// Vlan owns the VLAN's neighbor tables (one per family) and its MAC table.
type Vlan struct {
	id        VlanID
	name      string
	intf      InterfaceID
	neighbors [len(Families)]nodeMap[*Neighbor]
	macs      nodeMap[*MacEntry]
}

// NewVlan creates a VLAN with empty tables.
func NewVlan(id VlanID, name string, intf InterfaceID) *Vlan {
	return &Vlan{id: id, name: name, intf: intf}
}

func (v *Vlan) ID() VlanID                       { return v.id }
func (v *Vlan) Name() string                     { return v.name }
func (v *Vlan) Interface() InterfaceID           { return v.intf }
func (v *Vlan) Neighbors(f Family) NeighborTable { return NeighborTable{v.neighbors[f]} }
func (v *Vlan) MacTable() MacTable               { return MacTable{v.macs} }

// NeighborTable is a read-only view of one family's neighbors.
type NeighborTable struct{ m nodeMap[*Neighbor] }

func (t NeighborTable) Get(ip netip.Addr) (*Neighbor, bool) { return t.m.get(addrKey(ip)) }
func (t NeighborTable) Len() int                            { return t.m.len() }
func (t NeighborTable) All() iter.Seq[*Neighbor]            { return t.m.all() }

// MacTable is a read-only view of a VLAN's MAC entries.
type MacTable struct{ m nodeMap[*MacEntry] }

func (t MacTable) Get(mac net.HardwareAddr) (*MacEntry, bool) { return t.m.get(macKey(mac)) }
func (t MacTable) Len() int                                   { return t.m.len() }
func (t MacTable) All() iter.Seq[*MacEntry]                   { return t.m.all() }

// RouterTable holds one routing table per family.
type RouterTable struct {
	id     RouterID
	routes [len(Families)]nodeMap[*Route]
}

func (rt *RouterTable) ID() RouterID               { return rt.id }
func (rt *RouterTable) Routes(f Family) RouteTable { return RouteTable{rt.routes[f]} }

// RouteTable is a read-only view of one family's routes.
type RouteTable struct{ m nodeMap[*Route] }

func (t RouteTable) Get(p netip.Prefix) (*Route, bool) { return t.m.get(prefixKey(p.Masked())) }
func (t RouteTable) Len() int                          { return t.m.len() }
func (t RouteTable) All() iter.Seq[*Route]             { return t.m.all() }
