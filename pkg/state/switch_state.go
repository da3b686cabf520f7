package state

import (
	"iter"
	"net"
	"net/netip"

	"github.com/newtron-network/lookupclass/pkg/util"
)

// Reader is the read-only view shared by published versions and builders.
type Reader interface {
	Port(id PortID) (*Port, bool)
	Ports() iter.Seq[*Port]
	Vlan(id VlanID) (*Vlan, bool)
	Vlans() iter.Seq[*Vlan]
	Interface(id InterfaceID) (*Interface, bool)
	Interfaces() iter.Seq[*Interface]
	Router(id RouterID) (*RouterTable, bool)
	Routers() iter.Seq[*RouterTable]
	Neighbor(vlan VlanID, ip netip.Addr) (*Neighbor, bool)
	MacEntry(vlan VlanID, mac net.HardwareAddr) (*MacEntry, bool)
	Route(router RouterID, prefix netip.Prefix) (*Route, bool)
	Routes(f Family) iter.Seq[*Route]
	NumRoutes() int
}

type tree struct {
	ports   nodeMap[*Port]
	vlans   nodeMap[*Vlan]
	intfs   nodeMap[*Interface]
	routers nodeMap[*RouterTable]
}

func (t *tree) Port(id PortID) (*Port, bool) { return t.ports.get(portKey(id)) }
func (t *tree) Ports() iter.Seq[*Port]       { return t.ports.all() }
func (t *tree) NumPorts() int                { return t.ports.len() }
func (t *tree) Vlan(id VlanID) (*Vlan, bool) { return t.vlans.get(vlanKey(id)) }
func (t *tree) Vlans() iter.Seq[*Vlan]       { return t.vlans.all() }

func (t *tree) Interface(id InterfaceID) (*Interface, bool) { return t.intfs.get(intfKey(id)) }
func (t *tree) Interfaces() iter.Seq[*Interface]            { return t.intfs.all() }
func (t *tree) Router(id RouterID) (*RouterTable, bool)     { return t.routers.get(routerKey(id)) }
func (t *tree) Routers() iter.Seq[*RouterTable]             { return t.routers.all() }

// Neighbor looks up an ARP or NDP entry by VLAN and address.
func (t *tree) Neighbor(vlan VlanID, ip netip.Addr) (*Neighbor, bool) {
	v, ok := t.Vlan(vlan)
	if !ok {
		return nil, false
	}
	return v.Neighbors(FamilyOf(ip)).Get(ip)
}

// MacEntry looks up a MAC table entry.
func (t *tree) MacEntry(vlan VlanID, mac net.HardwareAddr) (*MacEntry, bool) {
	v, ok := t.Vlan(vlan)
	if !ok {
		return nil, false
	}
	return v.MacTable().Get(mac)
}

// Route looks up a route by router and prefix.
func (t *tree) Route(router RouterID, prefix netip.Prefix) (*Route, bool) {
	rt, ok := t.Router(router)
	if !ok {
		return nil, false
	}
	return rt.Routes(FamilyOf(prefix.Addr())).Get(prefix)
}

// Routes yields every route of family f across all router tables.
func (t *tree) Routes(f Family) iter.Seq[*Route] {
	return func(yield func(*Route) bool) {
		for rt := range t.routers.all() {
			for r := range rt.routes[f].all() {
				if !yield(r) {
					return
				}
			}
		}
	}
}

// NumRoutes counts routes of every family.
func (t *tree) NumRoutes() int {
	n := 0
	for rt := range t.routers.all() {
		for _, f := range Families {
			n += rt.routes[f].len()
		}
	}
	return n
}

// SwitchState is a published, immutable version of the switch state.
type SwitchState struct {
	tree
	generation uint64
}

var emptyState = &SwitchState{}

// Empty returns the empty published version every agent starts from.
func Empty() *SwitchState { return emptyState }

// Generation is the number of publishes leading to this version.
func (s *SwitchState) Generation() uint64 { return s.generation }

// Modify returns a builder seeded with s. s itself is never changed.
func (s *SwitchState) Modify() *Builder {
	return &Builder{tree: s.tree, base: s}
}

// Builder is a mutable working copy derived from a published version.
type Builder struct {
	tree
	base  *SwitchState
	dirty bool
}

// Base returns the version the builder was derived from (or last published).
func (b *Builder) Base() *SwitchState { return b.base }

// Changed reports whether anything was written since Modify or the last Publish.
func (b *Builder) Changed() bool { return b.dirty }

// Publish freezes the builder's contents into a new version. The builder
// remains usable and continues from the published version.
func (b *Builder) Publish() *SwitchState {
	s := &SwitchState{tree: b.tree, generation: b.base.generation + 1}
	b.base = s
	b.dirty = false
	return s
}

// SetPort adds or replaces a port.
func (b *Builder) SetPort(p *Port) {
	b.ports = b.ports.with(portKey(p.id), p)
	b.dirty = true
}

// RemovePort removes a port, reporting whether it existed.
func (b *Builder) RemovePort(id PortID) bool {
	m, ok := b.ports.without(portKey(id))
	if ok {
		b.ports = m
		b.dirty = true
	}
	return ok
}

// SetVlan creates a VLAN or updates its attributes. An existing VLAN keeps
// its neighbor and MAC tables.
func (b *Builder) SetVlan(id VlanID, name string, intf InterfaceID) {
	v := NewVlan(id, name, intf)
	if old, ok := b.Vlan(id); ok {
		if old.name == name && old.intf == intf {
			return
		}
		v.neighbors = old.neighbors
		v.macs = old.macs
	}
	b.putVlan(v)
}

// RemoveVlan removes a VLAN and everything it owns.
func (b *Builder) RemoveVlan(id VlanID) bool {
	m, ok := b.vlans.without(vlanKey(id))
	if ok {
		b.vlans = m
		b.dirty = true
	}
	return ok
}

func (b *Builder) putVlan(v *Vlan) {
	b.vlans = b.vlans.with(vlanKey(v.id), v)
	b.dirty = true
}

func (b *Builder) vlanForWrite(id VlanID) (*Vlan, error) {
	v, ok := b.Vlan(id)
	if !ok {
		return nil, util.NewNotFoundError("vlan", id.String())
	}
	cp := *v
	return &cp, nil
}

// SetInterface adds or replaces an interface.
func (b *Builder) SetInterface(i *Interface) {
	b.intfs = b.intfs.with(intfKey(i.id), i)
	b.dirty = true
}

// RemoveInterface removes an interface, reporting whether it existed.
func (b *Builder) RemoveInterface(id InterfaceID) bool {
	m, ok := b.intfs.without(intfKey(id))
	if ok {
		b.intfs = m
		b.dirty = true
	}
	return ok
}

// SetNeighbor adds or replaces a neighbor in its VLAN's table.
func (b *Builder) SetNeighbor(n *Neighbor) error {
	v, err := b.vlanForWrite(n.vlan)
	if err != nil {
		return err
	}
	f := n.Family()
	v.neighbors[f] = v.neighbors[f].with(addrKey(n.ip), n)
	b.putVlan(v)
	return nil
}

// RemoveNeighbor removes a neighbor, reporting whether it existed.
func (b *Builder) RemoveNeighbor(vlan VlanID, ip netip.Addr) (bool, error) {
	v, err := b.vlanForWrite(vlan)
	if err != nil {
		return false, err
	}
	f := FamilyOf(ip)
	m, ok := v.neighbors[f].without(addrKey(ip))
	if !ok {
		return false, nil
	}
	v.neighbors[f] = m
	b.putVlan(v)
	return true, nil
}

// SetMacEntry adds or replaces a MAC entry in its VLAN's table.
func (b *Builder) SetMacEntry(e *MacEntry) error {
	v, err := b.vlanForWrite(e.vlan)
	if err != nil {
		return err
	}
	v.macs = v.macs.with(macKey(e.mac), e)
	b.putVlan(v)
	return nil
}

// RemoveMacEntry removes a MAC entry, reporting whether it existed.
func (b *Builder) RemoveMacEntry(vlan VlanID, mac net.HardwareAddr) (bool, error) {
	v, err := b.vlanForWrite(vlan)
	if err != nil {
		return false, err
	}
	m, ok := v.macs.without(macKey(mac))
	if !ok {
		return false, nil
	}
	v.macs = m
	b.putVlan(v)
	return true, nil
}

// SetRoute adds or replaces a route, creating its router table if needed.
func (b *Builder) SetRoute(r *Route) {
	rt, ok := b.Router(r.router)
	cp := RouterTable{id: r.router}
	if ok {
		cp = *rt
	}
	f := r.Family()
	cp.routes[f] = cp.routes[f].with(prefixKey(r.prefix), r)
	b.routers = b.routers.with(routerKey(r.router), &cp)
	b.dirty = true
}

// RemoveRoute removes a route, reporting whether it existed. A router table
// left without routes is removed too.
func (b *Builder) RemoveRoute(router RouterID, prefix netip.Prefix) bool {
	rt, ok := b.Router(router)
	if !ok {
		return false
	}
	prefix = prefix.Masked()
	f := FamilyOf(prefix.Addr())
	m, ok := rt.routes[f].without(prefixKey(prefix))
	if !ok {
		return false
	}
	cp := *rt
	cp.routes[f] = m
	if cp.routes[V4].len() == 0 && cp.routes[V6].len() == 0 {
		b.routers, _ = b.routers.without(routerKey(router))
	} else {
		b.routers = b.routers.with(routerKey(router), &cp)
	}
	b.dirty = true
	return true
}
