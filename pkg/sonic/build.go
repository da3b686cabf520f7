package sonic

import (
	"fmt"
	"maps"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"github.com/newtron-network/lookupclass/pkg/state"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// BuildState converts a snapshot into a switch state. Malformed entries are
// skipped; the returned error lists them and is nil if there were none.
//
// VLAN N is served by interface N (the VlanN SVI). Route next hops through
// any other interface resolve to no interface and are never classified.
func BuildState(snap *Snapshot) (*state.SwitchState, error) {
	var errs util.ValidationBuilder
	b := state.Empty().Modify()

	for _, name := range slices.Sorted(maps.Keys(snap.Vlans)) {
		vlan, err := parseVlanName(name)
		if err != nil {
			errs.AddErrorf("VLAN|%s: %v", name, err)
			continue
		}
		b.SetVlan(vlan, name, state.InterfaceID(vlan))
	}

	buildInterfaces(b, snap, &errs)
	portIDs := buildPorts(b, snap, &errs)
	buildNeighbors(b, snap, portIDs, &errs)
	buildRoutes(b, snap, &errs)
	buildMacs(b, snap, portIDs, &errs)

	return b.Publish(), errs.Build()
}

func buildInterfaces(b *state.Builder, snap *Snapshot, errs *util.ValidationBuilder) {
	routers := make(map[state.VlanID]state.RouterID)
	addrs := make(map[state.VlanID][]netip.Prefix)
	for _, key := range slices.Sorted(maps.Keys(snap.VlanInterfaces)) {
		name, rest, hasAddr := strings.Cut(key, "|")
		vlan, err := parseVlanName(name)
		if err != nil {
			errs.AddErrorf("VLAN_INTERFACE|%s: %v", key, err)
			continue
		}
		if _, ok := b.Vlan(vlan); !ok {
			errs.AddErrorf("VLAN_INTERFACE|%s: VLAN %s not configured", key, name)
			continue
		}
		if !hasAddr {
			rid, err := routerIDForVRF(snap.VlanInterfaces[key].VRFName)
			if err != nil {
				errs.AddErrorf("VLAN_INTERFACE|%s: %v", key, err)
				continue
			}
			routers[vlan] = rid
			if _, ok := addrs[vlan]; !ok {
				addrs[vlan] = nil
			}
			continue
		}
		p, err := netip.ParsePrefix(rest)
		if err != nil {
			errs.AddErrorf("VLAN_INTERFACE|%s: %v", key, err)
			continue
		}
		addrs[vlan] = append(addrs[vlan], p)
	}
	for vlan, prefixes := range addrs {
		b.SetInterface(state.NewInterface(state.InterfaceID(vlan), routers[vlan], vlan, prefixes...))
	}
}

// buildPorts adds every port and returns port name -> ID. A port that is a
// member of several VLANs is placed in its untagged VLAN, or else in the
// lowest-numbered one.
func buildPorts(b *state.Builder, snap *Snapshot, errs *util.ValidationBuilder) map[string]state.PortID {
	membership := make(map[string]state.VlanID)
	untagged := make(map[string]bool)
	for _, key := range slices.Sorted(maps.Keys(snap.VlanMembers)) {
		vlanName, port, ok := strings.Cut(key, "|")
		if !ok {
			errs.AddErrorf("VLAN_MEMBER|%s: missing port", key)
			continue
		}
		vlan, err := parseVlanName(vlanName)
		if err != nil {
			errs.AddErrorf("VLAN_MEMBER|%s: %v", key, err)
			continue
		}
		isUntagged := snap.VlanMembers[key].TaggingMode == "untagged"
		if cur, ok := membership[port]; ok {
			better := (isUntagged && !untagged[port]) || (isUntagged == untagged[port] && vlan < cur)
			if !better {
				continue
			}
		}
		membership[port] = vlan
		untagged[port] = isUntagged
	}

	ids := make(map[string]state.PortID)
	for _, name := range slices.Sorted(maps.Keys(snap.Ports)) {
		entry := snap.Ports[name]
		id, err := portID(name, entry)
		if err != nil {
			errs.AddErrorf("PORT|%s: %v", name, err)
			continue
		}
		var classes []state.ClassID
		for _, s := range util.SplitCommaSeparated(entry.LookupClasses) {
			c, err := state.ParseClassID(s)
			if err != nil {
				errs.AddErrorf("PORT|%s lookup_classes: %v", name, err)
				continue
			}
			if c.Valid() {
				classes = append(classes, c)
			}
		}
		b.SetPort(state.NewPort(id, name, membership[name], classes...))
		ids[name] = id
	}
	return ids
}

func buildNeighbors(b *state.Builder, snap *Snapshot, portIDs map[string]state.PortID, errs *util.ValidationBuilder) {
	for _, key := range slices.Sorted(maps.Keys(snap.Neighbors)) {
		entry := snap.Neighbors[key]
		vlanName, ipStr, ok := strings.Cut(key, ":")
		if !ok {
			errs.AddErrorf("NEIGH_TABLE:%s: missing address", key)
			continue
		}
		vlan, err := parseVlanName(vlanName)
		if err != nil {
			// Neighbors on routed ports carry no VLAN and are not classified.
			continue
		}
		ip, err := netip.ParseAddr(ipStr)
		if err != nil {
			errs.AddErrorf("NEIGH_TABLE:%s: %v", key, err)
			continue
		}

		st := state.NeighborReachable
		mac, err := net.ParseMAC(entry.MAC)
		if err != nil || isZeroMAC(mac) {
			st, mac = state.NeighborPending, nil
		}
		var port state.PortID
		if mac != nil {
			if fdb, ok := snap.FDB[fdbKey(vlanName, mac)]; ok {
				port = portIDs[fdb.Port]
			}
		}
		classID, err := state.ParseClassID(snap.NeighClasses[vlanName+"|"+ip.String()].ClassID)
		if err != nil {
			errs.AddErrorf("LOOKUP_CLASS_NEIGH|%s|%s: %v", vlanName, ip, err)
		}

		n := state.NewNeighbor(ip, vlan, mac, port, st).WithClassID(classID)
		if err := b.SetNeighbor(n); err != nil {
			errs.AddErrorf("NEIGH_TABLE:%s: %v", key, err)
		}
	}
}

func buildRoutes(b *state.Builder, snap *Snapshot, errs *util.ValidationBuilder) {
	for _, key := range slices.Sorted(maps.Keys(snap.Routes)) {
		entry := snap.Routes[key]
		rid, prefix, err := parseRouteKey(key)
		if err != nil {
			errs.AddErrorf("ROUTE_TABLE:%s: %v", key, err)
			continue
		}
		addrs, err := util.ParseAddrList(entry.NextHop)
		if err != nil {
			errs.AddErrorf("ROUTE_TABLE:%s: %v", key, err)
			continue
		}
		ifnames := util.SplitCommaSeparated(entry.Interface)

		var hops []state.NextHop
		for i, addr := range addrs {
			if util.IsUnspecifiedNextHop(addr) {
				continue
			}
			var intf state.InterfaceID
			if i < len(ifnames) {
				if vlan, err := parseVlanName(ifnames[i]); err == nil {
					intf = state.InterfaceID(vlan)
				}
			}
			hops = append(hops, state.NextHop{Addr: addr, Interface: intf})
		}
		b.SetRoute(state.NewRoute(rid, prefix, hops...))
	}
}

func buildMacs(b *state.Builder, snap *Snapshot, portIDs map[string]state.PortID, errs *util.ValidationBuilder) {
	for _, key := range slices.Sorted(maps.Keys(snap.FDB)) {
		entry := snap.FDB[key]
		vlanName, macStr, ok := strings.Cut(key, ":")
		if !ok {
			errs.AddErrorf("FDB_TABLE|%s: missing MAC", key)
			continue
		}
		vlan, err := parseVlanName(vlanName)
		if err != nil {
			errs.AddErrorf("FDB_TABLE|%s: %v", key, err)
			continue
		}
		mac, err := net.ParseMAC(macStr)
		if err != nil {
			errs.AddErrorf("FDB_TABLE|%s: %v", key, err)
			continue
		}
		port, ok := portIDs[entry.Port]
		if !ok {
			errs.AddErrorf("FDB_TABLE|%s: unknown port %q", key, entry.Port)
			continue
		}
		classID, err := state.ParseClassID(snap.MacClasses[vlanName+"|"+mac.String()].ClassID)
		if err != nil {
			errs.AddErrorf("LOOKUP_CLASS_MAC|%s|%s: %v", vlanName, mac, err)
		}
		if err := b.SetMacEntry(state.NewMacEntry(vlan, mac, port, classID)); err != nil {
			errs.AddErrorf("FDB_TABLE|%s: %v", key, err)
		}
	}
}

// portID prefers the PORT index field and falls back to the EthernetN
// number.
func portID(name string, entry PortEntry) (state.PortID, error) {
	if entry.Index != "" {
		n, err := strconv.ParseUint(entry.Index, 10, 32)
		if err == nil {
			return state.PortID(n), nil
		}
	}
	n, err := util.ParseTypedName(name, "Ethernet")
	if err != nil {
		return 0, err
	}
	return state.PortID(n), nil
}

func parseVlanName(name string) (state.VlanID, error) {
	n, err := util.ParseTypedName(name, "Vlan")
	if err != nil {
		return 0, err
	}
	if n < 1 || n > 4094 {
		return 0, fmt.Errorf("VLAN ID %d out of range", n)
	}
	return state.VlanID(n), nil
}

// routerIDForVRF maps the default VRF to router 0 and VrfN to router N.
func routerIDForVRF(vrf string) (state.RouterID, error) {
	if vrf == "" || vrf == "default" {
		return 0, nil
	}
	n, err := util.ParseTypedName(vrf, "Vrf")
	if err != nil {
		return 0, err
	}
	return state.RouterID(n), nil
}

// vrfName is the inverse of routerIDForVRF; the default VRF has no name.
func vrfName(rid state.RouterID) string {
	if rid == 0 {
		return ""
	}
	return "Vrf" + strconv.FormatUint(uint64(rid), 10)
}

// parseRouteKey splits an APPL_DB route key. Default VRF routes are keyed by
// prefix alone, others as <vrf>:<prefix>.
func parseRouteKey(key string) (state.RouterID, netip.Prefix, error) {
	vrf, prefix := "", key
	if strings.HasPrefix(key, "Vrf") {
		vrf, prefix, _ = strings.Cut(key, ":")
	}
	rid, err := routerIDForVRF(vrf)
	if err != nil {
		return 0, netip.Prefix{}, err
	}
	p, err := util.ParseHostOrPrefix(prefix)
	if err != nil {
		return 0, netip.Prefix{}, err
	}
	return rid, p, nil
}

func routeKey(rid state.RouterID, prefix netip.Prefix) string {
	if name := vrfName(rid); name != "" {
		return name + ":" + prefix.String()
	}
	return prefix.String()
}

func fdbKey(vlanName string, mac net.HardwareAddr) string {
	return vlanName + ":" + mac.String()
}

func isZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}
