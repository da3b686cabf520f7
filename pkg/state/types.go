// Package state holds the switch's versioned state tree.
//
// A *SwitchState is a published, immutable version. Changes go through a
// *Builder obtained from SwitchState.Modify, which copies only the path from
// the root to the modified node; everything else is shared with the version it
// was derived from. Builder.Publish freezes the result into a new version.
// Every node type (Port, Vlan, Neighbor, Route, ...) is immutable: its With*
// methods return modified copies.
package state

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// PortID identifies a front-panel port.
type PortID uint32

func (id PortID) String() string { return "port" + strconv.FormatUint(uint64(id), 10) }

// VlanID identifies a VLAN.
type VlanID uint16

func (id VlanID) String() string { return "vlan" + strconv.Itoa(int(id)) }

// RouterID identifies a routing table (VRF). Zero is the default VRF.
type RouterID uint32

func (id RouterID) String() string { return "rid" + strconv.FormatUint(uint64(id), 10) }

// InterfaceID identifies an L3 interface.
type InterfaceID uint32

func (id InterfaceID) String() string { return "intf" + strconv.FormatUint(uint64(id), 10) }

// ClassID is the lookup class carried by routes, neighbors and MAC entries.
// The zero value means "no class".
type ClassID uint16

// NoClassID is the absent classID.
const NoClassID ClassID = 0

// Valid reports whether c carries a class.
func (c ClassID) Valid() bool { return c != NoClassID }

func (c ClassID) String() string {
	if !c.Valid() {
		return "none"
	}
	return strconv.Itoa(int(c))
}

// ParseClassID parses a decimal class. "" and "none" parse as NoClassID;
// "0" is rejected since 0 is reserved for the absent class.
func ParseClassID(s string) (ClassID, error) {
	if s == "" || s == "none" {
		return NoClassID, nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return NoClassID, fmt.Errorf("invalid class id %q: %w", s, err)
	}
	if ClassID(n) == NoClassID {
		return NoClassID, fmt.Errorf("invalid class id %q: 0 is reserved", s)
	}
	return ClassID(n), nil
}

// Family is the address family discriminant used for neighbor and route tables.
type Family uint8

const (
	V4 Family = iota
	V6
)

// Families lists every address family in processing order.
var Families = [...]Family{V4, V6}

func (f Family) String() string {
	switch f {
	case V4:
		return "ipv4"
	case V6:
		return "ipv6"
	default:
		return "family(" + strconv.Itoa(int(f)) + ")"
	}
}

// FamilyOf returns the family of addr. IPv4-mapped IPv6 addresses are IPv4.
func FamilyOf(addr netip.Addr) Family {
	if addr.Unmap().Is4() {
		return V4
	}
	return V6
}

// NeighborState is the resolution state of an ARP/NDP entry.
type NeighborState uint8

const (
	NeighborPending NeighborState = iota
	NeighborReachable
)

func (s NeighborState) String() string {
	if s == NeighborReachable {
		return "reachable"
	}
	return "pending"
}

// Radix keys. Fixed-width big-endian encodings keep iteration in ID order.

func portKey(id PortID) []byte { return binary.BigEndian.AppendUint32(nil, uint32(id)) }

func vlanKey(id VlanID) []byte { return binary.BigEndian.AppendUint16(nil, uint16(id)) }

func routerKey(id RouterID) []byte { return binary.BigEndian.AppendUint32(nil, uint32(id)) }

func intfKey(id InterfaceID) []byte { return binary.BigEndian.AppendUint32(nil, uint32(id)) }

func addrKey(addr netip.Addr) []byte { return addr.Unmap().AsSlice() }

func prefixKey(p netip.Prefix) []byte {
	return append(p.Addr().Unmap().AsSlice(), byte(p.Bits()))
}

func macKey(mac net.HardwareAddr) []byte { return []byte(mac) }
