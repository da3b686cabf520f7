package sonic

import (
	"context"
	"fmt"
)

// Snapshot is a point-in-time copy of the SONiC tables the agent reads. Map
// keys are redis keys without the table name.
type Snapshot struct {
	Ports          map[string]PortEntry          // CONFIG_DB PORT|Ethernet0
	Vlans          map[string]VlanEntry          // CONFIG_DB VLAN|Vlan100
	VlanMembers    map[string]VlanMemberEntry    // CONFIG_DB VLAN_MEMBER|Vlan100|Ethernet0
	VlanInterfaces map[string]VlanInterfaceEntry // CONFIG_DB VLAN_INTERFACE|Vlan100[|10.0.0.1/24]
	NeighClasses   map[string]ClassEntry         // CONFIG_DB LOOKUP_CLASS_NEIGH|Vlan100|10.0.0.2
	MacClasses     map[string]ClassEntry         // CONFIG_DB LOOKUP_CLASS_MAC|Vlan100|00:11:22:33:44:55
	Neighbors      map[string]NeighEntry         // APPL_DB NEIGH_TABLE:Vlan100:10.0.0.2
	Routes         map[string]RouteEntry         // APPL_DB ROUTE_TABLE:[Vrf1:]10.1.0.0/16
	FDB            map[string]FDBEntry           // STATE_DB FDB_TABLE|Vlan100:00:11:22:33:44:55
}

// PortEntry is a CONFIG_DB PORT entry. LookupClasses is a comma-separated
// class list; empty disables classification on the port.
type PortEntry struct {
	Index         string
	Alias         string
	LookupClasses string
}

// VlanEntry is a CONFIG_DB VLAN entry.
type VlanEntry struct {
	VlanID string
}

// VlanMemberEntry is a CONFIG_DB VLAN_MEMBER entry.
type VlanMemberEntry struct {
	TaggingMode string
}

// VlanInterfaceEntry is a CONFIG_DB VLAN_INTERFACE entry. The bare VlanN
// entry carries the VRF binding; VlanN|prefix entries carry no fields.
type VlanInterfaceEntry struct {
	VRFName string
}

// ClassEntry assigns a classID to a neighbor or MAC.
type ClassEntry struct {
	ClassID string
}

// NeighEntry is an APPL_DB NEIGH_TABLE entry.
type NeighEntry struct {
	MAC    string
	Family string
}

// RouteEntry is an APPL_DB ROUTE_TABLE entry. NextHop and Interface are
// parallel comma-separated lists.
type RouteEntry struct {
	NextHop   string
	Interface string
	Protocol  string
}

// FDBEntry is a STATE_DB FDB_TABLE entry.
type FDBEntry struct {
	Port string
	Type string
}

// NewSnapshot returns a snapshot with every table initialized.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Ports:          make(map[string]PortEntry),
		Vlans:          make(map[string]VlanEntry),
		VlanMembers:    make(map[string]VlanMemberEntry),
		VlanInterfaces: make(map[string]VlanInterfaceEntry),
		NeighClasses:   make(map[string]ClassEntry),
		MacClasses:     make(map[string]ClassEntry),
		Neighbors:      make(map[string]NeighEntry),
		Routes:         make(map[string]RouteEntry),
		FDB:            make(map[string]FDBEntry),
	}
}

// snapshotTable names a table and the database it lives in.
type snapshotTable struct {
	db    int
	table string
}

// snapshotTables lists the tables read into a Snapshot. Every table must
// have a parser in tableParsers.
var snapshotTables = []snapshotTable{
	{ConfigDB, "PORT"},
	{ConfigDB, "VLAN"},
	{ConfigDB, "VLAN_MEMBER"},
	{ConfigDB, "VLAN_INTERFACE"},
	{ConfigDB, "LOOKUP_CLASS_NEIGH"},
	{ConfigDB, "LOOKUP_CLASS_MAC"},
	{ApplDB, "NEIGH_TABLE"},
	{ApplDB, "ROUTE_TABLE"},
	{StateDB, "FDB_TABLE"},
}

// tableParser stores one redis hash into the snapshot.
type tableParser func(s *Snapshot, entry string, vals map[string]string)

var tableParsers = map[string]tableParser{
	"PORT": func(s *Snapshot, entry string, vals map[string]string) {
		s.Ports[entry] = PortEntry{
			Index:         vals["index"],
			Alias:         vals["alias"],
			LookupClasses: vals["lookup_classes"],
		}
	},
	"VLAN": func(s *Snapshot, entry string, vals map[string]string) {
		s.Vlans[entry] = VlanEntry{VlanID: vals["vlanid"]}
	},
	"VLAN_MEMBER": func(s *Snapshot, entry string, vals map[string]string) {
		s.VlanMembers[entry] = VlanMemberEntry{TaggingMode: vals["tagging_mode"]}
	},
	"VLAN_INTERFACE": func(s *Snapshot, entry string, vals map[string]string) {
		s.VlanInterfaces[entry] = VlanInterfaceEntry{VRFName: vals["vrf_name"]}
	},
	"LOOKUP_CLASS_NEIGH": func(s *Snapshot, entry string, vals map[string]string) {
		s.NeighClasses[entry] = ClassEntry{ClassID: vals["class_id"]}
	},
	"LOOKUP_CLASS_MAC": func(s *Snapshot, entry string, vals map[string]string) {
		s.MacClasses[entry] = ClassEntry{ClassID: vals["class_id"]}
	},
	"NEIGH_TABLE": func(s *Snapshot, entry string, vals map[string]string) {
		s.Neighbors[entry] = NeighEntry{MAC: vals["neigh"], Family: vals["family"]}
	},
	"ROUTE_TABLE": func(s *Snapshot, entry string, vals map[string]string) {
		s.Routes[entry] = RouteEntry{
			NextHop:   vals["nexthop"],
			Interface: vals["ifname"],
			Protocol:  vals["protocol"],
		}
	},
	"FDB_TABLE": func(s *Snapshot, entry string, vals map[string]string) {
		s.FDB[entry] = FDBEntry{Port: vals["port"], Type: vals["type"]}
	},
}

// Snapshotter produces snapshots of the switch.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Snapshot reads every table the agent needs. Tables are read one after
// another, not atomically; the syncer converges on the next poll.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	s := NewSnapshot()
	for _, t := range snapshotTables {
		entries, err := readTable(ctx, c.db(t.db), t.db, t.table)
		if err != nil {
			return nil, err
		}
		parse, ok := tableParsers[t.table]
		if !ok {
			return nil, fmt.Errorf("no parser for table %s", t.table)
		}
		for entry, vals := range entries {
			parse(s, entry, vals)
		}
	}
	return s, nil
}
