// Package mactable applies hardware MAC learn and age events, and classID
// association from the classifier, to the VLAN MAC tables of a switch state.
//
// Every function takes a published version and returns the next one. When an
// event does not change anything the input version is returned as is, so
// callers can compare pointers to decide whether to publish.
package mactable

import (
	"fmt"
	"net"

	"github.com/newtron-network/lookupclass/pkg/metrics"
	"github.com/newtron-network/lookupclass/pkg/state"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// UpdateType distinguishes learn from age events.
type UpdateType int

const (
	Add UpdateType = iota
	Delete
)

func (t UpdateType) String() string {
	switch t {
	case Add:
		return "add"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("UpdateType(%d)", int(t))
	}
}

// ParseUpdateType accepts "add"/"learn" and "delete"/"age".
func ParseUpdateType(s string) (UpdateType, error) {
	switch s {
	case "add", "learn":
		return Add, nil
	case "delete", "age":
		return Delete, nil
	}
	return 0, fmt.Errorf("unknown MAC update type %q: %w", s, util.ErrInvalidConfig)
}

// L2Entry is a MAC table entry as reported by the hardware layer.
type L2Entry struct {
	Vlan    state.VlanID
	MAC     net.HardwareAddr
	Port    state.PortID
	ClassID state.ClassID
}

func (e L2Entry) String() string {
	return fmt.Sprintf("%s %s on port %d class %s", e.Vlan, e.MAC, e.Port, e.ClassID)
}

// L2Event is one learn or age callback.
type L2Event struct {
	Entry L2Entry
	Type  UpdateType
}

// Event results, used as the metrics "result" label.
const (
	resultCreated = "created"
	resultMoved   = "moved"
	resultRemoved = "removed"
	resultUpdated = "updated"
	resultStale   = "stale"
	resultNoop    = "noop"
)

// UpdateMacTable applies a learn or age event.
//
// Delete removes the entry only if its classID equals the event's classID.
// The ASIC may report the age of an entry as it was before classification
// while a classified version of the same MAC is already programmed; such a
// stale delete is ignored.
//
// Add creates a missing entry without a classID. If the MAC moved to another
// port the port is updated and the classID cleared; it must be recomputed for
// the new port. A learn on the same port leaves the entry alone.
func UpdateMacTable(s *state.SwitchState, e L2Entry, t UpdateType) *state.SwitchState {
	var (
		next   *state.SwitchState
		result string
	)
	switch t {
	case Add:
		next, result = learn(s, e)
	case Delete:
		next, result = age(s, e)
	default:
		util.WithVlan(uint16(e.Vlan)).WithField("type", int(t)).Panic("unknown MAC update type")
	}
	record(t.String(), result, e)
	return next
}

func learn(s *state.SwitchState, e L2Entry) (*state.SwitchState, string) {
	vlan := mustVlan(s, e.Vlan)
	cur, ok := vlan.MacTable().Get(e.MAC)
	if !ok {
		return write(s, state.NewMacEntry(e.Vlan, e.MAC, e.Port, state.NoClassID)), resultCreated
	}
	if cur.Port() == e.Port {
		return s, resultNoop
	}
	return write(s, cur.WithPort(e.Port, state.NoClassID)), resultMoved
}

func age(s *state.SwitchState, e L2Entry) (*state.SwitchState, string) {
	vlan := mustVlan(s, e.Vlan)
	cur, ok := vlan.MacTable().Get(e.MAC)
	if !ok {
		return s, resultNoop
	}
	if cur.ClassID() != e.ClassID {
		return s, resultStale
	}
	b := s.Modify()
	if _, err := b.RemoveMacEntry(e.Vlan, e.MAC); err != nil {
		util.WithVlan(uint16(e.Vlan)).WithError(err).Panic("removing MAC entry")
	}
	return b.Publish(), resultRemoved
}

// UpdateOrAddEntryWithClassID associates e.ClassID with the MAC, creating
// the entry on e.Port if it does not exist. An existing entry also takes
// e.Port.
func UpdateOrAddEntryWithClassID(s *state.SwitchState, e L2Entry) *state.SwitchState {
	next, result := modifyClassIDForEntry(s, e, e.ClassID)
	record("classify", result, e)
	return next
}

// RemoveClassIDForEntry clears the classID of the MAC's entry. A missing
// entry is left missing.
func RemoveClassIDForEntry(s *state.SwitchState, e L2Entry) *state.SwitchState {
	next, result := modifyClassIDForEntry(s, e, state.NoClassID)
	record("declassify", result, e)
	return next
}

func modifyClassIDForEntry(s *state.SwitchState, e L2Entry, classID state.ClassID) (*state.SwitchState, string) {
	vlan := mustVlan(s, e.Vlan)
	cur, ok := vlan.MacTable().Get(e.MAC)
	if !ok {
		if !classID.Valid() {
			return s, resultNoop
		}
		return write(s, state.NewMacEntry(e.Vlan, e.MAC, e.Port, classID)), resultCreated
	}
	if cur.Port() == e.Port && cur.ClassID() == classID {
		return s, resultNoop
	}
	return write(s, cur.WithPort(e.Port, classID)), resultUpdated
}

func mustVlan(s state.Reader, id state.VlanID) *state.Vlan {
	vlan, ok := s.Vlan(id)
	if !ok {
		util.WithVlan(uint16(id)).Panic("MAC event for a VLAN that is not in the switch state")
	}
	return vlan
}

func write(s *state.SwitchState, entry *state.MacEntry) *state.SwitchState {
	b := s.Modify()
	if err := b.SetMacEntry(entry); err != nil {
		util.WithVlan(uint16(entry.Vlan())).WithError(err).Panic("writing MAC entry")
	}
	return b.Publish()
}

func record(kind, result string, e L2Entry) {
	metrics.MacEvents.WithLabelValues(kind, result).Inc()
	util.WithVlan(uint16(e.Vlan)).WithFields(map[string]interface{}{
		"mac":     e.MAC.String(),
		"port":    uint32(e.Port),
		"classID": e.ClassID.String(),
	}).Debugf("MAC %s: %s", kind, result)
}
