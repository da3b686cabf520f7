// Package audit keeps a journal of route and MAC classID changes.
package audit

import (
	"strconv"
	"time"

	"github.com/newtron-network/lookupclass/pkg/state"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// Event records one classID change of a route or MAC entry.
type Event struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Kind       Kind          `json:"kind"`
	Key        string        `json:"key"`
	Change     string        `json:"change"` // added, removed or changed
	OldClassID state.ClassID `json:"old_class_id"`
	NewClassID state.ClassID `json:"new_class_id"`
	Generation uint64        `json:"generation"`
}

// Kind is the type of node whose classID changed.
type Kind string

const (
	KindRoute Kind = "route"
	KindMAC   Kind = "mac"
)

// Filter defines criteria for querying audit events
type Filter struct {
	Kind          Kind
	Key           string
	ClassID       state.ClassID // matches either the old or the new classID
	MinGeneration uint64
	StartTime     time.Time
	EndTime       time.Time
	SetOnly       bool // events leaving a classID
	ClearOnly     bool // events removing a classID
	Limit         int
	Offset        int
}

// NewEvent creates a new audit event
func NewEvent(kind Kind, key string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		Kind:      kind,
		Key:       key,
	}
}

// WithClassIDs sets the classIDs before and after the change
func (e *Event) WithClassIDs(oldID, newID state.ClassID) *Event {
	e.OldClassID = oldID
	e.NewClassID = newID
	return e
}

// WithChange sets the kind of node change that carried the classID change
func (e *Event) WithChange(k state.ChangeKind) *Event {
	e.Change = k.String()
	return e
}

// WithGeneration sets the state generation the change was published in
func (e *Event) WithGeneration(g uint64) *Event {
	e.Generation = g
	return e
}

func (e *Event) matches(f Filter) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Key != "" && e.Key != f.Key {
		return false
	}
	if f.ClassID.Valid() && e.OldClassID != f.ClassID && e.NewClassID != f.ClassID {
		return false
	}
	if e.Generation < f.MinGeneration {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	if f.SetOnly && !e.NewClassID.Valid() {
		return false
	}
	if f.ClearOnly && e.NewClassID.Valid() {
		return false
	}
	return true
}

// EventsFromDelta returns one event per route or MAC entry whose classID
// differs between the two versions of delta.
func EventsFromDelta(delta *state.StateDelta) []*Event {
	gen := delta.New().Generation()
	var events []*Event
	for _, f := range state.Families {
		for c := range delta.Routes(f) {
			var oldID, newID state.ClassID
			r := c.New
			if c.Old != nil {
				oldID, r = c.Old.ClassID(), c.Old
			}
			if c.New != nil {
				newID, r = c.New.ClassID(), c.New
			}
			if oldID != newID {
				events = append(events, NewEvent(KindRoute, RouteKey(r)).
					WithClassIDs(oldID, newID).WithChange(c.Kind).WithGeneration(gen))
			}
		}
	}
	for c := range delta.MacEntries() {
		var oldID, newID state.ClassID
		e := c.New
		if c.Old != nil {
			oldID, e = c.Old.ClassID(), c.Old
		}
		if c.New != nil {
			newID, e = c.New.ClassID(), c.New
		}
		if oldID != newID {
			events = append(events, NewEvent(KindMAC, MacKey(e)).
				WithClassIDs(oldID, newID).WithChange(c.Kind).WithGeneration(gen))
		}
	}
	return events
}

// RouteKey formats a route as [VrfN:]prefix.
func RouteKey(r *state.Route) string {
	if r.Router() == 0 {
		return r.Prefix().String()
	}
	return "Vrf" + strconv.FormatUint(uint64(r.Router()), 10) + ":" + r.Prefix().String()
}

// MacKey formats a MAC entry as VlanN|mac.
func MacKey(e *state.MacEntry) string {
	return util.VlanName(uint16(e.Vlan())) + "|" + e.MAC().String()
}

func generateID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
