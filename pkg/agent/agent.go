// Package agent owns the published switch state and serializes every change
// to it. Each published version is delivered as a delta to the registered
// observers and to the state updater; a version returned by the updater is
// published in turn, so observers also see the classIDs it computed.
package agent

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/newtron-network/lookupclass/pkg/mactable"
	"github.com/newtron-network/lookupclass/pkg/metrics"
	"github.com/newtron-network/lookupclass/pkg/state"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// maxFollowUps bounds the updater's follow-up versions for one change. The
// route updater converges after one; more means its output keeps changing.
const maxFollowUps = 4

// StateObserver is notified of every published version, in publish order.
type StateObserver interface {
	StateUpdated(delta *state.StateDelta)
}

// StateUpdater reacts to a delta with a follow-up version, or nil.
type StateUpdater interface {
	UpdateState(delta *state.StateDelta) *state.SwitchState
}

// validator is implemented by updaters that can cross-check their caches.
type validator interface {
	Validate(s state.Reader) error
}

// ObserverFunc adapts a function to StateObserver.
type ObserverFunc func(delta *state.StateDelta)

func (f ObserverFunc) StateUpdated(delta *state.StateDelta) { f(delta) }

// Agent is the single writer of the switch state. Readers call State and may
// keep the returned version as long as they like.
type Agent struct {
	current atomic.Pointer[state.SwitchState]

	mu        sync.Mutex
	updater   StateUpdater
	observers []StateObserver
}

// New returns an agent holding the empty state. updater may be nil.
func New(updater StateUpdater, observers ...StateObserver) *Agent {
	a := &Agent{updater: updater, observers: observers}
	a.current.Store(state.Empty())
	return a
}

// Register adds an observer. It sees versions published after it was added.
func (a *Agent) Register(o StateObserver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

// State returns the latest published version.
func (a *Agent) State() *state.SwitchState {
	return a.current.Load()
}

// UpdateState applies fn to a builder seeded with the current version and
// publishes the result. If fn fails nothing is published. If fn changes
// nothing the current version is returned.
func (a *Agent) UpdateState(name string, fn func(b *state.Builder) error) (*state.SwitchState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.current.Load().Modify()
	if err := fn(b); err != nil {
		return a.current.Load(), fmt.Errorf("%s: %w", name, err)
	}
	if !b.Changed() {
		return a.current.Load(), nil
	}
	return a.publishLocked(name, b.Publish())
}

// apply publishes fn(current) unless fn returned current itself.
func (a *Agent) apply(name string, fn func(s *state.SwitchState) *state.SwitchState) *state.SwitchState {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.current.Load()
	next := fn(cur)
	if next == cur {
		return cur
	}
	s, err := a.publishLocked(name, next)
	if err != nil {
		util.WithOperation(name).Error(err)
	}
	return s
}

func (a *Agent) publishLocked(name string, next *state.SwitchState) (*state.SwitchState, error) {
	for i := 0; ; i++ {
		delta := state.NewDelta(a.current.Load(), next)
		a.current.Store(next)
		metrics.StateGeneration.Set(float64(next.Generation()))
		util.WithOperation(name).Debugf("published generation %d", next.Generation())

		for _, o := range a.observers {
			o.StateUpdated(delta)
		}
		if a.updater == nil {
			return next, nil
		}
		followUp := a.updater.UpdateState(delta)
		if followUp == nil {
			return next, nil
		}
		if i == maxFollowUps {
			return next, fmt.Errorf("%s: state updater did not converge after %d follow-ups: %w",
				name, maxFollowUps, util.ErrInvariantViolated)
		}
		next = followUp
	}
}

// Validate cross-checks the updater's caches against the current version.
func (a *Agent) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.updater.(validator)
	if !ok {
		return nil
	}
	return v.Validate(a.current.Load())
}

// HandleL2Event applies one hardware learn or age event.
func (a *Agent) HandleL2Event(ev mactable.L2Event) *state.SwitchState {
	return a.apply("mac-"+ev.Type.String(), func(s *state.SwitchState) *state.SwitchState {
		return mactable.UpdateMacTable(s, ev.Entry, ev.Type)
	})
}

// ClassifyMAC sets the classID of a MAC entry, creating it on e.Port if it
// is not learned yet.
func (a *Agent) ClassifyMAC(e mactable.L2Entry) *state.SwitchState {
	return a.apply("mac-classify", func(s *state.SwitchState) *state.SwitchState {
		return mactable.UpdateOrAddEntryWithClassID(s, e)
	})
}

// DeclassifyMAC clears the classID of a MAC entry.
func (a *Agent) DeclassifyMAC(e mactable.L2Entry) *state.SwitchState {
	return a.apply("mac-declassify", func(s *state.SwitchState) *state.SwitchState {
		return mactable.RemoveClassIDForEntry(s, e)
	})
}

// ClassifyNeighbor sets the classID of a resolved neighbor. Routes through
// the neighbor pick it up before this returns.
func (a *Agent) ClassifyNeighbor(vlan state.VlanID, ip netip.Addr, classID state.ClassID) (*state.SwitchState, error) {
	return a.UpdateState("classify-neighbor", func(b *state.Builder) error {
		n, ok := b.Neighbor(vlan, ip)
		if !ok {
			return util.NewNotFoundError("neighbor", fmt.Sprintf("%s in %s", ip, vlan))
		}
		return b.SetNeighbor(n.WithClassID(classID))
	})
}

// Run applies L2 events until ctx is done or events is closed.
func (a *Agent) Run(ctx context.Context, events <-chan mactable.L2Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a.HandleL2Event(ev)
		}
	}
}
