package sonic

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/lookupclass/pkg/metrics"
	"github.com/newtron-network/lookupclass/pkg/state"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// Tables the writer publishes classIDs to.
const (
	RouteClassTable = "LOOKUP_CLASS_ROUTE"     // APPL_DB, keyed like ROUTE_TABLE
	MacClassTable   = "LOOKUP_CLASS_MAC_STATE" // STATE_DB, keyed VlanN|mac
)

// TableChange represents a single change for pipeline execution.
type TableChange struct {
	Table  string
	Key    string
	Fields map[string]string // nil means delete
}

// classIDChanges turns the route and MAC classID differences of delta into
// APPL_DB and STATE_DB table changes.
func classIDChanges(delta *state.StateDelta) (appl, stateDB []TableChange) {
	for _, f := range state.Families {
		for c := range delta.Routes(f) {
			var oldID, newID state.ClassID
			var r *state.Route
			if c.Old != nil {
				oldID, r = c.Old.ClassID(), c.Old
			}
			if c.New != nil {
				newID, r = c.New.ClassID(), c.New
			}
			if oldID == newID {
				continue
			}
			appl = append(appl, classChange(RouteClassTable, routeKey(r.Router(), r.Prefix()), newID))
		}
	}
	for c := range delta.MacEntries() {
		var oldID, newID state.ClassID
		var e *state.MacEntry
		if c.Old != nil {
			oldID, e = c.Old.ClassID(), c.Old
		}
		if c.New != nil {
			newID, e = c.New.ClassID(), c.New
		}
		if oldID == newID {
			continue
		}
		stateDB = append(stateDB, classChange(MacClassTable, macClassKey(e), newID))
	}
	return appl, stateDB
}

func macClassKey(e *state.MacEntry) string {
	return util.VlanName(uint16(e.Vlan())) + "|" + e.MAC().String()
}

func classChange(table, key string, c state.ClassID) TableChange {
	if !c.Valid() {
		return TableChange{Table: table, Key: key}
	}
	return TableChange{Table: table, Key: key, Fields: map[string]string{"class_id": c.String()}}
}

// classifiedKeys returns the table keys of every classified route and MAC
// entry of s.
func classifiedKeys(s state.Reader) (routes, macs map[string]state.ClassID) {
	routes = make(map[string]state.ClassID)
	for _, f := range state.Families {
		for r := range s.Routes(f) {
			if r.ClassID().Valid() {
				routes[routeKey(r.Router(), r.Prefix())] = r.ClassID()
			}
		}
	}
	macs = make(map[string]state.ClassID)
	for v := range s.Vlans() {
		for e := range v.MacTable().All() {
			if e.ClassID().Valid() {
				macs[macClassKey(e)] = e.ClassID()
			}
		}
	}
	return routes, macs
}

// resyncChanges deletes every existing key of table that want does not hold
// and writes every key that it does.
func resyncChanges(table string, existing []string, want map[string]state.ClassID) []TableChange {
	var changes []TableChange
	for _, key := range existing {
		if _, ok := want[key]; !ok {
			changes = append(changes, TableChange{Table: table, Key: key})
		}
	}
	for _, key := range slices.Sorted(maps.Keys(want)) {
		changes = append(changes, classChange(table, key, want[key]))
	}
	return changes
}

// classStore is the redis surface the writer needs.
type classStore interface {
	classKeys(ctx context.Context, db int, table string) ([]string, error)
	apply(ctx context.Context, db int, changes []TableChange) error
}

// classKeys lists the entry keys of table, without the table prefix.
func (c *Client) classKeys(ctx context.Context, db int, table string) ([]string, error) {
	prefix := table + keySeparator(db)
	keys, err := scanKeys(ctx, c.db(db), prefix+"*", 100)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", table, err)
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, prefix)
	}
	return keys, nil
}

func (c *Client) apply(ctx context.Context, db int, changes []TableChange) error {
	return pipelineSet(ctx, c.db(db), db, changes)
}

// Writer publishes route and MAC classIDs to the switch. It is an
// agent.StateObserver.
//
// The tables may hold keys from an earlier run, so the writer starts out of
// step: deltas are only recorded until Reconcile has rewritten both tables
// from the newest version. A failed write puts it out of step again.
type Writer struct {
	store classStore
	ctx   context.Context

	mu     sync.Mutex
	latest *state.SwitchState
	inSync bool
}

// NewWriter returns a writer using ctx for every redis call. The agent it
// observes must start from state.Empty().
func NewWriter(ctx context.Context, c *Client) *Writer {
	return newWriter(ctx, c)
}

func newWriter(ctx context.Context, store classStore) *Writer {
	return &Writer{store: store, ctx: ctx, latest: state.Empty()}
}

// StateUpdated writes the classID changes of delta once the tables are in
// step.
func (w *Writer) StateUpdated(delta *state.StateDelta) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latest = delta.New()
	if !w.inSync {
		return
	}
	appl, stateDB := classIDChanges(delta)
	if err := w.write(appl, stateDB); err != nil {
		w.inSync = false
		metrics.SyncErrors.Inc()
		util.WithOperation("write").Errorf("writing classIDs, resyncing: %v", err)
	}
}

// Reconcile rewrites both classID tables from the newest version seen and
// deletes the keys it does not classify. It does nothing while the tables
// are in step.
func (w *Writer) Reconcile() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inSync {
		return nil
	}
	routes, macs := classifiedKeys(w.latest)
	routeKeys, err := w.store.classKeys(w.ctx, ApplDB, RouteClassTable)
	if err != nil {
		return err
	}
	macKeys, err := w.store.classKeys(w.ctx, StateDB, MacClassTable)
	if err != nil {
		return err
	}
	appl := resyncChanges(RouteClassTable, routeKeys, routes)
	stateDB := resyncChanges(MacClassTable, macKeys, macs)
	if err := w.write(appl, stateDB); err != nil {
		return err
	}
	w.inSync = true
	util.WithField("generation", w.latest.Generation()).Infof(
		"resynced %d route and %d MAC classIDs, removed %d stale keys",
		len(routes), len(macs), len(appl)+len(stateDB)-len(routes)-len(macs))
	return nil
}

func (w *Writer) write(appl, stateDB []TableChange) error {
	if err := w.store.apply(w.ctx, ApplDB, appl); err != nil {
		return fmt.Errorf("APPL_DB: %w", err)
	}
	if err := w.store.apply(w.ctx, StateDB, stateDB); err != nil {
		return fmt.Errorf("STATE_DB: %w", err)
	}
	return nil
}

// pipelineSet writes multiple entries atomically via Redis MULTI/EXEC pipeline.
// All changes are applied in a single transaction: either all succeed or none.
func pipelineSet(ctx context.Context, rc *redis.Client, db int, changes []TableChange) error {
	if len(changes) == 0 {
		return nil
	}

	pipe := rc.TxPipeline()
	sep := keySeparator(db)
	for _, change := range changes {
		redisKey := change.Table + sep + change.Key
		if change.Fields == nil {
			pipe.Del(ctx, redisKey)
			continue
		}
		args := make([]interface{}, 0, len(change.Fields)*2)
		for k, v := range change.Fields {
			args = append(args, k, v)
		}
		pipe.HSet(ctx, redisKey, args...)
	}

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return fmt.Errorf("pipeline exec: %w", err)
	}
	return nil
}
