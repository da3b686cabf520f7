package sonic

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/lookupclass/pkg/agent"
	"github.com/newtron-network/lookupclass/pkg/lookupclass"
	"github.com/newtron-network/lookupclass/pkg/state"
)

func TestClassIDChanges(t *testing.T) {
	old := mustBuild(t, testSnapshot())
	b := old.Modify()

	r, _ := b.Route(0, pfx("20.0.0.0/24"))
	b.SetRoute(r.WithClassID(5))
	r, _ = b.Route(2, pfx("20.0.1.0/24"))
	b.SetRoute(r.WithClassID(8))
	// Next hop change without a classID change writes nothing.
	r, _ = b.Route(0, pfx("2001:db8:100::/48"))
	b.SetRoute(r.WithNextHops(state.NextHop{Addr: addr("2001:db8::3"), Interface: 100}))

	e, _ := b.MacEntry(100, mustMAC(macServer))
	require.NoError(t, b.SetMacEntry(e.WithClassID(state.NoClassID)))
	e, _ = b.MacEntry(100, mustMAC(macServerV6))
	require.NoError(t, b.SetMacEntry(e.WithClassID(12)))
	mid := b.Publish()

	appl, stateDB := classIDChanges(state.NewDelta(old, mid))
	assert.Equal(t, []TableChange{
		{Table: RouteClassTable, Key: "20.0.0.0/24", Fields: map[string]string{"class_id": "5"}},
		{Table: RouteClassTable, Key: "Vrf2:20.0.1.0/24", Fields: map[string]string{"class_id": "8"}},
	}, appl)
	assert.Equal(t, []TableChange{
		{Table: MacClassTable, Key: "Vlan100|" + macServer},
		{Table: MacClassTable, Key: "Vlan100|" + macServerV6, Fields: map[string]string{"class_id": "12"}},
	}, stateDB)

	// Removing a classified route deletes its key.
	b = mid.Modify()
	require.True(t, b.RemoveRoute(2, pfx("20.0.1.0/24")))
	appl, stateDB = classIDChanges(state.NewDelta(mid, b.Publish()))
	assert.Equal(t, []TableChange{{Table: RouteClassTable, Key: "Vrf2:20.0.1.0/24"}}, appl)
	assert.Empty(t, stateDB)
}

// memStore holds classID tables in memory, keyed by db and full redis key.
type memStore struct {
	dbs     map[int]map[string]string
	err     error
	written []string
}

func newMemStore() *memStore {
	return &memStore{dbs: map[int]map[string]string{ApplDB: {}, StateDB: {}}}
}

func (m *memStore) put(db int, table, key, classID string) {
	m.dbs[db][table+keySeparator(db)+key] = classID
}

func (m *memStore) get(db int, table, key string) (string, bool) {
	v, ok := m.dbs[db][table+keySeparator(db)+key]
	return v, ok
}

func (m *memStore) classKeys(_ context.Context, db int, table string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	prefix := table + keySeparator(db)
	var keys []string
	for k := range m.dbs[db] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
	}
	return keys, nil
}

func (m *memStore) apply(_ context.Context, db int, changes []TableChange) error {
	if m.err != nil {
		return m.err
	}
	for _, c := range changes {
		k := c.Table + keySeparator(db) + c.Key
		if c.Fields == nil {
			delete(m.dbs[db], k)
			continue
		}
		m.dbs[db][k] = c.Fields["class_id"]
		m.written = append(m.written, k)
	}
	return nil
}

func newWriterSyncer(t *testing.T, store *memStore, snap *Snapshot) (*agent.Agent, *Syncer, *fakeSource) {
	t.Helper()
	w := newWriter(context.Background(), store)
	a := agent.New(lookupclass.NewRouteUpdater(), w)
	src := &fakeSource{snap: snap}
	s := NewSyncer(src, a, time.Second, clock.NewMock())
	s.AddReconciler(w)
	return a, s, src
}

func TestWriterResyncRemovesKeysFromEarlierRun(t *testing.T) {
	store := newMemStore()
	store.put(ApplDB, RouteClassTable, "20.9.0.0/24", "3")
	store.put(ApplDB, RouteClassTable, "20.0.0.0/24", "9")
	store.put(ApplDB, RouteClassTable, "Vrf2:20.0.1.0/24", "8")
	store.put(StateDB, MacClassTable, "Vlan100|02:00:00:00:00:ff", "4")
	store.put(StateDB, MacClassTable, "Vlan100|"+macServerV6, "4")

	_, s, _ := newWriterSyncer(t, store, testSnapshot())
	require.NoError(t, s.SyncOnce(context.Background()))

	assert.Equal(t, map[string]string{
		RouteClassTable + ":20.0.0.0/24":       "5",
		RouteClassTable + ":2001:db8:100::/48": "6",
	}, store.dbs[ApplDB])
	assert.Equal(t, map[string]string{
		MacClassTable + "|Vlan100|" + macServer: "7",
	}, store.dbs[StateDB])
}

func TestWriterWritesOnlyChangesOnceInStep(t *testing.T) {
	store := newMemStore()
	_, s, src := newWriterSyncer(t, store, testSnapshot())
	require.NoError(t, s.SyncOnce(context.Background()))
	store.written = nil

	next := testSnapshot()
	delete(next.Neighbors, "Vlan100:10.0.0.2")
	next.Ports["Ethernet8"] = PortEntry{Index: "3", LookupClasses: "12"}
	src.set(next)
	require.NoError(t, s.SyncOnce(context.Background()))

	v, _ := store.get(ApplDB, RouteClassTable, "20.0.0.0/24")
	assert.Equal(t, "8", v)
	v, _ = store.get(ApplDB, RouteClassTable, "Vrf2:20.0.1.0/24")
	assert.Equal(t, "8", v)
	assert.NotContains(t, store.written, RouteClassTable+":2001:db8:100::/48")
	assert.NotContains(t, store.written, MacClassTable+"|Vlan100|"+macServer)
}

func TestWriterResyncsAfterFailedWrite(t *testing.T) {
	store := newMemStore()
	_, s, src := newWriterSyncer(t, store, testSnapshot())
	require.NoError(t, s.SyncOnce(context.Background()))

	store.err = errors.New("connection reset")
	next := testSnapshot()
	delete(next.Neighbors, "Vlan100:10.0.0.2")
	next.Ports["Ethernet8"] = PortEntry{Index: "3", LookupClasses: "12"}
	src.set(next)
	require.NoError(t, s.SyncOnce(context.Background()), "write failures do not fail the sync")
	v, _ := store.get(ApplDB, RouteClassTable, "20.0.0.0/24")
	assert.Equal(t, "5", v)

	// The switch is unchanged, so no delta follows; the next pass still
	// catches the table up.
	store.err = nil
	require.NoError(t, s.SyncOnce(context.Background()))
	v, _ = store.get(ApplDB, RouteClassTable, "20.0.0.0/24")
	assert.Equal(t, "8", v)
	v, _ = store.get(ApplDB, RouteClassTable, "Vrf2:20.0.1.0/24")
	assert.Equal(t, "8", v)
}

func TestResyncChanges(t *testing.T) {
	changes := resyncChanges(RouteClassTable, []string{"10.1.0.0/16", "20.0.0.0/24"},
		map[string]state.ClassID{"20.0.0.0/24": 5, "30.0.0.0/8": 6})
	assert.Equal(t, []TableChange{
		{Table: RouteClassTable, Key: "10.1.0.0/16"},
		{Table: RouteClassTable, Key: "20.0.0.0/24", Fields: map[string]string{"class_id": "5"}},
		{Table: RouteClassTable, Key: "30.0.0.0/8", Fields: map[string]string{"class_id": "6"}},
	}, changes)
}
