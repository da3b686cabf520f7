// Package telemetry streams route and MAC classIDs over gNMI.
package telemetry

import (
	"strconv"
	"sync"
	"time"

	pb "github.com/openconfig/gnmi/proto/gnmi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/newtron-network/lookupclass/pkg/state"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// subscriberBuffer is the number of notifications queued per subscriber
// before updates are dropped.
const subscriberBuffer = 256

// StateSource provides the version sent as the initial snapshot.
type StateSource interface {
	State() *state.SwitchState
}

// GNMIServer implements the gNMI Subscribe RPC. It is an agent.StateObserver:
// every observed delta is turned into notifications and fanned out to the
// subscribers.
type GNMIServer struct {
	pb.UnimplementedGNMIServer

	source StateSource
	now    func() time.Time

	mu           sync.RWMutex
	subscribers  map[int64]chan *pb.Notification
	subIDCounter int64
}

// New creates a GNMIServer taking initial snapshots from source.
func New(source StateSource) *GNMIServer {
	return &GNMIServer{
		source:      source,
		now:         time.Now,
		subscribers: make(map[int64]chan *pb.Notification),
	}
}

// StateUpdated broadcasts the classID changes of delta.
func (s *GNMIServer) StateUpdated(delta *state.StateDelta) {
	notif := deltaToNotification(delta, s.now().UnixNano())
	if notif == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, subChan := range s.subscribers {
		// Non-blocking send to avoid slow consumers blocking the agent
		select {
		case subChan <- notif:
		default:
			util.WithField("subscriber", id).Warn("gNMI subscriber too slow, dropping update")
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (s *GNMIServer) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Subscribe implements the gNMI Subscribe RPC. STREAM subscriptions get the
// current classIDs, a sync response and then every change; ONCE
// subscriptions end after the sync response.
func (s *GNMIServer) Subscribe(stream pb.GNMI_SubscribeServer) error {
	req, err := stream.Recv()
	if err != nil {
		return err
	}

	mode := req.GetSubscribe().GetMode()
	if mode != pb.SubscriptionList_STREAM && mode != pb.SubscriptionList_ONCE {
		return status.Errorf(codes.Unimplemented, "only STREAM and ONCE modes are supported")
	}

	// Register before taking the snapshot so no change is missed. A change
	// racing the snapshot may be sent twice.
	var subChan chan *pb.Notification
	if mode == pb.SubscriptionList_STREAM {
		subChan = make(chan *pb.Notification, subscriberBuffer)
		s.mu.Lock()
		s.subIDCounter++
		id := s.subIDCounter
		s.subscribers[id] = subChan
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		}()
	}

	if notif := snapshotNotification(s.source.State(), s.now().UnixNano()); notif != nil {
		if err := sendUpdate(stream, notif); err != nil {
			return err
		}
	}
	if err := stream.Send(&pb.SubscribeResponse{
		Response: &pb.SubscribeResponse_SyncResponse{SyncResponse: true},
	}); err != nil {
		return err
	}
	if subChan == nil {
		return nil
	}

	for {
		select {
		case notif := <-subChan:
			if err := sendUpdate(stream, notif); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func sendUpdate(stream pb.GNMI_SubscribeServer, notif *pb.Notification) error {
	return stream.Send(&pb.SubscribeResponse{
		Response: &pb.SubscribeResponse_Update{Update: notif},
	})
}

// snapshotNotification reports every classified route and MAC entry of s,
// or nil if there are none.
func snapshotNotification(s *state.SwitchState, ts int64) *pb.Notification {
	n := &pb.Notification{Timestamp: ts}
	for _, f := range state.Families {
		for r := range s.Routes(f) {
			if r.ClassID().Valid() {
				n.Update = append(n.Update, classUpdate(routePath(r), r.ClassID()))
			}
		}
	}
	for v := range s.Vlans() {
		for e := range v.MacTable().All() {
			if e.ClassID().Valid() {
				n.Update = append(n.Update, classUpdate(macPath(e), e.ClassID()))
			}
		}
	}
	if len(n.Update) == 0 {
		return nil
	}
	return n
}

// deltaToNotification turns the classID changes of delta into one
// notification, or nil if no classID changed. A cleared classID or a
// removed classified node is a delete.
func deltaToNotification(delta *state.StateDelta, ts int64) *pb.Notification {
	n := &pb.Notification{Timestamp: ts}
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
			addChange(n, routePath(r), oldID, newID)
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
		addChange(n, macPath(e), oldID, newID)
	}
	if len(n.Update) == 0 && len(n.Delete) == 0 {
		return nil
	}
	return n
}

func addChange(n *pb.Notification, path *pb.Path, oldID, newID state.ClassID) {
	switch {
	case oldID == newID:
	case newID.Valid():
		n.Update = append(n.Update, classUpdate(path, newID))
	default:
		n.Delete = append(n.Delete, path)
	}
}

func classUpdate(path *pb.Path, c state.ClassID) *pb.Update {
	return &pb.Update{
		Path: path,
		Val:  &pb.TypedValue{Value: &pb.TypedValue_UintVal{UintVal: uint64(c)}},
	}
}

// routePath returns
// /network-instances/network-instance[name=<vrf>]/afts/<family>-unicast/<family>-entry[prefix=<p>]/state/class-id.
func routePath(r *state.Route) *pb.Path {
	family := r.Family().String()
	return &pb.Path{
		Elem: []*pb.PathElem{
			{Name: "network-instances"},
			{Name: "network-instance", Key: map[string]string{"name": networkInstance(r.Router())}},
			{Name: "afts"},
			{Name: family + "-unicast"},
			{Name: family + "-entry", Key: map[string]string{"prefix": r.Prefix().String()}},
			{Name: "state"},
			{Name: "class-id"},
		},
	}
}

// macPath returns
// /vlans/vlan[vlan-id=<v>]/mac-table/entries/entry[mac-address=<m>]/state/class-id.
func macPath(e *state.MacEntry) *pb.Path {
	return &pb.Path{
		Elem: []*pb.PathElem{
			{Name: "vlans"},
			{Name: "vlan", Key: map[string]string{"vlan-id": strconv.Itoa(int(e.Vlan()))}},
			{Name: "mac-table"},
			{Name: "entries"},
			{Name: "entry", Key: map[string]string{"mac-address": e.MAC().String()}},
			{Name: "state"},
			{Name: "class-id"},
		},
	}
}

// networkInstance names router 0 "default" and router N "VrfN".
func networkInstance(rid state.RouterID) string {
	if rid == 0 {
		return "default"
	}
	return "Vrf" + strconv.FormatUint(uint64(rid), 10)
}
