package telemetry

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	pb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/newtron-network/lookupclass/pkg/state"
)

var mac1 = net.HardwareAddr{0x02, 0, 0, 0, 0, 1}

type staticSource struct{ s *state.SwitchState }

func (src *staticSource) State() *state.SwitchState { return src.s }

func baseState(t *testing.T) *state.SwitchState {
	t.Helper()
	b := state.Empty().Modify()
	b.SetVlan(100, "Vlan100", 100)
	b.SetRoute(state.NewRoute(0, netip.MustParsePrefix("20.0.0.0/24")).WithClassID(5))
	b.SetRoute(state.NewRoute(2, netip.MustParsePrefix("2001:db8:1::/48")))
	require.NoError(t, b.SetMacEntry(state.NewMacEntry(100, mac1, 1, 7)))
	return b.Publish()
}

func startServer(t *testing.T, srv *GNMIServer) pb.GNMIClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	pb.RegisterGNMIServer(s, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return pb.NewGNMIClient(conn)
}

func subscribe(t *testing.T, ctx context.Context, c pb.GNMIClient, mode pb.SubscriptionList_Mode) pb.GNMI_SubscribeClient {
	t.Helper()
	stream, err := c.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, stream.Send(&pb.SubscribeRequest{
		Request: &pb.SubscribeRequest_Subscribe{Subscribe: &pb.SubscriptionList{Mode: mode}},
	}))
	return stream
}

func pathString(p *pb.Path) string {
	out := ""
	for _, e := range p.GetElem() {
		out += "/" + e.GetName()
		for k, v := range e.GetKey() {
			out += "[" + k + "=" + v + "]"
		}
	}
	return out
}

const (
	routeV4Path  = "/network-instances/network-instance[name=default]/afts/ipv4-unicast/ipv4-entry[prefix=20.0.0.0/24]/state/class-id"
	routeV6Path  = "/network-instances/network-instance[name=Vrf2]/afts/ipv6-unicast/ipv6-entry[prefix=2001:db8:1::/48]/state/class-id"
	macEntryPath = "/vlans/vlan[vlan-id=100]/mac-table/entries/entry[mac-address=02:00:00:00:00:01]/state/class-id"
)

func TestSubscribeStream(t *testing.T) {
	base := baseState(t)
	srv := New(&staticSource{s: base})
	c := startServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream := subscribe(t, ctx, c, pb.SubscriptionList_STREAM)

	resp, err := stream.Recv()
	require.NoError(t, err)
	updates := resp.GetUpdate().GetUpdate()
	require.Len(t, updates, 2)
	assert.Equal(t, routeV4Path, pathString(updates[0].GetPath()))
	assert.Equal(t, uint64(5), updates[0].GetVal().GetUintVal())
	assert.Equal(t, macEntryPath, pathString(updates[1].GetPath()))
	assert.Equal(t, uint64(7), updates[1].GetVal().GetUintVal())

	resp, err = stream.Recv()
	require.NoError(t, err)
	assert.True(t, resp.GetSyncResponse())

	require.Eventually(t, func() bool { return srv.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	b := base.Modify()
	r, _ := b.Route(0, netip.MustParsePrefix("20.0.0.0/24"))
	b.SetRoute(r.WithClassID(state.NoClassID))
	r, _ = b.Route(2, netip.MustParsePrefix("2001:db8:1::/48"))
	b.SetRoute(r.WithClassID(9))
	next := b.Publish()
	srv.StateUpdated(state.NewDelta(base, next))

	resp, err = stream.Recv()
	require.NoError(t, err)
	notif := resp.GetUpdate()
	require.Len(t, notif.GetDelete(), 1)
	assert.Equal(t, routeV4Path, pathString(notif.GetDelete()[0]))
	require.Len(t, notif.GetUpdate(), 1)
	assert.Equal(t, routeV6Path, pathString(notif.GetUpdate()[0].GetPath()))
	assert.Equal(t, uint64(9), notif.GetUpdate()[0].GetVal().GetUintVal())

	cancel()
	require.Eventually(t, func() bool { return srv.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSubscribeOnce(t *testing.T) {
	c := startServer(t, New(&staticSource{s: state.Empty()}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream := subscribe(t, ctx, c, pb.SubscriptionList_ONCE)

	resp, err := stream.Recv()
	require.NoError(t, err)
	assert.True(t, resp.GetSyncResponse(), "an empty state sends no updates")
	_, err = stream.Recv()
	assert.Error(t, err, "the stream ends after the sync response")
}

func TestSubscribePollUnsupported(t *testing.T) {
	c := startServer(t, New(&staticSource{s: state.Empty()}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream := subscribe(t, ctx, c, pb.SubscriptionList_POLL)

	_, err := stream.Recv()
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestDeltaWithoutClassChangesIsSilent(t *testing.T) {
	base := baseState(t)
	b := base.Modify()
	b.SetRoute(state.NewRoute(0, netip.MustParsePrefix("30.0.0.0/24")))
	assert.Nil(t, deltaToNotification(state.NewDelta(base, b.Publish()), 0))

	b = base.Modify()
	_, err := b.RemoveMacEntry(100, mac1)
	require.NoError(t, err)
	n := deltaToNotification(state.NewDelta(base, b.Publish()), 0)
	require.NotNil(t, n)
	require.Len(t, n.GetDelete(), 1)
	assert.Equal(t, macEntryPath, pathString(n.GetDelete()[0]))
}
