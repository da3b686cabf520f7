package scenario

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/newtron-network/lookupclass/pkg/agent"
	"github.com/newtron-network/lookupclass/pkg/mactable"
	"github.com/newtron-network/lookupclass/pkg/state"
	"github.com/newtron-network/lookupclass/pkg/util"
)

// stepExecutor runs one step and returns a short description of what it
// did. Failed expectations are returned as *expectationError.
type stepExecutor func(a *agent.Agent, step *Step) (string, error)

// executors maps each StepAction to its implementation.
var executors = map[StepAction]stepExecutor{
	ActionAddInterface:     addInterface,
	ActionAddPort:          addPort,
	ActionRemovePort:       removePort,
	ActionSetLookupClasses: setLookupClasses,
	ActionMovePort:         movePort,

	ActionAddNeighbor:      addNeighbor,
	ActionRemoveNeighbor:   removeNeighbor,
	ActionSetNeighborClass: setNeighborClass,
	ActionSetNeighborState: setNeighborState,

	ActionAddRoute:    addRoute,
	ActionRemoveRoute: removeRoute,

	ActionMacLearn:      macEvent(mactable.Add),
	ActionMacAge:        macEvent(mactable.Delete),
	ActionMacClassify:   macClassify,
	ActionMacDeclassify: macDeclassify,

	ActionExpectRouteClass: expectRouteClass,
	ActionExpectMacClass:   expectMacClass,
	ActionExpectMacAbsent:  expectMacAbsent,
	ActionExpectInvariants: expectInvariants,
}

// update runs fn through the agent and describes the published version.
func update(a *agent.Agent, name string, fn func(b *state.Builder) error) (string, error) {
	before := a.State().Generation()
	s, err := a.UpdateState(name, fn)
	if err != nil {
		return "", err
	}
	if s.Generation() == before {
		return "no change", nil
	}
	return fmt.Sprintf("generation %d", s.Generation()), nil
}

func addInterface(a *agent.Agent, step *Step) (string, error) {
	vlan := state.VlanID(step.Vlan)
	intf := state.InterfaceID(step.Interface)
	if intf == 0 {
		intf = state.InterfaceID(vlan)
	}
	addrs := make([]netip.Prefix, 0, len(step.Addresses))
	for _, s := range step.Addresses {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return "", fmt.Errorf("address %q: %w", s, err)
		}
		addrs = append(addrs, p)
	}
	return update(a, string(step.Action), func(b *state.Builder) error {
		b.SetVlan(vlan, util.VlanName(uint16(vlan)), intf)
		b.SetInterface(state.NewInterface(intf, state.RouterID(step.VRF), vlan, addrs...))
		return nil
	})
}

func classList(classes []int) []state.ClassID {
	out := make([]state.ClassID, len(classes))
	for i, c := range classes {
		out[i] = state.ClassID(c)
	}
	return out
}

func addPort(a *agent.Agent, step *Step) (string, error) {
	id := state.PortID(step.Port)
	name := step.PortName
	if name == "" {
		name = util.EthernetName(uint32(id))
	}
	return update(a, string(step.Action), func(b *state.Builder) error {
		b.SetPort(state.NewPort(id, name, state.VlanID(step.Vlan), classList(step.LookupClasses)...))
		return nil
	})
}

// modifyPort applies fn to an existing port.
func modifyPort(a *agent.Agent, step *Step, fn func(p *state.Port) *state.Port) (string, error) {
	id := state.PortID(step.Port)
	return update(a, string(step.Action), func(b *state.Builder) error {
		p, ok := b.Port(id)
		if !ok {
			return util.NewNotFoundError("port", id.String())
		}
		b.SetPort(fn(p))
		return nil
	})
}

func removePort(a *agent.Agent, step *Step) (string, error) {
	id := state.PortID(step.Port)
	return update(a, string(step.Action), func(b *state.Builder) error {
		if !b.RemovePort(id) {
			return util.NewNotFoundError("port", id.String())
		}
		return nil
	})
}

func setLookupClasses(a *agent.Agent, step *Step) (string, error) {
	return modifyPort(a, step, func(p *state.Port) *state.Port {
		return p.WithLookupClasses(classList(step.LookupClasses)...)
	})
}

func movePort(a *agent.Agent, step *Step) (string, error) {
	return modifyPort(a, step, func(p *state.Port) *state.Port {
		return p.WithVlan(state.VlanID(step.Vlan))
	})
}

func parseIP(s string) (netip.Addr, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("ip %q: %w", s, err)
	}
	return ip, nil
}

func parseMAC(s string) (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(s)
	if err != nil {
		return nil, fmt.Errorf("mac %q: %w", s, err)
	}
	return mac, nil
}

func neighborState(s string) state.NeighborState {
	if s == "pending" {
		return state.NeighborPending
	}
	return state.NeighborReachable
}

func addNeighbor(a *agent.Agent, step *Step) (string, error) {
	ip, err := parseIP(step.IP)
	if err != nil {
		return "", err
	}
	var mac net.HardwareAddr
	if step.MAC != "" {
		if mac, err = parseMAC(step.MAC); err != nil {
			return "", err
		}
	}
	n := state.NewNeighbor(ip, state.VlanID(step.Vlan), mac, state.PortID(step.Port), neighborState(step.State)).
		WithClassID(state.ClassID(step.ClassID))
	return update(a, string(step.Action), func(b *state.Builder) error {
		return b.SetNeighbor(n)
	})
}

func removeNeighbor(a *agent.Agent, step *Step) (string, error) {
	ip, err := parseIP(step.IP)
	if err != nil {
		return "", err
	}
	vlan := state.VlanID(step.Vlan)
	return update(a, string(step.Action), func(b *state.Builder) error {
		removed, err := b.RemoveNeighbor(vlan, ip)
		if err != nil {
			return err
		}
		if !removed {
			return util.NewNotFoundError("neighbor", fmt.Sprintf("%s in %s", ip, vlan))
		}
		return nil
	})
}

func setNeighborClass(a *agent.Agent, step *Step) (string, error) {
	ip, err := parseIP(step.IP)
	if err != nil {
		return "", err
	}
	before := a.State().Generation()
	s, err := a.ClassifyNeighbor(state.VlanID(step.Vlan), ip, state.ClassID(step.ClassID))
	if err != nil {
		return "", err
	}
	if s.Generation() == before {
		return "no change", nil
	}
	return fmt.Sprintf("generation %d", s.Generation()), nil
}

func setNeighborState(a *agent.Agent, step *Step) (string, error) {
	ip, err := parseIP(step.IP)
	if err != nil {
		return "", err
	}
	vlan := state.VlanID(step.Vlan)
	return update(a, string(step.Action), func(b *state.Builder) error {
		n, ok := b.Neighbor(vlan, ip)
		if !ok {
			return util.NewNotFoundError("neighbor", fmt.Sprintf("%s in %s", ip, vlan))
		}
		return b.SetNeighbor(n.WithState(neighborState(step.State)))
	})
}

func parsePrefix(s string) (netip.Prefix, error) {
	p, err := util.ParseHostOrPrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("prefix %q: %w", s, err)
	}
	return p, nil
}

func addRoute(a *agent.Agent, step *Step) (string, error) {
	prefix, err := parsePrefix(step.Prefix)
	if err != nil {
		return "", err
	}
	hops := make([]state.NextHop, 0, len(step.NextHops))
	for _, nh := range step.NextHops {
		ip, err := parseIP(nh.IP)
		if err != nil {
			return "", err
		}
		hops = append(hops, state.NextHop{Addr: ip, Interface: state.InterfaceID(nh.Interface)})
	}
	return update(a, string(step.Action), func(b *state.Builder) error {
		b.SetRoute(state.NewRoute(state.RouterID(step.VRF), prefix, hops...))
		return nil
	})
}

func removeRoute(a *agent.Agent, step *Step) (string, error) {
	prefix, err := parsePrefix(step.Prefix)
	if err != nil {
		return "", err
	}
	rid := state.RouterID(step.VRF)
	return update(a, string(step.Action), func(b *state.Builder) error {
		if !b.RemoveRoute(rid, prefix) {
			return util.NewNotFoundError("route", fmt.Sprintf("%s:%s", rid, prefix))
		}
		return nil
	})
}

func l2Entry(step *Step) (mactable.L2Entry, error) {
	mac, err := parseMAC(step.MAC)
	if err != nil {
		return mactable.L2Entry{}, err
	}
	return mactable.L2Entry{
		Vlan:    state.VlanID(step.Vlan),
		MAC:     mac,
		Port:    state.PortID(step.Port),
		ClassID: state.ClassID(step.ClassID),
	}, nil
}

// macOp runs one MAC table operation and describes the version it produced.
func macOp(a *agent.Agent, step *Step, fn func(e mactable.L2Entry) *state.SwitchState) (string, error) {
	e, err := l2Entry(step)
	if err != nil {
		return "", err
	}
	if _, ok := a.State().Vlan(e.Vlan); !ok {
		return "", util.NewNotFoundError("vlan", e.Vlan.String())
	}
	before := a.State().Generation()
	if s := fn(e); s.Generation() != before {
		return fmt.Sprintf("generation %d", s.Generation()), nil
	}
	return "no change", nil
}

// macEvent returns an executor feeding a hardware learn or age event. An
// age event carries the classID the hardware reported in class_id.
func macEvent(t mactable.UpdateType) stepExecutor {
	return func(a *agent.Agent, step *Step) (string, error) {
		return macOp(a, step, func(e mactable.L2Entry) *state.SwitchState {
			return a.HandleL2Event(mactable.L2Event{Entry: e, Type: t})
		})
	}
}

func macClassify(a *agent.Agent, step *Step) (string, error) {
	return macOp(a, step, a.ClassifyMAC)
}

func macDeclassify(a *agent.Agent, step *Step) (string, error) {
	return macOp(a, step, a.DeclassifyMAC)
}

func expectRouteClass(a *agent.Agent, step *Step) (string, error) {
	prefix, err := parsePrefix(step.Prefix)
	if err != nil {
		return "", err
	}
	want := state.ClassID(step.ClassID)
	r, ok := a.State().Route(state.RouterID(step.VRF), prefix)
	if !ok {
		return "", failf("route %s not found in vrf %d", prefix, step.VRF)
	}
	if r.ClassID() != want {
		return "", failf("route %s has class %s, want %s", prefix, r.ClassID(), want)
	}
	return fmt.Sprintf("route %s class %s", prefix, want), nil
}

func expectMacClass(a *agent.Agent, step *Step) (string, error) {
	mac, err := parseMAC(step.MAC)
	if err != nil {
		return "", err
	}
	want := state.ClassID(step.ClassID)
	e, ok := a.State().MacEntry(state.VlanID(step.Vlan), mac)
	if !ok {
		return "", failf("MAC %s not found in vlan %d", mac, step.Vlan)
	}
	if e.ClassID() != want {
		return "", failf("MAC %s has class %s, want %s", mac, e.ClassID(), want)
	}
	if step.Port != 0 && e.Port() != state.PortID(step.Port) {
		return "", failf("MAC %s is on %s, want port%d", mac, e.Port(), step.Port)
	}
	return fmt.Sprintf("MAC %s class %s", mac, want), nil
}

func expectMacAbsent(a *agent.Agent, step *Step) (string, error) {
	mac, err := parseMAC(step.MAC)
	if err != nil {
		return "", err
	}
	if e, ok := a.State().MacEntry(state.VlanID(step.Vlan), mac); ok {
		return "", failf("MAC %s still present on %s with class %s", mac, e.Port(), e.ClassID())
	}
	return fmt.Sprintf("MAC %s absent", mac), nil
}

func expectInvariants(a *agent.Agent, _ *Step) (string, error) {
	if err := a.Validate(); err != nil {
		if errors.Is(err, util.ErrInvariantViolated) {
			return "", failf("%v", err)
		}
		return "", err
	}
	return "caches consistent", nil
}
