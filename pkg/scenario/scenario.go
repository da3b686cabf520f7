// Package scenario replays YAML scenarios against an in-memory agent. A
// scenario builds a topology, drives neighbor, route and MAC changes through
// the agent, and checks the resulting classIDs step by step.
package scenario

// Scenario is a parsed scenario from a YAML file.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is a single action within a scenario.
// Fields are action-specific; the parser checks that the fields an action
// needs are set.
type Step struct {
	Name   string     `yaml:"name"`
	Action StepAction `yaml:"action"`

	// add-interface
	Interface int      `yaml:"interface,omitempty"` // defaults to the VLAN ID
	Addresses []string `yaml:"addresses,omitempty"`

	// add-port, remove-port, set-lookup-classes, move-port, mac-*
	Port          int    `yaml:"port,omitempty"`
	PortName      string `yaml:"port_name,omitempty"` // defaults to EthernetN
	LookupClasses []int  `yaml:"lookup_classes,omitempty"`

	// Most actions
	Vlan int `yaml:"vlan,omitempty"`
	VRF  int `yaml:"vrf,omitempty"` // router ID; 0 is the default VRF

	// *-neighbor
	IP    string `yaml:"ip,omitempty"`
	MAC   string `yaml:"mac,omitempty"`
	State string `yaml:"state,omitempty"` // "reachable" (default) or "pending"

	// Class to set, the class an aged MAC carried, or the expected class.
	// 0 means no class.
	ClassID int `yaml:"class_id,omitempty"`

	// add-route, remove-route, expect-route-class
	Prefix   string        `yaml:"prefix,omitempty"`
	NextHops []NextHopSpec `yaml:"next_hops,omitempty"`
}

// NextHopSpec is a route next hop: an address reached through an interface.
type NextHopSpec struct {
	IP        string `yaml:"ip"`
	Interface int    `yaml:"interface"`
}

// StepAction identifies the type of step to execute.
type StepAction string

const (
	ActionAddInterface     StepAction = "add-interface"
	ActionAddPort          StepAction = "add-port"
	ActionRemovePort       StepAction = "remove-port"
	ActionSetLookupClasses StepAction = "set-lookup-classes"
	ActionMovePort         StepAction = "move-port"

	ActionAddNeighbor      StepAction = "add-neighbor"
	ActionRemoveNeighbor   StepAction = "remove-neighbor"
	ActionSetNeighborClass StepAction = "set-neighbor-class"
	ActionSetNeighborState StepAction = "set-neighbor-state"

	ActionAddRoute    StepAction = "add-route"
	ActionRemoveRoute StepAction = "remove-route"

	ActionMacLearn      StepAction = "mac-learn"
	ActionMacAge        StepAction = "mac-age"
	ActionMacClassify   StepAction = "mac-classify"
	ActionMacDeclassify StepAction = "mac-declassify"

	ActionExpectRouteClass StepAction = "expect-route-class"
	ActionExpectMacClass   StepAction = "expect-mac-class"
	ActionExpectMacAbsent  StepAction = "expect-mac-absent"
	ActionExpectInvariants StepAction = "expect-invariants"
)
