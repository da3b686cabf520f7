package util

import (
	"fmt"
	"regexp"
	"strconv"
)

var parseInterfaceRegexp = regexp.MustCompile(`^([A-Za-z]+)(\d+)$`)

// ParseInterfaceName splits a SONiC interface name into its type and number,
// e.g. ("Ethernet", 12) for Ethernet12 or ("Vlan", 100) for Vlan100.
func ParseInterfaceName(name string) (ifType string, num int, err error) {
	matches := parseInterfaceRegexp.FindStringSubmatch(name)
	if len(matches) != 3 {
		return "", 0, fmt.Errorf("invalid interface name %q", name)
	}
	num, err = strconv.Atoi(matches[2])
	if err != nil {
		return "", 0, fmt.Errorf("invalid interface number in %q: %w", name, err)
	}
	return matches[1], num, nil
}

// ParseTypedName parses name and checks it has the wanted type prefix.
func ParseTypedName(name, want string) (int, error) {
	ifType, num, err := ParseInterfaceName(name)
	if err != nil {
		return 0, err
	}
	if ifType != want {
		return 0, fmt.Errorf("interface %q is not a %s", name, want)
	}
	return num, nil
}

// VlanName formats a VLAN ID the way SONiC keys it.
func VlanName(id uint16) string {
	return "Vlan" + strconv.Itoa(int(id))
}

// EthernetName formats a port index the way SONiC keys it.
func EthernetName(index uint32) string {
	return "Ethernet" + strconv.FormatUint(uint64(index), 10)
}
