package types

import (
	"errors"
	"fmt"
	"net"
	"regexp"
)

var ifaceNameRegexp = regexp.MustCompile(`^[a-zA-Z0-9.:_-]{1,15}$`)

// ValidateIfaceName checks that iface is a syntactically plausible network
// interface name. It does not check that the interface exists.
func ValidateIfaceName(iface string) error {
	if iface == "" {
		return errors.New("interface name must not be empty")
	}
	if !ifaceNameRegexp.MatchString(iface) {
		return fmt.Errorf("interface name %q is invalid", iface)
	}
	return nil
}

// PrimaryInterface returns the first non-loopback interface that has at
// least one IP address and a hardware (MAC) address.
func PrimaryInterface() (net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return net.Interface{}, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return iface, nil
	}
	return net.Interface{}, errors.New("no suitable non-loopback, MAC-bearing interface found")
}
