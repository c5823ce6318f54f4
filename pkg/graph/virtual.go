package graph

import (
	"crypto/rand"
	"fmt"
	"net"
	"net/netip"
)

// vendorPrefixes is a small list of plausible-looking OUI prefixes to draw
// synthetic MACs from, so honeypot identities don't stand out as obviously
// locally-administered addresses.
var vendorPrefixes = [][3]byte{
	{0x00, 0x1A, 0x2B}, // generic "Cisco-like" looking OUI
	{0x00, 0x50, 0x56}, // VMware-range-like OUI
	{0xB8, 0x27, 0xEB}, // Raspberry-Pi-like OUI
}

// Default bounds for the last-octet allocation range:
// random start in [100,115), linear probe up to .253.
const (
	defaultIPv4RangeStart  = 100
	defaultIPv4RandomWidth = 15
	defaultIPv4RangeEnd    = 253
)

type virtualPool struct {
	base netip.Addr

	rangeStart  int // first octet eligible for the random start pick
	randomWidth int // random start is drawn from [rangeStart, rangeStart+randomWidth)
	rangeEnd    int // linear-probe ceiling, inclusive
}

func newVirtualPool() *virtualPool {
	return &virtualPool{
		base:        netip.MustParseAddr("192.168.1.0"),
		rangeStart:  defaultIPv4RangeStart,
		randomWidth: defaultIPv4RandomWidth,
		rangeEnd:    defaultIPv4RangeEnd,
	}
}

// withIPv4Range reconfigures the allocation window: start is where the random pick begins,
// end is the inclusive linear-probe ceiling.
func (p *virtualPool) withIPv4Range(start, end int) {
	if start > 0 && end > start {
		p.rangeStart = start
		p.rangeEnd = end
		if p.randomWidth > end-start {
			p.randomWidth = end - start
		}
	}
}

// allocate produces a unique {mac, ipv4, ipv6} triple, probing linearly
// past collisions until it finds a MAC and IPv4 address not already in
// use in the graph.
func (p *virtualPool) allocate(macTaken func(string) bool, ipTaken func(netip.Addr) bool) (mac string, ipv4, ipv6 netip.Addr, err error) {
	m, err := randomMAC(macTaken)
	if err != nil {
		return "", netip.Addr{}, netip.Addr{}, err
	}

	v4, err := p.allocateIPv4(ipTaken)
	if err != nil {
		return "", netip.Addr{}, netip.Addr{}, err
	}

	v6, err := randomLinkLocalIPv6()
	if err != nil {
		return "", netip.Addr{}, netip.Addr{}, err
	}

	return m, v4, v6, nil
}

func (p *virtualPool) allocateIPv4(taken func(netip.Addr) bool) (netip.Addr, error) {
	start, err := randomByteInRange(p.rangeStart, p.rangeStart+p.randomWidth)
	if err != nil {
		return netip.Addr{}, err
	}

	base := p.base.As4()
	for octet := int(start); octet <= p.rangeEnd; octet++ {
		candidate := netip.AddrFrom4([4]byte{base[0], base[1], base[2], byte(octet)})
		if !taken(candidate) {
			return candidate, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("no free IPv4 address in [%d,%d]", p.rangeStart, p.rangeEnd)
}

func randomMAC(taken func(string) bool) (string, error) {
	for attempt := 0; attempt < 32; attempt++ {
		prefix := vendorPrefixes[mustRandIndex(len(vendorPrefixes))]
		suffix := make([]byte, 3)
		if _, err := rand.Read(suffix); err != nil {
			return "", fmt.Errorf("read random MAC suffix: %w", err)
		}
		mac := net.HardwareAddr{prefix[0], prefix[1], prefix[2], suffix[0], suffix[1], suffix[2]}
		s := mac.String()
		if !taken(s) {
			return s, nil
		}
	}
	return "", fmt.Errorf("no unique MAC found after 32 attempts")
}

func randomLinkLocalIPv6() (netip.Addr, error) {
	b, err := randomByteInRange(0x64, 0x82)
	if err != nil {
		return netip.Addr{}, err
	}
	addr := [16]byte{0xfe, 0x80}
	addr[12] = 0x10
	addr[13] = 0x00
	addr[15] = byte(b)
	return netip.AddrFrom16(addr), nil
}

// randomByteInRange returns a uniformly random integer in [lo, hi).
func randomByteInRange(lo, hi int) (int, error) {
	if hi <= lo {
		return lo, nil
	}
	span := hi - lo
	var buf [1]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read random byte: %w", err)
	}
	return lo + int(buf[0])%span, nil
}

func mustRandIndex(n int) int {
	if n <= 1 {
		return 0
	}
	var buf [1]byte
	_, _ = rand.Read(buf[:])
	return int(buf[0]) % n
}
