// Package graph implements the Network Graph: a mutex-guarded
// map of observed and synthesized hosts on the local segment, keyed by
// MAC address.
package graph

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/edoardooldani/honeysensor/pkg/types"
)

// Kind is a node's fixed origin, set once at insertion.
type Kind int

// Enumeration of node kinds.
const (
	KindPhysical Kind = iota // a real host observed on the wire
	KindDevice               // this sensor's own interface
	KindVirtual              // a synthesized honeypot identity
)

func (k Kind) String() string {
	switch k {
	case KindPhysical:
		return "physical"
	case KindDevice:
		return "device"
	case KindVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// Anomaly is one recorded detection against a node.
// Anomalies are append-only and owned inline by the node they're recorded
// against.
type Anomaly struct {
	Class     types.AnomalyClass
	Timestamp time.Time
}

// Node is one host the graph knows about, physical, virtual, or this
// sensor's own device. References to other nodes are by MAC string, never
// by pointer.
type Node struct {
	MAC       string
	Kind      Kind
	IPv4      netip.Addr
	IPv6      netip.Addr
	Anomalies []Anomaly
}

// HasIPv4 reports whether the node has a usable IPv4 address recorded.
func (n *Node) HasIPv4() bool { return n.IPv4.IsValid() }

// Graph is the shared, mutex-guarded set of nodes and undirected edges
// observed on the segment. A single mutex is sufficient at LAN scale; lock hold time must exclude I/O and inference.
type Graph struct {
	mu      sync.Mutex
	nodes   map[string]*Node
	edges   map[string]map[string]struct{}
	ipIndex map[uint64][]*Node

	localMAC string

	vhostPool *virtualPool
}

// Option configures a Graph at construction time.
type Option func(*Graph)

// WithVirtualIPv4Range overrides the default [100,115)-random-start,
// .253-ceiling allocation window virtual identities draw their IPv4
// address from.
func WithVirtualIPv4Range(start, end int) Option {
	return func(g *Graph) { g.vhostPool.withIPv4Range(start, end) }
}

// New creates an empty Graph. localMAC identifies this sensor's own
// interface so observe() can classify it as a Device node.
func New(localMAC net.HardwareAddr, opts ...Option) *Graph {
	g := &Graph{
		nodes:     make(map[string]*Node),
		edges:     make(map[string]map[string]struct{}),
		ipIndex:   make(map[uint64][]*Node),
		localMAC:  localMAC.String(),
		vhostPool: newVirtualPool(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Graph) nodeLocked(mac string, kind Kind) *Node {
	n, ok := g.nodes[mac]
	if !ok {
		n = &Node{MAC: mac, Kind: kind}
		g.nodes[mac] = n
	}
	return n
}

func (g *Graph) addEdgeLocked(a, b string) {
	if g.edges[a] == nil {
		g.edges[a] = make(map[string]struct{})
	}
	if g.edges[b] == nil {
		g.edges[b] = make(map[string]struct{})
	}
	g.edges[a][b] = struct{}{}
	g.edges[b][a] = struct{}{}
}

// Observe records a frame's source and destination as nodes, links them
// with an undirected edge, and returns both nodes.
func (g *Graph) Observe(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP netip.Addr) (*Node, *Node) {
	src, dst := srcMAC.String(), dstMAC.String()

	g.mu.Lock()
	defer g.mu.Unlock()

	srcKind := KindPhysical
	if src == g.localMAC {
		srcKind = KindDevice
	}
	dstKind := KindPhysical
	if dst == g.localMAC {
		dstKind = KindDevice
	}

	srcNode := g.nodeLocked(src, srcKind)
	dstNode := g.nodeLocked(dst, dstKind)

	if srcIP.IsValid() {
		g.setAddrLocked(srcNode, srcIP)
	}
	if dstIP.IsValid() {
		g.setAddrLocked(dstNode, dstIP)
	}

	g.addEdgeLocked(src, dst)

	return srcNode, dstNode
}

// ipKey hashes an IP address into the ipIndex bucket key. Collisions are
// resolved by the equality check in FindByIP; xxh3 is used purely for its
// speed on the hot node-lookup path, not for uniqueness guarantees.
func ipKey(addr netip.Addr) uint64 {
	return xxh3.Hash(addr.AsSlice())
}

func (g *Graph) setAddrLocked(n *Node, addr netip.Addr) {
	switch {
	case addr.Is4():
		if n.IPv4 == addr {
			return
		}
		n.IPv4 = addr
	case addr.Is6():
		if n.IPv6 == addr {
			return
		}
		n.IPv6 = addr
	default:
		return
	}
	key := ipKey(addr)
	g.ipIndex[key] = append(g.ipIndex[key], n)
}

// FindByIP looks up the node whose IPv4 or IPv6 address matches addr,
// using an xxh3-hashed index instead of scanning every node.
func (g *Graph) FindByIP(addr netip.Addr) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, n := range g.ipIndex[ipKey(addr)] {
		if n.IPv4 == addr || n.IPv6 == addr {
			return n, true
		}
	}
	return nil, false
}

// NodeByMAC looks a node up directly by MAC.
func (g *Graph) NodeByMAC(mac net.HardwareAddr) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[mac.String()]
	return n, ok
}

// AddVirtual allocates a synthetic identity and inserts it as a Virtual
// node, retrying the pool's allocator until it lands on a MAC/IP pair not
// already present in the graph.
func (g *Graph) AddVirtual() (*Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	mac, ipv4, ipv6, err := g.vhostPool.allocate(func(mac string) bool {
		_, taken := g.nodes[mac]
		return taken
	}, func(addr netip.Addr) bool {
		for _, n := range g.nodes {
			if n.IPv4 == addr || n.IPv6 == addr {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("graph: allocate virtual identity: %w", err)
	}

	n := &Node{MAC: mac, Kind: KindVirtual}
	g.nodes[mac] = n
	g.setAddrLocked(n, ipv4)
	g.setAddrLocked(n, ipv6)
	return n, nil
}

// RecordAnomaly appends an anomaly to node and returns the node's new
// anomaly count. Callers must always pass the *source* node of the flow,
// never the destination.
func (g *Graph) RecordAnomaly(node *Node, class types.AnomalyClass, ts time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	node.Anomalies = append(node.Anomalies, Anomaly{Class: class, Timestamp: ts})
	anomaliesRecorded.WithLabelValues(class.String()).Inc()
	return len(node.Anomalies)
}
