// Package sensor wires the Frame Source, Flow Tracker, Anomaly Engine,
// Network Graph, Virtual-Host Responder, and Alert Transport together into
// the sensor's capture loop.
package sensor

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/edoardooldani/honeysensor/pkg/anomaly"
	"github.com/edoardooldani/honeysensor/pkg/flowtracker"
	"github.com/edoardooldani/honeysensor/pkg/frame"
	"github.com/edoardooldani/honeysensor/pkg/graph"
	"github.com/edoardooldani/honeysensor/pkg/logging"
	"github.com/edoardooldani/honeysensor/pkg/transport"
	"github.com/edoardooldani/honeysensor/pkg/types"
	"github.com/edoardooldani/honeysensor/pkg/vhost"
)

// Config carries the capture-loop policy knobs.
type Config struct {
	EvictionInterval time.Duration
	EvictionMaxAge   time.Duration
	VirtualHostCount int
}

// DefaultConfig returns the sensor orchestration defaults.
func DefaultConfig() Config {
	return Config{
		EvictionInterval: 30 * time.Second,
		EvictionMaxAge:   300 * time.Second,
		VirtualHostCount: 10,
	}
}

// Sensor is the process's capture loop: one Frame Source feeding the Flow
// Tracker, Anomaly Engine, Virtual-Host Responder, and Alert Transport.
type Sensor struct {
	cfg Config

	src       *frame.Source
	tracker   *flowtracker.Tracker
	graph     *graph.Graph
	responder *vhost.Responder
	engine    *anomaly.Engine
	client    *transport.Client

	arpDetector *transport.ArpDetector
	synDetector *transport.TCPSynDetector
}

// New builds a Sensor from its already-constructed collaborators.
func New(cfg Config, src *frame.Source, tracker *flowtracker.Tracker, g *graph.Graph, responder *vhost.Responder, engine *anomaly.Engine, client *transport.Client) *Sensor {
	return &Sensor{
		cfg:         cfg,
		src:         src,
		tracker:     tracker,
		graph:       g,
		responder:   responder,
		engine:      engine,
		client:      client,
		arpDetector: transport.NewArpDetector(),
		synDetector: transport.NewTCPSynDetector(),
	}
}

// SeedVirtualHosts allocates cfg.VirtualHostCount honeypot identities on
// the graph before capture starts.
func (s *Sensor) SeedVirtualHosts() error {
	for i := 0; i < s.cfg.VirtualHostCount; i++ {
		if _, err := s.graph.AddVirtual(); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the capture loop until ctx is cancelled or the underlying
// source errors out.
func (s *Sensor) Run(ctx context.Context) error {
	go s.evictLoop(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		parsed, err := s.src.Next()
		if err != nil {
			return err
		}
		s.handleFrame(ctx, parsed)
	}
}

func (s *Sensor) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.EvictionInterval)
	defer ticker.Stop()
	logger := logging.WithContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.tracker.EvictIdle(s.cfg.EvictionMaxAge); n > 0 {
				logger.Debug("evicted idle flows", "count", n)
			}
		}
	}
}

func (s *Sensor) handleFrame(ctx context.Context, p *frame.Parsed) {
	if p.Ethernet == nil {
		return
	}
	logger := logging.WithContext(ctx)

	srcIP, dstIP := addressesOf(p)
	srcNode, dstNode := s.graph.Observe(p.Ethernet.SrcMAC, p.Ethernet.DstMAC, srcIP, dstIP)

	switch {
	case p.ARP != nil:
		s.handleARP(p, srcNode, dstNode, logger)
	case p.TCP != nil || p.UDP != nil:
		s.handleIP(p, srcNode, dstNode, logger)
	}
}

func addressesOf(p *frame.Parsed) (src, dst netip.Addr) {
	if p.IPv4 != nil {
		src, _ = netip.AddrFromSlice(p.IPv4.SrcIP.To4())
		dst, _ = netip.AddrFromSlice(p.IPv4.DstIP.To4())
		return src, dst
	}
	if p.ARP != nil {
		src, _ = netip.AddrFromSlice(p.ARP.SourceProtAddress)
		dst, _ = netip.AddrFromSlice(p.ARP.DstProtAddress)
	}
	return src, dst
}

func (s *Sensor) handleARP(p *frame.Parsed, srcNode, dstNode *graph.Node, logger *slog.Logger) {
	now := time.Now()

	switch p.ARP.Operation {
	case layers.ARPRequest:
		if s.arpDetector.ObserveRequest(p.Ethernet.SrcMAC.String(), now) {
			s.sendArpAlert(srcNode, types.AttackTypeArpScanning)
		}
	case layers.ARPReply:
		if s.arpDetector.ObserveReply(p.Ethernet.SrcMAC.String(), now) {
			s.sendArpAlert(srcNode, types.AttackTypeArpFlooding)
		}
	}

	if dstNode != nil && dstNode.Kind == graph.KindVirtual {
		_ = s.responder.HandleARP(p, dstNode)
	}
}

func (s *Sensor) handleIP(p *frame.Parsed, srcNode, dstNode *graph.Node, logger *slog.Logger) {
	f, ok := p.ToFlowFrame()
	if ok {
		feat, tracked := s.tracker.Update(f)
		if tracked {
			verdict, scored, err := s.engine.Score(feat, srcNode, time.Now())
			if err != nil {
				logger.Warn("anomaly scoring failed", "error", err)
			} else if scored && verdict.Anomalous {
				s.sendAlert(srcNode, feat, verdict)
			}
		}
	}

	if p.TCP == nil {
		return
	}

	if p.TCP.SYN && !p.TCP.ACK {
		if s.synDetector.ObserveSyn(p.IPv4.SrcIP.String(), time.Now()) {
			s.sendTCPAlert(srcNode, uint16(p.TCP.DstPort))
		}
	}

	if dstNode != nil && dstNode.Kind == graph.KindVirtual {
		if err := s.responder.HandleTCP(p, dstNode); err != nil {
			logger.Warn("virtual host responder failed", "error", err)
		}
	}
}

func (s *Sensor) sendAlert(node *graph.Node, feat *flowtracker.FlowFeatures, v anomaly.Verdict) {
	mac, err := net.ParseMAC(node.MAC)
	if err != nil {
		return
	}
	s.client.Send(transport.Packet{
		Header: transport.Header{
			TimestampS: time.Now().Unix(),
			DataType:   types.DataTypeAlert,
			Priority:   v.Priority,
			MAC:        macArray(mac),
		},
		Payload: transport.Alert{
			MAC:      macArray(mac),
			IP:       net.IP(node.IPv4.AsSlice()),
			Features: feat.AutoencoderVector(),
		},
	})
}

func (s *Sensor) sendArpAlert(node *graph.Node, attack types.AttackType) {
	mac, err := net.ParseMAC(node.MAC)
	if err != nil {
		return
	}
	s.client.Send(transport.Packet{
		Header: transport.Header{
			TimestampS: time.Now().Unix(),
			DataType:   types.DataTypeArpAlert,
			Priority:   types.PriorityLow,
			MAC:        macArray(mac),
		},
		Payload: transport.ArpAlert{
			MACs:       [][6]byte{macArray(mac)},
			IP:         net.IP(node.IPv4.AsSlice()),
			AttackType: attack,
		},
	})
}

func (s *Sensor) sendTCPAlert(node *graph.Node, dstPort uint16) {
	mac, err := net.ParseMAC(node.MAC)
	if err != nil {
		return
	}
	s.client.Send(transport.Packet{
		Header: transport.Header{
			TimestampS: time.Now().Unix(),
			DataType:   types.DataTypeTCPAlert,
			Priority:   types.PriorityLow,
			MAC:        macArray(mac),
		},
		Payload: transport.TcpAlert{
			MAC:        macArray(mac),
			IP:         net.IP(node.IPv4.AsSlice()),
			DstPort:    dstPort,
			AttackType: types.AttackTypeTCPSyn,
		},
	})
}

func macArray(mac net.HardwareAddr) [6]byte {
	var out [6]byte
	copy(out[:], mac)
	return out
}
