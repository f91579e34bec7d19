// Package synth builds Ethernet frames and pcap files for synthetic TCP traces.
package synth

import (
	"ConnSpectra/internal/model"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/netip"
	"os"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Kind selects the protocol stack of a synthetic frame.
type Kind int

const (
	KindTCP Kind = iota
	KindUDP
	KindARP
)

const snapshotLen = 65536

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// Segment describes one synthetic packet.
type Segment struct {
	Time       time.Time
	Kind       Kind
	Src, Dst   netip.Addr
	SrcPort    uint16
	DstPort    uint16
	Flags      model.TCPFlags
	PayloadLen int
}

// Frame serializes seg as an Ethernet frame with valid lengths and checksums.
func Frame(seg Segment) ([]byte, error) {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC}

	if seg.Kind == KindARP {
		eth.EthernetType = layers.EthernetTypeARP
		arp := &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   srcMAC,
			SourceProtAddress: seg.Src.AsSlice(),
			DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
			DstProtAddress:    seg.Dst.AsSlice(),
		}
		return serialize(eth, arp)
	}

	ipProto := layers.IPProtocolTCP
	if seg.Kind == KindUDP {
		ipProto = layers.IPProtocolUDP
	}

	var ipLayer gopacket.SerializableLayer
	var netLayer gopacket.NetworkLayer
	switch {
	case seg.Src.Is4() && seg.Dst.Is4():
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: ipProto,
			SrcIP:    net.IP(seg.Src.AsSlice()),
			DstIP:    net.IP(seg.Dst.AsSlice()),
		}
		ipLayer, netLayer = ip, ip
	case seg.Src.Is6() && seg.Dst.Is6():
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: ipProto,
			SrcIP:      net.IP(seg.Src.AsSlice()),
			DstIP:      net.IP(seg.Dst.AsSlice()),
		}
		ipLayer, netLayer = ip, ip
	default:
		return nil, fmt.Errorf("mismatched address families %s -> %s", seg.Src, seg.Dst)
	}

	payload := gopacket.Payload(make([]byte, seg.PayloadLen))

	if seg.Kind == KindUDP {
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(seg.SrcPort),
			DstPort: layers.UDPPort(seg.DstPort),
		}
		if err := udp.SetNetworkLayerForChecksum(netLayer); err != nil {
			return nil, err
		}
		return serialize(eth, ipLayer, udp, payload)
	}

	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(seg.SrcPort),
		DstPort: layers.TCPPort(seg.DstPort),
		Seq:     rand.Uint32(),
		SYN:     seg.Flags.Has(model.FlagSYN),
		ACK:     seg.Flags.Has(model.FlagACK),
		FIN:     seg.Flags.Has(model.FlagFIN),
		RST:     seg.Flags.Has(model.FlagRST),
		Window:  14600,
	}
	if tcp.ACK {
		tcp.Ack = rand.Uint32()
	}
	if err := tcp.SetNetworkLayerForChecksum(netLayer); err != nil {
		return nil, err
	}
	return serialize(eth, ipLayer, tcp, payload)
}

func serialize(ls ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}

// Write writes segs as a classic pcap stream with Ethernet link type.
func Write(w io.Writer, segs []Segment) error {
	pcapWriter := pcapgo.NewWriter(w)
	if err := pcapWriter.WriteFileHeader(snapshotLen, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}
	for i, seg := range segs {
		data, err := Frame(seg)
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     seg.Time,
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := pcapWriter.WritePacket(ci, data); err != nil {
			return fmt.Errorf("failed to write packet %d: %w", i, err)
		}
	}
	return nil
}

// WriteFile creates path and writes segs into it.
func WriteFile(path string, segs []Segment) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := Write(f, segs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// CloseKind selects how a synthetic connection ends.
type CloseKind int

const (
	// CloseNone sends a lone SYN, as in a SYN flood.
	CloseNone CloseKind = iota
	CloseGraceful
	CloseReset
)

// Conn describes one synthetic client connection.
type Conn struct {
	Client, Server         netip.Addr
	ClientPort, ServerPort uint16
	Open                   time.Time
	// Duration is the time from the client SYN to the packet that closes the
	// client->server flow. It must be at least 3ms for graceful closes.
	Duration time.Duration
	Close    CloseKind
}

// Segments expands c into packets. Graceful closes end with the client ACKing the
// server's FIN, so only the client->server flow is seen to close.
func (c Conn) Segments() []Segment {
	out := func(offset time.Duration, flags model.TCPFlags) Segment {
		return Segment{Time: c.Open.Add(offset), Src: c.Client, Dst: c.Server,
			SrcPort: c.ClientPort, DstPort: c.ServerPort, Flags: flags}
	}
	in := func(offset time.Duration, flags model.TCPFlags) Segment {
		return Segment{Time: c.Open.Add(offset), Src: c.Server, Dst: c.Client,
			SrcPort: c.ServerPort, DstPort: c.ClientPort, Flags: flags}
	}

	segs := []Segment{out(0, model.FlagSYN)}
	if c.Close == CloseNone {
		return segs
	}
	segs = append(segs,
		in(time.Millisecond, model.FlagSYN|model.FlagACK),
		out(2*time.Millisecond, model.FlagACK),
	)
	switch c.Close {
	case CloseGraceful:
		segs = append(segs,
			out(c.Duration-2*time.Millisecond, model.FlagFIN|model.FlagACK),
			in(c.Duration-time.Millisecond, model.FlagFIN|model.FlagACK),
			out(c.Duration, model.FlagACK),
		)
	case CloseReset:
		segs = append(segs, out(c.Duration, model.FlagRST))
	}
	return segs
}

// Interleave merges the segments of several connections in timestamp order.
func Interleave(conns []Conn) []Segment {
	var segs []Segment
	for _, c := range conns {
		segs = append(segs, c.Segments()...)
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Time.Before(segs[j].Time) })
	return segs
}
