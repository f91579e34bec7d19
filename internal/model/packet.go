package model

import (
	"net/netip"
	"strings"
	"time"
)

// NetworkProtocol tags the network layer of a captured packet.
type NetworkProtocol uint8

const (
	NetworkOther NetworkProtocol = iota
	NetworkIPv4
	NetworkIPv6
)

func (p NetworkProtocol) String() string {
	switch p {
	case NetworkIPv4:
		return "IPv4"
	case NetworkIPv6:
		return "IPv6"
	default:
		return "other"
	}
}

// TransportProtocol tags the transport layer of a captured packet.
type TransportProtocol uint8

const (
	TransportOther TransportProtocol = iota
	TransportTCP
)

func (p TransportProtocol) String() string {
	if p == TransportTCP {
		return "TCP"
	}
	return "other"
}

// TCPFlags is the subset of TCP control bits relevant to connection lifecycles.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagACK
)

// Has reports whether every bit of mask is set.
func (f TCPFlags) Has(mask TCPFlags) bool {
	return mask != 0 && f&mask == mask
}

func (f TCPFlags) String() string {
	var names []string
	if f.Has(FlagSYN) {
		names = append(names, "SYN")
	}
	if f.Has(FlagFIN) {
		names = append(names, "FIN")
	}
	if f.Has(FlagRST) {
		names = append(names, "RST")
	}
	if f.Has(FlagACK) {
		names = append(names, "ACK")
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, "|")
}

// FlowKey identifies a flow by its literal source/destination tuple.
// A->B and B->A on the same port pair are different keys.
type FlowKey struct {
	SrcAddr netip.Addr
	DstAddr netip.Addr
	SrcPort uint16
	DstPort uint16
}

// String renders the key as "src:sport->dst:dport", bracketing IPv6 addresses.
func (k FlowKey) String() string {
	return netip.AddrPortFrom(k.SrcAddr, k.SrcPort).String() + "->" +
		netip.AddrPortFrom(k.DstAddr, k.DstPort).String()
}

// PacketRecord holds the decoded fields of a single captured packet.
type PacketRecord struct {
	Timestamp time.Time
	Network   NetworkProtocol
	Transport TransportProtocol
	SrcAddr   netip.Addr
	DstAddr   netip.Addr
	SrcPort   uint16
	DstPort   uint16
	Flags     TCPFlags
	Length    int
}

// IsTCP reports whether the record is a TCP segment over IPv4 or IPv6.
func (r *PacketRecord) IsTCP() bool {
	return (r.Network == NetworkIPv4 || r.Network == NetworkIPv6) && r.Transport == TransportTCP
}

// Key returns the flow key of the record.
func (r *PacketRecord) Key() FlowKey {
	return FlowKey{
		SrcAddr: r.SrcAddr,
		DstAddr: r.DstAddr,
		SrcPort: r.SrcPort,
		DstPort: r.DstPort,
	}
}
