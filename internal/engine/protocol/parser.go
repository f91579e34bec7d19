package protocol

import (
	"ConnSpectra/internal/model"
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParsePacket extracts a PacketRecord from a decoded packet.
//
// Every packet yields a record so that it counts toward capture totals. Packets
// without an IPv4/IPv6 layer are tagged NetworkOther, and packets without a TCP
// layer are tagged TransportOther. The only error is a nil packet.
func ParsePacket(packet gopacket.Packet) (*model.PacketRecord, error) {
	if packet == nil {
		return nil, fmt.Errorf("nil packet")
	}

	rec := &model.PacketRecord{Length: len(packet.Data())}
	if meta := packet.Metadata(); meta != nil {
		rec.Timestamp = meta.Timestamp
		if meta.Length > 0 {
			rec.Length = meta.Length
		}
	}

	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		src, srcOK := toAddr(ip.SrcIP.To4())
		dst, dstOK := toAddr(ip.DstIP.To4())
		if !srcOK || !dstOK {
			return rec, nil
		}
		rec.Network = model.NetworkIPv4
		rec.SrcAddr, rec.DstAddr = src, dst
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		src, srcOK := toAddr(ip.SrcIP.To16())
		dst, dstOK := toAddr(ip.DstIP.To16())
		if !srcOK || !dstOK {
			return rec, nil
		}
		rec.Network = model.NetworkIPv6
		rec.SrcAddr, rec.DstAddr = src, dst
	} else {
		return rec, nil
	}

	// gopacket keeps a TCP layer even when its header failed to decode; such
	// records stay non-TCP traffic.
	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		if len(tcp.Contents) < minTCPHeaderLen {
			return rec, nil
		}
		rec.Transport = model.TransportTCP
		rec.SrcPort = uint16(tcp.SrcPort)
		rec.DstPort = uint16(tcp.DstPort)
		rec.Flags = flagsOf(tcp)
	}

	return rec, nil
}

// ParseData decodes raw frame bytes of the given link type and extracts a record.
func ParseData(data []byte, linkType layers.LinkType, ci gopacket.CaptureInfo) (*model.PacketRecord, error) {
	packet := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	md := packet.Metadata()
	md.CaptureInfo = ci
	return ParsePacket(packet)
}

const minTCPHeaderLen = 20

func flagsOf(tcp *layers.TCP) model.TCPFlags {
	var flags model.TCPFlags
	if tcp.SYN {
		flags |= model.FlagSYN
	}
	if tcp.ACK {
		flags |= model.FlagACK
	}
	if tcp.FIN {
		flags |= model.FlagFIN
	}
	if tcp.RST {
		flags |= model.FlagRST
	}
	return flags
}

func toAddr(ip net.IP) (netip.Addr, bool) {
	if ip == nil {
		return netip.Addr{}, false
	}
	return netip.AddrFromSlice(ip)
}
