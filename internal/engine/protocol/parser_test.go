package protocol

import (
	"ConnSpectra/internal/engine/reconstructor"
	"ConnSpectra/internal/model"
	"ConnSpectra/internal/synth"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func decode(t *testing.T, seg synth.Segment) *model.PacketRecord {
	t.Helper()
	data, err := synth.Frame(seg)
	if err != nil {
		t.Fatalf("Failed to build frame: %v", err)
	}
	ci := gopacket.CaptureInfo{Timestamp: seg.Time, CaptureLength: len(data), Length: len(data)}
	rec, err := ParseData(data, layers.LinkTypeEthernet, ci)
	if err != nil {
		t.Fatalf("ParseData failed: %v", err)
	}
	return rec
}

func TestParsePacket_TCPFlags(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	src := netip.MustParseAddr("192.168.0.1")
	dst := netip.MustParseAddr("10.0.0.80")

	tests := []model.TCPFlags{
		model.FlagSYN,
		model.FlagSYN | model.FlagACK,
		model.FlagFIN | model.FlagACK,
		model.FlagRST,
		model.FlagACK,
	}

	for _, flags := range tests {
		t.Run(flags.String(), func(t *testing.T) {
			rec := decode(t, synth.Segment{
				Time: ts, Src: src, Dst: dst, SrcPort: 40000, DstPort: 80, Flags: flags, PayloadLen: 10,
			})
			if !rec.IsTCP() {
				t.Fatalf("Expected a TCP record, got %s/%s", rec.Network, rec.Transport)
			}
			if rec.Flags != flags {
				t.Errorf("Expected flags %s, got %s", flags, rec.Flags)
			}
			if rec.SrcAddr != src || rec.DstAddr != dst || rec.SrcPort != 40000 || rec.DstPort != 80 {
				t.Errorf("Unexpected key %s", rec.Key())
			}
			if !rec.Timestamp.Equal(ts) {
				t.Errorf("Expected timestamp %v, got %v", ts, rec.Timestamp)
			}
			if rec.Length != 14+20+20+10 {
				t.Errorf("Expected length %d, got %d", 14+20+20+10, rec.Length)
			}
		})
	}
}

func TestParsePacket_IPv6(t *testing.T) {
	rec := decode(t, synth.Segment{
		Src:     netip.MustParseAddr("2001:db8::1"),
		Dst:     netip.MustParseAddr("2001:db8::2"),
		SrcPort: 50000,
		DstPort: 443,
		Flags:   model.FlagSYN,
	})
	if rec.Network != model.NetworkIPv6 || rec.Transport != model.TransportTCP {
		t.Fatalf("Expected IPv6/TCP, got %s/%s", rec.Network, rec.Transport)
	}
	if rec.SrcAddr.String() != "2001:db8::1" {
		t.Errorf("Unexpected source address %s", rec.SrcAddr)
	}
}

func TestParsePacket_NonTCPStillCounts(t *testing.T) {
	udp := decode(t, synth.Segment{
		Kind:    synth.KindUDP,
		Src:     netip.MustParseAddr("192.168.0.1"),
		Dst:     netip.MustParseAddr("224.0.0.251"),
		SrcPort: 5353,
		DstPort: 5353,
	})
	if udp.Network != model.NetworkIPv4 || udp.Transport != model.TransportOther {
		t.Errorf("Expected IPv4/other for UDP, got %s/%s", udp.Network, udp.Transport)
	}
	if udp.Length == 0 {
		t.Errorf("UDP record must carry its length")
	}

	arp := decode(t, synth.Segment{
		Kind: synth.KindARP,
		Src:  netip.MustParseAddr("192.168.0.1"),
		Dst:  netip.MustParseAddr("192.168.0.254"),
	})
	if arp.Network != model.NetworkOther || arp.IsTCP() {
		t.Errorf("Expected ARP to be tagged other, got %s/%s", arp.Network, arp.Transport)
	}
}

func TestParsePacket_TruncatedTCP(t *testing.T) {
	data, err := synth.Frame(synth.Segment{
		Src:     netip.MustParseAddr("192.168.0.1"),
		Dst:     netip.MustParseAddr("10.0.0.80"),
		SrcPort: 40000,
		DstPort: 80,
		Flags:   model.FlagSYN,
	})
	if err != nil {
		t.Fatalf("Failed to build frame: %v", err)
	}
	const tcpStart = 14 + 20

	badOffset := append([]byte(nil), data...)
	badOffset[tcpStart+12] = 0x30

	tests := []struct {
		name  string
		frame []byte
	}{
		{"half header", data[:tcpStart+10]},
		{"one byte short", data[:tcpStart+19]},
		{"data offset below minimum", badOffset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseData(tt.frame, layers.LinkTypeEthernet, gopacket.CaptureInfo{Length: len(data)})
			if err != nil {
				t.Fatalf("ParseData failed: %v", err)
			}
			if rec.IsTCP() {
				t.Errorf("Corrupt TCP header must not produce a TCP record, got %s flags=%s", rec.Key(), rec.Flags)
			}
			if rec.Length != len(data) {
				t.Errorf("Expected wire length %d, got %d", len(data), rec.Length)
			}
		})
	}
}

// A corrupt TCP header ahead of the first valid segment must not become the
// start offset reference of the capture.
func TestParsePacket_TruncatedTCPKeepsStartOffset(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	seg := synth.Segment{
		Src:     netip.MustParseAddr("192.168.0.1"),
		Dst:     netip.MustParseAddr("10.0.0.80"),
		SrcPort: 40000,
		DstPort: 80,
		Flags:   model.FlagSYN,
	}
	data, err := synth.Frame(seg)
	if err != nil {
		t.Fatalf("Failed to build frame: %v", err)
	}

	truncated, err := ParseData(data[:14+20+10], layers.LinkTypeEthernet,
		gopacket.CaptureInfo{Timestamp: base, CaptureLength: 44, Length: len(data)})
	if err != nil {
		t.Fatalf("ParseData failed: %v", err)
	}
	seg.Time = base.Add(5 * time.Second)
	syn := decode(t, seg)

	r := reconstructor.New()
	r.Ingest(truncated)
	r.Ingest(syn)
	report := r.Finalize()

	if len(report.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(report.Results))
	}
	if got := report.Results[0].StartOffset; got != 0 {
		t.Errorf("Expected start offset 0, got %v", got)
	}
	if report.TotalPackets != 2 {
		t.Errorf("Expected both records counted, got %d", report.TotalPackets)
	}
	if stats := r.Stats(); stats.Flows != 1 {
		t.Errorf("Expected a single flow, got %d", stats.Flows)
	}
}

func TestParsePacket_Nil(t *testing.T) {
	if _, err := ParsePacket(nil); err == nil {
		t.Errorf("Expected an error for a nil packet")
	}
}
