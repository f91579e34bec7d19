package model

import (
	"net/netip"
	"testing"
)

func TestTCPFlags_String(t *testing.T) {
	tests := []struct {
		flags TCPFlags
		want  string
	}{
		{0, "-"},
		{FlagSYN, "SYN"},
		{FlagSYN | FlagACK, "SYN|ACK"},
		{FlagFIN | FlagACK, "FIN|ACK"},
		{FlagRST | FlagACK, "RST|ACK"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("TCPFlags(%d).String() = %q, want %q", tt.flags, got, tt.want)
		}
	}
}

func TestTCPFlags_Has(t *testing.T) {
	f := FlagFIN | FlagACK
	if !f.Has(FlagFIN | FlagACK) {
		t.Errorf("Expected FIN|ACK to be set")
	}
	if f.Has(FlagFIN | FlagSYN) {
		t.Errorf("Has must require every bit of the mask")
	}
	if f.Has(0) {
		t.Errorf("An empty mask must never match")
	}
}

func TestFlowKey_String(t *testing.T) {
	k4 := FlowKey{
		SrcAddr: netip.MustParseAddr("10.0.0.1"), SrcPort: 1234,
		DstAddr: netip.MustParseAddr("10.0.0.2"), DstPort: 80,
	}
	if got := k4.String(); got != "10.0.0.1:1234->10.0.0.2:80" {
		t.Errorf("Unexpected IPv4 key %q", got)
	}

	k6 := FlowKey{
		SrcAddr: netip.MustParseAddr("2001:db8::1"), SrcPort: 50000,
		DstAddr: netip.MustParseAddr("2001:db8::2"), DstPort: 443,
	}
	if got := k6.String(); got != "[2001:db8::1]:50000->[2001:db8::2]:443" {
		t.Errorf("Unexpected IPv6 key %q", got)
	}
}

func TestClassifyResult(t *testing.T) {
	tests := []struct {
		name string
		res  ConnectionResult
		want Quality
	}{
		{"closed", ConnectionResult{StartOffset: 1, Duration: 2.5}, QualityOK},
		{"zero length", ConnectionResult{Duration: 0}, QualityOK},
		{"sentinel", ConnectionResult{StartOffset: 3, Duration: SentinelDuration}, QualityUnterminated},
		{"negative duration", ConnectionResult{StartOffset: 3, Duration: -1}, QualityProbableCaptureDisorder},
		{"negative offset", ConnectionResult{StartOffset: -0.5, Duration: 1}, QualityProbableCaptureDisorder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyResult(tt.res); got != tt.want {
				t.Errorf("ClassifyResult() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReport_SortResults(t *testing.T) {
	a := FlowKey{SrcAddr: netip.MustParseAddr("10.0.0.1"), SrcPort: 1, DstAddr: netip.MustParseAddr("10.0.0.9"), DstPort: 80}
	b := FlowKey{SrcAddr: netip.MustParseAddr("10.0.0.2"), SrcPort: 1, DstAddr: netip.MustParseAddr("10.0.0.9"), DstPort: 80}
	r := &Report{Results: []ConnectionResult{
		{Key: b, StartOffset: 2, Duration: SentinelDuration},
		{Key: b, StartOffset: 1, Duration: 1},
		{Key: a, StartOffset: 1, Duration: 3},
	}}
	r.SortResults()

	if r.Results[0].Key != a || r.Results[1].Key != b || r.Results[2].StartOffset != 2 {
		t.Errorf("Unexpected order %+v", r.Results)
	}
	if r.Unterminated() != 1 {
		t.Errorf("Expected 1 unterminated result, got %d", r.Unterminated())
	}
}
