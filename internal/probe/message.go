package probe

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"ConnSpectra/internal/model"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	kindResult = "result"
	kindEnd    = "end"
)

// RunEnd closes the stream of results of one run and carries its totals.
type RunEnd struct {
	RunID        string
	Source       string
	Connections  int
	Unterminated int
	TotalPackets uint64
	TotalBytes   uint64
	FirstTCPTime time.Time
}

// Message is a decoded NATS payload: exactly one of Result and End is set.
type Message struct {
	RunID  string
	Result *model.ConnectionResult
	End    *RunEnd
}

// EncodeResult serializes one connection result of a run.
func EncodeResult(runID string, res model.ConnectionResult) ([]byte, error) {
	return marshal(map[string]any{
		"kind":         kindResult,
		"run_id":       runID,
		"src":          res.Key.SrcAddr.String(),
		"sport":        int(res.Key.SrcPort),
		"dst":          res.Key.DstAddr.String(),
		"dport":        int(res.Key.DstPort),
		"start_offset": res.StartOffset,
		"duration":     res.Duration,
		"quality":      model.ClassifyResult(res).String(),
	})
}

// EncodeEnd serializes the end-of-run message of report.
func EncodeEnd(report *model.Report) ([]byte, error) {
	first := ""
	if !report.FirstTCPTime.IsZero() {
		first = report.FirstTCPTime.UTC().Format(time.RFC3339Nano)
	}
	return marshal(map[string]any{
		"kind":           kindEnd,
		"run_id":         report.RunID,
		"source":         report.Source,
		"connections":    len(report.Results),
		"unterminated":   report.Unterminated(),
		"total_packets":  report.TotalPackets,
		"total_bytes":    report.TotalBytes,
		"first_tcp_time": first,
	})
}

func marshal(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}
	return proto.Marshal(s)
}

// Decode parses a payload produced by EncodeResult or EncodeEnd.
func Decode(data []byte) (Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Message{}, fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}
	f := s.GetFields()
	msg := Message{RunID: f["run_id"].GetStringValue()}

	switch kind := f["kind"].GetStringValue(); kind {
	case kindResult:
		src, err := netip.ParseAddr(f["src"].GetStringValue())
		if err != nil {
			return Message{}, fmt.Errorf("invalid source address: %w", err)
		}
		dst, err := netip.ParseAddr(f["dst"].GetStringValue())
		if err != nil {
			return Message{}, fmt.Errorf("invalid destination address: %w", err)
		}
		msg.Result = &model.ConnectionResult{
			Key: model.FlowKey{
				SrcAddr: src,
				DstAddr: dst,
				SrcPort: uint16(f["sport"].GetNumberValue()),
				DstPort: uint16(f["dport"].GetNumberValue()),
			},
			StartOffset: f["start_offset"].GetNumberValue(),
			Duration:    f["duration"].GetNumberValue(),
		}
	case kindEnd:
		end := &RunEnd{
			RunID:        msg.RunID,
			Source:       f["source"].GetStringValue(),
			Connections:  int(f["connections"].GetNumberValue()),
			Unterminated: int(f["unterminated"].GetNumberValue()),
			TotalPackets: uint64(f["total_packets"].GetNumberValue()),
			TotalBytes:   uint64(f["total_bytes"].GetNumberValue()),
		}
		if ts := f["first_tcp_time"].GetStringValue(); ts != "" {
			t, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return Message{}, fmt.Errorf("invalid first_tcp_time: %w", err)
			}
			end.FirstTCPTime = t
		}
		msg.End = end
	default:
		return Message{}, fmt.Errorf("unknown message kind '%s'", kind)
	}
	return msg, nil
}

// DecodeResult parses a payload that must hold a connection result.
func DecodeResult(data []byte) (string, model.ConnectionResult, error) {
	msg, err := Decode(data)
	if err != nil {
		return "", model.ConnectionResult{}, err
	}
	if msg.Result == nil {
		return "", model.ConnectionResult{}, fmt.Errorf("message of run '%s' is not a result", msg.RunID)
	}
	return msg.RunID, *msg.Result, nil
}

// RunSubject is the NATS subject results of runID are published on.
func RunSubject(base, runID string) string {
	return base + "." + subjectToken(runID)
}

// subjectToken replaces the characters NATS treats as subject separators or wildcards.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}
