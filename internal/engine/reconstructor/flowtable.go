package reconstructor

import (
	"ConnSpectra/internal/model"
	"time"
)

// FlowState is the lifecycle evidence collected for one flow key.
// A new state has every timestamp unset.
type FlowState struct {
	openTime   time.Time
	finAckTime time.Time
	closeTime  time.Time

	opened   bool
	finAcked bool
	closed   bool
}

// OpenTime returns the timestamp of the first SYN-bearing packet.
func (s FlowState) OpenTime() (time.Time, bool) {
	return s.openTime, s.opened
}

// FinAckTime returns the timestamp of the first packet bearing both FIN and ACK.
func (s FlowState) FinAckTime() (time.Time, bool) {
	return s.finAckTime, s.finAcked
}

// CloseTime returns the close timestamp, set by RST or by an ACK after FIN+ACK.
func (s FlowState) CloseTime() (time.Time, bool) {
	return s.closeTime, s.closed
}

// apply updates the state with one TCP segment.
//
// SYN and FIN+ACK are latches: only the first occurrence is recorded, so
// retransmissions never move the timeline. RST always (re)sets the close time.
// An ACK strictly later than the recorded FIN+ACK closes the flow only if nothing
// has closed it yet. A plain ACK without a prior FIN+ACK has no effect.
func (s *FlowState) apply(ts time.Time, flags model.TCPFlags) {
	if flags.Has(model.FlagSYN) && !s.opened {
		s.openTime = ts
		s.opened = true
	}

	if flags.Has(model.FlagFIN|model.FlagACK) && !s.finAcked {
		s.finAckTime = ts
		s.finAcked = true
	}

	if flags.Has(model.FlagRST) {
		s.closeTime = ts
		s.closed = true
		return
	}

	if flags.Has(model.FlagACK) && s.finAcked && !s.closed && ts.After(s.finAckTime) {
		s.closeTime = ts
		s.closed = true
	}
}

// flowTable owns every FlowState of a run.
type flowTable struct {
	flows map[model.FlowKey]*FlowState
}

func newFlowTable() *flowTable {
	return &flowTable{flows: make(map[model.FlowKey]*FlowState)}
}

// lookupOrCreate returns the state for key, creating an empty one on first sight.
func (t *flowTable) lookupOrCreate(key model.FlowKey) *FlowState {
	if state, ok := t.flows[key]; ok {
		return state
	}
	state := &FlowState{}
	t.flows[key] = state
	return state
}

func (t *flowTable) get(key model.FlowKey) (*FlowState, bool) {
	state, ok := t.flows[key]
	return state, ok
}

func (t *flowTable) len() int {
	return len(t.flows)
}
