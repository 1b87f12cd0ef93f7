package domain

// Direction represents the chain count movement between two payloads
type Direction int

const (
	DirectionSame Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

// ChainState remembers the last observed chain summary.
type ChainState struct {
	Last      ChainSummary
	HasValue  bool
	Direction Direction
}

// Update records s and reports whether it differs from the previous summary.
// Payloads whose count and timeout match the last one are duplicates
// (typically the same tick seen over both transports).
func (cs *ChainState) Update(s ChainSummary) bool {
	if cs.HasValue && s.Current == cs.Last.Current && s.Timeout == cs.Last.Timeout {
		return false
	}

	switch {
	case !cs.HasValue:
		cs.Direction = DirectionSame
	case s.Current > cs.Last.Current:
		cs.Direction = DirectionUp
	case s.Current < cs.Last.Current:
		cs.Direction = DirectionDown
	default:
		cs.Direction = DirectionSame
	}
	cs.Last = s
	cs.HasValue = true
	return true
}
