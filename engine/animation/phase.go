package animation

// Phase is the clip-level state of the sequencer.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseStanding
	PhaseTalking
	PhasePlayingGenerated
	PhaseReturningToIdle
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStanding:
		return "standing"
	case PhaseTalking:
		return "talking"
	case PhasePlayingGenerated:
		return "playing_generated"
	case PhaseReturningToIdle:
		return "returning_to_idle"
	}
	return "unknown"
}

var transitions = map[Phase][]Phase{
	PhaseIdle:             {PhaseStanding, PhaseTalking, PhasePlayingGenerated},
	PhaseStanding:         {PhaseIdle, PhaseTalking, PhasePlayingGenerated},
	PhaseTalking:          {PhaseIdle, PhaseStanding, PhasePlayingGenerated},
	PhasePlayingGenerated: {PhaseStanding, PhasePlayingGenerated, PhaseReturningToIdle},
	PhaseReturningToIdle:  {PhaseIdle, PhaseStanding, PhasePlayingGenerated},
}

// CanTransition reports whether the transition table allows going from p to next.
func (p Phase) CanTransition(next Phase) bool {
	for _, t := range transitions[p] {
		if t == next {
			return true
		}
	}
	return false
}

// Ambient reports whether p is one of the alternating base phases.
func (p Phase) Ambient() bool {
	return p == PhaseIdle || p == PhaseStanding
}
