package agent

// Stage is the position of a call in the booking flow. It only moves forward.
type Stage int

const (
	StageGreeting Stage = iota
	StageCollecting
	StageFinalizing
	StageCompleted
)

func (s Stage) String() string {
	switch s {
	case StageGreeting:
		return "greeting"
	case StageCollecting:
		return "collecting"
	case StageFinalizing:
		return "finalizing"
	case StageCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// advance returns the later of the two stages.
func (s Stage) advance(to Stage) Stage {
	if to > s {
		return to
	}
	return s
}
