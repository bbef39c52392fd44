// Package monitor runs the search, timeline, reply and recovery cycle.
package monitor

// State is a monitoring loop state
type State int

const (
	Searching State = iota
	ReadingTimeline
	Responding
	Recovering
)

func (s State) String() string {
	switch s {
	case Searching:
		return "SEARCHING"
	case ReadingTimeline:
		return "READING_TIMELINE"
	case Responding:
		return "RESPONDING"
	case Recovering:
		return "RECOVERING"
	default:
		return "UNKNOWN"
	}
}
