// Package reply drives a paced, operator-confirmed reply to one item.
package reply

import (
	"time"

	"github.com/ibeckermayer/xwatch/internal/backoff"
	"github.com/ibeckermayer/xwatch/internal/page"
)

// StepKind identifies what a Step does
type StepKind int

const (
	StepNavigate StepKind = iota
	StepPressKey
	StepVerify
	StepGate
	StepType
	StepWait
	StepDetach
)

func (k StepKind) String() string {
	switch k {
	case StepNavigate:
		return "navigate"
	case StepPressKey:
		return "press_key"
	case StepVerify:
		return "verify"
	case StepGate:
		return "gate"
	case StepType:
		return "type"
	case StepWait:
		return "wait"
	case StepDetach:
		return "detach"
	default:
		return "unknown"
	}
}

// Step is one stage of posting a reply. Pause is drawn after the step
// succeeds.
type Step struct {
	Name     string
	Kind     StepKind
	Key      string        // StepPressKey
	Selector string        // StepVerify
	Timeout  time.Duration // StepNavigate, StepVerify
	Attempts int           // StepVerify; the reply key is re-pressed between attempts
	Prompt   string        // StepGate
	Pause    backoff.Range
}

// Typing is the keystroke pacing used by StepType
type Typing struct {
	WordBreak backoff.Range // after a space
	Char      backoff.Range // after any other character
}

// Plan is the ordered list of steps for one reply
type Plan struct {
	Steps  []Step
	Typing Typing
}

// ReplyKey opens the reply surface on a focused post
const ReplyKey = "r"

func secs(min, max float64) backoff.Range {
	return backoff.Range{
		Min: time.Duration(min * float64(time.Second)),
		Max: time.Duration(max * float64(time.Second)),
	}
}

// DefaultPlan returns the standard posting sequence
func DefaultPlan() Plan {
	return Plan{
		Steps: []Step{
			{Name: "open post", Kind: StepNavigate, Timeout: 90 * time.Second, Pause: secs(30, 35)},
			{Name: "confirm open", Kind: StepGate, Prompt: "Open the reply box?"},
			{Name: "open reply", Kind: StepPressKey, Key: ReplyKey, Pause: secs(35, 40)},
			{Name: "find reply box", Kind: StepVerify, Selector: page.ReplyTextarea, Timeout: 10 * time.Second, Attempts: 3, Pause: secs(2, 3)},
			{Name: "focus", Kind: StepPressKey, Key: page.KeySpace, Pause: secs(8, 10)},
			{Name: "type reply", Kind: StepType},
			{Name: "review", Kind: StepWait, Pause: secs(15, 20)},
			{Name: "confirm send", Kind: StepGate, Prompt: "Send this reply?"},
			{Name: "send", Kind: StepPressKey, Key: page.KeyCtrlEnter, Pause: secs(25, 30)},
			{Name: "keep open", Kind: StepDetach},
		},
		Typing: Typing{
			WordBreak: secs(1, 1.5),
			Char:      secs(0.2, 0.3),
		},
	}
}
