// protocol/phase.go
package protocol

import "errors"

// Phase is where a game sits relative to its two deadlines.
type Phase string

const (
	PhaseCommitting Phase = "committing"
	PhaseRevealing  Phase = "revealing"
	PhaseSettleable Phase = "settleable"
)

// ErrCorruptDeadlines means a stored game violates commitDeadline < revealDeadline.
// Callers must stop processing that record — it is never repaired in place.
var ErrCorruptDeadlines = errors.New("commit deadline is not before reveal deadline")

// PhaseAt resolves the phase for a pair of unix-second deadlines. Every
// deadline comparison in the service goes through here — nothing else may
// compare wall-clock time against deadlines. Both windows are exclusive at
// their upper boundary: now == commitDeadline is already Revealing and
// now == revealDeadline is already Settleable.
func PhaseAt(now, commitDeadline, revealDeadline int64) (Phase, error) {
	if commitDeadline >= revealDeadline {
		return "", ErrCorruptDeadlines
	}
	switch {
	case now < commitDeadline:
		return PhaseCommitting, nil
	case now < revealDeadline:
		return PhaseRevealing, nil
	default:
		return PhaseSettleable, nil
	}
}
