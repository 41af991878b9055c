// Package clock derives game timing from a single absolute start timestamp.
// Which question is visible and how many seconds remain are recomputed from
// scratch on every tick, so late joiners and reconnecting clients self-correct
// without any tick-by-tick protocol with the server.
package clock

import (
	"time"

	"quizroom/internal/domain"
	"quizroom/internal/phase"
)

const (
	// ReviewDuration is the fixed window after each answering phase in which
	// the correct answer and leaderboard are shown.
	ReviewDuration = 8 * time.Second
	// RoundBreakDuration is the fixed pause between rounds.
	RoundBreakDuration = 10 * time.Second
	// TickInterval is the polling cadence for both countdowns.
	TickInterval = 100 * time.Millisecond
)

// Tick is the derived clock position. It is recomputed every interval and
// never stored.
type Tick struct {
	QuestionIndex int
	SecondsLeft   int
	InReview      bool
}

// Derive computes the clock position for a given instant. Negative elapsed
// time (clock skew, premature start) is clamped to zero, never an error.
// Integer-second floor/mod arithmetic throughout; fractional remainders must
// not leak into phase decisions.
func Derive(now, startedAt time.Time, timePerQuestion int) Tick {
	elapsed := int(now.Sub(startedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	review := int(ReviewDuration / time.Second)
	cycle := timePerQuestion + review

	idx := elapsed / cycle
	pos := elapsed % cycle
	if pos < timePerQuestion {
		return Tick{QuestionIndex: idx, SecondsLeft: timePerQuestion - pos}
	}
	return Tick{QuestionIndex: idx, SecondsLeft: review - (pos - timePerQuestion), InReview: true}
}

// Engine turns successive clock positions into phase events. It holds only
// the bookkeeping needed to emit each transition once; the position itself is
// always re-derived. One engine instance belongs to one session and must be
// Reset when a new round installs a fresh start timestamp.
type Engine struct {
	lastIndex int
	inReview  bool
	done      bool
}

func NewEngine() *Engine {
	return &Engine{lastIndex: -1}
}

// Reset clears all bookkeeping so the next Advance starts from a clean slate.
// Stale state from a previous round must never shape the new round's index.
func (e *Engine) Reset() {
	e.lastIndex = -1
	e.inReview = false
	e.done = false
}

// Advance derives the position at now and returns the events that position
// implies, in the order the machine must consume them. It returns ok=false
// without computing anything when the snapshot cannot drive a clock (no room,
// no questions, or no per-question time).
//
// The round/game completion check runs every call, not only at cycle
// boundaries, so the terminal condition is not missed when review time has
// also elapsed. Entering review emits TimerExpired twice: question→waiting
// covers an implicit non-submission and waiting→submitted starts the reveal;
// if the player already submitted, the second expiry is ignored by the
// machine.
func (e *Engine) Advance(now time.Time, room *domain.Room, startedAt time.Time) (Tick, []phase.Event, bool) {
	if !room.HasQuestions() {
		return Tick{}, nil, false
	}

	tick := Derive(now, startedAt, room.TimePerQuestion)

	if tick.QuestionIndex >= len(room.Questions) {
		if e.done {
			return tick, nil, true
		}
		e.done = true
		if room.CurrentRound < room.NumRounds {
			return tick, []phase.Event{phase.RoundFinished{}}, true
		}
		return tick, []phase.Event{phase.GameFinished{}}, true
	}

	var events []phase.Event
	if tick.QuestionIndex != e.lastIndex {
		events = append(events, phase.QuestionChanged{Index: tick.QuestionIndex})
		e.lastIndex = tick.QuestionIndex
		e.inReview = false
	}
	if tick.InReview && !e.inReview {
		e.inReview = true
		events = append(events, phase.TimerExpired{}, phase.TimerExpired{})
	}
	return tick, events, true
}

// BreakTimer is the independent inter-round countdown. It is not derived from
// the game start timestamp: it captures its own start lazily on the first
// tick of a break and resets itself once the break completes, ready for the
// next one.
type BreakTimer struct {
	startedAt time.Time
	running   bool
}

func NewBreakTimer() *BreakTimer {
	return &BreakTimer{}
}

// Advance returns the whole seconds left in the break and whether the break
// just completed. Completion resets the timer.
func (b *BreakTimer) Advance(now time.Time) (secondsLeft int, complete bool) {
	if !b.running {
		b.startedAt = now
		b.running = true
	}
	total := int(RoundBreakDuration / time.Second)
	elapsed := int(now.Sub(b.startedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	left := total - elapsed
	if left <= 0 {
		b.running = false
		return 0, true
	}
	return left, false
}
