package phase

import (
	"time"

	"quizroom/internal/domain"
)

// Event is a message the machine may react to. Events outside this set, and
// known events arriving in a state that has no transition for them, are
// ignored without error, since the transport can deliver message types that
// are irrelevant to phase tracking.
type Event interface {
	event()
}

// GameLoaded carries the first usable room snapshot. Accepted in loading and
// error; recovery from error works exactly like the initial load.
type GameLoaded struct {
	Room      *domain.Room
	StartedAt time.Time
}

// LoadFailed reports a failure during initial room load. Only load-time
// failures become an explicit error state.
type LoadFailed struct {
	Message string
}

// AnswerSubmitted records the player's own submission outcome.
type AnswerSubmitted struct {
	Correct bool
	Score   int
}

// TimerExpired is raised by the clock engine when the answering window
// closes. In question it marks an implicit miss; in waiting it begins the
// reveal.
type TimerExpired struct{}

// QuestionChanged advances the visible question to Index.
type QuestionChanged struct {
	Index int
}

// RoundFinished ends the current round. Leaderboard may be nil when the
// emitter has no snapshot at hand; the context then keeps its last one.
type RoundFinished struct {
	Leaderboard []domain.LeaderboardEntry
}

// GameFinished ends the game. Leaderboard semantics as for RoundFinished.
type GameFinished struct {
	Leaderboard []domain.LeaderboardEntry
}

// RoundBreakComplete ends the inter-round break countdown.
type RoundBreakComplete struct{}

// RoundChanged installs the next round's room snapshot and start timestamp.
type RoundChanged struct {
	Room      *domain.Room
	StartedAt time.Time
}

// RoomUpdated replaces the room snapshot in any non-terminal state.
type RoomUpdated struct {
	Room *domain.Room
}

// LeaderboardUpdated replaces the leaderboard snapshot in any non-terminal state.
type LeaderboardUpdated struct {
	Leaderboard []domain.LeaderboardEntry
}

// PlayerJoined appends a player to the room snapshot if the id is not
// already present.
type PlayerJoined struct {
	Player domain.Player
}

func (GameLoaded) event()         {}
func (LoadFailed) event()         {}
func (AnswerSubmitted) event()    {}
func (TimerExpired) event()       {}
func (QuestionChanged) event()    {}
func (RoundFinished) event()      {}
func (GameFinished) event()       {}
func (RoundBreakComplete) event() {}
func (RoundChanged) event()       {}
func (RoomUpdated) event()        {}
func (LeaderboardUpdated) event() {}
func (PlayerJoined) event()       {}
