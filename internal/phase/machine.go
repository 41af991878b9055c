// Package phase holds the client-side game phase state machine. The machine
// is a pure reducer over (state, context, event); all timing decisions live
// in the clock package, all I/O in the session that feeds events in.
package phase

import (
	"sync"
	"time"

	"quizroom/internal/domain"
)

// State is the client's belief about what should currently be shown.
type State string

const (
	StateLoading       State = "loading"
	StateQuestion      State = "question"
	StateWaiting       State = "waiting"
	StateSubmitted     State = "submitted"
	StateRoundFinished State = "roundFinished"
	StateNewRound      State = "newRound"
	StateFinished      State = "finished"
	StateError         State = "error"
)

// Context is the transient data attached to the current phase. It is mutated
// exclusively through Reduce; snapshots handed out are value copies.
type Context struct {
	Room          *domain.Room
	GameStartedAt time.Time
	LastCorrect   bool
	LastScore     int
	Leaderboard   []domain.LeaderboardEntry
	ErrMessage    string
}

// Reduce applies one event and returns the resulting state and context.
// Unknown or out-of-place events leave both unchanged. Finished is terminal:
// nothing leaves it, and global updates are not applied there.
func Reduce(s State, ctx Context, ev Event) (State, Context) {
	if s == StateFinished {
		return s, ctx
	}

	// Global updates apply in any non-terminal state without changing it.
	switch e := ev.(type) {
	case RoomUpdated:
		if e.Room != nil {
			ctx.Room = e.Room
		}
		return s, ctx
	case LeaderboardUpdated:
		ctx.Leaderboard = e.Leaderboard
		return s, ctx
	case PlayerJoined:
		if s == StateQuestion || s == StateWaiting || s == StateSubmitted {
			ctx.Room = withPlayer(ctx.Room, e.Player)
		}
		return s, ctx
	}

	switch s {
	case StateLoading, StateError:
		switch e := ev.(type) {
		case GameLoaded:
			ctx.Room = e.Room
			ctx.GameStartedAt = e.StartedAt
			ctx.ErrMessage = ""
			return StateQuestion, ctx
		case LoadFailed:
			if s == StateLoading {
				ctx.ErrMessage = e.Message
				return StateError, ctx
			}
		}

	case StateQuestion:
		switch e := ev.(type) {
		case AnswerSubmitted:
			ctx.LastCorrect = e.Correct
			ctx.LastScore = e.Score
			return StateWaiting, ctx
		case TimerExpired:
			// Expired timer equals an implicit non-submission.
			ctx.LastCorrect = false
			return StateWaiting, ctx
		}

	case StateWaiting:
		if _, ok := ev.(TimerExpired); ok {
			return StateSubmitted, ctx
		}

	case StateSubmitted:
		switch e := ev.(type) {
		case QuestionChanged:
			return StateQuestion, ctx
		case RoundFinished:
			if e.Leaderboard != nil {
				ctx.Leaderboard = e.Leaderboard
			}
			return StateRoundFinished, ctx
		case GameFinished:
			if e.Leaderboard != nil {
				ctx.Leaderboard = e.Leaderboard
			}
			return StateFinished, ctx
		}

	case StateRoundFinished:
		if _, ok := ev.(RoundBreakComplete); ok {
			return StateNewRound, ctx
		}

	case StateNewRound:
		if e, ok := ev.(RoundChanged); ok {
			ctx.Room = e.Room
			ctx.GameStartedAt = e.StartedAt
			return StateQuestion, ctx
		}
	}

	return s, ctx
}

// withPlayer returns a room snapshot with the player appended, or the input
// unchanged when the id is already present. The players slice is copied so
// snapshots handed out earlier stay stable.
func withPlayer(room *domain.Room, p domain.Player) *domain.Room {
	if room == nil {
		return nil
	}
	for _, existing := range room.Players {
		if existing.ID == p.ID {
			return room
		}
	}
	next := *room
	next.Players = make([]domain.Player, 0, len(room.Players)+1)
	next.Players = append(next.Players, room.Players...)
	next.Players = append(next.Players, p)
	return &next
}

// Machine wraps the reducer with the current state and context. Consumers
// read state only through snapshots and mutate it only through Send.
type Machine struct {
	mu    sync.RWMutex
	state State
	ctx   Context
}

func NewMachine() *Machine {
	return &Machine{state: StateLoading}
}

// Send applies one event in delivery order and reports whether it changed
// the state.
func (m *Machine) Send(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.state
	m.state, m.ctx = Reduce(m.state, m.ctx, ev)
	return m.state != prev
}

// Snapshot returns the current state and a copy of the context.
func (m *Machine) Snapshot() (State, Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.ctx
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
