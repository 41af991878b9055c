// Package session owns one player's view of one room: the realtime
// transport, the phase state machine, and both countdowns. All state-machine
// events (transport messages, clock transitions, the player's own
// submissions) funnel through a single FIFO channel consumed by one
// goroutine, so transitions apply strictly in delivery order.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"quizroom/internal/api"
	"quizroom/internal/clock"
	"quizroom/internal/domain"
	"quizroom/internal/phase"
	"quizroom/internal/transport/ws"
)

// Transport is the duplex connection the session drives. Satisfied by
// *ws.Adapter; tests substitute a fake and feed HandleMessage directly.
type Transport interface {
	Connect() error
	Send(payload any) error
	Close()
}

// Snapshot is the read-only view handed to consumers: current phase, its
// context, the derived clock position, and, during a round break, the
// break countdown.
type Snapshot struct {
	State            phase.State
	Context          phase.Context
	Tick             clock.Tick
	BreakSecondsLeft int
}

// Session runs the game loop for one room. Create one per room view; the
// connection and interval state are fields of this object, never process
// globals, so concurrent room views (and tests) cannot cross-talk.
type Session struct {
	roomID      string
	playerID    string
	playerToken string

	apic      *api.Client
	transport Transport
	machine   *phase.Machine
	engine    *clock.Engine
	breaker   *clock.BreakTimer
	clk       clockwork.Clock
	log       zerolog.Logger

	events chan phase.Event

	mu        sync.RWMutex
	tick      clock.Tick
	breakLeft int

	roundFetch atomic.Bool

	reconnectDelay time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// Option adjusts session construction.
type Option func(*Session)

// WithClock injects a clock; tests use clockwork.NewFakeClock.
func WithClock(clk clockwork.Clock) Option {
	return func(s *Session) { s.clk = clk }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithTransport replaces the websocket adapter; the caller then feeds
// inbound messages through HandleMessage.
func WithTransport(t Transport) Option {
	return func(s *Session) { s.transport = t }
}

// WithReconnectDelay overrides the websocket redial delay. Ignored when a
// transport is injected.
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Session) { s.reconnectDelay = d }
}

// New builds a session for a joined player. wsURL is the room's websocket
// endpoint; playerToken must already exist (joining is a precondition, not a
// session concern).
func New(roomID, wsURL, playerID, playerToken string, apic *api.Client, opts ...Option) *Session {
	s := &Session{
		roomID:      roomID,
		playerID:    playerID,
		playerToken: playerToken,
		apic:        apic,
		machine:     phase.NewMachine(),
		engine:      clock.NewEngine(),
		breaker:     clock.NewBreakTimer(),
		clk:         clockwork.NewRealClock(),
		log:         zerolog.Nop(),
		events:      make(chan phase.Event, 64),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		wsOpts := []ws.Option{ws.WithLogger(s.log)}
		if s.reconnectDelay > 0 {
			wsOpts = append(wsOpts, ws.WithReconnectDelay(s.reconnectDelay))
		}
		s.transport = ws.New(wsURL, s.HandleMessage, wsOpts...)
	}
	return s
}

// Start connects the transport, kicks off the initial room load, and runs
// the event loop until Stop or ctx cancellation.
func (s *Session) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.transport.Connect(); err != nil {
		// The adapter redials on abnormal closure but the first dial failing
		// is surfaced: without a connection there is nothing to resume.
		s.cancel()
		close(s.done)
		return err
	}

	go s.loop(ctx)
	go s.initialLoad(ctx)
	return nil
}

// Stop tears the session down: the event loop exits, the transport closes
// cleanly (suppressing reconnects), and no further callbacks fire.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.transport.Close()
	<-s.done
}

// Snapshot returns the current phase, context, and countdown positions.
func (s *Session) Snapshot() Snapshot {
	state, mctx := s.machine.Snapshot()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{State: state, Context: mctx, Tick: s.tick, BreakSecondsLeft: s.breakLeft}
}

// SubmitAnswer submits the player's option index for the currently visible
// question and feeds the outcome into the machine.
func (s *Session) SubmitAnswer(ctx context.Context, answerIndex int) error {
	snap := s.Snapshot()
	if snap.State != phase.StateQuestion {
		return domain.ErrRoomNotStarted
	}
	room := snap.Context.Room
	if !room.HasQuestions() || snap.Tick.QuestionIndex >= len(room.Questions) {
		return domain.ErrQuestionNotFound
	}
	q := room.Questions[snap.Tick.QuestionIndex]

	res, err := s.apic.SubmitAnswer(ctx, s.roomID, s.playerToken, q.ID, answerIndex)
	if err != nil {
		return err
	}
	s.push(phase.AnswerSubmitted{Correct: res.IsCorrect, Score: res.CurrentScore})

	// Best effort notify; the HTTP submission above is the authoritative one.
	_ = s.transport.Send(map[string]any{
		"type":       "answer_submitted",
		"playerId":   s.playerID,
		"questionId": q.ID,
	})
	return nil
}

// HandleMessage decodes one inbound transport envelope into machine events.
// Undecodable payloads are logged and dropped without touching the
// connection or the current phase.
func (s *Session) HandleMessage(msg ws.Message) {
	switch msg.Type {
	case "game_started":
		var payload struct {
			StartedAt time.Time `json:"startedAt"`
		}
		if err := json.Unmarshal(msg.Raw, &payload); err != nil {
			s.log.Warn().Err(err).Msg("dropping malformed game_started")
			return
		}
		go s.loadStartedRoom(payload.StartedAt)

	case "player_joined":
		var payload struct {
			Player domain.Player `json:"player"`
		}
		if err := json.Unmarshal(msg.Raw, &payload); err != nil || payload.Player.ID == "" {
			s.log.Warn().Err(err).Msg("dropping malformed player_joined")
			return
		}
		s.push(phase.PlayerJoined{Player: payload.Player})

	case "room_updated":
		var payload struct {
			Room *domain.Room `json:"room"`
		}
		if err := json.Unmarshal(msg.Raw, &payload); err != nil || payload.Room == nil {
			s.log.Warn().Err(err).Msg("dropping malformed room_updated")
			return
		}
		s.push(phase.RoomUpdated{Room: payload.Room})

	case "leaderboard_updated":
		var payload struct {
			Entries []domain.LeaderboardEntry `json:"entries"`
		}
		if err := json.Unmarshal(msg.Raw, &payload); err != nil {
			s.log.Warn().Err(err).Msg("dropping malformed leaderboard_updated")
			return
		}
		s.push(phase.LeaderboardUpdated{Leaderboard: payload.Entries})

	case "answer_submitted":
		// Other players' submissions carry no phase information.
		s.log.Debug().Msg("peer answer submitted")

	default:
		s.log.Debug().Str("type", msg.Type).Msg("ignoring message type")
	}
}

func (s *Session) push(ev phase.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	ticker := s.clk.NewTicker(clock.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.apply(ev)
		case <-ticker.Chan():
			s.onTick(ctx)
		}
	}
}

// onTick drives whichever countdown the current phase needs. The question
// clock runs through question/waiting/submitted; the break countdown only
// through roundFinished; every other phase is clockless.
func (s *Session) onTick(ctx context.Context) {
	state, mctx := s.machine.Snapshot()
	now := s.clk.Now()

	switch state {
	case phase.StateQuestion, phase.StateWaiting, phase.StateSubmitted:
		tick, events, ok := s.engine.Advance(now, mctx.Room, mctx.GameStartedAt)
		if !ok {
			return
		}
		s.mu.Lock()
		s.tick = tick
		s.mu.Unlock()
		for _, ev := range events {
			s.apply(ev)
		}

	case phase.StateRoundFinished:
		left, complete := s.breaker.Advance(now)
		s.mu.Lock()
		s.breakLeft = left
		s.mu.Unlock()
		if complete {
			s.apply(phase.RoundBreakComplete{})
		}

	case phase.StateNewRound:
		s.refreshRound(ctx)
	}
}

// apply feeds one event to the machine and handles the follow-ups a
// transition demands.
func (s *Session) apply(ev phase.Event) {
	if _, ok := ev.(phase.RoundChanged); ok {
		// Fresh start timestamp: the previous round's clock bookkeeping must
		// not shape the new round's question index.
		s.engine.Reset()
	}

	prev := s.machine.State()
	changed := s.machine.Send(ev)
	state := s.machine.State()
	if !changed {
		return
	}

	s.log.Debug().Str("from", string(prev)).Str("to", string(state)).Msg("phase transition")

	if state == phase.StateSubmitted {
		// The reveal shows standings; refresh them so roundFinished and
		// finished inherit a current snapshot.
		go s.refreshLeaderboard()
	}
}

// initialLoad fetches the first room snapshot. Only this load's failure
// becomes an explicit error state; every later fetch failure is absorbed and
// healed by the next successful snapshot.
func (s *Session) initialLoad(ctx context.Context) {
	room, err := s.apic.GetRoom(ctx, s.roomID)
	if err != nil {
		s.log.Error().Err(err).Str("room_id", s.roomID).Msg("initial room load failed")
		s.push(phase.LoadFailed{Message: err.Error()})
		return
	}
	if room.Status == domain.RoomStarted && room.HasQuestions() {
		s.push(phase.GameLoaded{Room: &room, StartedAt: room.StartedAt})
		return
	}
	// Not started yet: hold in loading with the snapshot stored, and wait
	// for the game_started push.
	s.push(phase.RoomUpdated{Room: &room})
}

// loadStartedRoom refetches the room after a game_started push so the
// machine gets questions together with the start timestamp.
func (s *Session) loadStartedRoom(startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	room, err := s.apic.GetRoom(ctx, s.roomID)
	if err != nil {
		s.log.Warn().Err(err).Msg("room fetch after game_started failed")
		return
	}
	if startedAt.IsZero() {
		startedAt = room.StartedAt
	}
	s.push(phase.GameLoaded{Room: &room, StartedAt: startedAt})
}

// refreshRound fetches the next round's snapshot while in newRound, one
// request in flight at a time, retrying on the following ticks until a
// usable snapshot arrives.
func (s *Session) refreshRound(ctx context.Context) {
	if !s.roundFetch.CompareAndSwap(false, true) {
		return
	}
	_, mctx := s.machine.Snapshot()
	prevRound := 0
	if mctx.Room != nil {
		prevRound = mctx.Room.CurrentRound
	}
	prevStart := mctx.GameStartedAt
	go func() {
		defer s.roundFetch.Store(false)
		room, err := s.apic.GetRoom(ctx, s.roomID)
		if err != nil {
			s.log.Warn().Err(err).Msg("round refresh failed")
			return
		}
		if !room.HasQuestions() {
			return
		}
		// A snapshot still describing the round that just ended would hand
		// the reset clock an already-exhausted start timestamp. Stay in
		// newRound and let the next tick retry until the server catches up.
		if room.CurrentRound <= prevRound && !room.StartedAt.After(prevStart) {
			s.log.Debug().Int("round", room.CurrentRound).Msg("round snapshot not yet advanced")
			return
		}
		s.push(phase.RoundChanged{Room: &room, StartedAt: room.StartedAt})
	}()
}

func (s *Session) refreshLeaderboard() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries := s.apic.Leaderboard(ctx, s.roomID)
	if entries == nil {
		return
	}
	s.push(phase.LeaderboardUpdated{Leaderboard: entries})
}
