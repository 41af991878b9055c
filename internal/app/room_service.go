// Package app contains the practice backend's room use cases: create, join,
// start, score, rank. Clients derive all in-round timing themselves from the
// round start timestamp; the server never pushes per-tick state.
package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"quizroom/internal/clock"
	"quizroom/internal/domain"
)

// RoomStore abstracts how live room sessions are tracked (in-memory, Redis).
type RoomStore interface {
	Put(roomID string, session *RoomSession)
	Get(roomID string) (*RoomSession, bool)
	Delete(roomID string)
}

// Bank loads the question list for a given round.
type Bank interface {
	LoadRound(ctx context.Context, round, count int) ([]domain.Question, error)
}

// Broadcaster pushes an envelope to every connection watching a room.
type Broadcaster interface {
	Broadcast(roomID string, payload any)
}

// RoomService contains the room use cases.
type RoomService struct {
	rooms RoomStore
	bank  Bank
	clk   clockwork.Clock

	mu        sync.RWMutex
	broadcast Broadcaster
}

func NewRoomService(rooms RoomStore, bank Bank, clk clockwork.Clock) *RoomService {
	return &RoomService{rooms: rooms, bank: bank, clk: clk}
}

// SetBroadcaster wires the websocket hub in after construction; the hub and
// the service reference each other.
func (s *RoomService) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast = b
}

func (s *RoomService) push(roomID string, payload any) {
	s.mu.RLock()
	b := s.broadcast
	s.mu.RUnlock()
	if b != nil {
		b.Broadcast(roomID, payload)
	}
}

// CreateRoomRequest configures a new room; zero fields fall back to defaults.
type CreateRoomRequest struct {
	TimePerQuestion   int
	NumRounds         int
	QuestionsPerRound int
}

// CreateRoom registers a new room in the created state.
func (s *RoomService) CreateRoom(_ context.Context, req CreateRoomRequest) domain.Room {
	if req.TimePerQuestion <= 0 {
		req.TimePerQuestion = 20
	}
	if req.NumRounds <= 0 {
		req.NumRounds = 1
	}
	if req.QuestionsPerRound <= 0 {
		req.QuestionsPerRound = 5
	}

	session := newRoomSession(domain.Room{
		ID:                uuid.New().String(),
		Status:            domain.RoomCreated,
		TimePerQuestion:   req.TimePerQuestion,
		NumRounds:         req.NumRounds,
		QuestionsPerRound: req.QuestionsPerRound,
	}, s.clk)
	s.rooms.Put(session.room.ID, session)
	return session.snapshot()
}

// Join registers a player. Joining again under the same name refreshes the
// existing player instead of duplicating them, and always returns a token.
func (s *RoomService) Join(_ context.Context, roomID, name string) (domain.Player, string, error) {
	session, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.Player{}, "", domain.ErrRoomNotFound
	}
	player, token, added := session.join(name)
	if added {
		s.push(roomID, map[string]any{"type": "player_joined", "player": player})
	}
	return player, token, nil
}

// Start moves the room to started, stamps the first round's start time, and
// loads the first round's questions from the bank.
func (s *RoomService) Start(ctx context.Context, roomID string) (domain.Room, error) {
	session, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	questions, err := s.bank.LoadRound(ctx, 1, session.questionsPerRound())
	if err != nil {
		return domain.Room{}, err
	}
	room := session.start(questions)
	s.push(roomID, map[string]any{"type": "game_started", "startedAt": room.StartedAt})
	return room, nil
}

// GetRoom returns the current snapshot, first rolling the room forward to
// whatever round (or finished state) the wall clock implies.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	session, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err := s.advanceRounds(ctx, session); err != nil {
		return domain.Room{}, err
	}
	return session.snapshot(), nil
}

// SubmitAnswer validates the token and option index, scores the submission,
// and notifies watchers. One submission per player per question.
func (s *RoomService) SubmitAnswer(ctx context.Context, roomID, token, questionID string, answerIndex int) (domain.AnswerResult, error) {
	session, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrRoomNotFound
	}
	if err := s.advanceRounds(ctx, session); err != nil {
		return domain.AnswerResult{}, err
	}
	result, playerID, err := session.submitAnswer(token, questionID, answerIndex)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	s.push(roomID, map[string]any{
		"type":       "answer_submitted",
		"playerId":   playerID,
		"questionId": questionID,
	})
	return result, nil
}

// Leaderboard returns dense 1-based ranks ordered by points, ties broken by
// who reached their score earlier, then by name.
func (s *RoomService) Leaderboard(_ context.Context, roomID string) ([]domain.LeaderboardEntry, error) {
	session, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return session.leaderboard(), nil
}

// advanceRounds rolls the session forward through any round windows that
// have fully elapsed: each window is the round's question cycles plus the
// inter-round break. The final round has no trailing break; once its cycles
// elapse the room is finished.
func (s *RoomService) advanceRounds(ctx context.Context, session *RoomSession) error {
	for {
		room := session.snapshot()
		if room.Status != domain.RoomStarted || !room.HasQuestions() {
			return nil
		}
		cycle := time.Duration(room.TimePerQuestion)*time.Second + clock.ReviewDuration
		window := time.Duration(len(room.Questions)) * cycle
		elapsed := s.clk.Now().Sub(room.StartedAt)

		if room.CurrentRound >= room.NumRounds {
			if elapsed >= window {
				session.finish()
			}
			return nil
		}
		if elapsed < window+clock.RoundBreakDuration {
			return nil
		}

		questions, err := s.bank.LoadRound(ctx, room.CurrentRound+1, session.questionsPerRound())
		if err != nil {
			return err
		}
		session.nextRound(questions, room.StartedAt.Add(window+clock.RoundBreakDuration))
	}
}

// RoomSession is the mutable server-side state for one room.
type RoomSession struct {
	mu         sync.RWMutex
	room       domain.Room
	clk        clockwork.Clock
	tokens     map[string]string // token -> player id
	byName     map[string]string // display name -> player id
	answered   map[string]map[string]bool
	lastUpdate map[string]time.Time
}

func newRoomSession(room domain.Room, clk clockwork.Clock) *RoomSession {
	return &RoomSession{
		room:       room,
		clk:        clk,
		tokens:     make(map[string]string),
		byName:     make(map[string]string),
		answered:   make(map[string]map[string]bool),
		lastUpdate: make(map[string]time.Time),
	}
}

func (rs *RoomSession) snapshot() domain.Room {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	room := rs.room
	room.Questions = append([]domain.Question(nil), rs.room.Questions...)
	room.Players = append([]domain.Player(nil), rs.room.Players...)
	return room
}

func (rs *RoomSession) questionsPerRound() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.room.QuestionsPerRound
}

func (rs *RoomSession) join(name string) (domain.Player, string, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if id, ok := rs.byName[name]; ok {
		for _, p := range rs.room.Players {
			if p.ID == id {
				token := rs.tokenFor(id)
				return p, token, false
			}
		}
	}

	player := domain.Player{
		ID:       uuid.New().String(),
		Name:     name,
		JoinedAt: rs.clk.Now(),
	}
	token := uuid.New().String()
	rs.room.Players = append(rs.room.Players, player)
	rs.byName[name] = player.ID
	rs.tokens[token] = player.ID
	rs.lastUpdate[player.ID] = player.JoinedAt
	return player, token, true
}

// tokenFor finds the existing token for a player; called with the lock held.
func (rs *RoomSession) tokenFor(playerID string) string {
	for token, id := range rs.tokens {
		if id == playerID {
			return token
		}
	}
	return ""
}

func (rs *RoomSession) start(questions []domain.Question) domain.Room {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.room.Status = domain.RoomStarted
	rs.room.CurrentRound = 1
	rs.room.Questions = questions
	rs.room.StartedAt = rs.clk.Now()
	return rs.room
}

func (rs *RoomSession) nextRound(questions []domain.Question, startedAt time.Time) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.room.CurrentRound++
	rs.room.Questions = questions
	rs.room.StartedAt = startedAt
}

func (rs *RoomSession) finish() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.room.Status = domain.RoomFinished
}

func (rs *RoomSession) submitAnswer(token, questionID string, answerIndex int) (domain.AnswerResult, string, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	playerID, ok := rs.tokens[token]
	if !ok {
		return domain.AnswerResult{}, "", domain.ErrInvalidToken
	}
	if rs.room.Status != domain.RoomStarted {
		return domain.AnswerResult{}, "", domain.ErrRoomNotStarted
	}

	var question *domain.Question
	for i := range rs.room.Questions {
		if rs.room.Questions[i].ID == questionID {
			question = &rs.room.Questions[i]
			break
		}
	}
	if question == nil {
		return domain.AnswerResult{}, "", domain.ErrQuestionNotFound
	}

	if rs.answered[playerID] == nil {
		rs.answered[playerID] = make(map[string]bool)
	}
	if rs.answered[playerID][questionID] {
		return domain.AnswerResult{}, "", domain.ErrAlreadyAnswered
	}
	rs.answered[playerID][questionID] = true

	correct := answerIndex == question.CorrectIndex
	score := 0
	for i := range rs.room.Players {
		if rs.room.Players[i].ID == playerID {
			if correct {
				rs.room.Players[i].Score++
			}
			score = rs.room.Players[i].Score
			rs.lastUpdate[playerID] = rs.clk.Now()
			break
		}
	}
	return domain.AnswerResult{IsCorrect: correct, CurrentScore: score}, playerID, nil
}

func (rs *RoomSession) leaderboard() []domain.LeaderboardEntry {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	players := append([]domain.Player(nil), rs.room.Players...)
	sort.Slice(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		ti, tj := rs.lastUpdate[players[i].ID], rs.lastUpdate[players[j].ID]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return players[i].Name < players[j].Name
	})

	entries := make([]domain.LeaderboardEntry, 0, len(players))
	rank := 0
	lastScore := -1
	for _, p := range players {
		if p.Score != lastScore {
			rank++
			lastScore = p.Score
		}
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: p.ID,
			Rank:     rank,
			Name:     p.Name,
			Points:   p.Score,
		})
	}
	return entries
}

// IsEmpty reports whether the room has no players; stores use it to decide
// when a room can be dropped.
func (rs *RoomSession) IsEmpty() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.room.Players) == 0
}

// Snapshot returns a copy of the current room state.
func (rs *RoomSession) Snapshot() domain.Room {
	return rs.snapshot()
}

// NewRoomSession is exported for store implementations that need to seed
// sessions.
func NewRoomSession(room domain.Room, clk clockwork.Clock) *RoomSession {
	return newRoomSession(room, clk)
}
