package domain

import "time"

// RoomStatus is the lifecycle stage of a room.
type RoomStatus string

const (
	RoomCreated  RoomStatus = "created"
	RoomStarted  RoomStatus = "started"
	RoomFinished RoomStatus = "finished"
)

// Room is the server-owned snapshot of one game session. Clients treat every
// field as replaceable by a fresher push; the server is the source of truth.
// Questions is populated only once Status is "started".
type Room struct {
	ID                string     `json:"id"`
	Status            RoomStatus `json:"status"`
	Questions         []Question `json:"questions,omitempty"`
	TimePerQuestion   int        `json:"timePerQuestion"` // seconds
	CurrentRound      int        `json:"currentRound"`
	NumRounds         int        `json:"numRounds"`
	QuestionsPerRound int        `json:"questionsPerRound"`
	StartedAt         time.Time  `json:"startedAt,omitempty"` // start of the current round's question sequence
	Players           []Player   `json:"players,omitempty"`
}

// HasQuestions reports whether the snapshot carries enough data to drive
// the game clock.
func (r *Room) HasQuestions() bool {
	return r != nil && r.TimePerQuestion > 0 && len(r.Questions) > 0
}

// Question is a single multiple-choice prompt. Option order is significant:
// it is both the display order and the correctness index space.
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation,omitempty"` // shown during review
}

// Player is a participant in a room. IDs are unique within a room; duplicate
// join events for the same ID are idempotent no-ops.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joinedAt"`
}

// LeaderboardEntry is one ranked row of a room's scoreboard. Ranks are
// 1-based and dense; ties are broken server-side.
type LeaderboardEntry struct {
	PlayerID    string         `json:"playerId"`
	Rank        int            `json:"rank"`
	Name        string         `json:"name"`
	Points      int            `json:"points"`
	TopicScores map[string]int `json:"topicScores,omitempty"`
}

// AnswerResult summarizes the outcome of a submission for a single player.
type AnswerResult struct {
	IsCorrect    bool `json:"isCorrect"`
	CurrentScore int  `json:"currentScore"`
}
