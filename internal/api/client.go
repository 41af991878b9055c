// Package api is the HTTP client for the quizroom backend: room CRUD, join,
// answer submission, and leaderboard reads.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"quizroom/internal/domain"
)

// Client talks to one backend base URL. Leaderboard reads are deduplicated
// with singleflight and fall back to the last good snapshot on transient
// failure, so mid-game fetch errors never surface to the state machine.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger

	sf     singleflight.Group
	mu     sync.RWMutex
	lastLB map[string][]domain.LeaderboardEntry
}

// Option adjusts client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
		log:     zerolog.Nop(),
		lastLB:  make(map[string][]domain.LeaderboardEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateRoomRequest configures a new room.
type CreateRoomRequest struct {
	TimePerQuestion   int `json:"timePerQuestion"`
	NumRounds         int `json:"numRounds"`
	QuestionsPerRound int `json:"questionsPerRound"`
}

// JoinResult is the outcome of joining a room: the player snapshot and the
// bearer token for later submissions.
type JoinResult struct {
	Player domain.Player `json:"player"`
	Token  string        `json:"token"`
}

// CreateRoom creates a room on the backend.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (domain.Room, error) {
	var room domain.Room
	err := c.do(ctx, http.MethodPost, "/rooms", "", req, &room)
	return room, err
}

// GetRoom fetches the current room snapshot.
func (c *Client) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	var room domain.Room
	err := c.do(ctx, http.MethodGet, "/rooms/"+roomID, "", nil, &room)
	return room, err
}

// StartRoom moves the room to started, stamping the first round's start time.
func (c *Client) StartRoom(ctx context.Context, roomID string) (domain.Room, error) {
	var room domain.Room
	err := c.do(ctx, http.MethodPost, "/rooms/"+roomID+"/start", "", nil, &room)
	return room, err
}

// JoinRoom registers a player and returns their token.
func (c *Client) JoinRoom(ctx context.Context, roomID, name string) (JoinResult, error) {
	var res JoinResult
	err := c.do(ctx, http.MethodPost, "/rooms/"+roomID+"/join", "", map[string]string{"name": name}, &res)
	return res, err
}

// SubmitAnswer submits the player's chosen option index for a question.
func (c *Client) SubmitAnswer(ctx context.Context, roomID, token, questionID string, answerIndex int) (domain.AnswerResult, error) {
	var res domain.AnswerResult
	body := map[string]any{"questionId": questionID, "answerIndex": answerIndex}
	err := c.do(ctx, http.MethodPost, "/rooms/"+roomID+"/answers", token, body, &res)
	return res, err
}

// Leaderboard fetches the current standings. Concurrent calls for the same
// room collapse into one request; a transient failure returns the last good
// snapshot (or an empty one) instead of an error.
func (c *Client) Leaderboard(ctx context.Context, roomID string) []domain.LeaderboardEntry {
	result, err, _ := c.sf.Do("lb:"+roomID, func() (interface{}, error) {
		var entries []domain.LeaderboardEntry
		if err := c.do(ctx, http.MethodGet, "/rooms/"+roomID+"/leaderboard", "", nil, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	})
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Msg("leaderboard fetch failed, serving last snapshot")
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.lastLB[roomID]
	}
	entries := result.([]domain.LeaderboardEntry)
	c.mu.Lock()
	c.lastLB[roomID] = entries
	c.mu.Unlock()
	return entries
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrRoomNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrInvalidToken
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
