package domain

import "errors"

var (
	// ErrRoomNotFound indicates the room id does not exist (or expired).
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomNotStarted is returned for operations that require a started game.
	ErrRoomNotStarted = errors.New("room not started")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAlreadyAnswered indicates a second submission for the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrNoToken indicates no player token is stored for the room. Joining
	// again is the only recovery; sessions must not start without a token.
	ErrNoToken = errors.New("no player token for room")
	// ErrInvalidToken indicates the presented player token was rejected.
	ErrInvalidToken = errors.New("invalid player token")
)
