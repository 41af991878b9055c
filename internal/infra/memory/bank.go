package memory

import (
	"context"

	"quizroom/internal/domain"
)

// StaticBank serves questions from fixed per-round lists (tests, demos, the
// default `serve` setup). Round numbers past the configured rounds wrap, so
// a small bank can still feed a long game.
type StaticBank struct {
	rounds [][]domain.Question
}

func NewStaticBank(rounds [][]domain.Question) *StaticBank {
	return &StaticBank{rounds: rounds}
}

func (b *StaticBank) LoadRound(_ context.Context, round, count int) ([]domain.Question, error) {
	if len(b.rounds) == 0 {
		return nil, domain.ErrQuestionNotFound
	}
	questions := b.rounds[(round-1)%len(b.rounds)]
	if count > 0 && count < len(questions) {
		questions = questions[:count]
	}
	return append([]domain.Question(nil), questions...), nil
}
