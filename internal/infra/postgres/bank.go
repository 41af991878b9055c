package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizroom/internal/domain"
)

// Bank loads per-round question lists stored as JSONB in Postgres. Rounds
// wrap when the table has fewer rounds than the game asks for, matching the
// in-memory bank's behavior.
type Bank struct {
	pool *pgxpool.Pool
}

func NewBank(pool *pgxpool.Pool) *Bank {
	return &Bank{pool: pool}
}

func (b *Bank) LoadRound(ctx context.Context, round, count int) ([]domain.Question, error) {
	var total int
	if err := b.pool.QueryRow(ctx, `SELECT count(*) FROM question_banks`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count question banks: %w", err)
	}
	if total == 0 {
		return nil, domain.ErrQuestionNotFound
	}

	var raw []byte
	err := b.pool.QueryRow(ctx, `SELECT questions FROM question_banks WHERE round=$1`, (round-1)%total+1).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load round %d: %w", round, err)
	}

	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal round %d: %w", round, err)
	}
	if count > 0 && count < len(questions) {
		questions = questions[:count]
	}
	return questions, nil
}
