package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"groupquiz-service/internal/domain"
)

// QuestionSetLoader loads generated question sets (JSONB) by share token.
type QuestionSetLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionSetLoader(pool *pgxpool.Pool) *QuestionSetLoader {
	return &QuestionSetLoader{pool: pool}
}

func (l *QuestionSetLoader) LoadSet(ctx context.Context, token string) (domain.DifficultyGroup, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_sets WHERE token=$1`, token).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DifficultyGroup{}, domain.ErrQuestionSetNotFound
	}
	if err != nil {
		return domain.DifficultyGroup{}, fmt.Errorf("load question set: %w", err)
	}
	var set domain.DifficultyGroup
	if err := json.Unmarshal(raw, &set); err != nil {
		return domain.DifficultyGroup{}, fmt.Errorf("unmarshal question set: %w", err)
	}
	return set, nil
}
