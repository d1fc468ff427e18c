package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"groupquiz-service/internal/domain"
)

func TestQuestionSetRepositoryCaches(t *testing.T) {
	loader := &countingSetLoader{
		QuestionSetLoader: NewStaticSetLoader(map[string]domain.DifficultyGroup{
			"tok-easy": sampleEasySet(),
		}),
	}
	repo := NewQuestionSetRepository(loader, time.Minute)

	if _, err := repo.GetSet(context.Background(), "tok-easy"); err != nil {
		t.Fatalf("get set: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetSet(context.Background(), "tok-easy"); err != nil {
		t.Fatalf("get set 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuestionSetRepositoryMiss(t *testing.T) {
	repo := NewQuestionSetRepository(NewStaticSetLoader(nil), time.Minute)
	_, err := repo.GetSet(context.Background(), "tok-unknown")
	if !errors.Is(err, domain.ErrQuestionSetNotFound) {
		t.Fatalf("expected ErrQuestionSetNotFound, got %v", err)
	}
}

type countingSetLoader struct {
	QuestionSetLoader
	calls int
}

func (l *countingSetLoader) LoadSet(ctx context.Context, token string) (domain.DifficultyGroup, error) {
	l.calls++
	return l.QuestionSetLoader.LoadSet(ctx, token)
}

func sampleEasySet() domain.DifficultyGroup {
	return domain.DifficultyGroup{
		Difficulty: domain.DifficultyEasy,
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{Letter: "A", Text: "3"},
					{Letter: "B", Text: "4"},
				},
				CorrectIndex: 1,
			},
		},
	}
}
