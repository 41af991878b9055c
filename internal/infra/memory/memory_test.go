package memory_test

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"

	"quizroom/internal/app"
	"quizroom/internal/domain"
	"quizroom/internal/infra/memory"
)

func TestRoomStoreLifecycle(t *testing.T) {
	store := memory.NewRoomStore()
	session := app.NewRoomSession(domain.Room{ID: "room-1"}, clockwork.NewRealClock())

	if _, ok := store.Get("room-1"); ok {
		t.Fatalf("expected miss before put")
	}
	store.Put("room-1", session)
	got, ok := store.Get("room-1")
	if !ok || got != session {
		t.Fatalf("expected the stored session back")
	}
	store.Delete("room-1")
	if _, ok := store.Get("room-1"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestStaticBankWrapsAndTruncates(t *testing.T) {
	bank := memory.NewStaticBank([][]domain.Question{
		{{ID: "a1"}, {ID: "a2"}, {ID: "a3"}},
		{{ID: "b1"}},
	})
	ctx := context.Background()

	questions, err := bank.LoadRound(ctx, 1, 2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(questions) != 2 || questions[0].ID != "a1" {
		t.Fatalf("expected truncated round 1, got %+v", questions)
	}

	questions, err = bank.LoadRound(ctx, 2, 5)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(questions) != 1 || questions[0].ID != "b1" {
		t.Fatalf("expected round 2, got %+v", questions)
	}

	// Round 3 wraps back to the first list.
	questions, err = bank.LoadRound(ctx, 3, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(questions) != 3 || questions[0].ID != "a1" {
		t.Fatalf("expected wrap to round 1, got %+v", questions)
	}
}

func TestStaticBankEmpty(t *testing.T) {
	bank := memory.NewStaticBank(nil)
	if _, err := bank.LoadRound(context.Background(), 1, 1); err != domain.ErrQuestionNotFound {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}
