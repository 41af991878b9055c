package clock_test

import (
	"testing"
	"time"

	"quizroom/internal/clock"
	"quizroom/internal/domain"
	"quizroom/internal/phase"
)

func testRoom(questions, timePerQuestion, currentRound, numRounds int) *domain.Room {
	qs := make([]domain.Question, questions)
	for i := range qs {
		qs[i] = domain.Question{ID: "q" + string(rune('1'+i)), Options: []string{"a", "b"}}
	}
	return &domain.Room{
		ID:              "room-1",
		Status:          domain.RoomStarted,
		Questions:       qs,
		TimePerQuestion: timePerQuestion,
		CurrentRound:    currentRound,
		NumRounds:       numRounds,
	}
}

func TestDeriveAnsweringCountdown(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for elapsed := 0; elapsed < 20; elapsed++ {
		tick := clock.Derive(start.Add(time.Duration(elapsed)*time.Second), start, 20)
		if tick.InReview {
			t.Fatalf("elapsed=%d: expected answering phase", elapsed)
		}
		if tick.SecondsLeft != 20-elapsed {
			t.Fatalf("elapsed=%d: expected %d left, got %d", elapsed, 20-elapsed, tick.SecondsLeft)
		}
		if tick.QuestionIndex != 0 {
			t.Fatalf("elapsed=%d: expected question 0, got %d", elapsed, tick.QuestionIndex)
		}
	}
}

func TestDeriveReviewWindow(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for elapsed := 20; elapsed < 28; elapsed++ {
		tick := clock.Derive(start.Add(time.Duration(elapsed)*time.Second), start, 20)
		if !tick.InReview {
			t.Fatalf("elapsed=%d: expected review phase", elapsed)
		}
		if want := 8 - (elapsed - 20); tick.SecondsLeft != want {
			t.Fatalf("elapsed=%d: expected %d left, got %d", elapsed, want, tick.SecondsLeft)
		}
	}
}

func TestDeriveClockSkewClampsToZero(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	// gameStartedAt five seconds in the future must not panic and must
	// report the first question with full time remaining.
	tick := clock.Derive(start.Add(-5*time.Second), start, 20)
	if tick.QuestionIndex != 0 || tick.InReview {
		t.Fatalf("expected question 0 answering, got %+v", tick)
	}
	if tick.SecondsLeft != 20 {
		t.Fatalf("expected full 20s remaining, got %d", tick.SecondsLeft)
	}
}

func TestDeriveSubSecondBoundaries(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	// 19.9s elapsed still floors to 19: answering with 1s left.
	tick := clock.Derive(start.Add(19*time.Second+900*time.Millisecond), start, 20)
	if tick.InReview || tick.SecondsLeft != 1 {
		t.Fatalf("expected answering with 1s left, got %+v", tick)
	}
}

func TestEngineIndexMonotonic(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	room := testRoom(5, 10, 1, 1)
	engine := clock.NewEngine()

	last := -1
	for ms := 0; ms < 70_000; ms += 700 {
		tick, _, ok := engine.Advance(start.Add(time.Duration(ms)*time.Millisecond), room, start)
		if !ok {
			t.Fatalf("expected engine to run")
		}
		if tick.QuestionIndex < last {
			t.Fatalf("question index went backwards: %d -> %d", last, tick.QuestionIndex)
		}
		last = tick.QuestionIndex
	}
}

func TestEngineEmitsQuestionChangedOncePerIndex(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	room := testRoom(3, 10, 1, 1)
	engine := clock.NewEngine()

	changes := 0
	for sec := 0; sec < 3*18; sec++ {
		_, events, _ := engine.Advance(start.Add(time.Duration(sec)*time.Second), room, start)
		for _, ev := range events {
			if _, ok := ev.(phase.QuestionChanged); ok {
				changes++
			}
		}
	}
	if changes != 3 {
		t.Fatalf("expected 3 question changes, got %d", changes)
	}
}

func TestEngineReviewForcesDoubleExpiry(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	room := testRoom(1, 20, 1, 2)
	engine := clock.NewEngine()

	// T+19s: answering, 1s left, no expiry yet.
	tick, events, _ := engine.Advance(start.Add(19*time.Second), room, start)
	if tick.InReview || tick.SecondsLeft != 1 {
		t.Fatalf("T+19: expected answering 1s left, got %+v", tick)
	}
	for _, ev := range events {
		if _, ok := ev.(phase.TimerExpired); ok {
			t.Fatalf("T+19: unexpected timer expiry")
		}
	}

	// T+21s: review, 7s left, expiry emitted twice so an unanswered
	// question still reaches the reveal.
	tick, events, _ = engine.Advance(start.Add(21*time.Second), room, start)
	if !tick.InReview || tick.SecondsLeft != 7 {
		t.Fatalf("T+21: expected review 7s left, got %+v", tick)
	}
	expiries := 0
	for _, ev := range events {
		if _, ok := ev.(phase.TimerExpired); ok {
			expiries++
		}
	}
	if expiries != 2 {
		t.Fatalf("T+21: expected 2 expiries, got %d", expiries)
	}

	// Staying in review emits nothing further.
	_, events, _ = engine.Advance(start.Add(22*time.Second), room, start)
	if len(events) != 0 {
		t.Fatalf("T+22: expected no events, got %v", events)
	}
}

func TestEngineRoundFinishedWhenMoreRoundsRemain(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	room := testRoom(1, 20, 1, 2)
	engine := clock.NewEngine()

	_, events, _ := engine.Advance(start.Add(28*time.Second), room, start)
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %v", events)
	}
	if _, ok := events[0].(phase.RoundFinished); !ok {
		t.Fatalf("expected RoundFinished, got %T", events[0])
	}

	// The terminal event fires once, not every tick.
	_, events, _ = engine.Advance(start.Add(29*time.Second), room, start)
	if len(events) != 0 {
		t.Fatalf("expected no repeat, got %v", events)
	}
}

func TestEngineGameFinishedOnFinalRound(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	room := testRoom(1, 20, 2, 2)
	engine := clock.NewEngine()

	_, events, _ := engine.Advance(start.Add(28*time.Second), room, start)
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %v", events)
	}
	if _, ok := events[0].(phase.GameFinished); !ok {
		t.Fatalf("expected GameFinished, got %T", events[0])
	}
}

func TestEngineTerminalNotMissedAcrossCycleBoundary(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	room := testRoom(1, 20, 2, 2)
	engine := clock.NewEngine()

	// A coarse poll that skips the entire review window must still land on
	// the terminal event.
	_, events, _ := engine.Advance(start.Add(19*time.Second), room, start)
	if len(events) != 1 { // initial index adoption
		t.Fatalf("expected index adoption, got %v", events)
	}
	_, events, _ = engine.Advance(start.Add(45*time.Second), room, start)
	if len(events) != 1 {
		t.Fatalf("expected one terminal event, got %v", events)
	}
	if _, ok := events[0].(phase.GameFinished); !ok {
		t.Fatalf("expected GameFinished, got %T", events[0])
	}
}

func TestEngineIdleWithoutRoomData(t *testing.T) {
	engine := clock.NewEngine()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, _, ok := engine.Advance(now, nil, now); ok {
		t.Fatalf("expected no computation without a room")
	}
	if _, _, ok := engine.Advance(now, &domain.Room{TimePerQuestion: 20}, now); ok {
		t.Fatalf("expected no computation without questions")
	}
	if _, _, ok := engine.Advance(now, &domain.Room{Questions: []domain.Question{{ID: "q1"}}}, now); ok {
		t.Fatalf("expected no computation without timePerQuestion")
	}
}

func TestEngineResetForgetsPreviousRound(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	room := testRoom(1, 20, 1, 2)
	engine := clock.NewEngine()

	_, _, _ = engine.Advance(start.Add(28*time.Second), room, start)

	// New round, fresh start timestamp: the engine must behave as if newly
	// constructed, emitting the terminal event for round 2 when due.
	engine.Reset()
	round2 := testRoom(1, 20, 2, 2)
	newStart := start.Add(38 * time.Second)

	tick, events, _ := engine.Advance(newStart.Add(5*time.Second), round2, newStart)
	if tick.QuestionIndex != 0 || tick.InReview {
		t.Fatalf("expected fresh question 0, got %+v", tick)
	}
	if len(events) != 1 {
		t.Fatalf("expected index adoption only, got %v", events)
	}

	_, events, _ = engine.Advance(newStart.Add(28*time.Second), round2, newStart)
	if len(events) != 1 {
		t.Fatalf("expected terminal event, got %v", events)
	}
	if _, ok := events[0].(phase.GameFinished); !ok {
		t.Fatalf("expected GameFinished, got %T", events[0])
	}
}

func TestBreakTimerCountsDownAndResets(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	timer := clock.NewBreakTimer()

	left, complete := timer.Advance(start)
	if complete || left != 10 {
		t.Fatalf("expected 10s left at break start, got left=%d complete=%v", left, complete)
	}

	left, complete = timer.Advance(start.Add(4 * time.Second))
	if complete || left != 6 {
		t.Fatalf("expected 6s left, got left=%d complete=%v", left, complete)
	}

	left, complete = timer.Advance(start.Add(10 * time.Second))
	if !complete || left != 0 {
		t.Fatalf("expected completion, got left=%d complete=%v", left, complete)
	}

	// The timer re-arms lazily for the next break.
	later := start.Add(time.Hour)
	left, complete = timer.Advance(later)
	if complete || left != 10 {
		t.Fatalf("expected fresh break, got left=%d complete=%v", left, complete)
	}
}
