package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quizroom/internal/app"
	"quizroom/internal/domain"
	redisstore "quizroom/internal/infra/redis"
)

func newStore(t *testing.T) (*redisstore.RoomStore, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisstore.NewRoomStore(client, time.Hour, zerolog.Nop()), mini
}

func TestPutSetsLivenessMarker(t *testing.T) {
	store, mini := newStore(t)
	session := app.NewRoomSession(domain.Room{ID: "room-1"}, clockwork.NewRealClock())

	store.Put("room-1", session)

	got, ok := store.Get("room-1")
	if !ok || got != session {
		t.Fatalf("expected the stored session back")
	}
	if !mini.Exists("room:live:room-1") {
		t.Fatalf("expected liveness marker in redis")
	}
	if !store.Live(context.Background(), "room-1") {
		t.Fatalf("expected Live to report the marker")
	}
}

func TestLivenessMarkerExpires(t *testing.T) {
	store, mini := newStore(t)
	store.Put("room-1", app.NewRoomSession(domain.Room{ID: "room-1"}, clockwork.NewRealClock()))

	mini.FastForward(2 * time.Hour)
	if store.Live(context.Background(), "room-1") {
		t.Fatalf("expected liveness marker to expire with the ttl")
	}
	// The local session is authoritative and survives marker expiry.
	if _, ok := store.Get("room-1"); !ok {
		t.Fatalf("expected local session to remain")
	}
}

func TestSaveSnapshotWritesRoomJSON(t *testing.T) {
	store, mini := newStore(t)
	room := domain.Room{
		ID:              "room-1",
		Status:          domain.RoomStarted,
		TimePerQuestion: 20,
		CurrentRound:    1,
		NumRounds:       2,
	}
	store.Put("room-1", app.NewRoomSession(room, clockwork.NewRealClock()))

	store.SaveSnapshot(context.Background(), "room-1")

	raw, err := mini.Get("room:snapshot:room-1")
	if err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	var decoded domain.Room
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if decoded.ID != "room-1" || decoded.Status != domain.RoomStarted || decoded.CurrentRound != 1 {
		t.Fatalf("unexpected snapshot: %+v", decoded)
	}
}

func TestDeleteClearsRedisKeys(t *testing.T) {
	store, mini := newStore(t)
	store.Put("room-1", app.NewRoomSession(domain.Room{ID: "room-1"}, clockwork.NewRealClock()))
	store.SaveSnapshot(context.Background(), "room-1")

	store.Delete("room-1")

	if _, ok := store.Get("room-1"); ok {
		t.Fatalf("expected local session removed")
	}
	if mini.Exists("room:live:room-1") || mini.Exists("room:snapshot:room-1") {
		t.Fatalf("expected redis keys removed")
	}
}

func TestSaveSnapshotUnknownRoomIsNoop(t *testing.T) {
	store, mini := newStore(t)
	store.SaveSnapshot(context.Background(), "missing")
	if mini.Exists("room:snapshot:missing") {
		t.Fatalf("expected no snapshot for unknown room")
	}
}
