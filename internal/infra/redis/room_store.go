package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quizroom/internal/app"
)

// RoomStore is a Redis-aware implementation of app.RoomStore.
// Notes:
//   - Live sessions stay in a local map so the in-process scoring and
//     broadcast paths keep working unchanged.
//   - Redis holds a liveness marker plus the latest room snapshot per room,
//     which operators can inspect and which a future pub/sub projector could
//     fan out across instances.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]*app.RoomSession
}

func NewRoomStore(client *redis.Client, ttl time.Duration, log zerolog.Logger) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		log:    log,
		rooms:  make(map[string]*app.RoomSession),
	}
}

func (s *RoomStore) Put(roomID string, session *app.RoomSession) {
	s.mu.Lock()
	s.rooms[roomID] = session
	s.mu.Unlock()

	// Best-effort liveness marker; the local map is authoritative.
	if err := s.client.Set(context.Background(), s.liveKey(roomID), "1", s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("redis liveness marker failed")
	}
}

func (s *RoomStore) Get(roomID string) (*app.RoomSession, bool) {
	s.mu.RLock()
	session, ok := s.rooms[roomID]
	s.mu.RUnlock()
	return session, ok
}

func (s *RoomStore) Delete(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
	if err := s.client.Del(context.Background(), s.liveKey(roomID), s.snapshotKey(roomID)).Err(); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("redis delete failed")
	}
}

// SaveSnapshot writes the latest room snapshot for inspection; callers
// invoke it after state changes they want visible outside the process.
func (s *RoomStore) SaveSnapshot(ctx context.Context, roomID string) {
	session, ok := s.Get(roomID)
	if !ok {
		return
	}
	data, err := json.Marshal(session.Snapshot())
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, s.snapshotKey(roomID), data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("redis snapshot write failed")
	}
}

// Live reports whether a liveness marker exists for the room, regardless of
// which process owns the session.
func (s *RoomStore) Live(ctx context.Context, roomID string) bool {
	n, err := s.client.Exists(ctx, s.liveKey(roomID)).Result()
	return err == nil && n > 0
}

func (s *RoomStore) liveKey(roomID string) string {
	return "room:live:" + roomID
}

func (s *RoomStore) snapshotKey(roomID string) string {
	return "room:snapshot:" + roomID
}
