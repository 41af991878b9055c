// Package token persists player authentication tokens keyed by room id, so a
// player rejoining a room from the same machine keeps their identity.
package token

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"quizroom/internal/domain"
)

const bucket = "tokens"

// Store is a small bbolt-backed key/value store: roomID -> token.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the token database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open token db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init token bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the token for a room, replacing any previous one.
func (s *Store) Save(roomID, token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(roomID), []byte(token))
	})
}

// Get returns the token for a room or domain.ErrNoToken when absent.
func (s *Store) Get(roomID string) (string, error) {
	var token string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucket)).Get([]byte(roomID))
		if len(v) == 0 {
			return domain.ErrNoToken
		}
		token = string(v)
		return nil
	})
	return token, err
}

// Delete removes the token for a room. Deleting an absent token is a no-op.
func (s *Store) Delete(roomID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Delete([]byte(roomID))
	})
}
