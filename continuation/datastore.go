package continuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
)

// DefaultKind is the Datastore kind continuations are stored under.
const DefaultKind = "Continuation"

// DatastoreStore keeps continuations in Cloud Datastore. Expired entities are
// hidden from Get; removing them is left to a Datastore TTL policy on
// ExpiresAt.
type DatastoreStore struct {
	client *datastore.Client
	kind   string
	ttl    time.Duration
	now    func() time.Time
}

type entity struct {
	Operation  string
	Payload    string `datastore:",noindex"`
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt time.Time
}

// NewDatastoreStore connects to the given project.
func NewDatastoreStore(ctx context.Context, projectID, kind string, ttl time.Duration) (*DatastoreStore, error) {
	client, err := datastore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore client: %w", err)
	}
	if kind == "" {
		kind = DefaultKind
	}
	return &DatastoreStore{client: client, kind: kind, ttl: ttl, now: time.Now}, nil
}

// Close closes the Datastore client.
func (s *DatastoreStore) Close() error {
	return s.client.Close()
}

func (s *DatastoreStore) key(id string) *datastore.Key {
	return datastore.NameKey(s.kind, id, nil)
}

// Put stores rec.
func (s *DatastoreStore) Put(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding continuation %s: %w", rec.ID, err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	e := entity{
		Operation: rec.Operation,
		Payload:   string(payload),
		CreatedAt: rec.CreatedAt,
	}
	if s.ttl > 0 {
		e.ExpiresAt = rec.CreatedAt.Add(s.ttl)
	}
	if _, err := s.client.Put(ctx, s.key(rec.ID), &e); err != nil {
		return fmt.Errorf("failed to save continuation %s: %w", rec.ID, err)
	}
	return nil
}

// Get loads the record stored under id.
func (s *DatastoreStore) Get(ctx context.Context, id string) (*Record, error) {
	var e entity
	if err := s.client.Get(ctx, s.key(id), &e); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get continuation %s: %w", id, err)
	}
	if s.expired(e) {
		return nil, ErrNotFound
	}

	rec := &Record{}
	if err := json.Unmarshal([]byte(e.Payload), rec); err != nil {
		return nil, err
	}
	rec.ID = id
	rec.Operation = e.Operation
	rec.CreatedAt = e.CreatedAt
	if !e.ConsumedAt.IsZero() {
		t := e.ConsumedAt
		rec.ConsumedAt = &t
	}
	return rec, nil
}

// Claim flags the record as replayed inside a transaction.
func (s *DatastoreStore) Claim(ctx context.Context, id string) error {
	key := s.key(id)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var e entity
		if err := tx.Get(key, &e); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return ErrNotFound
			}
			return err
		}
		if s.expired(e) {
			return ErrNotFound
		}
		if !e.ConsumedAt.IsZero() {
			return ErrConsumed
		}
		e.ConsumedAt = s.now()
		_, err := tx.Put(key, &e)
		return err
	})
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConsumed) {
		return fmt.Errorf("failed to update continuation %s: %w", id, err)
	}
	return err
}

// Release clears the consumed flag set by Claim.
func (s *DatastoreStore) Release(ctx context.Context, id string) error {
	key := s.key(id)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var e entity
		if err := tx.Get(key, &e); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return nil
			}
			return err
		}
		e.ConsumedAt = time.Time{}
		_, err := tx.Put(key, &e)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to release continuation %s: %w", id, err)
	}
	return nil
}

func (s *DatastoreStore) expired(e entity) bool {
	return !e.ExpiresAt.IsZero() && !s.now().Before(e.ExpiresAt)
}
