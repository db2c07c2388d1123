package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionUpdateRetries = 10
	sessionRetryBackoff  = 2 * time.Millisecond
)

// SessionRepository stores SessionState records in Redis. Every mutation
// runs inside WATCH/MULTI so concurrent requests on one session serialize.
type SessionRepository struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionRepository(client redis.UniversalClient, prefix string, ttl time.Duration) *SessionRepository {
	if prefix == "" {
		prefix = "otpgate:session"
	}
	return &SessionRepository{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (r *SessionRepository) key(id string) string {
	return r.prefix + ":" + id
}

// Create stores a new anonymous session under a random id.
func (r *SessionRepository) Create(ctx context.Context) (*models.SessionState, error) {
	state := models.NewSessionState(uuid.NewString(), r.now())

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	ok, err := r.redis.SetNX(ctx, r.key(state.ID), data, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return nil, models.ErrConflict
	}
	return state, nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*models.SessionState, error) {
	data, err := r.redis.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var state models.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &state, nil
}

// Update loads the session, applies fn and writes the result back atomically.
// The write happens even when fn returns an error, so that transitions such
// as expiry persist alongside the returned error.
func (r *SessionRepository) Update(ctx context.Context, id string, fn func(*models.SessionState) error) (*models.SessionState, error) {
	return r.apply(ctx, id, fn, false)
}

// Rotate is Update for privilege changes. When fn succeeds the state moves
// to a freshly generated id and the old key is deleted in the same
// transaction, so an id handed out before the change stops resolving.
// When fn fails the state is written back under the old id.
func (r *SessionRepository) Rotate(ctx context.Context, id string, fn func(*models.SessionState) error) (*models.SessionState, error) {
	return r.apply(ctx, id, fn, true)
}

func (r *SessionRepository) apply(ctx context.Context, id string, fn func(*models.SessionState) error, rotate bool) (*models.SessionState, error) {
	key := r.key(id)

	for i := 0; i < sessionUpdateRetries; i++ {
		var (
			result *models.SessionState
			fnErr  error
		)

		err := r.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var state models.SessionState
			if err := json.Unmarshal(data, &state); err != nil {
				return fmt.Errorf("failed to decode session: %w", err)
			}

			fnErr = fn(&state)

			target := key
			if rotate && fnErr == nil {
				state.ID = uuid.NewString()
				target = r.key(state.ID)
			}

			updated, err := json.Marshal(&state)
			if err != nil {
				return fmt.Errorf("failed to encode session: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, target, updated, r.ttl)
				if target != key {
					pipe.Del(ctx, key)
				}
				return nil
			})
			if err != nil {
				return err
			}

			result = &state
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			if err := sleepCtx(ctx, time.Duration(i+1)*sessionRetryBackoff); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, models.ErrNotFound
			}
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
		return result, fnErr
	}

	return nil, fmt.Errorf("failed to update session: %w", redis.TxFailedErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.redis.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
