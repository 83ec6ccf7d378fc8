package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/study-assistant/internal/models"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

var (
	ErrNotFound     = errors.New("history entry not found")
	ErrInvalidEntry = errors.New("invalid history entry")
)

// Service stores generator responses per user.
type Service interface {
	Create(ctx context.Context, entry *models.ResponseHistory) (*models.ResponseHistory, error)
	ListByUser(ctx context.Context, userID string) ([]*models.ResponseHistory, error)
	Get(ctx context.Context, userID, id string) (*models.ResponseHistory, error)
	Delete(ctx context.Context, userID, id string) error
	ListByAction(ctx context.Context, userID string, action models.Action) ([]*models.ResponseHistory, error)
}

// RedisStore keeps each entry as JSON under history:item:<id> and indexes
// it in the sorted set history:user:<userID>, scored by creation time.
type RedisStore struct {
	rdb    redis.Cmdable
	logger logger.Logger
	now    func() time.Time
}

func NewRedisStore(rdb redis.Cmdable, log logger.Logger) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		logger: log.Named("history"),
		now:    time.Now,
	}
}

func itemKey(id string) string     { return "history:item:" + id }
func userKey(userID string) string { return "history:user:" + userID }

func (s *RedisStore) Create(ctx context.Context, entry *models.ResponseHistory) (*models.ResponseHistory, error) {
	if err := validate(entry); err != nil {
		return nil, err
	}

	saved := *entry
	saved.ID = uuid.New().String()
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = s.now()
	}

	data, err := json.Marshal(&saved)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history entry: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, itemKey(saved.ID), data, 0)
		pipe.ZAdd(ctx, userKey(saved.UserID), redis.Z{
			Score:  float64(saved.CreatedAt.UnixMilli()),
			Member: saved.ID,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save history entry: %w", err)
	}

	s.logger.Info("History entry saved",
		logger.String("id", saved.ID),
		logger.String("userId", saved.UserID),
		logger.String("action", string(saved.Action)),
	)
	return &saved, nil
}

// ListByUser returns the user's entries, newest first.
func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]*models.ResponseHistory, error) {
	ids, err := s.rdb.ZRevRange(ctx, userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	if len(ids) == 0 {
		return []*models.ResponseHistory{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = itemKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	out := make([]*models.ResponseHistory, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			s.logger.Warn("Dangling history index entry", logger.String("id", ids[i]))
			continue
		}
		var entry models.ResponseHistory
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode history entry %s: %w", ids[i], err)
		}
		out = append(out, &entry)
	}
	return out, nil
}

func (s *RedisStore) ListByAction(ctx context.Context, userID string, action models.Action) ([]*models.ResponseHistory, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, action)
	}
	all, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ResponseHistory, 0, len(all))
	for _, e := range all {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out, nil
}

// Get returns the entry only when it belongs to userID.
func (s *RedisStore) Get(ctx context.Context, userID, id string) (*models.ResponseHistory, error) {
	raw, err := s.rdb.Get(ctx, itemKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}

	var entry models.ResponseHistory
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode history entry: %w", err)
	}
	if entry.UserID != userID {
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (s *RedisStore) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, itemKey(id))
		pipe.ZRem(ctx, userKey(userID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	s.logger.Info("History entry deleted", logger.String("id", id), logger.String("userId", userID))
	return nil
}

func validate(e *models.ResponseHistory) error {
	if e == nil || strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("%w: user is required", ErrInvalidEntry)
	}
	if e.Action == "" || strings.TrimSpace(e.Prompt) == "" || strings.TrimSpace(e.Response) == "" {
		return fmt.Errorf("%w: action, prompt and response are required", ErrInvalidEntry)
	}
	if !e.Action.Valid() {
		return fmt.Errorf("%w: invalid action type", ErrInvalidEntry)
	}
	return nil
}
