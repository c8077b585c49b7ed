// Package store persists items in Redis.
//
// Each item is a JSON document in the hash <name>:items keyed by its id.
// Insertion order is kept in the sorted set <name>:items:order, scored by a
// per-store sequence number.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"edge-gateway/internal/config"
	"edge-gateway/internal/model"
)

var (
	// ErrNotFound is returned when no item has the requested id.
	ErrNotFound = errors.New("item not found")
	// ErrInvalidID is returned when an id is not a valid item identifier.
	ErrInvalidID = errors.New("invalid item id")
)

const pingTimeout = 5 * time.Second

// ItemStore reads and writes items.
type ItemStore struct {
	client *redis.Client
	name   string
	logger *slog.Logger
	now    func() time.Time
}

// Connect opens the Redis connection described by cfg.Storage and verifies it
// with a ping.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ItemStore, error) {
	opts, err := redis.ParseURL(cfg.Storage.URL)
	if err != nil {
		return nil, fmt.Errorf("parse storage url: %w", err)
	}
	client := redis.NewClient(opts)

	s := New(client, cfg.Storage.Name, logger)
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	s.logger.Info("connected to item store", "addr", opts.Addr, "db", opts.DB, "name", cfg.Storage.Name)
	return s, nil
}

// New wraps an existing client.
func New(client *redis.Client, name string, logger *slog.Logger) *ItemStore {
	return &ItemStore{
		client: client,
		name:   name,
		logger: logger.With("component", "item_store"),
		now:    time.Now,
	}
}

// Ping checks that the store is reachable.
func (s *ItemStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping item store: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *ItemStore) Close() error {
	return s.client.Close()
}

func (s *ItemStore) hashKey() string  { return s.name + ":items" }
func (s *ItemStore) orderKey() string { return s.name + ":items:order" }
func (s *ItemStore) seqKey() string   { return s.name + ":items:seq" }

// FindAll returns every item in insertion order.
func (s *ItemStore) FindAll(ctx context.Context) ([]model.Item, error) {
	ids, err := s.client.ZRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list item ids: %w", err)
	}
	items := make([]model.Item, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	docs, err := s.client.HMGet(ctx, s.hashKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	for i, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			// Order entry without a document; skip it.
			s.logger.Warn("item missing from hash", "id", ids[i])
			continue
		}
		var item model.Item
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("decode item %s: %w", ids[i], err)
		}
		items = append(items, item)
	}
	return items, nil
}

// FindByID returns the item with the given id.
func (s *ItemStore) FindByID(ctx context.Context, id string) (model.Item, error) {
	if err := validateID(id); err != nil {
		return model.Item{}, err
	}

	raw, err := s.client.HGet(ctx, s.hashKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return model.Item{}, ErrNotFound
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("load item %s: %w", id, err)
	}

	var item model.Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return model.Item{}, fmt.Errorf("decode item %s: %w", id, err)
	}
	return item, nil
}

// Insert stores fields as a new item and returns it with its generated id
// and creation time. Client-supplied _id and createdAt keys are overwritten.
func (s *ItemStore) Insert(ctx context.Context, fields map[string]any) (model.Item, error) {
	item := model.Item{
		ID:        uuid.NewString(),
		CreatedAt: s.now().UTC(),
		Fields:    make(map[string]any, len(fields)),
	}
	for k, v := range fields {
		if k == "_id" || k == "createdAt" {
			continue
		}
		item.Fields[k] = v
	}

	doc, err := json.Marshal(item)
	if err != nil {
		return model.Item{}, fmt.Errorf("encode item: %w", err)
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return model.Item{}, fmt.Errorf("allocate item sequence: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.hashKey(), item.ID, doc)
		pipe.ZAdd(ctx, s.orderKey(), redis.Z{Score: float64(seq), Member: item.ID})
		return nil
	})
	if err != nil {
		return model.Item{}, fmt.Errorf("insert item: %w", err)
	}

	s.logger.Debug("item inserted", "id", item.ID)
	return item, nil
}

// Delete removes the item with the given id.
func (s *ItemStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, s.hashKey(), id)
		pipe.ZRem(ctx, s.orderKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	if removed.Val() == 0 {
		return ErrNotFound
	}

	s.logger.Debug("item deleted", "id", id)
	return nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
