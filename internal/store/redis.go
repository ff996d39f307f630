package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/SkyZonDev/scrappex/internal/config"
	"github.com/SkyZonDev/scrappex/internal/models"
)

const redisTxRetries = 5

// RedisStore keeps each batch as a JSON value whose key expires with the
// batch, plus a sorted set of ids scored by creation time for listing.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

func NewRedisStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return newRedisStore(client, cfg.RedisPrefix, logger), nil
}

func newRedisStore(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "scrappex"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, logger: logger, prefix: prefix + ":"}
}

func (s *RedisStore) key(batchID string) string { return s.prefix + "batch:" + batchID }

func (s *RedisStore) indexKey() string { return s.prefix + "batches" }

func (s *RedisStore) PutBatch(ctx context.Context, b models.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if b.ExpiresAt > 0 {
		ttl = time.Until(time.Unix(b.ExpiresAt, 0))
		if ttl <= 0 {
			return nil
		}
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key(b.BatchID), data, ttl)
		p.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(b.CreatedAt), Member: b.BatchID})
		return nil
	})
	return err
}

func (s *RedisStore) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	raw, err := s.client.Get(ctx, s.key(batchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var b models.Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBatches walks the index newest first, a page of limit ids at a time,
// until limit live batches are found. Ids whose key expired are pruned.
func (s *RedisStore) ListBatches(ctx context.Context, limit int) ([]models.Batch, error) {
	var (
		out   []models.Batch
		stale []any
		start int64
	)
	for {
		stop := int64(-1)
		if limit > 0 {
			stop = start + int64(limit) - 1
		}
		ids, err := s.client.ZRevRange(ctx, s.indexKey(), start, stop).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = s.key(id)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				stale = append(stale, ids[i])
				continue
			}
			var b models.Batch
			if err := json.Unmarshal([]byte(raw), &b); err != nil {
				s.logger.Warn("redis store: skipping undecodable batch", "batch_id", ids[i], "error", err)
				continue
			}
			out = append(out, b)
		}

		if limit <= 0 || len(ids) < limit || len(out) >= limit {
			break
		}
		start += int64(len(ids))
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			s.logger.Warn("redis store: index cleanup failed", "error", err)
		}
	}
	return out, nil
}

func (s *RedisStore) MarkRunning(ctx context.Context, batchID, workerID string, nowMs int64) (bool, error) {
	claimed := false
	err := s.update(ctx, batchID, func(b *models.Batch) error {
		claimed = false
		if b.Status != models.StatusPending {
			return errSkip
		}
		b.Status = models.StatusRunning
		b.WorkerID = workerID
		b.StartedAt = nowMs
		b.UpdatedAt = nowMs
		claimed = true
		return nil
	})
	return claimed, err
}

func (s *RedisStore) Complete(ctx context.Context, batchID string, result models.BatchResult, nowMs int64) error {
	return s.update(ctx, batchID, func(b *models.Batch) error {
		if b.Terminal() {
			return ErrConflict
		}
		b.Result = &result
		b.Status = models.StatusCompleted
		b.UpdatedAt = nowMs
		return nil
	})
}

func (s *RedisStore) Fail(ctx context.Context, batchID, msg string, nowMs int64) error {
	return s.update(ctx, batchID, func(b *models.Batch) error {
		if b.Terminal() {
			return ErrConflict
		}
		b.Status = models.StatusError
		b.Error = msg
		b.UpdatedAt = nowMs
		return nil
	})
}

func (s *RedisStore) RequestCancel(ctx context.Context, batchID string, nowMs int64) error {
	return s.update(ctx, batchID, func(b *models.Batch) error {
		if !cancellable(*b) {
			return ErrConflict
		}
		b.CancelRequested = true
		b.UpdatedAt = nowMs
		return nil
	})
}

func (s *RedisStore) Delete(ctx context.Context, batchID string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, s.key(batchID))
		p.ZRem(ctx, s.indexKey(), batchID)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// errSkip leaves the record untouched without reporting an error.
var errSkip = errors.New("skip")

// update applies fn under WATCH so concurrent writers retry instead of
// overwriting each other. The key keeps its TTL.
func (s *RedisStore) update(ctx context.Context, batchID string, fn func(*models.Batch) error) error {
	key := s.key(batchID)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var b models.Batch
		if err := json.Unmarshal(raw, &b); err != nil {
			return err
		}
		if err := fn(&b); err != nil {
			return err
		}
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}

	for i := 0; i < redisTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, errSkip):
			return nil
		default:
			return err
		}
	}
	return ErrConflict
}
