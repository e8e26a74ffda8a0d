// Package redis implements escalate.Store using Redis. Entries are stored
// as Hashes with a Set tracking IDs for enumeration.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	svc := escalate.NewService(s)
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/theopensystemslab/sendq"
	"github.com/theopensystemslab/sendq/destination"
	"github.com/theopensystemslab/sendq/escalate"
	"github.com/theopensystemslab/sendq/id"
)

// Compile-time interface check.
var _ escalate.Store = (*Store)(nil)

// Redis key naming. All keys are prefixed with "sendq:" to avoid
// collisions.
const keyPrefix = "sendq:"

// entryKey returns the Hash key for an entry: sendq:escalation:{id}
func entryKey(id string) string { return keyPrefix + "escalation:" + id }

// entryIDsKey is the Set tracking all entry IDs for enumeration.
const entryIDsKey = keyPrefix + "escalation_ids"

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements escalate.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed escalation store. The caller owns the
// Redis client lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Push records an escalation entry.
func (s *Store) Push(ctx context.Context, entry *escalate.Entry) error {
	eID := entry.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, entryKey(eID), entryToMap(entry))
	pipe.SAdd(ctx, entryIDsKey, eID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sendq/redis: push escalation: %w", err)
	}
	return nil
}

// List returns entries matching opts, oldest first.
func (s *Store) List(ctx context.Context, opts escalate.ListOpts) ([]*escalate.Entry, error) {
	ids, err := s.client.SMembers(ctx, entryIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("sendq/redis: list escalations: %w", err)
	}

	entries := make([]*escalate.Entry, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, entryKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		e, convErr := mapToEntry(vals)
		if convErr != nil {
			continue
		}
		if opts.SessionID != "" && e.SessionID != opts.SessionID {
			continue
		}
		if opts.Destination != "" && e.Destination != opts.Destination {
			continue
		}
		entries = append(entries, e)
	}

	sortByEscalatedAt(entries)

	if opts.Offset >= len(entries) {
		return nil, nil
	}
	entries = entries[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// Get retrieves an entry by ID.
func (s *Store) Get(ctx context.Context, entryID id.ID) (*escalate.Entry, error) {
	vals, err := s.client.HGetAll(ctx, entryKey(entryID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("sendq/redis: get escalation: %w", err)
	}
	if len(vals) == 0 {
		return nil, sendq.ErrEscalationNotFound
	}
	return mapToEntry(vals)
}

// MarkReplayed sets ReplayedAt on an entry.
func (s *Store) MarkReplayed(ctx context.Context, entryID id.ID) error {
	key := entryKey(entryID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("sendq/redis: mark replayed exists: %w", err)
	}
	if exists == 0 {
		return sendq.ErrEscalationNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"replayed_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("sendq/redis: mark replayed: %w", err)
	}
	return nil
}

// Purge removes entries escalated before the given time.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.SMembers(ctx, entryIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("sendq/redis: purge escalations smembers: %w", err)
	}

	var purged int64
	for _, eID := range ids {
		key := entryKey(eID)
		escalatedStr, getErr := s.client.HGet(ctx, key, "escalated_at").Result()
		if getErr != nil {
			if errors.Is(getErr, goredis.Nil) {
				continue
			}
			return purged, fmt.Errorf("sendq/redis: purge escalations get: %w", getErr)
		}

		escalatedAt, _ := time.Parse(time.RFC3339Nano, escalatedStr) //nolint:errcheck // best-effort parse from trusted Redis data
		if escalatedAt.Before(before) {
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, key)
			pipe.SRem(ctx, entryIDsKey, eID)
			if _, pErr := pipe.Exec(ctx); pErr != nil {
				return purged, fmt.Errorf("sendq/redis: purge escalations del: %w", pErr)
			}
			purged++
		}
	}
	return purged, nil
}

// Count returns the number of entries matching opts.
func (s *Store) Count(ctx context.Context, opts escalate.ListOpts) (int64, error) {
	if opts.SessionID == "" && opts.Destination == "" {
		count, err := s.client.SCard(ctx, entryIDsKey).Result()
		if err != nil {
			return 0, fmt.Errorf("sendq/redis: count escalations: %w", err)
		}
		return count, nil
	}

	// Filtered counts fall back to enumeration.
	entries, err := s.List(ctx, escalate.ListOpts{
		SessionID:   opts.SessionID,
		Destination: opts.Destination,
	})
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

// ── helpers ──

func entryToMap(e *escalate.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":            e.ID.String(),
		"session_id":    e.SessionID,
		"destination":   string(e.Destination),
		"authority_key": e.Authority.Key,
		"attempts":      strconv.Itoa(e.Attempts),
		"error":         e.Error,
		"escalated_at":  e.EscalatedAt.Format(time.RFC3339Nano),
		"created_at":    e.CreatedAt.Format(time.RFC3339Nano),
	}
	if e.ReplayedAt != nil {
		m["replayed_at"] = e.ReplayedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToEntry(m map[string]string) (*escalate.Entry, error) {
	eID, err := id.ParseEscalationID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("sendq/redis: parse escalation id: %w", err)
	}
	attempts, _ := strconv.Atoi(m["attempts"])                          //nolint:errcheck // best-effort parse from trusted Redis data
	escalatedAt, _ := time.Parse(time.RFC3339Nano, m["escalated_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])       //nolint:errcheck // best-effort parse from trusted Redis data

	e := &escalate.Entry{
		ID:          eID,
		SessionID:   m["session_id"],
		Destination: destination.Destination(m["destination"]),
		Authority:   destination.AuthorityContext{Key: m["authority_key"]},
		Attempts:    attempts,
		Error:       m["error"],
		EscalatedAt: escalatedAt,
		CreatedAt:   createdAt,
	}

	if v := m["replayed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.ReplayedAt = &t
	}
	return e, nil
}

func sortByEscalatedAt(entries []*escalate.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].EscalatedAt.Before(entries[j].EscalatedAt)
	})
}
