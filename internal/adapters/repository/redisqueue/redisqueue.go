// Package redisqueue journals queue membership in Redis sorted sets so a
// restarted engine can rebuild its role queues.
//
// Layout under prefix P:
//
//	P:queue:<channel>:<role>   ZSET member=participant score=enqueue time (µs)
//	P:queue:channels           SET of channels with entries
//	P:queued:<participant>     SET of queue keys the participant is in
package redisqueue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/domain/model"
)

// Store implements repository.QueueStore on Redis.
type Store struct {
	client *redis.Client
	prefix string
}

var _ repository.QueueStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New wraps an existing client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: "inhouse"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return New(client, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) queueKey(channel string, role model.Role) string {
	return s.prefix + ":queue:" + channel + ":" + role.String()
}

func (s *Store) channelsKey() string { return s.prefix + ":queue:channels" }

func (s *Store) participantKey(id string) string { return s.prefix + ":queued:" + id }

func (s *Store) AddQueueEntries(ctx context.Context, entries []model.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			key := s.queueKey(e.Channel, e.Role)
			pipe.ZAddNX(ctx, key, redis.Z{Score: float64(e.EnqueuedAt.UnixMicro()), Member: e.ParticipantID})
			pipe.SAdd(ctx, s.channelsKey(), e.Channel)
			pipe.SAdd(ctx, s.participantKey(e.ParticipantID), key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("journal queue entries: %w", err)
	}
	return nil
}

func (s *Store) RemoveQueueEntries(ctx context.Context, channel, participantID string) error {
	pkey := s.participantKey(participantID)
	keys, err := s.client.SMembers(ctx, pkey).Result()
	if err != nil {
		return fmt.Errorf("list queues of %s: %w", participantID, err)
	}
	var only map[string]struct{}
	if channel != "" {
		only = make(map[string]struct{}, model.NumRoles)
		for _, role := range model.Roles() {
			only[s.queueKey(channel, role)] = struct{}{}
		}
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			if _, ok := only[key]; only != nil && !ok {
				continue
			}
			pipe.ZRem(ctx, key, participantID)
			pipe.SRem(ctx, pkey, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove queue entries of %s: %w", participantID, err)
	}
	return nil
}

func (s *Store) LoadQueueEntries(ctx context.Context) ([]model.QueueEntry, error) {
	channels, err := s.client.SMembers(ctx, s.channelsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	var out []model.QueueEntry
	for _, ch := range channels {
		empty := true
		for _, role := range model.Roles() {
			zs, err := s.client.ZRangeWithScores(ctx, s.queueKey(ch, role), 0, -1).Result()
			if err != nil {
				return nil, fmt.Errorf("load queue %s/%s: %w", ch, role, err)
			}
			for _, z := range zs {
				empty = false
				out = append(out, model.QueueEntry{
					Channel:       ch,
					Role:          role,
					ParticipantID: memberString(z.Member),
					EnqueuedAt:    time.UnixMicro(int64(z.Score)).UTC(),
				})
			}
		}
		if empty {
			_ = s.client.SRem(ctx, s.channelsKey(), ch).Err()
		}
	}
	repository.SortQueueEntries(out)
	return out, nil
}

func memberString(m any) string {
	switch v := m.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}
