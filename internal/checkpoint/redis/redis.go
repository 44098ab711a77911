// Package redis implements the checkpoint.Checkpointer contract on Redis,
// for distributed deployments where multiple agent instances share state,
// adapted from the original SDK's agents-persistence RedisCheckpointer.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/deepagent-run/deepagent/internal/checkpoint"
	"github.com/deepagent-run/deepagent/internal/state"
)

// Config configures a Store.
type Config struct {
	// URL is a redis:// connection string.
	URL string
	// Namespace prefixes every key this store touches, for multi-tenant
	// deployments sharing one Redis instance.
	Namespace string
	// TTL, when positive, is applied to every saved state key so Redis
	// expires it automatically.
	TTL time.Duration
}

// DefaultConfig returns a Config with namespace "agents" and no TTL.
func DefaultConfig() Config {
	return Config{Namespace: "agents"}
}

func sanitizeConfig(c Config) Config {
	if c.Namespace == "" {
		c.Namespace = "agents"
	}
	return c
}

// Store is a Redis-backed checkpointer. Each thread's state is stored
// under a namespaced key, with membership tracked in a parallel set so
// ListThreads doesn't require a KEYS scan.
type Store struct {
	client *goredis.Client
	cfg    Config
	log    *slog.Logger
}

// Open parses cfg.URL, pings the server, and returns a ready Store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = sanitizeConfig(cfg)

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Store{client: client, cfg: cfg, log: logger.With("component", "checkpoint.redis")}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ checkpoint.Checkpointer = (*Store)(nil)

func (s *Store) threadKey(id checkpoint.ThreadID) string {
	return fmt.Sprintf("%s:thread:%s", s.cfg.Namespace, id)
}

func (s *Store) threadsIndexKey() string {
	return fmt.Sprintf("%s:threads", s.cfg.Namespace)
}

func (s *Store) Save(ctx context.Context, id checkpoint.ThreadID, st *state.AgentState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis: marshal state: %w", err)
	}

	key := s.threadKey(id)
	if s.cfg.TTL > 0 {
		if err := s.client.Set(ctx, key, payload, s.cfg.TTL).Err(); err != nil {
			return fmt.Errorf("redis: save %q: %w", id, err)
		}
	} else {
		if err := s.client.Set(ctx, key, payload, 0).Err(); err != nil {
			return fmt.Errorf("redis: save %q: %w", id, err)
		}
	}
	if err := s.client.SAdd(ctx, s.threadsIndexKey(), string(id)).Err(); err != nil {
		return fmt.Errorf("redis: update thread index for %q: %w", id, err)
	}
	s.log.Debug("saved agent state to redis", "thread_id", id, "namespace", s.cfg.Namespace)
	return nil
}

func (s *Store) Load(ctx context.Context, id checkpoint.ThreadID) (*state.AgentState, bool, error) {
	payload, err := s.client.Get(ctx, s.threadKey(id)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: load %q: %w", id, err)
	}
	var st state.AgentState
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, false, fmt.Errorf("redis: unmarshal state: %w", err)
	}
	return &st, true, nil
}

func (s *Store) Delete(ctx context.Context, id checkpoint.ThreadID) error {
	if err := s.client.Del(ctx, s.threadKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: delete %q: %w", id, err)
	}
	if err := s.client.SRem(ctx, s.threadsIndexKey(), string(id)).Err(); err != nil {
		return fmt.Errorf("redis: update thread index for %q: %w", id, err)
	}
	return nil
}

func (s *Store) ListThreads(ctx context.Context) ([]checkpoint.ThreadID, error) {
	members, err := s.client.SMembers(ctx, s.threadsIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list threads: %w", err)
	}
	out := make([]checkpoint.ThreadID, len(members))
	for i, m := range members {
		out[i] = checkpoint.ThreadID(m)
	}
	return out, nil
}
