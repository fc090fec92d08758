package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/m3rciful/fingames/core/logger"

	"github.com/redis/go-redis/v9"
	tele "gopkg.in/telebot.v4"
)

const redisOpTimeout = 2 * time.Second

// RedisManager keeps sessions in Redis as JSON documents. Every write refreshes
// the key TTL, so idle sessions expire on the server side.
type RedisManager struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisManager returns a Redis-backed Manager. A non-positive ttl falls back
// to DefaultIdleTTL.
func NewRedisManager(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisManager {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	if prefix == "" {
		prefix = "fsm:"
	}
	return &RedisManager{client: client, prefix: prefix, ttl: ttl}
}

func (m *RedisManager) key(userID int64) string {
	return m.prefix + strconv.FormatInt(userID, 10)
}

func (m *RedisManager) load(ctx context.Context, userID int64) (*Session, bool) {
	raw, err := m.client.Get(ctx, m.key(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			m.logErr(ctx, "session.load", userID, err)
		}
		return newSession(), false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var s Session
	if err := dec.Decode(&s); err != nil {
		m.logErr(ctx, "session.decode", userID, err)
		return newSession(), false
	}
	if s.TempData == nil {
		s.TempData = make(map[string]any)
	}
	if s.State == "" {
		s.State = StateIdle
	}
	return &s, true
}

func (m *RedisManager) save(ctx context.Context, userID int64, s *Session) {
	s.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(s)
	if err != nil {
		m.logErr(ctx, "session.encode", userID, err)
		return
	}
	if err := m.client.Set(ctx, m.key(userID), raw, m.ttl).Err(); err != nil {
		m.logErr(ctx, "session.save", userID, err)
	}
}

func (m *RedisManager) mutate(userID int64, fn func(*Session)) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	s, _ := m.load(ctx, userID)
	fn(s)
	m.save(ctx, userID, s)
}

func (m *RedisManager) logErr(ctx context.Context, event string, userID int64, err error) {
	logger.TG.LogAttrs(ctx, slog.LevelWarn, event,
		slog.String("backend", "redis"),
		slog.Int64("user_id", userID),
		slog.String("err", err.Error()),
	)
}

// Get returns the user's session, or an idle session if none exists.
func (m *RedisManager) Get(userID int64) *Session {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	s, _ := m.load(ctx, userID)
	return s
}

// SetTemp stores a temporary key/value pair for the given user session.
func (m *RedisManager) SetTemp(userID int64, key string, value any) {
	m.mutate(userID, func(s *Session) { s.TempData[key] = value })
}

// ClearTemp removes a temporary key/value pair for the given user session.
func (m *RedisManager) ClearTemp(userID int64, key string) {
	m.mutate(userID, func(s *Session) { delete(s.TempData, key) })
}

// GetTemp retrieves a temporary value by key for the given user session.
func (m *RedisManager) GetTemp(userID int64, key string) (any, bool) {
	v, ok := m.Get(userID).TempData[key]
	return v, ok
}

// GetTempString retrieves a temporary value by key and asserts it as string.
func (m *RedisManager) GetTempString(userID int64, key string) (string, bool) {
	v, ok := m.GetTemp(userID, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetTempInt64 retrieves a temporary value by key. Numbers come back from
// JSON as json.Number and are converted here.
func (m *RedisManager) GetTempInt64(userID int64, key string) (int64, bool) {
	v, ok := m.GetTemp(userID, key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Clear removes the entire session for a user.
func (m *RedisManager) Clear(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := m.client.Del(ctx, m.key(userID)).Err(); err != nil {
		m.logErr(ctx, "session.clear", userID, err)
	}
}

// SetState sets the FSM state for the given user.
func (m *RedisManager) SetState(userID int64, st State) {
	m.mutate(userID, func(s *Session) { s.State = st })
}

// GetState returns the current FSM state of a user, or StateIdle if none exists.
func (m *RedisManager) GetState(userID int64) State {
	return m.Get(userID).State
}

// HasState checks if a user has an active state other than idle.
func (m *RedisManager) HasState(userID int64) bool {
	return m.GetState(userID) != StateIdle
}

// ClearState resets the FSM state to idle without dropping temp data.
func (m *RedisManager) ClearState(userID int64) {
	m.mutate(userID, func(s *Session) { s.State = StateIdle })
}

// InProgress reports whether the user currently has an active FSM state.
func (m *RedisManager) InProgress(userID int64) bool {
	return m.HasState(userID)
}

// ManagerHandler executes the handler function registered for the user's current state, if any.
func (m *RedisManager) ManagerHandler(c tele.Context) error {
	return dispatch(m, c)
}

// Ping checks connectivity to the Redis server.
func (m *RedisManager) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

var _ Manager = (*RedisManager)(nil)
