package localstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is a Store backend for installations where both processes share
// a redis instance. Every setter is a single command, so writes are
// visible to the counterpart process as soon as the call returns;
// durability across redis restarts depends on the server's persistence
// configuration.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis creates a Store on the given client. The prefix namespaces
// the installation; an empty prefix uses "quotidian".
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "quotidian"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) cacheKey() string  { return r.prefix + ":cache" }
func (r *Redis) signalKey() string { return r.prefix + ":signal" }

func (r *Redis) PutCache(ctx context.Context, entry CacheEntry) error {
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return r.client.Set(ctx, r.cacheKey(), payload, 0).Err()
}

func (r *Redis) GetCache(ctx context.Context) (CacheEntry, bool, error) {
	payload, err := r.client.Get(ctx, r.cacheKey()).Result()
	if errors.Is(err, redis.Nil) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, err
	}

	var entry CacheEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return CacheEntry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return entry, true, nil
}

func (r *Redis) ClearCache(ctx context.Context) error {
	return r.client.Del(ctx, r.cacheKey()).Err()
}

func (r *Redis) ReadSignal(ctx context.Context) (Signal, error) {
	fields, err := r.client.HGetAll(ctx, r.signalKey()).Result()
	if err != nil {
		return Signal{}, err
	}

	sig := Signal{
		Authenticated:      fields["authenticated"] == "1",
		IdentityKey:        fields["identity_key"],
		RefreshRequested:   fields["refresh_requested"] == "1",
		ResyncNeeded:       fields["resync_needed"] == "1",
		RefreshRequestedAt: parseTime(fields["refresh_requested_at"]),
		UpdatedAt:          parseTime(fields["updated_at"]),
	}
	return sig, nil
}

func (r *Redis) SetAuthenticated(ctx context.Context, authenticated bool) error {
	return r.setFields(ctx, map[string]any{"authenticated": boolField(authenticated)})
}

func (r *Redis) SetIdentity(ctx context.Context, identityKey string) error {
	return r.setFields(ctx, map[string]any{"identity_key": identityKey})
}

func (r *Redis) RequestRefresh(ctx context.Context, at time.Time) error {
	return r.setFields(ctx, map[string]any{
		"refresh_requested":    "1",
		"refresh_requested_at": at.UTC().Format(timeLayout),
	})
}

func (r *Redis) ClearRefreshRequest(ctx context.Context) error {
	return r.setFields(ctx, map[string]any{
		"refresh_requested":    "0",
		"refresh_requested_at": "",
	})
}

func (r *Redis) SetResyncNeeded(ctx context.Context, needed bool) error {
	return r.setFields(ctx, map[string]any{"resync_needed": boolField(needed)})
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) setFields(ctx context.Context, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC().Format(timeLayout)
	return r.client.HSet(ctx, r.signalKey(), fields).Err()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
