package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/giftdraw/auth-bridge/internal/model"
	"github.com/giftdraw/auth-bridge/internal/redis"
)

// attachScript performs the whole token lookup + identity write atomically per
// token. It returns "missing", "idempotent", "replaced", or "ok".
var attachScript = goredis.NewScript(`
local key = KEYS[1]
local index = KEYS[2]
local userKey = KEYS[3]
local token = ARGV[1]
local id = ARGV[2]
local username = ARGV[3]
local firstName = ARGV[4]

if redis.call('EXISTS', key) == 0 then
    redis.call('ZREM', index, token)
    return 'missing'
end

local prev = redis.call('HGET', key, 'telegram_id')
if prev == id then
    return 'idempotent'
end
if prev then
    redis.call('DEL', 'pairing:user:' .. prev)
end

redis.call('HSET', key, 'telegram_id', id, 'username', username, 'first_name', firstName)
redis.call('ZREM', index, token)

local ttl = redis.call('PTTL', key)
if ttl > 0 then
    redis.call('SET', userKey, token, 'PX', ttl)
end

if prev then
    return 'replaced'
end
return 'ok'
`)

var consumeScript = goredis.NewScript(`
local key = KEYS[1]
local index = KEYS[2]
local token = ARGV[1]

local id = redis.call('HGET', key, 'telegram_id')
local deleted = redis.call('DEL', key)
redis.call('ZREM', index, token)
if id then
    redis.call('DEL', 'pairing:user:' .. id)
end
return deleted
`)

// RedisStore is the durable PairingStore. Token records are hashes with a
// native key TTL; a sorted set scored by expiry indexes unattached tokens for
// FindUnattached. The index can lag behind key expiry, so readers re-check the
// key and Cleanup prunes stale members.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func userKey(telegramID int64) string {
	return fmt.Sprintf("pairing:user:%d", telegramID)
}

func (s *RedisStore) Create(ctx context.Context, token string, ttl time.Duration) (*model.PairingToken, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	key := redis.PairingKey(token)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"token", token,
		"created_at", now.UnixMilli(),
		"expires_at", expiresAt.UnixMilli(),
	)
	pipe.PExpire(ctx, key, ttl)
	pipe.ZAdd(ctx, redis.PairingIndexKey, goredis.Z{
		Score:  float64(expiresAt.UnixMilli()),
		Member: token,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("create pairing token: %w", err)
	}

	return &model.PairingToken{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *RedisStore) Attach(ctx context.Context, token string, identity Identity) (AttachOutcome, error) {
	keys := []string{redis.PairingKey(token), redis.PairingIndexKey, userKey(identity.TelegramID)}
	args := []any{
		token,
		strconv.FormatInt(identity.TelegramID, 10),
		deref(identity.Username),
		deref(identity.FirstName),
	}

	result, err := attachScript.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return AttachNotFound, fmt.Errorf("attach pairing token: %w", err)
	}

	switch result {
	case "ok":
		return AttachOK, nil
	case "idempotent":
		return AttachIdempotent, nil
	case "replaced":
		return AttachReplaced, nil
	default:
		return AttachNotFound, nil
	}
}

func (s *RedisStore) Get(ctx context.Context, token string) (*model.PairingToken, error) {
	fields, err := s.client.HGetAll(ctx, redis.PairingKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("get pairing token: %w", err)
	}
	if len(fields) == 0 {
		// Key expired or never existed; drop any stale index entry.
		s.client.ZRem(ctx, redis.PairingIndexKey, token)
		return nil, nil
	}
	return parseRecord(token, fields)
}

func (s *RedisStore) Consume(ctx context.Context, token string) (bool, error) {
	deleted, err := consumeScript.Run(ctx, s.client,
		[]string{redis.PairingKey(token), redis.PairingIndexKey}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("consume pairing token: %w", err)
	}
	return deleted > 0, nil
}

func (s *RedisStore) FindUnattached(ctx context.Context) (string, error) {
	now := time.Now().UnixMilli()
	if err := s.client.ZRemRangeByScore(ctx, redis.PairingIndexKey, "-inf", strconv.FormatInt(now, 10)).Err(); err != nil {
		return "", fmt.Errorf("prune pairing index: %w", err)
	}

	// Highest score == latest expiry == most recently created for a fixed TTL.
	for offset := int64(0); ; offset += 10 {
		tokens, err := s.client.ZRevRange(ctx, redis.PairingIndexKey, offset, offset+9).Result()
		if err != nil {
			return "", fmt.Errorf("scan pairing index: %w", err)
		}
		if len(tokens) == 0 {
			return "", nil
		}
		for _, token := range tokens {
			exists, err := s.client.Exists(ctx, redis.PairingKey(token)).Result()
			if err != nil {
				return "", fmt.Errorf("check pairing token: %w", err)
			}
			if exists > 0 {
				return token, nil
			}
			s.client.ZRem(ctx, redis.PairingIndexKey, token)
		}
	}
}

func (s *RedisStore) FindByTelegramID(ctx context.Context, telegramID int64) (string, error) {
	token, err := s.client.Get(ctx, userKey(telegramID)).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find pairing token by user: %w", err)
	}

	exists, err := s.client.Exists(ctx, redis.PairingKey(token)).Result()
	if err != nil || exists == 0 {
		return "", err
	}
	return token, nil
}

func (s *RedisStore) Cleanup(ctx context.Context) (int64, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	pruned, err := s.client.ZRemRangeByScore(ctx, redis.PairingIndexKey, "-inf", now).Result()
	if err != nil {
		return 0, fmt.Errorf("cleanup pairing index: %w", err)
	}
	return pruned, nil
}

func parseRecord(token string, fields map[string]string) (*model.PairingToken, error) {
	createdMs, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresMs, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	rec := &model.PairingToken{
		Token:     token,
		CreatedAt: time.UnixMilli(createdMs),
		ExpiresAt: time.UnixMilli(expiresMs),
	}

	if raw, ok := fields["telegram_id"]; ok && raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse telegram_id: %w", err)
		}
		rec.TelegramID = &id
		if v := fields["username"]; v != "" {
			rec.Username = &v
		}
		if v := fields["first_name"]; v != "" {
			rec.FirstName = &v
		}
	}

	return rec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
