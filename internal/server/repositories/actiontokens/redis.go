package actiontokens

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "ak"

// KEYS[1] token hash, KEYS[2] per-user index.
// ARGV: user id, purpose, expires_at (unix ms), token, ttl (ms).
const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "user_id", ARGV[1], "purpose", ARGV[2], "expires_at", ARGV[3])
redis.call("PEXPIREAT", KEYS[1], ARGV[3])
redis.call("SADD", KEYS[2], ARGV[4])
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[5]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[5])
end
return 1
`

// KEYS[1] token hash. ARGV: purpose, user index prefix, token.
// A purpose mismatch leaves the record in place.
const consumeScript = `
local v = redis.call("HMGET", KEYS[1], "user_id", "purpose", "expires_at")
if not v[1] then
  return false
end
if ARGV[1] ~= "" and v[2] ~= ARGV[1] then
  return false
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[2] .. v[1], ARGV[3])
return v
`

// KEYS[1] per-user index. ARGV: token key prefix.
const deleteByUserScript = `
local tokens = redis.call("SMEMBERS", KEYS[1])
local n = 0
for _, t in ipairs(tokens) do
  n = n + redis.call("DEL", ARGV[1] .. t)
end
redis.call("DEL", KEYS[1])
return n
`

var (
	createLua       = redis.NewScript(createScript)
	consumeLua      = redis.NewScript(consumeScript)
	deleteByUserLua = redis.NewScript(deleteByUserScript)
)

// RedisRepository keeps each token in a hash that expires with the token,
// plus a set per user so an account deletion can purge its tokens.
type RedisRepository struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRepository(rdb redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{rdb: rdb, prefix: prefix, now: time.Now}
}

func (r *RedisRepository) tokenPrefix() string { return r.prefix + ":at:" }
func (r *RedisRepository) userPrefix() string  { return r.prefix + ":atu:" }

func (r *RedisRepository) tokenKey(token string) string { return r.tokenPrefix() + token }
func (r *RedisRepository) userKey(userID string) string { return r.userPrefix() + userID }

func (r *RedisRepository) Create(ctx context.Context, t *models.ActionToken) error {
	ttl := t.ExpiresAt.Sub(r.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	res, err := createLua.Run(ctx, r.rdb,
		[]string{r.tokenKey(t.Token), r.userKey(t.UserID)},
		t.UserID, string(t.Purpose), t.ExpiresAt.UnixMilli(), t.Token, ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if res == 0 {
		return common.ErrorDuplicateKey
	}
	return nil
}

func (r *RedisRepository) Find(ctx context.Context, token string) (*models.ActionToken, error) {
	vals, err := r.rdb.HMGet(ctx, r.tokenKey(token), "user_id", "purpose", "expires_at").Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return decodeRecord(token, vals)
}

func (r *RedisRepository) Consume(ctx context.Context, token string, purpose models.Purpose) (*models.ActionToken, error) {
	vals, err := consumeLua.Run(ctx, r.rdb,
		[]string{r.tokenKey(token)},
		string(purpose), r.userPrefix(), token,
	).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	return decodeRecord(token, vals)
}

// Delete goes through the consume script with an empty purpose so the user
// index is kept in step.
func (r *RedisRepository) Delete(ctx context.Context, token string) error {
	err := consumeLua.Run(ctx, r.rdb, []string{r.tokenKey(token)}, "", r.userPrefix(), token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis drops token hashes at their deadline and
// user indexes once their longest-lived token is gone.
func (r *RedisRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (r *RedisRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	n, err := deleteByUserLua.Run(ctx, r.rdb, []string{r.userKey(userID)}, r.tokenPrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return n, nil
}

func decodeRecord(token string, vals []any) (*models.ActionToken, error) {
	if len(vals) != 3 || vals[0] == nil {
		return nil, common.ErrorNotFound
	}
	userID, _ := vals[0].(string)
	purpose, _ := vals[1].(string)
	raw, _ := vals[2].(string)
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis error: corrupt expires_at for token record: %w", err)
	}
	return &models.ActionToken{
		Token:     token,
		UserID:    userID,
		Purpose:   models.Purpose(purpose),
		ExpiresAt: time.UnixMilli(ms),
	}, nil
}
