// Package presence holds shared presence backends for deployments that run
// more than one daemon against the same neighborhoods.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/claridad-app/claridad/internal/chat"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	TypingTTL time.Duration
	OnlineTTL time.Duration
}

// Redis keeps typing and online state in sorted sets scored by the last
// update in unix milliseconds. Entries older than the TTL are trimmed on read.
type Redis struct {
	client    *redis.Client
	typingTTL time.Duration
	onlineTTL time.Duration
	now       func() time.Time
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Address, err)
	}
	return &Redis{
		client:    client,
		typingTTL: cfg.TypingTTL,
		onlineTTL: cfg.OnlineTTL,
		now:       time.Now,
	}, nil
}

// Close releases the Redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Key layout:
// presence:typing:{channel}   ZSET<user_id> score=updated_at ms
// presence:online:{channel}   ZSET<user_id> score=last_seen ms
// presence:names:{channel}    HASH user_id -> display name

func typingKey(channelID string) string {
	return fmt.Sprintf("presence:typing:%s", channelID)
}

func onlineKey(channelID string) string {
	return fmt.Sprintf("presence:online:%s", channelID)
}

func namesKey(channelID string) string {
	return fmt.Sprintf("presence:names:%s", channelID)
}

func (r *Redis) WriteTyping(ctx context.Context, channelID, userID, userName string, isTyping bool) error {
	return r.write(ctx, typingKey(channelID), channelID, userID, userName, isTyping, r.typingTTL)
}

func (r *Redis) WriteOnline(ctx context.Context, channelID, userID, userName string, isOnline bool) error {
	return r.write(ctx, onlineKey(channelID), channelID, userID, userName, isOnline, r.onlineTTL)
}

func (r *Redis) write(ctx context.Context, key, channelID, userID, userName string, on bool, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	if on {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(r.now().UnixMilli()), Member: userID})
		pipe.HSet(ctx, namesKey(channelID), userID, userName)
		// Idle channels age out entirely.
		pipe.Expire(ctx, key, 2*ttl)
		pipe.Expire(ctx, namesKey(channelID), 2*r.longestTTL())
	} else {
		pipe.ZRem(ctx, key, userID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) longestTTL() time.Duration {
	return max(r.typingTTL, r.onlineTTL)
}

type scoredUser struct {
	id   string
	name string
	at   time.Time
}

func (r *Redis) read(ctx context.Context, key, channelID string, ttl time.Duration) ([]scoredUser, error) {
	cutoff := r.now().Add(-ttl).UnixMilli()

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	rangeCmd := pipe.ZRangeWithScores(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	members := rangeCmd.Val()
	if len(members) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(members))
	for _, z := range members {
		ids = append(ids, z.Member.(string))
	}
	names, err := r.client.HMGet(ctx, namesKey(channelID), ids...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]scoredUser, 0, len(members))
	for i, z := range members {
		u := scoredUser{id: ids[i], at: time.UnixMilli(int64(z.Score))}
		if s, ok := names[i].(string); ok {
			u.name = s
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *Redis) ReadTyping(ctx context.Context, channelID string) ([]chat.TypingUser, error) {
	users, err := r.read(ctx, typingKey(channelID), channelID, r.typingTTL)
	if err != nil {
		return nil, fmt.Errorf("read typing %s: %w", channelID, err)
	}
	out := make([]chat.TypingUser, 0, len(users))
	for _, u := range users {
		out = append(out, chat.TypingUser{UserID: u.id, UserName: u.name, LastUpdated: u.at})
	}
	return out, nil
}

func (r *Redis) ReadOnline(ctx context.Context, channelID string) ([]chat.OnlineUser, error) {
	users, err := r.read(ctx, onlineKey(channelID), channelID, r.onlineTTL)
	if err != nil {
		return nil, fmt.Errorf("read online %s: %w", channelID, err)
	}
	out := make([]chat.OnlineUser, 0, len(users))
	for _, u := range users {
		out = append(out, chat.OnlineUser{UserID: u.id, UserName: u.name, LastSeen: u.at})
	}
	return out, nil
}
