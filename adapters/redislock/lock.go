package redislock

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	provisioning "github.com/goliatone/go-provisioning"
)

const keyPrefix = "provisioning:email-lock:"

// releaseScript deletes the key only while it still holds our token
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// Client is the subset of *redis.Client used by the lock
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// EmailLock serializes provisioning calls per email across instances
type EmailLock struct {
	client Client
	ttl    time.Duration
	poll   time.Duration
	logger provisioning.Logger
}

var _ provisioning.EmailLock = (*EmailLock)(nil)

type Option func(*EmailLock)

// WithTTL bounds how long a crashed holder keeps the lock
func WithTTL(ttl time.Duration) Option {
	return func(l *EmailLock) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(l *EmailLock) {
		if d > 0 {
			l.poll = d
		}
	}
}

func WithLogger(logger provisioning.Logger) Option {
	return func(l *EmailLock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(client Client, opts ...Option) *EmailLock {
	l := &EmailLock{
		client: client,
		ttl:    30 * time.Second,
		poll:   50 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Acquire blocks until the lock for email is held or ctx is done
func (l *EmailLock) Acquire(ctx context.Context, email string) (func(), error) {
	key := keyPrefix + strings.ToLower(strings.TrimSpace(email))
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to acquire email lock").
				WithTextCode(provisioning.TextCodeTransient).
				WithCode(503)
		}
		if ok {
			return l.releaser(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, fmt.Sprintf("timed out waiting for email lock %s", email)).
				WithTextCode(provisioning.TextCodeTransient).
				WithCode(503)
		case <-ticker.C:
		}
	}
}

func (l *EmailLock) releaser(key, token string) func() {
	return func() {
		// release runs after the caller context may be gone
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil && l.logger != nil {
			l.logger.Warn("failed to release email lock", "key", key, "error", err)
		}
	}
}

// Dial parses url, opens a client and pings it. The caller closes the client.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
