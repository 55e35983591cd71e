package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "streamgate:session:"

const (
	fieldMessages  = "messages"
	fieldModel     = "model"
	fieldAuthToken = "authToken"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
)

var _ Store = (*Redis)(nil)

// touchScript extends a session only when it still exists, so appends to an
// expired session never resurrect it.
//
// KEYS[1] session hash, KEYS[2] text key
// ARGV[1] text to append, ARGV[2] field to set, ARGV[3] field value, ARGV[4] updatedAt, ARGV[5] ttl in ms
var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if ARGV[1] ~= '' then
  redis.call('APPEND', KEYS[2], ARGV[1])
end
if ARGV[2] ~= '' then
  redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
end
redis.call('HSET', KEYS[1], 'updatedAt', ARGV[4])
if tonumber(ARGV[5]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[5])
  if redis.call('EXISTS', KEYS[2]) == 1 then
    redis.call('PEXPIRE', KEYS[2], ARGV[5])
  end
end
return 1
`)

// Redis is a Store backed by a redis server. Each session is a hash plus a
// string key holding the accumulated text, which grows with APPEND. Both keys
// expire after the retention window unless touched.
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

var (
	// WithKeyPrefix sets the prefix of every key the store writes.
	WithKeyPrefix = opts.ForName[Redis, string]("prefix")
	// WithKeyRetention sets how long an untouched session stays resumable.
	WithKeyRetention = opts.ForName[Redis, time.Duration]("retention")
)

// NewRedis creates a store using client.
func NewRedis(client redis.UniversalClient, options ...opts.Option[Redis]) (*Redis, error) {
	if client == nil {
		return nil, errors.New("store: redis client is required")
	}
	r := &Redis{
		client:    client,
		prefix:    defaultKeyPrefix,
		retention: DefaultRetention,
	}
	if err := opts.Apply(r, options); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Redis) sessionKey(id string) string { return r.prefix + id }
func (r *Redis) textKey(id string) string    { return r.prefix + id + ":text" }

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (r *Redis) Create(ctx context.Context, session *Session) error {
	key := r.sessionKey(session.ID)
	now := formatTime(time.Now())

	created, err := r.client.HSetNX(ctx, key, fieldCreatedAt, now).Result()
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	if !created {
		return ErrExists
	}

	msgs, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("store: encode messages: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldMessages, string(msgs),
			fieldModel, session.Model,
			fieldAuthToken, session.AuthToken,
			fieldUpdatedAt, now,
		)
		pipe.Set(ctx, r.textKey(session.ID), session.Text, r.retention)
		if r.retention > 0 {
			pipe.PExpire(ctx, key, r.retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (*Session, error) {
	var (
		fields *redis.MapStringStringCmd
		text   *redis.StringCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, r.sessionKey(id))
		text = pipe.Get(ctx, r.textKey(id))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("store: get session: %w", err)
	}

	values := fields.Val()
	if len(values) == 0 {
		return nil, ErrNotFound
	}

	session := &Session{
		ID:        id,
		Model:     values[fieldModel],
		Text:      text.Val(),
		AuthToken: values[fieldAuthToken],
	}
	if raw := values[fieldMessages]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &session.Messages); err != nil {
			return nil, fmt.Errorf("store: decode messages: %w", err)
		}
	}
	if session.CreatedAt, err = time.Parse(time.RFC3339Nano, values[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("store: decode createdAt: %w", err)
	}
	if session.UpdatedAt, err = time.Parse(time.RFC3339Nano, values[fieldUpdatedAt]); err != nil {
		return nil, fmt.Errorf("store: decode updatedAt: %w", err)
	}
	return session, nil
}

func (r *Redis) touch(ctx context.Context, id, text, field, value string) error {
	ok, err := touchScript.Run(ctx, r.client,
		[]string{r.sessionKey(id), r.textKey(id)},
		text, field, value, formatTime(time.Now()), r.retention.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	if ok == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) Append(ctx context.Context, id, text string) error {
	return r.touch(ctx, id, text, "", "")
}

func (r *Redis) SetModel(ctx context.Context, id, model string) error {
	return r.touch(ctx, id, "", fieldModel, model)
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.sessionKey(id), r.textKey(id)).Err(); err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	return nil
}

