package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"team-quiz-service/internal/app"
)

// Archive stores the session's durable state as one JSON value in Redis, so
// a restarted server resumes the running session instead of losing it.
type Archive struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewArchive builds an archive under the given session key. A zero ttl keeps
// the archived state until the next reset overwrites it.
func NewArchive(client *redis.Client, sessionKey string, ttl time.Duration) *Archive {
	return &Archive{client: client, key: "session:" + sessionKey + ":archive", ttl: ttl}
}

func (a *Archive) Save(ctx context.Context, state app.ArchivedState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal archived state: %w", err)
	}
	if err := a.client.Set(ctx, a.key, raw, a.ttl).Err(); err != nil {
		return fmt.Errorf("store archived state: %w", err)
	}
	return nil
}

func (a *Archive) Load(ctx context.Context) (app.ArchivedState, bool, error) {
	raw, err := a.client.Get(ctx, a.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return app.ArchivedState{}, false, nil
	}
	if err != nil {
		return app.ArchivedState{}, false, fmt.Errorf("fetch archived state: %w", err)
	}
	var state app.ArchivedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return app.ArchivedState{}, false, fmt.Errorf("decode archived state: %w", err)
	}
	return state, true, nil
}
