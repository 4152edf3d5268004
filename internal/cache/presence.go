package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

// DefaultPresenceTTL is how long a heartbeat keeps a player present.
const DefaultPresenceTTL = 5 * time.Second

// Presence records short-lived liveness keys of the form
// "lobby:{lobby}|player-id:{player}". A key's expiry is the only
// disconnection signal.
type Presence struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewPresence(rdb redis.UniversalClient, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &Presence{rdb: rdb, ttl: ttl}
}

func presencePrefix(lobbyID string) string {
	return "lobby:" + lobbyID + "|player-id:"
}

// TTL returns the liveness window.
func (p *Presence) TTL() time.Duration {
	return p.ttl
}

// Heartbeat (re)sets the player's liveness key.
func (p *Presence) Heartbeat(ctx context.Context, lobbyID, playerID string) error {
	if err := p.rdb.Set(ctx, presencePrefix(lobbyID)+playerID, 1, p.ttl).Err(); err != nil {
		return fmt.Errorf("heartbeat: %w: %w", models.ErrCacheUnavailable, err)
	}
	return nil
}

// PresentPlayerIDs returns the players whose key has not expired. The result is
// a snapshot and may race with concurrent heartbeats.
func (p *Presence) PresentPlayerIDs(ctx context.Context, lobbyID string) (models.PlayerSet, error) {
	prefix := presencePrefix(lobbyID)
	present := models.PlayerSet{}

	iter := p.rdb.Scan(ctx, 0, escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		present[strings.TrimPrefix(iter.Val(), prefix)] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("present players: %w: %w", models.ErrCacheUnavailable, err)
	}
	return present, nil
}

// Forget drops every liveness key of a lobby.
func (p *Presence) Forget(ctx context.Context, lobbyID string) error {
	present, err := p.PresentPlayerIDs(ctx, lobbyID)
	if err != nil {
		return err
	}
	if len(present) == 0 {
		return nil
	}
	keys := make([]string, 0, len(present))
	for id := range present {
		keys = append(keys, presencePrefix(lobbyID)+id)
	}
	if err := p.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("forget presence: %w: %w", models.ErrCacheUnavailable, err)
	}
	return nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
