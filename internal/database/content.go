package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

// ContentStore keeps one submitted item per (lobby, player).
type ContentStore struct {
	pool *pgxpool.Pool
}

func NewContentStore(pool *pgxpool.Pool) *ContentStore {
	return &ContentStore{pool: pool}
}

// Submit upserts the player's content; the last write wins.
func (s *ContentStore) Submit(ctx context.Context, c models.Content) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contents (lobby_id, player_id, kind, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lobby_id, player_id)
		DO UPDATE SET kind = EXCLUDED.kind, payload = EXCLUDED.payload
	`, c.LobbyID, c.PlayerID, c.Kind, c.Payload)
	return wrapErr("submit content", err)
}

// Find returns the player's content, or nil if none was submitted.
func (s *ContentStore) Find(ctx context.Context, lobbyID, playerID string) (*models.Content, error) {
	var c models.Content
	err := s.pool.QueryRow(ctx, `
		SELECT lobby_id, player_id, kind, payload, created_at
		FROM contents
		WHERE lobby_id = $1 AND player_id = $2
	`, lobbyID, playerID).Scan(&c.LobbyID, &c.PlayerID, &c.Kind, &c.Payload, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find content", err)
	}
	return &c, nil
}

// FindCurrent resolves the content shown during the lobby's current turn.
func (s *ContentStore) FindCurrent(ctx context.Context, lobby *models.Lobby) (*models.Content, error) {
	if lobby.StartedAt == nil || lobby.CurrentUserID == "" {
		return nil, nil
	}
	return s.Find(ctx, lobby.ID, lobby.CurrentUserID)
}

// CountFor counts contents belonging to current members of the lobby.
func (s *ContentStore) CountFor(ctx context.Context, lobbyID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM contents c
		JOIN lobby_players p ON p.lobby_id = c.lobby_id AND p.player_id = c.player_id
		WHERE c.lobby_id = $1
	`, lobbyID).Scan(&n)
	return n, wrapErr("count contents", err)
}

// PlayerIDs lists members that have submitted content, in join order.
func (s *ContentStore) PlayerIDs(ctx context.Context, lobbyID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.player_id
		FROM contents c
		JOIN lobby_players p ON p.lobby_id = c.lobby_id AND p.player_id = c.player_id
		WHERE c.lobby_id = $1
		ORDER BY p.created_at, c.player_id
	`, lobbyID)
	if err != nil {
		return nil, wrapErr("list content owners", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, wrapErr("list content owners", err)
}
