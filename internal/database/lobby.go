package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

const lobbyColumns = `id, host_id, guessing_time, started_at, finished_at, sequence, current_user_id, created_at`

// LobbyStore persists lobby headers and their membership rows.
type LobbyStore struct {
	pool *pgxpool.Pool
}

func NewLobbyStore(pool *pgxpool.Pool) *LobbyStore {
	return &LobbyStore{pool: pool}
}

func scanLobby(row pgx.Row) (*models.Lobby, error) {
	var (
		l       models.Lobby
		current *string
	)
	err := row.Scan(
		&l.ID,
		&l.HostID,
		&l.GuessingTime,
		&l.StartedAt,
		&l.FinishedAt,
		&l.Sequence,
		&current,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if current != nil {
		l.CurrentUserID = *current
	}
	return &l, nil
}

// CreateWithHost inserts the lobby row and the host's membership in one transaction.
func (s *LobbyStore) CreateWithHost(ctx context.Context, lobby *models.Lobby) error {
	seq := lobby.Sequence
	if seq == nil {
		seq = []string{}
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO lobbies (id, host_id, guessing_time, sequence, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, lobby.ID, lobby.HostID, lobby.GuessingTime, seq, lobby.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO lobby_players (lobby_id, player_id)
			VALUES ($1, $2)
			ON CONFLICT (lobby_id, player_id) DO NOTHING
		`, lobby.ID, lobby.HostID)
		return err
	})
	return wrapErr("create lobby", err)
}

// Get fetches a lobby by id.
func (s *LobbyStore) Get(ctx context.Context, id string) (*models.Lobby, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+lobbyColumns+` FROM lobbies WHERE id = $1`, id)
	l, err := scanLobby(row)
	if err != nil {
		return nil, wrapErr("get lobby", err)
	}
	return l, nil
}

// Delete removes a lobby together with its players and contents.
func (s *LobbyStore) Delete(ctx context.Context, id string) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM contents WHERE lobby_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM lobby_players WHERE lobby_id = $1`, id); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, `DELETE FROM lobbies WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return nil
	})
	return wrapErr("delete lobby", err)
}

func (s *LobbyStore) UpdateGuessingTime(ctx context.Context, id string, seconds int) error {
	return s.execOne(ctx, "update guessing time",
		`UPDATE lobbies SET guessing_time = $2 WHERE id = $1`, id, seconds)
}

func (s *LobbyStore) UpdateHost(ctx context.Context, id, hostID string) error {
	return s.execOne(ctx, "update host",
		`UPDATE lobbies SET host_id = $2 WHERE id = $1`, id, hostID)
}

// Start freezes the turn order. The write only applies while started_at is
// still NULL, so of two concurrent starts exactly one succeeds and the other
// gets ErrGameAlreadyStarted.
func (s *LobbyStore) Start(ctx context.Context, id string, sequence []string, at time.Time) error {
	if len(sequence) == 0 {
		return wrapErr("start lobby", models.ErrInvalidArgument)
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE lobbies
			SET sequence = $2, current_user_id = $3, started_at = $4
			WHERE id = $1 AND started_at IS NULL
		`, id, sequence, sequence[0], at)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 1 {
			return nil
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM lobbies WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return models.ErrNotFound
		}
		return models.ErrGameAlreadyStarted
	})
	return wrapErr("start lobby", err)
}

// Advance moves the turn pointer from one player to the next. It fails with
// ErrConflict if the pointer no longer sits on from.
func (s *LobbyStore) Advance(ctx context.Context, id, from, to string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE lobbies
		SET current_user_id = $3
		WHERE id = $1 AND current_user_id = $2 AND finished_at IS NULL
	`, id, from, to)
	if err != nil {
		return wrapErr("advance turn", err)
	}
	if ct.RowsAffected() == 0 {
		return wrapErr("advance turn", models.ErrConflict)
	}
	return nil
}

// MarkFinished stamps finished_at once; repeated calls are no-ops.
func (s *LobbyStore) MarkFinished(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE lobbies
		SET finished_at = $2
		WHERE id = $1 AND started_at IS NOT NULL AND finished_at IS NULL
	`, id, at)
	return wrapErr("finish lobby", err)
}

// AddPlayer inserts a membership row unless one already exists.
func (s *LobbyStore) AddPlayer(ctx context.Context, lobbyID, playerID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lobby_players (lobby_id, player_id)
		VALUES ($1, $2)
		ON CONFLICT (lobby_id, player_id) DO NOTHING
	`, lobbyID, playerID)
	return wrapErr("add player", err)
}

func (s *LobbyStore) RemovePlayers(ctx context.Context, lobbyID string, playerIDs []string) error {
	if len(playerIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM lobby_players WHERE lobby_id = $1 AND player_id = ANY($2)`,
		lobbyID, playerIDs)
	return wrapErr("remove players", err)
}

// PlayerIDs returns member ids in join order.
func (s *LobbyStore) PlayerIDs(ctx context.Context, lobbyID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT player_id FROM lobby_players
		WHERE lobby_id = $1
		ORDER BY created_at, player_id
	`, lobbyID)
	if err != nil {
		return nil, wrapErr("list player ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, wrapErr("list player ids", err)
}

func (s *LobbyStore) SetReady(ctx context.Context, lobbyID, playerID string, ready bool) error {
	return s.execOne(ctx, "set ready",
		`UPDATE lobby_players SET is_ready = $3 WHERE lobby_id = $1 AND player_id = $2`,
		lobbyID, playerID, ready)
}

// ListPlayers returns members joined with their display names, in join order.
func (s *LobbyStore) ListPlayers(ctx context.Context, lobbyID string) ([]models.PlayerView, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.player_id, COALESCE(u.name, ''), p.is_ready, p.created_at
		FROM lobby_players p
		LEFT JOIN users u ON u.id = p.player_id
		WHERE p.lobby_id = $1
		ORDER BY p.created_at, p.player_id
	`, lobbyID)
	if err != nil {
		return nil, wrapErr("list players", err)
	}
	defer rows.Close()

	players := []models.PlayerView{}
	for rows.Next() {
		var p models.PlayerView
		if err := rows.Scan(&p.ID, &p.Name, &p.IsReady, &p.JoinedAt); err != nil {
			return nil, wrapErr("list players", err)
		}
		players = append(players, p)
	}
	return players, wrapErr("list players", rows.Err())
}

// execOne runs a single-row write and reports ErrNotFound if nothing matched.
func (s *LobbyStore) execOne(ctx context.Context, op, q string, args ...any) error {
	ct, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return wrapErr(op, err)
	}
	if ct.RowsAffected() == 0 {
		return wrapErr(op, models.ErrNotFound)
	}
	return nil
}
