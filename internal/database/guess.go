package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

// GuessStore records per-round guesses on the guesser's membership row.
type GuessStore struct {
	pool *pgxpool.Pool
}

func NewGuessStore(pool *pgxpool.Pool) *GuessStore {
	return &GuessStore{pool: pool}
}

// RecordGuess sets the guess at round, padding earlier rounds if needed. The
// row is locked for the read-modify-write so concurrent guesses by the same
// player do not drop each other.
func (s *GuessStore) RecordGuess(ctx context.Context, lobbyID, guesserID string, round int, guessedID string) error {
	if round < 0 || round >= models.MaxRounds {
		return wrapErr("record guess", models.ErrInvalidArgument)
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var current []string
		err := tx.QueryRow(ctx, `
			SELECT guesses FROM lobby_players
			WHERE lobby_id = $1 AND player_id = $2
			FOR UPDATE
		`, lobbyID, guesserID).Scan(&current)
		if err != nil {
			return err
		}
		next := models.Guesses(current).Set(round, guessedID)
		_, err = tx.Exec(ctx, `
			UPDATE lobby_players SET guesses = $3
			WHERE lobby_id = $1 AND player_id = $2
		`, lobbyID, guesserID, []string(next))
		return err
	})
	return wrapErr("record guess", err)
}

// GuessesFor returns the player's guesses; empty if none or not a member.
func (s *GuessStore) GuessesFor(ctx context.Context, lobbyID, playerID string) (models.Guesses, error) {
	var guesses []string
	err := s.pool.QueryRow(ctx, `
		SELECT guesses FROM lobby_players
		WHERE lobby_id = $1 AND player_id = $2
	`, lobbyID, playerID).Scan(&guesses)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Guesses{}, nil
	}
	if err != nil {
		return nil, wrapErr("get guesses", err)
	}
	if guesses == nil {
		guesses = []string{}
	}
	return models.Guesses(guesses), nil
}
