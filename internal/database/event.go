package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

// EventStore persists the lobby activity journal.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// InsertEvents writes a batch in a single transaction.
func (s *EventStore) InsertEvents(ctx context.Context, events []models.LobbyEvent) error {
	if len(events) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, ev := range events {
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("marshal payload: %w", err)
			}
			if ev.Payload == nil {
				payload = []byte("{}")
			}
			batch.Queue(`
				INSERT INTO lobby_events (lobby_id, type, actor_id, payload, created_at)
				VALUES ($1, $2, NULLIF($3, ''), $4, $5)
			`, ev.LobbyID, string(ev.Type), ev.ActorID, payload, time.UnixMilli(ev.Timestamp))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return wrapErr("insert events", err)
}

// EventsFor returns a lobby's journal in chronological order.
func (s *EventStore) EventsFor(ctx context.Context, lobbyID string) ([]models.LobbyEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT lobby_id, type, COALESCE(actor_id, ''), payload, created_at
		FROM lobby_events
		WHERE lobby_id = $1
		ORDER BY created_at, id
	`, lobbyID)
	if err != nil {
		return nil, wrapErr("list events", err)
	}
	defer rows.Close()

	var events []models.LobbyEvent
	for rows.Next() {
		var (
			ev  models.LobbyEvent
			typ string
			raw []byte
			at  time.Time
		)
		if err := rows.Scan(&ev.LobbyID, &typ, &ev.ActorID, &raw, &at); err != nil {
			return nil, wrapErr("list events", err)
		}
		ev.Type = models.EventType(typ)
		ev.Timestamp = at.UnixMilli()
		if err := json.Unmarshal(raw, &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		events = append(events, ev)
	}
	return events, wrapErr("list events", rows.Err())
}
