package lobby

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

type memMember struct {
	id       string
	ready    bool
	guesses  models.Guesses
	joinedAt time.Time
}

// memStore implements LobbyStore, ContentRegistry and GuessLedger in memory
// with the same conditional-write semantics as the postgres stores.
type memStore struct {
	mu       sync.Mutex
	lobbies  map[string]*models.Lobby
	members  map[string][]*memMember
	contents map[string]map[string]models.Content
	seq      int

	// createConflicts makes the next n CreateWithHost calls report a taken id.
	createConflicts int
	failStart       error
	failGet         error
}

func newMemStore() *memStore {
	return &memStore{
		lobbies:  make(map[string]*models.Lobby),
		members:  make(map[string][]*memMember),
		contents: make(map[string]map[string]models.Content),
	}
}

func copyLobby(l *models.Lobby) *models.Lobby {
	c := *l
	c.Sequence = slices.Clone(l.Sequence)
	return &c
}

func (m *memStore) tick() time.Time {
	m.seq++
	return time.Unix(0, 0).Add(time.Duration(m.seq) * time.Millisecond)
}

func (m *memStore) member(lobbyID, playerID string) *memMember {
	for _, p := range m.members[lobbyID] {
		if p.id == playerID {
			return p
		}
	}
	return nil
}

func (m *memStore) CreateWithHost(_ context.Context, lobby *models.Lobby) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createConflicts > 0 {
		m.createConflicts--
		return fmt.Errorf("create lobby: %w", models.ErrConflict)
	}
	if _, ok := m.lobbies[lobby.ID]; ok {
		return fmt.Errorf("create lobby: %w", models.ErrConflict)
	}
	m.lobbies[lobby.ID] = copyLobby(lobby)
	m.members[lobby.ID] = []*memMember{{id: lobby.HostID, joinedAt: m.tick()}}
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*models.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	l, ok := m.lobbies[id]
	if !ok {
		return nil, fmt.Errorf("get lobby %s: %w", id, models.ErrNotFound)
	}
	return copyLobby(l), nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lobbies[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.lobbies, id)
	delete(m.members, id)
	delete(m.contents, id)
	return nil
}

func (m *memStore) update(id string, fn func(l *models.Lobby) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[id]
	if !ok {
		return models.ErrNotFound
	}
	return fn(l)
}

func (m *memStore) UpdateGuessingTime(_ context.Context, id string, seconds int) error {
	return m.update(id, func(l *models.Lobby) error {
		l.GuessingTime = seconds
		return nil
	})
}

func (m *memStore) UpdateHost(_ context.Context, id, hostID string) error {
	return m.update(id, func(l *models.Lobby) error {
		l.HostID = hostID
		return nil
	})
}

func (m *memStore) Start(_ context.Context, id string, sequence []string, at time.Time) error {
	return m.update(id, func(l *models.Lobby) error {
		if m.failStart != nil {
			return m.failStart
		}
		if l.StartedAt != nil {
			return models.ErrGameAlreadyStarted
		}
		l.Sequence = slices.Clone(sequence)
		l.CurrentUserID = sequence[0]
		l.StartedAt = &at
		return nil
	})
}

func (m *memStore) Advance(_ context.Context, id, from, to string) error {
	return m.update(id, func(l *models.Lobby) error {
		if l.CurrentUserID != from || l.FinishedAt != nil {
			return models.ErrConflict
		}
		l.CurrentUserID = to
		return nil
	})
}

func (m *memStore) MarkFinished(_ context.Context, id string, at time.Time) error {
	return m.update(id, func(l *models.Lobby) error {
		if l.FinishedAt == nil {
			l.FinishedAt = &at
		}
		return nil
	})
}

func (m *memStore) AddPlayer(_ context.Context, lobbyID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lobbies[lobbyID]; !ok {
		return models.ErrNotFound
	}
	if m.member(lobbyID, playerID) != nil {
		return nil
	}
	m.members[lobbyID] = append(m.members[lobbyID], &memMember{id: playerID, joinedAt: m.tick()})
	return nil
}

func (m *memStore) RemovePlayers(_ context.Context, lobbyID string, playerIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[lobbyID] = slices.DeleteFunc(m.members[lobbyID], func(p *memMember) bool {
		return slices.Contains(playerIDs, p.id)
	})
	return nil
}

func (m *memStore) PlayerIDs(_ context.Context, lobbyID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.members[lobbyID]))
	for _, p := range m.members[lobbyID] {
		ids = append(ids, p.id)
	}
	return ids, nil
}

func (m *memStore) SetReady(_ context.Context, lobbyID, playerID string, ready bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.member(lobbyID, playerID)
	if p == nil {
		return fmt.Errorf("set ready: %w", models.ErrNotFound)
	}
	p.ready = ready
	return nil
}

func (m *memStore) ListPlayers(_ context.Context, lobbyID string) ([]models.PlayerView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PlayerView, 0, len(m.members[lobbyID]))
	for _, p := range m.members[lobbyID] {
		out = append(out, models.PlayerView{ID: p.id, Name: p.id, IsReady: p.ready, JoinedAt: p.joinedAt})
	}
	return out, nil
}

func (m *memStore) Submit(_ context.Context, c models.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lobbies[c.LobbyID]; !ok {
		return models.ErrNotFound
	}
	if m.contents[c.LobbyID] == nil {
		m.contents[c.LobbyID] = make(map[string]models.Content)
	}
	m.contents[c.LobbyID][c.PlayerID] = c
	return nil
}

func (m *memStore) Find(_ context.Context, lobbyID, playerID string) (*models.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[lobbyID][playerID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memStore) FindCurrent(ctx context.Context, lobby *models.Lobby) (*models.Content, error) {
	if lobby.CurrentUserID == "" {
		return nil, nil
	}
	return m.Find(ctx, lobby.ID, lobby.CurrentUserID)
}

// memContents is the ContentRegistry view of a memStore. Its PlayerIDs lists
// members holding content, shadowing the membership listing.
type memContents struct{ *memStore }

func (c memContents) CountFor(_ context.Context, lobbyID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.members[lobbyID] {
		if _, ok := c.contents[lobbyID][p.id]; ok {
			n++
		}
	}
	return n, nil
}

func (c memContents) PlayerIDs(_ context.Context, lobbyID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for _, p := range c.members[lobbyID] {
		if _, ok := c.contents[lobbyID][p.id]; ok {
			ids = append(ids, p.id)
		}
	}
	return ids, nil
}

func (m *memStore) RecordGuess(_ context.Context, lobbyID, guesserID string, round int, guessedID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if round < 0 || round >= models.MaxRounds {
		return models.ErrInvalidArgument
	}
	p := m.member(lobbyID, guesserID)
	if p == nil {
		return fmt.Errorf("record guess: %w", models.ErrNotFound)
	}
	p.guesses = p.guesses.Set(round, guessedID)
	return nil
}

func (m *memStore) GuessesFor(_ context.Context, lobbyID, playerID string) (models.Guesses, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.member(lobbyID, playerID)
	if p == nil || p.guesses == nil {
		return models.Guesses{}, nil
	}
	return slices.Clone(p.guesses), nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memPresence mirrors the redis TTL keys against a fake clock.
type memPresence struct {
	mu    sync.Mutex
	clock *fakeClock
	ttl   time.Duration
	seen  map[string]map[string]time.Time
	fail  error
}

func newMemPresence(clock *fakeClock) *memPresence {
	return &memPresence{clock: clock, ttl: 5 * time.Second, seen: make(map[string]map[string]time.Time)}
}

func (p *memPresence) Heartbeat(_ context.Context, lobbyID, playerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	if p.seen[lobbyID] == nil {
		p.seen[lobbyID] = make(map[string]time.Time)
	}
	p.seen[lobbyID][playerID] = p.clock.Now().Add(p.ttl)
	return nil
}

func (p *memPresence) PresentPlayerIDs(_ context.Context, lobbyID string) (models.PlayerSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	now := p.clock.Now()
	set := models.NewPlayerSet()
	for id, exp := range p.seen[lobbyID] {
		if now.Before(exp) {
			set[id] = struct{}{}
		}
	}
	return set, nil
}

func (p *memPresence) Forget(_ context.Context, lobbyID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.seen, lobbyID)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LobbyEvent
	fail   bool
}

func (r *recordingPublisher) Publish(_ context.Context, ev models.LobbyEvent) error {
	if r.fail {
		return errors.New("journal down")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
