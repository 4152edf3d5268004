package lobby

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

type harness struct {
	svc      *Service
	store    *memStore
	presence *memPresence
	clock    *fakeClock
	events   *recordingPublisher
	logs     *test.Hook
}

func newHarness(t *testing.T, policy HostPolicy) *harness {
	t.Helper()
	clock := newFakeClock()
	store := newMemStore()
	presence := newMemPresence(clock)
	events := &recordingPublisher{}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	svc := NewService(store, memContents{store}, store, presence, Options{
		HostPolicy: policy,
		Rand:       rand.New(rand.NewPCG(1, 2)),
		Now:        clock.Now,
		Logger:     logger,
		Events:     events,
	})
	return &harness{svc: svc, store: store, presence: presence, clock: clock, events: events, logs: hook}
}

// readyLobby creates a lobby hosted by "h" with members p1, p2 and content for all.
func (h *harness) readyLobby(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	l, err := h.svc.CreateLobby(ctx, "h")
	require.NoError(t, err)
	for _, p := range []string{"p1", "p2"} {
		_, err := h.svc.JoinLobby(ctx, l.ID, p)
		require.NoError(t, err)
	}
	for _, p := range []string{"h", "p1", "p2"} {
		_, err := h.svc.SetContent(ctx, l.ID, p, models.ContentKindURL, "https://example.com/"+p)
		require.NoError(t, err)
	}
	return l.ID
}

func TestCreateLobbyIncludesHost(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()

	l, err := h.svc.CreateLobby(ctx, "h")
	require.NoError(t, err)
	assert.Len(t, l.ID, DefaultIDLength)
	assert.Equal(t, "h", l.HostID)
	assert.Equal(t, DefaultGuessingTime, l.GuessingTime)
	assert.Equal(t, models.PhaseForming, l.Phase())

	ids, err := h.store.PlayerIDs(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"h"}, ids)

	present, err := h.presence.PresentPlayerIDs(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, present.Has("h"))

	assert.Equal(t, []models.EventType{models.EventCreated}, h.events.types())
}

func TestCreateLobbyRetriesTakenIDs(t *testing.T) {
	h := newHarness(t, HostKeep)
	h.store.createConflicts = 2

	l, err := h.svc.CreateLobby(context.Background(), "h")
	require.NoError(t, err)
	assert.NotEmpty(t, l.ID)

	h.store.createConflicts = maxIDAttempts
	_, err = h.svc.CreateLobby(context.Background(), "h")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestCreateLobbyRejectsEmptyHost(t *testing.T) {
	h := newHarness(t, HostKeep)
	_, err := h.svc.CreateLobby(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestJoinLobbyIsIdempotent(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	l, err := h.svc.CreateLobby(ctx, "h")
	require.NoError(t, err)

	for range 3 {
		_, err := h.svc.JoinLobby(ctx, l.ID, "p1")
		require.NoError(t, err)
	}
	ids, err := h.store.PlayerIDs(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"h", "p1"}, ids)

	_, err = h.svc.JoinLobby(ctx, "missing", "p1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestThreePlayerGame(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	id := h.readyLobby(t)

	l, err := h.svc.StartGame(ctx, id, "h")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"h", "p1", "p2"}, l.Sequence)
	assert.Equal(t, l.Sequence[0], l.CurrentUserID)
	assert.Equal(t, models.PhaseInProgress, l.Phase())
	assert.Equal(t, 0, l.RoundIndex())

	cur, err := h.svc.CurrentContent(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, l.Sequence[0], cur.PlayerID)

	require.NoError(t, h.svc.Guess(ctx, id, "p1", 0, l.Sequence[0]))

	l, err = h.svc.Forward(ctx, id, "h")
	require.NoError(t, err)
	assert.Equal(t, 1, l.RoundIndex())

	l, err = h.svc.Forward(ctx, id, "h")
	require.NoError(t, err)
	assert.Equal(t, 2, l.RoundIndex())

	_, err = h.svc.Forward(ctx, id, "h")
	assert.ErrorIs(t, err, models.ErrGameAlreadyFinished)

	stored, err := h.svc.FindLobby(ctx, id, "h")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFinished, stored.Phase())

	// a second forward past the end does not re-emit the finish event
	_, err = h.svc.Forward(ctx, id, "h")
	assert.ErrorIs(t, err, models.ErrGameAlreadyFinished)

	finished := 0
	for _, typ := range h.events.types() {
		if typ == models.EventFinished {
			finished++
		}
	}
	assert.Equal(t, 1, finished)
}

func TestStartGameGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("non host", func(t *testing.T) {
		h := newHarness(t, HostKeep)
		id := h.readyLobby(t)
		_, err := h.svc.StartGame(ctx, id, "p1")
		assert.ErrorIs(t, err, models.ErrUnauthorized)

		l, err := h.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.PhaseForming, l.Phase())
	})

	t.Run("not enough players", func(t *testing.T) {
		h := newHarness(t, HostKeep)
		l, err := h.svc.CreateLobby(ctx, "h")
		require.NoError(t, err)
		_, err = h.svc.JoinLobby(ctx, l.ID, "p1")
		require.NoError(t, err)
		for _, p := range []string{"h", "p1"} {
			_, err := h.svc.SetContent(ctx, l.ID, p, models.ContentKindURL, "u")
			require.NoError(t, err)
		}
		_, err = h.svc.StartGame(ctx, l.ID, "h")
		assert.ErrorIs(t, err, models.ErrNotEnoughPlayers)
	})

	t.Run("too many players", func(t *testing.T) {
		h := newHarness(t, HostKeep)
		id := h.readyLobby(t)
		for i := range models.MaxRounds {
			_, err := h.svc.JoinLobby(ctx, id, fmt.Sprintf("extra%d", i))
			require.NoError(t, err)
		}
		_, err := h.svc.StartGame(ctx, id, "h")
		assert.ErrorIs(t, err, models.ErrInvalidArgument)
	})

	t.Run("missing content", func(t *testing.T) {
		h := newHarness(t, HostKeep)
		id := h.readyLobby(t)
		_, err := h.svc.JoinLobby(ctx, id, "p3")
		require.NoError(t, err)
		_, err = h.svc.StartGame(ctx, id, "h")
		assert.ErrorIs(t, err, models.ErrNotEveryoneHasContent)
	})

	t.Run("already started", func(t *testing.T) {
		h := newHarness(t, HostKeep)
		id := h.readyLobby(t)
		_, err := h.svc.StartGame(ctx, id, "h")
		require.NoError(t, err)
		_, err = h.svc.StartGame(ctx, id, "h")
		assert.ErrorIs(t, err, models.ErrGameAlreadyStarted)
	})

	t.Run("store failure leaves lobby forming", func(t *testing.T) {
		h := newHarness(t, HostKeep)
		id := h.readyLobby(t)
		h.store.failStart = models.ErrStorageUnavailable

		_, err := h.svc.StartGame(ctx, id, "h")
		assert.ErrorIs(t, err, models.ErrStorageUnavailable)

		l, err := h.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.PhaseForming, l.Phase())
		assert.Empty(t, l.Sequence)
		assert.Empty(t, l.CurrentUserID)
	})
}

func TestStartGameConcurrentSingleWinner(t *testing.T) {
	h := newHarness(t, HostKeep)
	id := h.readyLobby(t)

	const n = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.StartGame(context.Background(), id, "h")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, models.ErrGameAlreadyStarted)
	}
	assert.Equal(t, 1, wins)
}

func TestLateContentStaysOutOfSequence(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	id := h.readyLobby(t)

	started, err := h.svc.StartGame(ctx, id, "h")
	require.NoError(t, err)

	_, err = h.svc.JoinLobby(ctx, id, "late")
	require.NoError(t, err)
	c, err := h.svc.SetContent(ctx, id, "late", models.ContentKindURL, "u")
	require.NoError(t, err)
	assert.Equal(t, "late", c.PlayerID)

	l, err := h.svc.FindLobby(ctx, id, "late")
	require.NoError(t, err)
	assert.Equal(t, started.Sequence, l.Sequence)
	assert.NotContains(t, l.Sequence, "late")
}

func TestForwardGuards(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	id := h.readyLobby(t)

	_, err := h.svc.Forward(ctx, id, "h")
	assert.ErrorIs(t, err, models.ErrGameNotStarted)

	_, err = h.svc.StartGame(ctx, id, "h")
	require.NoError(t, err)

	_, err = h.svc.Forward(ctx, id, "p1")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = h.svc.Forward(ctx, "missing", "h")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGuessesAreSparse(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	id := h.readyLobby(t)

	g, err := h.svc.GuessesFor(ctx, id, "p1")
	require.NoError(t, err)
	assert.Empty(t, g)

	require.NoError(t, h.svc.Guess(ctx, id, "p1", 2, "h"))
	g, err = h.svc.GuessesFor(ctx, id, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.Guesses{"", "", "h"}, g)

	require.NoError(t, h.svc.Guess(ctx, id, "p1", 2, "p2"))
	g, err = h.svc.GuessesFor(ctx, id, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p2", g.At(2))

	assert.ErrorIs(t, h.svc.Guess(ctx, id, "p1", -1, "h"), models.ErrInvalidArgument)
	assert.ErrorIs(t, h.svc.Guess(ctx, id, "p1", 0, ""), models.ErrInvalidArgument)
	assert.ErrorIs(t, h.svc.Guess(ctx, id, "stranger", 0, "h"), models.ErrNotFound)
}

func TestGuessRejectsRoundsPastTheLimit(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	id := h.readyLobby(t)

	for _, round := range []int{models.MaxRounds, 50_000_000, math.MaxInt} {
		assert.ErrorIs(t, h.svc.Guess(ctx, id, "p1", round, "h"), models.ErrInvalidArgument, "round %d", round)
	}
	g, err := h.svc.GuessesFor(ctx, id, "p1")
	require.NoError(t, err)
	assert.Empty(t, g)

	require.NoError(t, h.svc.Guess(ctx, id, "p1", models.MaxRounds-1, "h"))
	g, err = h.svc.GuessesFor(ctx, id, "p1")
	require.NoError(t, err)
	assert.Len(t, g, models.MaxRounds)
}

func TestPlayerActionsRefreshPresence(t *testing.T) {
	ctx := context.Background()

	actions := map[string]func(h *harness, id string) error{
		"set ready": func(h *harness, id string) error {
			return h.svc.SetReady(ctx, id, "p1", true)
		},
		"set content": func(h *harness, id string) error {
			_, err := h.svc.SetContent(ctx, id, "p1", models.ContentKindURL, "https://example.com/new")
			return err
		},
		"guess": func(h *harness, id string) error {
			return h.svc.Guess(ctx, id, "p1", 0, "h")
		},
		"guesses": func(h *harness, id string) error {
			_, err := h.svc.GuessesFor(ctx, id, "p1")
			return err
		},
	}

	for name, act := range actions {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, HostKeep)
			id := h.readyLobby(t)

			h.clock.Advance(4 * time.Second)
			require.NoError(t, act(h, id))
			h.clock.Advance(2 * time.Second)

			_, err := h.svc.FindLobby(ctx, id, "h")
			require.NoError(t, err)

			ids, err := h.store.PlayerIDs(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, []string{"h", "p1"}, ids)
		})
	}
}

func TestHostActionsRefreshPresence(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	id := h.readyLobby(t)

	h.clock.Advance(4 * time.Second)
	_, err := h.svc.ConfigureLobby(ctx, id, "h", 30)
	require.NoError(t, err)
	_, err = h.svc.StartGame(ctx, id, "h")
	require.NoError(t, err)
	h.clock.Advance(2 * time.Second)
	_, err = h.svc.Forward(ctx, id, "h")
	require.NoError(t, err)

	present, err := h.presence.PresentPlayerIDs(ctx, id)
	require.NoError(t, err)
	assert.True(t, present.Has("h"))
	assert.False(t, present.Has("p1"))
}

func TestFindLobbyEvictsExpiredPlayers(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	id := h.readyLobby(t)

	h.clock.Advance(3 * time.Second)
	require.NoError(t, h.presence.Heartbeat(ctx, id, "p1"))
	h.clock.Advance(3 * time.Second)

	// p2 last beat six seconds ago; h is refreshed by the lookup itself
	_, err := h.svc.FindLobby(ctx, id, "h")
	require.NoError(t, err)

	ids, err := h.store.PlayerIDs(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"h", "p1"}, ids)
	assert.Contains(t, h.events.types(), models.EventEvicted)
}

func TestFindLobbyCacheFailureDoesNotEvict(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	id := h.readyLobby(t)

	h.clock.Advance(time.Minute)
	h.presence.fail = models.ErrCacheUnavailable

	_, err := h.svc.FindLobby(ctx, id, "h")
	assert.ErrorIs(t, err, models.ErrCacheUnavailable)

	ids, err := h.store.PlayerIDs(ctx, id)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestHostPolicies(t *testing.T) {
	ctx := context.Background()

	// expireHost lets every heartbeat lapse, then refreshes p1 and p2 so only
	// the host is gone.
	expireHost := func(t *testing.T, h *harness, id string) {
		t.Helper()
		h.clock.Advance(6 * time.Second)
		require.NoError(t, h.presence.Heartbeat(ctx, id, "p1"))
		require.NoError(t, h.presence.Heartbeat(ctx, id, "p2"))
	}

	t.Run("keep", func(t *testing.T) {
		h := newHarness(t, HostKeep)
		id := h.readyLobby(t)
		expireHost(t, h, id)

		view, err := h.svc.View(ctx, id, "p1")
		require.NoError(t, err)
		assert.Equal(t, "h", view.HostID)
		assert.True(t, view.HostAway)
		assert.Len(t, view.Players, 2)
	})

	t.Run("delete", func(t *testing.T) {
		h := newHarness(t, HostDelete)
		id := h.readyLobby(t)
		expireHost(t, h, id)

		_, err := h.svc.FindLobby(ctx, id, "p1")
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = h.store.Get(ctx, id)
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.Contains(t, h.events.types(), models.EventDeleted)

		present, err := h.presence.PresentPlayerIDs(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, present)
	})

	t.Run("reassign", func(t *testing.T) {
		h := newHarness(t, HostReassign)
		id := h.readyLobby(t)
		expireHost(t, h, id)

		l, err := h.svc.FindLobby(ctx, id, "p2")
		require.NoError(t, err)
		assert.Equal(t, "p1", l.HostID)

		stored, err := h.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "p1", stored.HostID)
		assert.Contains(t, h.events.types(), models.EventHostChanged)

		_, err = h.svc.StartGame(ctx, id, "p1")
		assert.ErrorIs(t, err, models.ErrNotEnoughPlayers)
	})

	t.Run("freeze", func(t *testing.T) {
		h := newHarness(t, HostFreeze)
		id := h.readyLobby(t)
		expireHost(t, h, id)

		view, err := h.svc.View(ctx, id, "p1")
		require.NoError(t, err)
		assert.True(t, view.HostAway)

		_, err = h.svc.JoinLobby(ctx, id, "p3")
		assert.ErrorIs(t, err, models.ErrLobbyFrozen)
		assert.ErrorIs(t, h.svc.SetReady(ctx, id, "p1", true), models.ErrLobbyFrozen)
		_, err = h.svc.SetContent(ctx, id, "p1", models.ContentKindURL, "u")
		assert.ErrorIs(t, err, models.ErrLobbyFrozen)
		assert.ErrorIs(t, h.svc.Guess(ctx, id, "p1", 0, "h"), models.ErrLobbyFrozen)

		// the host coming back thaws the lobby
		_, err = h.svc.FindLobby(ctx, id, "h")
		require.NoError(t, err)
		assert.NoError(t, h.svc.SetReady(ctx, id, "p1", true))
	})
}

func TestConfigureLobby(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	id := h.readyLobby(t)

	l, err := h.svc.ConfigureLobby(ctx, id, "h", 30)
	require.NoError(t, err)
	assert.Equal(t, 30, l.GuessingTime)

	stored, err := h.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 30, stored.GuessingTime)

	_, err = h.svc.ConfigureLobby(ctx, id, "p1", 30)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	for _, bad := range []int{0, -5, MaxGuessingTime + 1} {
		_, err = h.svc.ConfigureLobby(ctx, id, "h", bad)
		assert.ErrorIs(t, err, models.ErrInvalidArgument, "guessing time %d", bad)
	}

	_, err = h.svc.StartGame(ctx, id, "h")
	require.NoError(t, err)
	_, err = h.svc.ConfigureLobby(ctx, id, "h", 45)
	assert.NoError(t, err)
}

func TestSetReady(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	id := h.readyLobby(t)

	require.NoError(t, h.svc.SetReady(ctx, id, "p1", true))
	players, err := h.svc.ListPlayers(ctx, id)
	require.NoError(t, err)
	require.Len(t, players, 3)
	assert.Equal(t, "p1", players[1].ID)
	assert.True(t, players[1].IsReady)
	assert.False(t, players[0].IsReady)

	assert.ErrorIs(t, h.svc.SetReady(ctx, id, "stranger", true), models.ErrNotFound)
}

func TestSetContentValidates(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	id := h.readyLobby(t)

	_, err := h.svc.SetContent(ctx, id, "p1", "", "u")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = h.svc.SetContent(ctx, id, "p1", models.ContentKindURL, "")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	c, err := h.svc.SetContent(ctx, id, "p1", models.ContentKindURL, "https://example.com/new")
	require.NoError(t, err)
	found, err := h.store.Find(ctx, id, "p1")
	require.NoError(t, err)
	assert.Equal(t, c.Payload, found.Payload)
}

func TestViewComposition(t *testing.T) {
	h := newHarness(t, HostKeep)
	ctx := context.Background()
	id := h.readyLobby(t)

	view, err := h.svc.View(ctx, id, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseForming, view.Phase)
	assert.Nil(t, view.RoundIndex)
	assert.Nil(t, view.CurrentContent)
	require.NotNil(t, view.Content)
	assert.Equal(t, "https://example.com/p1", view.Content.Payload)
	assert.False(t, view.HostAway)

	_, err = h.svc.StartGame(ctx, id, "h")
	require.NoError(t, err)
	require.NoError(t, h.svc.Guess(ctx, id, "p1", 0, "p2"))

	view, err = h.svc.View(ctx, id, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseInProgress, view.Phase)
	require.NotNil(t, view.RoundIndex)
	assert.Equal(t, 0, *view.RoundIndex)
	require.NotNil(t, view.CurrentContent)
	assert.Equal(t, view.Sequence[0], view.CurrentContent.PlayerID)
	assert.Equal(t, models.Guesses{"p2"}, view.Guesses)
}

func TestPublishFailureIsLogged(t *testing.T) {
	h := newHarness(t, HostKeep)
	h.events.fail = true

	_, err := h.svc.CreateLobby(context.Background(), "h")
	require.NoError(t, err)

	var warned bool
	for _, e := range h.logs.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "failed to publish lobby event" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestStorageErrorsPassThrough(t *testing.T) {
	h := newHarness(t, HostKeep)
	h.store.failGet = errors.Join(models.ErrStorageUnavailable, errors.New("connection refused"))

	_, err := h.svc.FindLobby(context.Background(), "any", "h")
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.True(t, models.IsRetryable(err))
}

func TestGenerateID(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 7))
	seen := make(map[string]bool)
	for range 100 {
		id := GenerateID(r, DefaultIDLength)
		assert.Len(t, id, DefaultIDLength)
		assert.Regexp(t, `^[A-Za-z0-9]+$`, id)
		seen[id] = true
	}
	assert.Len(t, seen, 100)

	a := GenerateID(rand.New(rand.NewPCG(1, 1)), 12)
	b := GenerateID(rand.New(rand.NewPCG(1, 1)), 12)
	assert.Equal(t, a, b)
}

func TestParseHostPolicy(t *testing.T) {
	cases := map[string]HostPolicy{
		"":         HostKeep,
		"keep":     HostKeep,
		" Delete ": HostDelete,
		"REASSIGN": HostReassign,
		"freeze":   HostFreeze,
	}
	for in, want := range cases {
		got, err := ParseHostPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseHostPolicy("vote")
	assert.Error(t, err)
}
