// internal/lobby/service.go
package lobby

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grooveguessr/grooveguessr/internal/models"
)

const (
	// DefaultGuessingTime is the seconds per round a new lobby starts with.
	DefaultGuessingTime = 80
	// DefaultMinPlayers is the member count StartGame requires unless overridden.
	DefaultMinPlayers = 3
	// MaxGuessingTime caps ConfigureLobby.
	MaxGuessingTime = 3600

	// maxIDAttempts bounds retries when a generated lobby id is already taken.
	maxIDAttempts = 5
)

// Options tune a Service. Zero values fall back to the defaults above.
type Options struct {
	GuessingTime int
	MinPlayers   int
	IDLength     int
	HostPolicy   HostPolicy

	// Rand drives lobby ids and turn order shuffles.
	Rand   *rand.Rand
	Now    func() time.Time
	Logger logrus.FieldLogger
	Events EventPublisher
}

// Service is the lobby orchestrator. It holds no lobby state of its own and
// is safe for concurrent use; every call reads and writes through the stores.
type Service struct {
	lobbies  LobbyStore
	contents ContentRegistry
	guesses  GuessLedger
	presence PresenceTracker
	events   EventPublisher
	log      logrus.FieldLogger

	guessingTime int
	minPlayers   int
	idLength     int
	policy       HostPolicy
	now          func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewService(lobbies LobbyStore, contents ContentRegistry, guesses GuessLedger, presence PresenceTracker, opts Options) *Service {
	s := &Service{
		lobbies:      lobbies,
		contents:     contents,
		guesses:      guesses,
		presence:     presence,
		events:       opts.Events,
		log:          opts.Logger,
		guessingTime: opts.GuessingTime,
		minPlayers:   opts.MinPlayers,
		idLength:     opts.IDLength,
		policy:       opts.HostPolicy,
		now:          opts.Now,
		rng:          opts.Rand,
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.guessingTime <= 0 {
		s.guessingTime = DefaultGuessingTime
	}
	if s.minPlayers <= 0 {
		s.minPlayers = DefaultMinPlayers
	}
	if s.idLength <= 0 {
		s.idLength = DefaultIDLength
	}
	if s.policy == "" {
		s.policy = HostKeep
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// HostPolicy returns the configured host-departure policy.
func (s *Service) HostPolicy() HostPolicy {
	return s.policy
}

func (s *Service) newLobbyID() string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return GenerateID(s.rng, s.idLength)
}

func (s *Service) shuffle(ids []string) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

// CreateLobby creates a lobby owned by hostID. The host's membership row is
// written in the same transaction as the lobby, then the host heartbeats.
func (s *Service) CreateLobby(ctx context.Context, hostID string) (*models.Lobby, error) {
	if hostID == "" {
		return nil, fmt.Errorf("create lobby: %w: empty host id", models.ErrInvalidArgument)
	}

	var lobby *models.Lobby
	for attempt := 1; ; attempt++ {
		lobby = &models.Lobby{
			ID:           s.newLobbyID(),
			HostID:       hostID,
			GuessingTime: s.guessingTime,
			Sequence:     []string{},
			CreatedAt:    s.now().UTC(),
		}
		err := s.lobbies.CreateWithHost(ctx, lobby)
		if err == nil {
			break
		}
		if errors.Is(err, models.ErrConflict) && attempt < maxIDAttempts {
			s.log.WithField("lobby", lobby.ID).Debug("lobby id taken, regenerating")
			continue
		}
		return nil, err
	}

	if err := s.presence.Heartbeat(ctx, lobby.ID, hostID); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"lobby": lobby.ID, "host": hostID}).Info("lobby created")
	s.publish(ctx, lobby.ID, models.EventCreated, hostID, nil)
	return lobby, nil
}

// FindLobby loads a lobby on behalf of callerID. As side effects it refreshes
// the caller's presence, evicts members whose presence expired and applies the
// host policy if the host is gone. Eviction only ever happens here, so a lobby
// nobody looks at keeps stale members until the next lookup.
func (s *Service) FindLobby(ctx context.Context, id, callerID string) (*models.Lobby, error) {
	lobby, _, err := s.sync(ctx, id, callerID)
	return lobby, err
}

func (s *Service) sync(ctx context.Context, id, callerID string) (*models.Lobby, models.PlayerSet, error) {
	lobby, err := s.lobbies.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if err := s.touch(ctx, id, callerID); err != nil {
		return nil, nil, err
	}

	// Without a presence snapshot every member would look disconnected, so a
	// cache failure fails the lookup instead of evicting.
	present, err := s.presence.PresentPlayerIDs(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if err := s.evictAbsent(ctx, lobby, present); err != nil {
		return nil, nil, err
	}

	if !present.Has(lobby.HostID) {
		lobby, err = s.applyHostPolicy(ctx, lobby, present)
		if err != nil {
			return nil, nil, err
		}
	}
	return lobby, present, nil
}

// touch refreshes the caller's presence. Operations acting for a player call
// it right after loading the lobby.
func (s *Service) touch(ctx context.Context, id, callerID string) error {
	if callerID == "" {
		return nil
	}
	return s.presence.Heartbeat(ctx, id, callerID)
}

func (s *Service) evictAbsent(ctx context.Context, lobby *models.Lobby, present models.PlayerSet) error {
	members, err := s.lobbies.PlayerIDs(ctx, lobby.ID)
	if err != nil {
		return err
	}

	var gone []string
	for _, id := range members {
		if !present.Has(id) {
			gone = append(gone, id)
		}
	}
	if len(gone) == 0 {
		return nil
	}

	if err := s.lobbies.RemovePlayers(ctx, lobby.ID, gone); err != nil {
		return err
	}
	for _, id := range gone {
		s.log.WithFields(logrus.Fields{"lobby": lobby.ID, "player": id}).Info("evicted disconnected player")
		s.publish(ctx, lobby.ID, models.EventEvicted, id, nil)
	}
	return nil
}

func (s *Service) applyHostPolicy(ctx context.Context, lobby *models.Lobby, present models.PlayerSet) (*models.Lobby, error) {
	fields := logrus.Fields{"lobby": lobby.ID, "host": lobby.HostID, "policy": s.policy}

	switch s.policy {
	case HostDelete:
		if err := s.lobbies.Delete(ctx, lobby.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		if err := s.presence.Forget(ctx, lobby.ID); err != nil {
			s.log.WithError(err).WithFields(fields).Warn("failed to drop presence of deleted lobby")
		}
		s.log.WithFields(fields).Info("host left, lobby deleted")
		s.publish(ctx, lobby.ID, models.EventDeleted, lobby.HostID, nil)
		return nil, fmt.Errorf("lobby %s closed after host left: %w", lobby.ID, models.ErrNotFound)

	case HostReassign:
		members, err := s.lobbies.PlayerIDs(ctx, lobby.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range members {
			if !present.Has(id) {
				continue
			}
			if err := s.lobbies.UpdateHost(ctx, lobby.ID, id); err != nil {
				return nil, err
			}
			s.log.WithFields(fields).WithField("new_host", id).Info("host left, lobby reassigned")
			s.publish(ctx, lobby.ID, models.EventHostChanged, id, map[string]any{"previous": lobby.HostID})
			lobby.HostID = id
			break
		}
		return lobby, nil

	default:
		// keep and freeze leave the stored lobby as is; freeze is enforced
		// per operation by checkNotFrozen.
		s.log.WithFields(fields).Debug("host not present")
		return lobby, nil
	}
}

// checkNotFrozen refuses player actions while the host is away under HostFreeze.
func (s *Service) checkNotFrozen(ctx context.Context, lobby *models.Lobby, callerID string) error {
	if s.policy != HostFreeze || lobby.IsHost(callerID) {
		return nil
	}
	present, err := s.presence.PresentPlayerIDs(ctx, lobby.ID)
	if err != nil {
		return err
	}
	if !present.Has(lobby.HostID) {
		return fmt.Errorf("lobby %s: %w", lobby.ID, models.ErrLobbyFrozen)
	}
	return nil
}

// JoinLobby adds playerID to the lobby. Joining twice is a no-op. Joining a
// started lobby is allowed but the frozen sequence does not change.
func (s *Service) JoinLobby(ctx context.Context, id, playerID string) (*models.Lobby, error) {
	if playerID == "" {
		return nil, fmt.Errorf("join lobby: %w: empty player id", models.ErrInvalidArgument)
	}
	lobby, err := s.lobbies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkNotFrozen(ctx, lobby, playerID); err != nil {
		return nil, err
	}
	if err := s.lobbies.AddPlayer(ctx, id, playerID); err != nil {
		return nil, err
	}
	if err := s.presence.Heartbeat(ctx, id, playerID); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"lobby": id, "player": playerID}).Debug("player joined")
	s.publish(ctx, id, models.EventJoined, playerID, nil)
	return lobby, nil
}

// ConfigureLobby sets the guessing time. Only the host may do this; it is
// allowed after the game has started.
func (s *Service) ConfigureLobby(ctx context.Context, id, callerID string, guessingTime int) (*models.Lobby, error) {
	lobby, err := s.lobbies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.touch(ctx, id, callerID); err != nil {
		return nil, err
	}
	if !lobby.IsHost(callerID) {
		return nil, fmt.Errorf("configure lobby %s: %w", id, models.ErrUnauthorized)
	}
	if guessingTime <= 0 || guessingTime > MaxGuessingTime {
		return nil, fmt.Errorf("configure lobby %s: %w: guessing time must be within 1..%d seconds",
			id, models.ErrInvalidArgument, MaxGuessingTime)
	}
	if err := s.lobbies.UpdateGuessingTime(ctx, id, guessingTime); err != nil {
		return nil, err
	}
	lobby.GuessingTime = guessingTime

	s.log.WithFields(logrus.Fields{"lobby": id, "guessing_time": guessingTime}).Info("lobby configured")
	s.publish(ctx, id, models.EventConfigured, callerID, map[string]any{"guessing_time": guessingTime})
	return lobby, nil
}

// SetReady flips the caller's readiness flag.
func (s *Service) SetReady(ctx context.Context, id, callerID string, ready bool) error {
	lobby, err := s.lobbies.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.touch(ctx, id, callerID); err != nil {
		return err
	}
	if err := s.checkNotFrozen(ctx, lobby, callerID); err != nil {
		return err
	}
	return s.lobbies.SetReady(ctx, id, callerID, ready)
}

// SetContent upserts the caller's content. Content submitted after the start
// is stored but does not enter the frozen sequence.
func (s *Service) SetContent(ctx context.Context, id, callerID, kind, payload string) (*models.Content, error) {
	if kind == "" || payload == "" {
		return nil, fmt.Errorf("set content: %w: kind and payload are required", models.ErrInvalidArgument)
	}
	lobby, err := s.lobbies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.touch(ctx, id, callerID); err != nil {
		return nil, err
	}
	if err := s.checkNotFrozen(ctx, lobby, callerID); err != nil {
		return nil, err
	}

	c := models.Content{
		LobbyID:   id,
		PlayerID:  callerID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}
	if err := s.contents.Submit(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// StartGame freezes a shuffled turn order of the members that submitted
// content. The sequence, first turn and start stamp are written by a single
// conditional update, so concurrent starts cannot both succeed.
func (s *Service) StartGame(ctx context.Context, id, callerID string) (*models.Lobby, error) {
	lobby, err := s.lobbies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.touch(ctx, id, callerID); err != nil {
		return nil, err
	}
	if !lobby.IsHost(callerID) {
		return nil, fmt.Errorf("start game %s: %w", id, models.ErrUnauthorized)
	}
	if lobby.StartedAt != nil {
		return nil, fmt.Errorf("start game %s: %w", id, models.ErrGameAlreadyStarted)
	}

	members, err := s.lobbies.PlayerIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(members) < s.minPlayers {
		return nil, fmt.Errorf("start game %s: %w (min of %d, have %d)",
			id, models.ErrNotEnoughPlayers, s.minPlayers, len(members))
	}
	if len(members) > models.MaxRounds {
		return nil, fmt.Errorf("start game %s: %w: at most %d players, have %d",
			id, models.ErrInvalidArgument, models.MaxRounds, len(members))
	}

	withContent, err := s.contents.CountFor(ctx, id)
	if err != nil {
		return nil, err
	}
	if withContent != len(members) {
		return nil, fmt.Errorf("start game %s: %w (%d of %d)",
			id, models.ErrNotEveryoneHasContent, withContent, len(members))
	}

	sequence, err := s.contents.PlayerIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	s.shuffle(sequence)

	startedAt := s.now().UTC()
	if err := s.lobbies.Start(ctx, id, sequence, startedAt); err != nil {
		return nil, err
	}
	lobby.Sequence = sequence
	lobby.CurrentUserID = sequence[0]
	lobby.StartedAt = &startedAt

	s.log.WithFields(logrus.Fields{"lobby": id, "players": len(sequence)}).Info("game started")
	s.publish(ctx, id, models.EventStarted, callerID, map[string]any{"sequence": sequence})
	return lobby, nil
}

// Forward advances the turn to the next player in the sequence. There is no
// timer; the host drives every transition. Forwarding from the last turn
// marks the game finished and reports ErrGameAlreadyFinished.
func (s *Service) Forward(ctx context.Context, id, callerID string) (*models.Lobby, error) {
	lobby, err := s.lobbies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.touch(ctx, id, callerID); err != nil {
		return nil, err
	}
	if !lobby.IsHost(callerID) {
		return nil, fmt.Errorf("forward %s: %w", id, models.ErrUnauthorized)
	}

	next, err := lobby.NextTurn()
	if errors.Is(err, models.ErrGameAlreadyFinished) && lobby.FinishedAt == nil {
		if ferr := s.lobbies.MarkFinished(ctx, id, s.now().UTC()); ferr != nil {
			return nil, ferr
		}
		s.log.WithField("lobby", id).Info("game finished")
		s.publish(ctx, id, models.EventFinished, callerID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("forward %s: %w", id, err)
	}

	if err := s.lobbies.Advance(ctx, id, lobby.CurrentUserID, next); err != nil {
		return nil, err
	}
	lobby.CurrentUserID = next
	round := lobby.RoundIndex()

	s.log.WithFields(logrus.Fields{"lobby": id, "round": round, "player": next}).Info("turn forwarded")
	s.publish(ctx, id, models.EventForwarded, callerID, map[string]any{"round": round, "current": next})
	return lobby, nil
}

// Guess records the caller's guess for round. Neither the round nor the
// guessed player is checked against the game; clients may correct or
// pre-fill any round.
func (s *Service) Guess(ctx context.Context, id, callerID string, round int, guessedID string) error {
	if round < 0 || round >= models.MaxRounds || guessedID == "" {
		return fmt.Errorf("guess: %w: round must be within 0..%d and guessed player set",
			models.ErrInvalidArgument, models.MaxRounds-1)
	}
	lobby, err := s.lobbies.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.touch(ctx, id, callerID); err != nil {
		return err
	}
	if err := s.checkNotFrozen(ctx, lobby, callerID); err != nil {
		return err
	}
	if err := s.guesses.RecordGuess(ctx, id, callerID, round, guessedID); err != nil {
		return err
	}
	s.publish(ctx, id, models.EventGuessed, callerID, map[string]any{"round": round, "guessed": guessedID})
	return nil
}

// ListPlayers returns members in join order.
func (s *Service) ListPlayers(ctx context.Context, id string) ([]models.PlayerView, error) {
	if _, err := s.lobbies.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.lobbies.ListPlayers(ctx, id)
}

// CurrentContent returns the content of the player whose turn it is, or nil
// before the game starts.
func (s *Service) CurrentContent(ctx context.Context, id string) (*models.Content, error) {
	lobby, err := s.lobbies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.contents.FindCurrent(ctx, lobby)
}

// GuessesFor returns the caller's guess history.
func (s *Service) GuessesFor(ctx context.Context, id, callerID string) (models.Guesses, error) {
	if _, err := s.lobbies.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.touch(ctx, id, callerID); err != nil {
		return nil, err
	}
	return s.guesses.GuessesFor(ctx, id, callerID)
}

// View runs FindLobby for the caller and assembles everything a client renders.
func (s *Service) View(ctx context.Context, id, callerID string) (*LobbyView, error) {
	lobby, present, err := s.sync(ctx, id, callerID)
	if err != nil {
		return nil, err
	}

	view := &LobbyView{
		Lobby:    lobby,
		Phase:    lobby.Phase(),
		HostAway: !present.Has(lobby.HostID),
	}
	if idx := lobby.RoundIndex(); idx >= 0 {
		view.RoundIndex = &idx
	}

	if view.Players, err = s.lobbies.ListPlayers(ctx, id); err != nil {
		return nil, err
	}
	if view.Content, err = s.contents.Find(ctx, id, callerID); err != nil {
		return nil, err
	}
	if view.CurrentContent, err = s.contents.FindCurrent(ctx, lobby); err != nil {
		return nil, err
	}
	if view.Guesses, err = s.guesses.GuessesFor(ctx, id, callerID); err != nil {
		return nil, err
	}
	return view, nil
}

// publish hands ev to the journal. Journal failures are logged and never
// fail the operation that produced the event.
func (s *Service) publish(ctx context.Context, lobbyID string, typ models.EventType, actorID string, payload map[string]any) {
	if s.events == nil {
		return
	}
	ev := models.LobbyEvent{
		LobbyID:   lobbyID,
		Type:      typ,
		ActorID:   actorID,
		Payload:   payload,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"lobby": lobbyID, "event": typ}).Warn("failed to publish lobby event")
	}
}
