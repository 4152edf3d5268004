package models

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")

	ErrGameAlreadyStarted  = errors.New("game already started")
	ErrGameNotStarted      = errors.New("game not started")
	ErrGameAlreadyFinished = errors.New("game already finished")

	ErrNotEnoughPlayers      = errors.New("not enough players")
	ErrNotEveryoneHasContent = errors.New("not everyone has content")

	// ErrLobbyFrozen is returned while the host is away under the freeze policy.
	ErrLobbyFrozen = errors.New("lobby frozen until the host returns")

	// ErrConflict signals a conditional write that lost a race, or a duplicate key.
	ErrConflict = errors.New("conflict")

	ErrInvalidArgument = errors.New("invalid argument")

	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCacheUnavailable   = errors.New("cache unavailable")
)

var domainErrors = []error{
	ErrNotFound, ErrUnauthorized,
	ErrGameAlreadyStarted, ErrGameNotStarted, ErrGameAlreadyFinished,
	ErrNotEnoughPlayers, ErrNotEveryoneHasContent,
	ErrLobbyFrozen, ErrConflict, ErrInvalidArgument,
	ErrStorageUnavailable, ErrCacheUnavailable,
}

// IsRetryable reports whether err comes from a backing store rather than a
// business rule. Only these are worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrCacheUnavailable)
}

// IsDomain reports whether err already carries one of the sentinels above.
func IsDomain(err error) bool {
	for _, e := range domainErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
