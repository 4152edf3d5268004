package lobby

import (
	"fmt"
	"strings"
)

// HostPolicy decides what happens to a lobby whose host's presence expired.
type HostPolicy string

const (
	// HostKeep leaves the lobby untouched.
	HostKeep HostPolicy = "keep"
	// HostDelete removes the lobby with its players and contents.
	HostDelete HostPolicy = "delete"
	// HostReassign hands the lobby to the earliest-joined present player.
	HostReassign HostPolicy = "reassign"
	// HostFreeze refuses player actions until the host is present again.
	HostFreeze HostPolicy = "freeze"
)

func ParseHostPolicy(s string) (HostPolicy, error) {
	switch p := HostPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case HostKeep, HostDelete, HostReassign, HostFreeze:
		return p, nil
	case "":
		return HostKeep, nil
	default:
		return "", fmt.Errorf("unknown host policy %q (want keep, delete, reassign or freeze)", s)
	}
}
