package lobby

import "math/rand/v2"

const (
	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// DefaultIDLength is the length of generated lobby ids.
	DefaultIDLength = 10
	// MaxIDLength matches the width of the lobbies.id column.
	MaxIDLength = 32
)

// GenerateID returns a random alphanumeric token of length n. Lobby ids are
// short-lived handles, not secrets.
func GenerateID(r *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = idAlphabet[r.IntN(len(idAlphabet))]
	}
	return string(b)
}
