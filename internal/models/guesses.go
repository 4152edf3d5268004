package models

// MaxRounds bounds the round index a guess may address and the number of
// players a game can start with.
const MaxRounds = 256

// Guesses is a player's per-round guess history. Index i holds the id guessed
// during round i; rounds without a guess hold the empty string.
type Guesses []string

// Set stores guessed at round, padding the list with empty entries if the
// round lies beyond the current length. Rounds outside 0..MaxRounds-1 are
// ignored. The receiver is not modified.
func (g Guesses) Set(round int, guessed string) Guesses {
	if round < 0 || round >= MaxRounds {
		return append(Guesses(nil), g...)
	}
	out := make(Guesses, max(len(g), round+1))
	copy(out, g)
	out[round] = guessed
	return out
}

// At returns the guess for round, or "" if none was recorded.
func (g Guesses) At(round int) string {
	if round < 0 || round >= len(g) {
		return ""
	}
	return g[round]
}
