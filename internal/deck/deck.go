// internal/deck/deck.go
package deck

import "math/rand"

// Deck is an ordered draw pile. Index 0 is the top.
type Deck []Card

// New builds the full 108-card deck in canonical index order. Shuffling is a
// separate, explicit step applied by the game at deal time.
func New() Deck {
	d := make(Deck, Size)
	for i := range d {
		c, err := FromIndex(i)
		if err != nil {
			// unreachable: every index in [0,Size) is valid
			panic(err)
		}
		d[i] = c
	}
	return d
}

// Shuffle applies a uniformly-random permutation in place.
func (d Deck) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(d), func(i, j int) {
		d[i], d[j] = d[j], d[i]
	})
}

// Draw removes and returns the top card. The second return is false when the
// deck is empty.
func (d *Deck) Draw() (Card, bool) {
	if len(*d) == 0 {
		return Card{}, false
	}
	top := (*d)[0]
	*d = (*d)[1:]
	return top, true
}

// DrawN removes up to n cards from the top. Fewer are returned when the deck
// runs short.
func (d *Deck) DrawN(n int) []Card {
	if n > len(*d) {
		n = len(*d)
	}
	drawn := make([]Card, n)
	copy(drawn, (*d)[:n])
	*d = (*d)[n:]
	return drawn
}

// ScoreHand sums the point values of the cards left in a hand.
func ScoreHand(hand []Card) int {
	total := 0
	for _, c := range hand {
		total += c.Score()
	}
	return total
}
