// internal/uno/actions.go
//
// Reducers: pure context transformers. They mutate the machine-owned context
// and nothing else; notifications are emitted separately by the machine after
// the context change commits, so each reducer stays testable in isolation.
package uno

import (
	"math/rand"

	"github.com/cardtable/uno-service/internal/deck"
)

// addPlayer appends a player to the turn order. Returns false if the id is
// already seated.
func addPlayer(c *Context, p Player) bool {
	if c.playerIndex(p.ID) >= 0 {
		return false
	}
	c.Players = append(c.Players, p)
	return true
}

// removePlayer drops a player by id. Mid-game, the player's hand is moved into
// the discard pile so the 108-card conservation invariant holds. Returns false
// if the id is not seated.
func removePlayer(c *Context, id string) bool {
	i := c.playerIndex(id)
	if i < 0 {
		return false
	}
	if hand, ok := c.Hands[id]; ok {
		c.DiscardPile = append(c.DiscardPile, hand...)
		delete(c.Hands, id)
	}
	c.Players = append(c.Players[:i], c.Players[i+1:]...)
	if c.LastDrawPlayer == id {
		c.LastDrawPlayer = ""
	}
	return true
}

// shufflePlayers randomizes turn order once at game start, so seating is not
// join order.
func shufflePlayers(c *Context, rng *rand.Rand) {
	rng.Shuffle(len(c.Players), func(i, j int) {
		c.Players[i], c.Players[j] = c.Players[j], c.Players[i]
	})
}

// dealHands shuffles the deck, deals handSize cards to each player in turn
// order, and seeds the discard pile with one card. A wild seed card gets a
// random active color immediately so the color is never undefined.
func dealHands(c *Context, rng *rand.Rand, handSize int) {
	c.Deck.Shuffle(rng)
	c.Hands = make(map[string][]deck.Card, len(c.Players))
	for _, p := range c.Players {
		c.Hands[p.ID] = c.Deck.DrawN(handSize)
	}

	seed, _ := c.Deck.Draw()
	c.DiscardPile = []deck.Card{seed}
	if seed.IsWild() {
		c.ActiveColor = randomColor(rng)
	} else {
		c.ActiveColor = deck.ColorNone
	}
}

// activateNextPlayer advances the turn cyclically. The current index is
// recomputed by identity on every call, so the cycle stays correct when
// players are removed between rounds; a vanished active player hands the turn
// to the head of the order.
func activateNextPlayer(c *Context) {
	if len(c.Players) == 0 {
		c.ActivePlayer = nil
		return
	}
	next := c.nextPlayer()
	c.ActivePlayer = &next
}

// resetLastDrawPlayer clears the per-turn draw-then-pass eligibility flag.
func resetLastDrawPlayer(c *Context) {
	c.LastDrawPlayer = ""
}

// playCard removes the first structural match from the active player's hand
// and places it on the discard pile. Playing a wild clears the active color
// until the player declares one; playing anything else makes the card's own
// color authoritative again.
func playCard(c *Context, card deck.Card) {
	hand := c.Hands[c.ActivePlayer.ID]
	for i := range hand {
		if hand[i] == card {
			hand = append(hand[:i], hand[i+1:]...)
			break
		}
	}
	c.Hands[c.ActivePlayer.ID] = hand
	c.DiscardPile = append(c.DiscardPile, card)
	c.ActiveColor = deck.ColorNone
}

// drawCard moves one card from the top of the deck into the active player's
// hand and records them as the last-draw player, enabling a pass this turn.
// An exhausted deck is recycled from the discard pile first; returns false
// when there is genuinely nothing left to draw.
func drawCard(c *Context, rng *rand.Rand) bool {
	if len(c.Deck) == 0 {
		rebuildDeck(c, rng)
	}
	c.LastDrawPlayer = c.ActivePlayer.ID
	card, ok := c.Deck.Draw()
	if !ok {
		return false
	}
	c.Hands[c.ActivePlayer.ID] = append(c.Hands[c.ActivePlayer.ID], card)
	return true
}

// changeColor sets the declared active color.
func changeColor(c *Context, color deck.Color) {
	c.ActiveColor = color
}

// changeColorRandom picks a uniformly-random color, used when the player fails
// to choose before the round timer elapses.
func changeColorRandom(c *Context, rng *rand.Rand) deck.Color {
	color := randomColor(rng)
	c.ActiveColor = color
	return color
}

// handleSpecialCard resolves the just-played special card against the next
// player in turn order. Draw effects skip the penalized player by advancing
// the active marker onto them, so the following round activation moves past.
// Reverse flips the turn order; in a two-player game it acts as a Skip.
func handleSpecialCard(c *Context, rng *rand.Rand, drawTwo, wildDrawFour int) {
	top := c.DiscardTop()
	if top == nil || c.ActivePlayer == nil || len(c.Players) == 0 {
		return
	}
	next := c.nextPlayer()

	switch top.Kind {
	case deck.WildDrawFour:
		dealTo(c, rng, next.ID, wildDrawFour)
		c.ActivePlayer = &next
	case deck.DrawTwo:
		dealTo(c, rng, next.ID, drawTwo)
		c.ActivePlayer = &next
	case deck.Skip:
		c.ActivePlayer = &next
	case deck.Reverse:
		for i, j := 0, len(c.Players)-1; i < j; i, j = i+1, j-1 {
			c.Players[i], c.Players[j] = c.Players[j], c.Players[i]
		}
		if len(c.Players) == 2 {
			c.ActivePlayer = &next
		}
	}
}

// dealTo moves up to n cards from the deck into a player's hand, recycling the
// discard pile whenever the deck runs dry mid-deal.
func dealTo(c *Context, rng *rand.Rand, playerID string, n int) {
	for i := 0; i < n; i++ {
		if len(c.Deck) == 0 {
			rebuildDeck(c, rng)
		}
		card, ok := c.Deck.Draw()
		if !ok {
			return
		}
		c.Hands[playerID] = append(c.Hands[playerID], card)
	}
}

// rebuildDeck shuffles the discard pile, minus its active top card, back into
// the deck. A no-op while the pile holds only the top card.
func rebuildDeck(c *Context, rng *rand.Rand) {
	if len(c.DiscardPile) <= 1 {
		return
	}
	top := c.DiscardPile[len(c.DiscardPile)-1]
	c.Deck = append(c.Deck, c.DiscardPile[:len(c.DiscardPile)-1]...)
	c.Deck.Shuffle(rng)
	c.DiscardPile = []deck.Card{top}
}

func randomColor(rng *rand.Rand) deck.Color {
	return deck.Colors[rng.Intn(len(deck.Colors))]
}
