// internal/uno/context.go
package uno

import (
	"github.com/google/uuid"

	"github.com/cardtable/uno-service/internal/deck"
)

// Player identifies a participant. IDs are opaque stable identifiers supplied
// by the transport layer; equality is by ID.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Context is the authoritative mutable state of one game, owned exclusively by
// the machine that created it. Every card is in exactly one of Deck,
// DiscardPile or a hand: the three always sum to the full 108-card set.
type Context struct {
	GameID      uuid.UUID
	Deck        deck.Deck
	DiscardPile []deck.Card
	Hands       map[string][]deck.Card
	Players     []Player

	// ActivePlayer is nil until the first round starts.
	ActivePlayer *Player

	// ActiveColor is the color in force while the discard top is a wild.
	ActiveColor deck.Color

	// LastDrawPlayer is the id of the player who drew this turn, gating the
	// pass action. Empty when nobody has drawn yet.
	LastDrawPlayer string
}

// NewContext builds a fresh context: full unshuffled deck, no players, no
// hands. The deck is shuffled later, at deal time.
func NewContext() *Context {
	return &Context{
		Deck:  deck.New(),
		Hands: make(map[string][]deck.Card),
	}
}

// DiscardTop returns the active discard, or nil before the first deal.
func (c *Context) DiscardTop() *deck.Card {
	if len(c.DiscardPile) == 0 {
		return nil
	}
	top := c.DiscardPile[len(c.DiscardPile)-1]
	return &top
}

// playerIndex locates a player by id in turn order, or -1. The index is always
// recomputed rather than cached so the turn cycle survives mid-game removals.
func (c *Context) playerIndex(id string) int {
	for i, p := range c.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// PlayerByID returns the player with the given id, if present.
func (c *Context) PlayerByID(id string) (Player, bool) {
	if i := c.playerIndex(id); i >= 0 {
		return c.Players[i], true
	}
	return Player{}, false
}

// nextPlayer returns the player after the active one in cyclic turn order.
// With no active player yet it is the first player.
func (c *Context) nextPlayer() Player {
	idx := -1
	if c.ActivePlayer != nil {
		idx = c.playerIndex(c.ActivePlayer.ID)
	}
	return c.Players[(idx+1)%len(c.Players)]
}

// activeHand returns the active player's hand.
func (c *Context) activeHand() []deck.Card {
	if c.ActivePlayer == nil {
		return nil
	}
	return c.Hands[c.ActivePlayer.ID]
}

// CardCount sums the cards across deck, discard pile and hands. It equals
// deck.Size for every reachable context; tests assert this conservation
// invariant after each transition.
func (c *Context) CardCount() int {
	n := len(c.Deck) + len(c.DiscardPile)
	for _, hand := range c.Hands {
		n += len(hand)
	}
	return n
}
