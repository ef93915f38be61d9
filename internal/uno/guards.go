// internal/uno/guards.go
//
// Guard predicates: pure boolean functions over (context, event) that decide
// transition eligibility. Each dispatch evaluates its guards in declared
// order; the first true guard wins.
package uno

import "github.com/cardtable/uno-service/internal/deck"

// canGameStart reports whether enough players joined during solicitation.
func canGameStart(c *Context, minPlayers int) bool {
	return len(c.Players) >= minPlayers
}

// isGameOver reports whether any hand has been emptied.
func isGameOver(c *Context) bool {
	for _, hand := range c.Hands {
		if len(hand) == 0 {
			return true
		}
	}
	return false
}

// isPlayerInvalid gates all turn actions: true when the event's player is not
// the active player.
func isPlayerInvalid(c *Context, ev Event) bool {
	return c.ActivePlayer == nil || c.ActivePlayer.ID != ev.PlayerID
}

// isCardMissing is true when the active player's hand holds no card
// structurally equal to the played one. A card that failed to parse (nil) is
// always missing.
func isCardMissing(c *Context, ev Event) bool {
	if ev.Card == nil {
		return true
	}
	for _, held := range c.activeHand() {
		if held.Equals(ev.Card) {
			return false
		}
	}
	return true
}

// isCardInvalid is true when the played card fails the legality rule against
// the current discard top and active color.
func isCardInvalid(c *Context, ev Event) bool {
	return ev.Card == nil || !ev.Card.PlayableOn(c.DiscardTop(), c.ActiveColor)
}

// isColorInvalid is true when the requested color string does not resolve to
// one of the four colors.
func isColorInvalid(ev Event) bool {
	_, ok := deck.ColorFromString(ev.Color)
	return !ok
}

// isColorChangeNeeded is true when the discard top is a wild with no color
// declared for it yet.
func isColorChangeNeeded(c *Context) bool {
	top := c.DiscardTop()
	return top != nil && top.IsWild() && c.ActiveColor == deck.ColorNone
}

// isPassInvalid is true unless the active player drew a card this turn; a
// pass is only allowed immediately after a draw.
func isPassInvalid(c *Context) bool {
	return c.ActivePlayer == nil || c.LastDrawPlayer == "" || c.ActivePlayer.ID != c.LastDrawPlayer
}

// isSpecialCardPlayed is true when the discard top carries an effect beyond
// occupying the pile.
func isSpecialCardPlayed(c *Context) bool {
	top := c.DiscardTop()
	return top != nil && top.IsSpecial()
}

// playerHasUno is true when the active player is down to exactly one card.
func playerHasUno(c *Context) bool {
	return c.ActivePlayer != nil && len(c.activeHand()) == 1
}

// isDeckEmpty triggers the discard-pile recycle at round start.
func isDeckEmpty(c *Context) bool {
	return len(c.Deck) == 0
}
