// internal/uno/machine_test.go
package uno

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardtable/uno-service/internal/config"
	"github.com/cardtable/uno-service/internal/deck"
)

// mockNotifier collects notifications instead of fanning them out over WS.
type mockNotifier struct {
	all       []Notification
	perPlayer map[string][]Notification
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{perPlayer: make(map[string][]Notification)}
}

func (mn *mockNotifier) notify(n Notification) {
	mn.all = append(mn.all, n)
	if n.PlayerID != "" {
		mn.perPlayer[n.PlayerID] = append(mn.perPlayer[n.PlayerID], n)
	}
}

func (mn *mockNotifier) clear() {
	mn.all = nil
	mn.perPlayer = make(map[string][]Notification)
}

func (mn *mockNotifier) hooks() []Hook {
	hooks := make([]Hook, len(mn.all))
	for i, n := range mn.all {
		hooks[i] = n.Hook
	}
	return hooks
}

func (mn *mockNotifier) last() *Notification {
	if len(mn.all) == 0 {
		return nil
	}
	return &mn.all[len(mn.all)-1]
}

// newTestMachine builds an unstarted machine driven synchronously through
// step, so tests control event order and timer firings exactly.
func newTestMachine(t *testing.T) (*Machine, *mockNotifier) {
	t.Helper()
	mn := newMockNotifier()
	m := NewMachine(config.Game{}, Options{
		Notify: mn.notify,
		Rand:   rand.New(rand.NewSource(7)),
	})
	t.Cleanup(m.Close)
	return m, mn
}

func sendEvent(m *Machine, ev Event) {
	m.step(envelope{event: ev})
}

// fireTimer simulates the current state's delayed transition elapsing.
func fireTimer(m *Machine) {
	m.step(envelope{tick: true, token: m.timerToken})
}

// startGame walks a machine from idle into the first round with the given
// players seated.
func startGame(t *testing.T, m *Machine, ids ...string) {
	t.Helper()
	sendEvent(m, Event{Type: EventGameStart, PlayerID: "admin"})
	require.Equal(t, StateSolicit, m.State())
	for _, id := range ids {
		sendEvent(m, Event{Type: EventPlayerAdd, PlayerID: id, Username: "user-" + id})
	}
	fireTimer(m)
	require.Equal(t, StateRoundWaiting, m.State())
}

// rigRound puts a machine directly into a mid-round position so tests can
// exercise exact card situations without depending on the shuffle.
func rigRound(m *Machine, hands map[string][]deck.Card, order []string, active string, top deck.Card, activeColor deck.Color) {
	c := NewContext()
	for _, id := range order {
		addPlayer(c, Player{ID: id, Username: "user-" + id})
	}
	c.Hands = hands
	c.DiscardPile = []deck.Card{top}
	c.ActiveColor = activeColor
	ap, _ := c.PlayerByID(active)
	c.ActivePlayer = &ap

	// keep the remaining cards in the deck so conservation holds
	counts := make(map[deck.Card]int)
	for _, hand := range hands {
		for _, card := range hand {
			counts[card]++
		}
	}
	counts[top]++
	c.Deck = nil
	for _, card := range deck.New() {
		if counts[card] > 0 {
			counts[card]--
			continue
		}
		c.Deck = append(c.Deck, card)
	}

	m.ctx = c
	m.state = StateRoundWaiting
}

func TestStatusAvailableEverywhere(t *testing.T) {
	m, mn := newTestMachine(t)

	sendEvent(m, Event{Type: EventGameStatus, PlayerID: "a"})
	require.NotNil(t, mn.last())
	assert.Equal(t, HookGameStatus, mn.last().Hook)
	assert.Equal(t, StateIdle, mn.last().Snapshot.State)

	startGame(t, m, "a", "b")
	mn.clear()
	sendEvent(m, Event{Type: EventGameStatus, PlayerID: "a"})
	assert.Equal(t, HookGameStatus, mn.last().Hook)
	assert.Equal(t, StateRoundWaiting, mn.last().Snapshot.State)
}

func TestCommandsBeforeStartRejected(t *testing.T) {
	m, mn := newTestMachine(t)
	sendEvent(m, Event{Type: EventCardDraw, PlayerID: "a"})
	assert.Equal(t, HookNoGame, mn.last().Hook)
	assert.Equal(t, StateIdle, m.State())
}

func TestSolicitCollectsPlayers(t *testing.T) {
	m, mn := newTestMachine(t)

	sendEvent(m, Event{Type: EventGameStart, PlayerID: "admin"})
	assert.Equal(t, HookSolicit, mn.last().Hook)

	sendEvent(m, Event{Type: EventPlayerAdd, PlayerID: "a", Username: "alice"})
	assert.Equal(t, HookPlayerAdd, mn.last().Hook)

	sendEvent(m, Event{Type: EventPlayerAdd, PlayerID: "a", Username: "alice"})
	assert.Equal(t, HookAlreadyJoined, mn.last().Hook, "second join of the same id is rejected")

	sendEvent(m, Event{Type: EventPlayerRemove, PlayerID: "a"})
	assert.Equal(t, HookPlayerRemove, mn.last().Hook)

	sendEvent(m, Event{Type: EventPlayerRemove, PlayerID: "stranger"})
	assert.Equal(t, HookInvalidPlayer, mn.last().Hook)
}

func TestSolicitTimeoutWithoutPlayers(t *testing.T) {
	m, mn := newTestMachine(t)
	sendEvent(m, Event{Type: EventGameStart, PlayerID: "admin"})

	fireTimer(m)
	assert.Equal(t, StateNoPlayers, m.State())
	assert.Contains(t, mn.hooks(), HookNoPlayers)

	fireTimer(m)
	assert.Equal(t, StateIdle, m.State(), "announcement delay returns the table to idle")
}

func TestGameStartDealsHands(t *testing.T) {
	m, mn := newTestMachine(t)
	startGame(t, m, "a", "b", "c")

	assert.Contains(t, mn.hooks(), HookGameStart)
	assert.Contains(t, mn.hooks(), HookRoundStart)

	snap := m.Snapshot()
	require.NotNil(t, snap.ActivePlayer)
	for _, p := range snap.Players {
		assert.Equal(t, 7, snap.HandSizes[p.ID])
	}
	assert.NotNil(t, snap.DiscardTop)
	assert.Equal(t, deck.Size, m.ctx.CardCount())

	// the active player privately received their hand
	private := mn.perPlayer[snap.ActivePlayer.ID]
	require.NotEmpty(t, private)
	assert.Equal(t, HookHand, private[len(private)-1].Hook)
}

func TestStaleTimerIsIgnored(t *testing.T) {
	m, _ := newTestMachine(t)
	startGame(t, m, "a", "b")
	active := m.Snapshot().ActivePlayer.ID

	m.step(envelope{tick: true, token: m.timerToken - 1})
	assert.Equal(t, StateRoundWaiting, m.State())
	assert.Equal(t, active, m.Snapshot().ActivePlayer.ID, "a stale tick must not advance the turn")
}

func TestTurnTimeoutSkipsPlayer(t *testing.T) {
	m, mn := newTestMachine(t)
	startGame(t, m, "a", "b")
	active := m.Snapshot().ActivePlayer.ID
	mn.clear()

	fireTimer(m)
	assert.Contains(t, mn.hooks(), HookSkipPlayer)
	assert.Equal(t, StateRoundWaiting, m.State())
	assert.NotEqual(t, active, m.Snapshot().ActivePlayer.ID)
}

func TestOutOfTurnPlayRejected(t *testing.T) {
	m, mn := newTestMachine(t)
	startGame(t, m, "a", "b")
	snap := m.Snapshot()

	other := "a"
	if snap.ActivePlayer.ID == "a" {
		other = "b"
	}
	mn.clear()
	sendEvent(m, Event{Type: EventCardDraw, PlayerID: other})
	require.NotNil(t, mn.last())
	assert.Equal(t, HookInvalidPlayer, mn.last().Hook)
	assert.Equal(t, other, mn.last().PlayerID, "rejection goes only to the offender")
	assert.Equal(t, snap.HandSizes, m.Snapshot().HandSizes)
}

func TestPassWithoutDrawRejected(t *testing.T) {
	m, mn := newTestMachine(t)
	startGame(t, m, "a", "b")
	active := m.Snapshot().ActivePlayer.ID

	mn.clear()
	sendEvent(m, Event{Type: EventPlayerPass, PlayerID: active})
	assert.Equal(t, HookInvalidPass, mn.last().Hook)
	assert.Equal(t, active, m.Snapshot().ActivePlayer.ID)
}

func TestDrawThenPass(t *testing.T) {
	m, mn := newTestMachine(t)
	startGame(t, m, "a", "b")
	active := m.Snapshot().ActivePlayer.ID

	mn.clear()
	sendEvent(m, Event{Type: EventCardDraw, PlayerID: active})
	assert.Equal(t, StateRoundDraw, m.State())
	assert.Contains(t, mn.hooks(), HookDraw)
	assert.Equal(t, 8, m.Snapshot().HandSizes[active])

	// a second draw the same turn is refused
	mn.clear()
	sendEvent(m, Event{Type: EventCardDraw, PlayerID: active})
	assert.Equal(t, HookAlreadyDrawn, mn.last().Hook)
	assert.Equal(t, 8, m.Snapshot().HandSizes[active])

	mn.clear()
	sendEvent(m, Event{Type: EventPlayerPass, PlayerID: active})
	assert.Contains(t, mn.hooks(), HookPass)
	assert.Equal(t, StateRoundWaiting, m.State())
	assert.NotEqual(t, active, m.Snapshot().ActivePlayer.ID)
}

func TestPlayUnownedCardRejected(t *testing.T) {
	g2 := deck.Card{Kind: deck.Number, Color: deck.Green, Value: 2}
	r5 := deck.Card{Kind: deck.Number, Color: deck.Red, Value: 5}

	m, mn := newTestMachine(t)
	rigRound(m,
		map[string][]deck.Card{"a": {g2}, "b": {r5}},
		[]string{"a", "b"}, "a",
		deck.Card{Kind: deck.Number, Color: deck.Red, Value: 2}, deck.ColorNone)

	sendEvent(m, Event{Type: EventCardPlay, PlayerID: "a", Card: &r5})
	assert.Equal(t, HookMissingCard, mn.last().Hook)

	sendEvent(m, Event{Type: EventCardPlay, PlayerID: "a", Card: nil})
	assert.Equal(t, HookMissingCard, mn.last().Hook, "unparsed card never reaches legality checks")
}

func TestPlayIllegalCardRejected(t *testing.T) {
	g5 := deck.Card{Kind: deck.Number, Color: deck.Green, Value: 5}

	m, mn := newTestMachine(t)
	rigRound(m,
		map[string][]deck.Card{"a": {g5}, "b": {{Kind: deck.Number, Color: deck.Blue, Value: 1}}},
		[]string{"a", "b"}, "a",
		deck.Card{Kind: deck.Number, Color: deck.Red, Value: 2}, deck.ColorNone)

	sendEvent(m, Event{Type: EventCardPlay, PlayerID: "a", Card: &g5})
	assert.Equal(t, HookInvalidCard, mn.last().Hook)
	assert.Equal(t, StateRoundWaiting, m.State())
}

func TestPlayAdvancesTurn(t *testing.T) {
	r5 := deck.Card{Kind: deck.Number, Color: deck.Red, Value: 5}

	m, mn := newTestMachine(t)
	rigRound(m,
		map[string][]deck.Card{
			"a": {r5, {Kind: deck.Number, Color: deck.Green, Value: 1}},
			"b": {{Kind: deck.Number, Color: deck.Blue, Value: 1}, {Kind: deck.Number, Color: deck.Blue, Value: 2}},
		},
		[]string{"a", "b"}, "a",
		deck.Card{Kind: deck.Number, Color: deck.Red, Value: 2}, deck.ColorNone)

	sendEvent(m, Event{Type: EventCardPlay, PlayerID: "a", Card: &r5})
	assert.Contains(t, mn.hooks(), HookPlay)
	assert.Equal(t, "b", m.Snapshot().ActivePlayer.ID)
	assert.Equal(t, r5, *m.Snapshot().DiscardTop)
}

func TestUnoAnnouncedOnPenultimateCard(t *testing.T) {
	r5 := deck.Card{Kind: deck.Number, Color: deck.Red, Value: 5}

	m, mn := newTestMachine(t)
	rigRound(m,
		map[string][]deck.Card{
			"a": {r5, {Kind: deck.Number, Color: deck.Green, Value: 1}},
			"b": {{Kind: deck.Number, Color: deck.Blue, Value: 1}, {Kind: deck.Number, Color: deck.Blue, Value: 2}},
		},
		[]string{"a", "b"}, "a",
		deck.Card{Kind: deck.Number, Color: deck.Red, Value: 2}, deck.ColorNone)

	sendEvent(m, Event{Type: EventCardPlay, PlayerID: "a", Card: &r5})
	assert.Contains(t, mn.hooks(), HookUno)
}

func TestWildPromptsForColor(t *testing.T) {
	wild := deck.Card{Kind: deck.Wild}
	b1 := deck.Card{Kind: deck.Number, Color: deck.Blue, Value: 1}

	m, mn := newTestMachine(t)
	rigRound(m,
		map[string][]deck.Card{"a": {wild, b1}, "b": {b1}},
		[]string{"a", "b"}, "a",
		deck.Card{Kind: deck.Number, Color: deck.Red, Value: 2}, deck.ColorNone)

	sendEvent(m, Event{Type: EventCardPlay, PlayerID: "a", Card: &wild})
	assert.Equal(t, StateRoundColor, m.State())
	assert.Contains(t, mn.hooks(), HookColorChangeNeeded)
	assert.Equal(t, "a", m.Snapshot().ActivePlayer.ID, "the wild's player declares the color")

	// a bad color name keeps the prompt open
	mn.clear()
	sendEvent(m, Event{Type: EventColorChange, PlayerID: "a", Color: "purple"})
	assert.Equal(t, HookInvalidColor, mn.last().Hook)
	assert.Equal(t, StateRoundColor, m.State())

	// so does anyone else answering
	mn.clear()
	sendEvent(m, Event{Type: EventColorChange, PlayerID: "b", Color: "blue"})
	assert.Equal(t, HookInvalidPlayer, mn.last().Hook)

	mn.clear()
	sendEvent(m, Event{Type: EventColorChange, PlayerID: "a", Color: "blue"})
	assert.Contains(t, mn.hooks(), HookColorChange)
	assert.Equal(t, StateRoundWaiting, m.State())
	assert.Equal(t, deck.Blue, m.Snapshot().ActiveColor)
	assert.Equal(t, "b", m.Snapshot().ActivePlayer.ID)
}

func TestWildDrawFourPenaltyAfterColorChoice(t *testing.T) {
	wd := deck.Card{Kind: deck.WildDrawFour}
	b1 := deck.Card{Kind: deck.Number, Color: deck.Blue, Value: 1}

	m, _ := newTestMachine(t)
	rigRound(m,
		map[string][]deck.Card{"a": {wd, b1}, "b": {b1}},
		[]string{"a", "b"}, "a",
		deck.Card{Kind: deck.Number, Color: deck.Red, Value: 2}, deck.ColorNone)

	sendEvent(m, Event{Type: EventCardPlay, PlayerID: "a", Card: &wd})
	require.Equal(t, StateRoundColor, m.State())
	sendEvent(m, Event{Type: EventColorChange, PlayerID: "a", Color: "green"})

	snap := m.Snapshot()
	assert.Equal(t, deck.Green, snap.ActiveColor)
	assert.Equal(t, 5, snap.HandSizes["b"], "penalized player drew four")
	assert.Equal(t, "a", snap.ActivePlayer.ID, "penalized player also lost their turn")
	assert.Equal(t, deck.Size, m.ctx.CardCount())
}

func TestColorTimeoutStillResolvesPenalty(t *testing.T) {
	wd := deck.Card{Kind: deck.WildDrawFour}
	b1 := deck.Card{Kind: deck.Number, Color: deck.Blue, Value: 1}

	m, mn := newTestMachine(t)
	rigRound(m,
		map[string][]deck.Card{"a": {wd, b1}, "b": {b1}},
		[]string{"a", "b"}, "a",
		deck.Card{Kind: deck.Number, Color: deck.Red, Value: 2}, deck.ColorNone)

	sendEvent(m, Event{Type: EventCardPlay, PlayerID: "a", Card: &wd})
	require.Equal(t, StateRoundColor, m.State())

	mn.clear()
	fireTimer(m)
	assert.Contains(t, mn.hooks(), HookColorChange)
	assert.Contains(t, mn.hooks(), HookSkipPlayer)

	snap := m.Snapshot()
	assert.NotEqual(t, deck.ColorNone, snap.ActiveColor, "a color was declared on the player's behalf")
	assert.Equal(t, 5, snap.HandSizes["b"])
	assert.Equal(t, StateRoundWaiting, m.State())
}

func TestWinOnLastCard(t *testing.T) {
	r5 := deck.Card{Kind: deck.Number, Color: deck.Red, Value: 5}
	losing := []deck.Card{{Kind: deck.Skip, Color: deck.Blue}, {Kind: deck.Number, Color: deck.Blue, Value: 9}}

	m, mn := newTestMachine(t)
	rigRound(m,
		map[string][]deck.Card{"a": {r5}, "b": losing},
		[]string{"a", "b"}, "a",
		deck.Card{Kind: deck.Number, Color: deck.Red, Value: 2}, deck.ColorNone)

	sendEvent(m, Event{Type: EventCardPlay, PlayerID: "a", Card: &r5})
	assert.Equal(t, StateAnnounceWinner, m.State())

	var winner *Notification
	for i := range mn.all {
		if mn.all[i].Hook == HookWinner {
			winner = &mn.all[i]
		}
	}
	require.NotNil(t, winner)
	require.NotNil(t, winner.Winner)
	assert.Equal(t, "a", winner.Winner.ID)
	assert.Equal(t, 0, winner.Scores["a"])
	assert.Equal(t, deck.SpecialScore+9, winner.Scores["b"])

	// the table resets after the announcement delay
	fireTimer(m)
	assert.Equal(t, StateIdle, m.State())
}

func TestMidgameRemovalForfeit(t *testing.T) {
	b1 := deck.Card{Kind: deck.Number, Color: deck.Blue, Value: 1}
	g2 := deck.Card{Kind: deck.Number, Color: deck.Green, Value: 2}

	m, mn := newTestMachine(t)
	rigRound(m,
		map[string][]deck.Card{"a": {b1}, "b": {g2}},
		[]string{"a", "b"}, "a",
		deck.Card{Kind: deck.Number, Color: deck.Red, Value: 2}, deck.ColorNone)

	sendEvent(m, Event{Type: EventPlayerRemove, PlayerID: "b"})
	assert.Contains(t, mn.hooks(), HookPlayerRemove)
	assert.Equal(t, StateAnnounceWinner, m.State(), "one player left wins by forfeit")

	var winner *Notification
	for i := range mn.all {
		if mn.all[i].Hook == HookWinner {
			winner = &mn.all[i]
		}
	}
	require.NotNil(t, winner)
	assert.Equal(t, "a", winner.Winner.ID)
}

func TestMidgameRemovalOfActivePlayer(t *testing.T) {
	b1 := deck.Card{Kind: deck.Number, Color: deck.Blue, Value: 1}

	m, _ := newTestMachine(t)
	rigRound(m,
		map[string][]deck.Card{"a": {b1}, "b": {b1}, "c": {b1}},
		[]string{"a", "b", "c"}, "a",
		deck.Card{Kind: deck.Number, Color: deck.Red, Value: 2}, deck.ColorNone)

	sendEvent(m, Event{Type: EventPlayerRemove, PlayerID: "a"})
	snap := m.Snapshot()
	assert.Equal(t, StateRoundWaiting, m.State())
	assert.Len(t, snap.Players, 2)
	require.NotNil(t, snap.ActivePlayer)
	assert.NotEqual(t, "a", snap.ActivePlayer.ID, "the departed player forfeits their turn")
}

func TestStopDuringRound(t *testing.T) {
	m, mn := newTestMachine(t)
	startGame(t, m, "a", "b")

	mn.clear()
	sendEvent(m, Event{Type: EventGameStop, PlayerID: "admin"})
	assert.Contains(t, mn.hooks(), HookGameStop)
	assert.Equal(t, StateStopped, m.State())

	// turn commands are dead now
	mn.clear()
	sendEvent(m, Event{Type: EventCardDraw, PlayerID: "a"})
	assert.Equal(t, HookNoGame, mn.last().Hook)

	fireTimer(m)
	assert.Equal(t, StateIdle, m.State())
}

func TestHandRequestIsPrivate(t *testing.T) {
	m, mn := newTestMachine(t)
	startGame(t, m, "a", "b")

	mn.clear()
	sendEvent(m, Event{Type: EventHandRequest, PlayerID: "b"})
	require.Len(t, mn.all, 1)
	assert.Equal(t, HookHand, mn.all[0].Hook)
	assert.Equal(t, "b", mn.all[0].PlayerID)
	assert.Len(t, mn.all[0].Snapshot.Hands["b"], 7)
}

// TestFullGamePlaysToCompletion drives a three-player game with a greedy
// strategy until someone wins, checking card conservation the whole way.
func TestFullGamePlaysToCompletion(t *testing.T) {
	m, mn := newTestMachine(t)
	startGame(t, m, "a", "b", "c")

	for i := 0; i < 10000; i++ {
		if m.State() == StateAnnounceWinner {
			break
		}
		require.Equal(t, deck.Size, m.ctx.CardCount(), "card conservation broke at step %d", i)

		snap := m.Snapshot()
		require.NotNil(t, snap.ActivePlayer)
		active := snap.ActivePlayer.ID
		hand := snap.Hands[active]

		switch m.State() {
		case StateRoundColor:
			sendEvent(m, Event{Type: EventColorChange, PlayerID: active, Color: "red"})

		case StateRoundWaiting, StateRoundDraw:
			played := false
			for j := range hand {
				if hand[j].PlayableOn(snap.DiscardTop, snap.ActiveColor) {
					card := hand[j]
					sendEvent(m, Event{Type: EventCardPlay, PlayerID: active, Card: &card})
					played = true
					break
				}
			}
			if played {
				continue
			}
			if m.State() == StateRoundWaiting {
				sendEvent(m, Event{Type: EventCardDraw, PlayerID: active})
			} else {
				sendEvent(m, Event{Type: EventPlayerPass, PlayerID: active})
			}

		default:
			t.Fatalf("unexpected state %s at step %d", m.State(), i)
		}
	}

	require.Equal(t, StateAnnounceWinner, m.State(), "game did not finish")
	assert.Contains(t, mn.hooks(), HookWinner)
}
