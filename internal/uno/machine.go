// internal/uno/machine.go
package uno

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cardtable/uno-service/internal/config"
	"github.com/cardtable/uno-service/internal/deck"
)

// State names a node in the game chart. Transient nodes (setup, the play/pass
// resolution steps) are processed synchronously inside a dispatch and never
// observed from outside; the states below are the ones the machine rests in
// while waiting for an event or a timer.
type State string

const (
	StateIdle           State = "idle"
	StateSolicit        State = "solicitPlayers"
	StateRoundWaiting   State = "round.waiting"
	StateRoundDraw      State = "round.draw"
	StateRoundColor     State = "round.changeColor"
	StateAnnounceWinner State = "announceWinner"
	StateNoPlayers      State = "noPlayers"
	StateStopped        State = "stopped"
)

// envelope wraps a queued event. Timer firings travel through the same queue
// as player commands, tagged with the token of the schedule that created
// them; a token that no longer matches means the state that armed the timer
// has been exited and the firing is stale.
type envelope struct {
	event Event
	tick  bool
	token uint64
}

// Options carries the machine's collaborators. Everything is optional: a nil
// Notify drops notifications, nil Recorder/History disable persistence and
// the action log, nil Rand falls back to a time-seeded source, and a nil
// Logger discards.
type Options struct {
	Logger   *logrus.Entry
	Notify   NotifyFn
	Recorder Recorder
	History  ActionLog
	Rand     *rand.Rand
}

// Machine is one game table: the hierarchical state chart plus the single
// authoritative context. All mutation is serialized through one event queue.
// An event is fully processed, including any chained transient transitions,
// before the next is dequeued, so the reducers stay plain functions without
// their own locking.
type Machine struct {
	cfg      config.Game
	log      *logrus.Entry
	notify   NotifyFn
	recorder Recorder
	history  ActionLog
	rng      *rand.Rand

	// mu guards state, ctx and the timer fields. The run loop holds it for
	// the duration of a dispatch; Snapshot takes it briefly for reads.
	mu         sync.Mutex
	state      State
	ctx        *Context
	seq        int
	timer      *time.Timer
	timerToken uint64
	pending    []Notification

	events chan envelope
	stopc  chan struct{}
	once   sync.Once
}

// NewMachine builds a machine resting in the idle state. Call Start to begin
// consuming events.
func NewMachine(cfg config.Game, opts Options) *Machine {
	cfg.Normalize()

	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = logrus.NewEntry(l)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Machine{
		cfg:      cfg,
		log:      log,
		notify:   opts.Notify,
		recorder: opts.Recorder,
		history:  opts.History,
		rng:      rng,
		state:    StateIdle,
		ctx:      NewContext(),
		events:   make(chan envelope, 64),
		stopc:    make(chan struct{}),
	}
}

// Start launches the event loop goroutine.
func (m *Machine) Start() {
	go m.run()
}

// Close tears the machine down. Pending events are discarded; scheduled
// timers are disarmed.
func (m *Machine) Close() {
	m.once.Do(func() {
		close(m.stopc)
		m.mu.Lock()
		m.cancelTimerLocked()
		m.mu.Unlock()
	})
}

// Send queues one event for processing. It never blocks past machine
// shutdown.
func (m *Machine) Send(ev Event) {
	select {
	case m.events <- envelope{event: ev}:
	case <-m.stopc:
	}
}

// State returns the current resting state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the observable game state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) run() {
	for {
		select {
		case <-m.stopc:
			return
		case env := <-m.events:
			m.step(env)
		}
	}
}

// step processes exactly one envelope to completion and then flushes the
// notifications it produced. Effects are delivered outside the lock so a slow
// collaborator can never stall a Snapshot, but always on the loop goroutine,
// preserving emission order.
func (m *Machine) step(env envelope) {
	m.mu.Lock()
	if env.tick && env.token != m.timerToken {
		// a stale timer must never mutate state for a node already exited
		m.mu.Unlock()
		return
	}
	m.dispatch(env)
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	if m.notify != nil {
		for _, n := range pending {
			m.notify(n)
		}
	}
}

func (m *Machine) dispatch(env envelope) {
	if env.tick {
		m.handleTimer()
		return
	}
	ev := env.event

	// global handlers, live in every state
	switch ev.Type {
	case EventGameStatus:
		m.emit(HookGameStatus, ev)
		return
	case EventGameStop:
		if m.state == StateIdle {
			m.emit(HookNoGame, ev)
			return
		}
		m.handleStop(ev)
		return
	}

	switch m.state {
	case StateIdle:
		if ev.Type == EventGameStart {
			m.logAction(ev.PlayerID, "game_solicit", nil)
			m.enterSolicit()
			return
		}
		m.emit(HookNoGame, ev)

	case StateSolicit:
		m.dispatchSolicit(ev)

	case StateRoundWaiting, StateRoundDraw, StateRoundColor:
		m.dispatchRound(ev)

	default:
		// announceWinner, noPlayers, stopped: the table is winding down
		m.emit(HookNoGame, ev)
	}
}

func (m *Machine) dispatchSolicit(ev Event) {
	switch ev.Type {
	case EventPlayerAdd:
		if !addPlayer(m.ctx, Player{ID: ev.PlayerID, Username: ev.Username}) {
			m.emit(HookAlreadyJoined, ev)
			return
		}
		m.logAction(ev.PlayerID, "player_add", nil)
		m.emit(HookPlayerAdd, ev)
	case EventPlayerRemove:
		if !removePlayer(m.ctx, ev.PlayerID) {
			m.emit(HookInvalidPlayer, ev)
			return
		}
		m.logAction(ev.PlayerID, "player_remove", nil)
		m.emit(HookPlayerRemove, ev)
	default:
		m.emit(HookNoGame, ev)
	}
}

// dispatchRound handles events for the composite round state. HAND_REQUEST
// and PLAYER_REMOVE are live in every sub-state; the rest depend on where in
// the turn we are.
func (m *Machine) dispatchRound(ev Event) {
	switch ev.Type {
	case EventHandRequest:
		m.emitTo(ev.PlayerID, HookHand, ev)
		return
	case EventPlayerRemove:
		m.handleMidgameRemove(ev)
		return
	}

	switch m.state {
	case StateRoundWaiting:
		switch ev.Type {
		case EventCardPlay:
			m.handleCardPlay(ev)
		case EventCardDraw:
			m.handleCardDraw(ev)
		case EventPlayerPass:
			m.handlePass(ev)
		default:
			m.emit(HookNoGame, ev)
		}

	case StateRoundDraw:
		switch ev.Type {
		case EventCardPlay:
			// the freshly drawn card may still be played this turn
			m.handleCardPlay(ev)
		case EventCardDraw:
			if isPlayerInvalid(m.ctx, ev) {
				m.emitTo(ev.PlayerID, HookInvalidPlayer, ev)
				return
			}
			m.emitTo(ev.PlayerID, HookAlreadyDrawn, ev)
		case EventPlayerPass:
			m.handlePass(ev)
		default:
			m.emit(HookNoGame, ev)
		}

	case StateRoundColor:
		switch ev.Type {
		case EventColorChange:
			m.handleColorChange(ev)
		default:
			if isPlayerInvalid(m.ctx, ev) {
				m.emitTo(ev.PlayerID, HookInvalidPlayer, ev)
				return
			}
			m.emit(HookColorChangeNeeded, ev)
		}
	}
}

// --- event handlers -------------------------------------------------------

// handleCardPlay runs the ordered guard chain for a play attempt; the first
// true guard rejects with its notification and leaves state untouched.
func (m *Machine) handleCardPlay(ev Event) {
	if isPlayerInvalid(m.ctx, ev) {
		m.emitTo(ev.PlayerID, HookInvalidPlayer, ev)
		return
	}
	if isCardMissing(m.ctx, ev) {
		m.emitTo(ev.PlayerID, HookMissingCard, ev)
		return
	}
	if isCardInvalid(m.ctx, ev) {
		m.emitTo(ev.PlayerID, HookInvalidCard, ev)
		return
	}

	m.cancelTimerLocked()
	playCard(m.ctx, *ev.Card)
	m.logAction(ev.PlayerID, "card_play", map[string]any{"card": ev.Card.String()})
	m.emit(HookPlay, ev)

	if isGameOver(m.ctx) {
		m.enterAnnounceWinner()
		return
	}
	if playerHasUno(m.ctx) {
		m.emit(HookUno, ev)
	}
	if isColorChangeNeeded(m.ctx) {
		m.enterChangeColor()
		return
	}
	if isSpecialCardPlayed(m.ctx) {
		handleSpecialCard(m.ctx, m.rng, m.cfg.DrawTwoCount, m.cfg.WildDrawFourCount)
	}
	m.finishRound()
}

func (m *Machine) handleCardDraw(ev Event) {
	if isPlayerInvalid(m.ctx, ev) {
		m.emitTo(ev.PlayerID, HookInvalidPlayer, ev)
		return
	}
	if !drawCard(m.ctx, m.rng) {
		m.log.WithField("player", ev.PlayerID).Warn("draw requested with no cards left anywhere")
	}
	m.logAction(ev.PlayerID, "card_draw", nil)
	// the round timer keeps running: drawing does not buy more time
	m.state = StateRoundDraw
	m.emit(HookDraw, ev)
	m.emitTo(ev.PlayerID, HookHand, ev)
}

func (m *Machine) handlePass(ev Event) {
	if isPlayerInvalid(m.ctx, ev) {
		m.emitTo(ev.PlayerID, HookInvalidPlayer, ev)
		return
	}
	if isPassInvalid(m.ctx) {
		m.emitTo(ev.PlayerID, HookInvalidPass, ev)
		return
	}
	m.logAction(ev.PlayerID, "player_pass", nil)
	m.emit(HookPass, ev)
	m.finishRound()
}

func (m *Machine) handleColorChange(ev Event) {
	if isPlayerInvalid(m.ctx, ev) {
		m.emitTo(ev.PlayerID, HookInvalidPlayer, ev)
		return
	}
	if isColorInvalid(ev) {
		m.emitTo(ev.PlayerID, HookInvalidColor, ev)
		return
	}
	color, _ := deck.ColorFromString(ev.Color)
	changeColor(m.ctx, color)
	m.logAction(ev.PlayerID, "color_change", map[string]any{"color": color.String()})
	m.emit(HookColorChange, ev)

	if isSpecialCardPlayed(m.ctx) {
		handleSpecialCard(m.ctx, m.rng, m.cfg.DrawTwoCount, m.cfg.WildDrawFourCount)
	}
	m.finishRound()
}

// handleMidgameRemove drops a player from a running game. Their cards join
// the discard pile; if the table falls below two players the survivor wins by
// forfeit, and a departing active player forfeits the rest of their turn.
func (m *Machine) handleMidgameRemove(ev Event) {
	wasActive := m.ctx.ActivePlayer != nil && m.ctx.ActivePlayer.ID == ev.PlayerID
	if !removePlayer(m.ctx, ev.PlayerID) {
		m.emitTo(ev.PlayerID, HookInvalidPlayer, ev)
		return
	}
	m.logAction(ev.PlayerID, "player_remove", map[string]any{"midgame": true})
	m.emit(HookPlayerRemove, ev)

	if len(m.ctx.Players) < 2 {
		m.enterAnnounceWinner()
		return
	}
	if wasActive {
		if m.state == StateRoundColor {
			// nobody is left to answer the color prompt
			changeColorRandom(m.ctx, m.rng)
			m.emit(HookColorChange, ev)
			if isSpecialCardPlayed(m.ctx) {
				handleSpecialCard(m.ctx, m.rng, m.cfg.DrawTwoCount, m.cfg.WildDrawFourCount)
			}
		}
		m.finishRound()
	}
}

func (m *Machine) handleStop(ev Event) {
	m.logAction(ev.PlayerID, "game_stop", nil)
	m.emit(HookGameStop, ev)

	if m.recorder != nil && m.ctx.GameID != uuid.Nil {
		gameID := m.ctx.GameID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.recorder.StopGame(ctx, gameID); err != nil {
				m.log.WithError(err).Warn("failed to record game stop")
			}
		}()
	}
	m.cancelTimerLocked()
	m.state = StateStopped
	m.scheduleLocked(m.cfg.EndDelay)
}

// handleTimer resolves a non-stale timer firing for the current state.
func (m *Machine) handleTimer() {
	switch m.state {
	case StateSolicit:
		if canGameStart(m.ctx, m.cfg.MinimumPlayers()) {
			m.enterSetup()
			return
		}
		m.enterNoPlayers()

	case StateRoundWaiting, StateRoundDraw:
		m.emit(HookSkipPlayer, Event{})
		m.logAction(m.activePlayerID(), "player_timeout", nil)
		m.finishRound()

	case StateRoundColor:
		// the pending special effect still resolves: a WildDrawFour's
		// penalty is never lost to a slow color choice
		color := changeColorRandom(m.ctx, m.rng)
		m.logAction(m.activePlayerID(), "color_change", map[string]any{"color": color.String(), "auto": true})
		m.emit(HookColorChange, Event{})
		m.emit(HookSkipPlayer, Event{})
		if isSpecialCardPlayed(m.ctx) {
			handleSpecialCard(m.ctx, m.rng, m.cfg.DrawTwoCount, m.cfg.WildDrawFourCount)
		}
		m.finishRound()

	case StateAnnounceWinner, StateNoPlayers, StateStopped:
		m.enterIdle()
	}
}

// --- state entries --------------------------------------------------------

func (m *Machine) enterIdle() {
	m.cancelTimerLocked()
	m.ctx = NewContext()
	m.seq = 0
	m.state = StateIdle
}

func (m *Machine) enterSolicit() {
	m.state = StateSolicit
	m.emit(HookSolicit, Event{})
	m.scheduleLocked(m.cfg.SolicitDelay)
}

// enterSetup is the transient dealing state: shuffle seating, deal hands,
// register the game with the recorder and fall through to the first round.
func (m *Machine) enterSetup() {
	shufflePlayers(m.ctx, m.rng)
	dealHands(m.ctx, m.rng, m.cfg.HandSize)
	m.ctx.GameID = uuid.New()
	m.logAction("", "game_start", map[string]any{"players": len(m.ctx.Players)})
	m.emit(HookGameStart, Event{})

	if m.recorder != nil {
		gameID := m.ctx.GameID
		players := append([]Player(nil), m.ctx.Players...)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.recorder.CreateGame(ctx, gameID, players); err != nil {
				m.log.WithError(err).Warn("failed to record game start")
			}
		}()
	}
	m.startRound()
}

// startRound is the transient per-turn pivot: advance the active player,
// reset the draw/pass flag, recycle the deck if needed and either finish the
// game or open the next turn.
func (m *Machine) startRound() {
	activateNextPlayer(m.ctx)
	resetLastDrawPlayer(m.ctx)
	if isDeckEmpty(m.ctx) {
		rebuildDeck(m.ctx, m.rng)
		m.emit(HookDeckRecycled, Event{})
	}
	if isGameOver(m.ctx) {
		m.enterAnnounceWinner()
		return
	}
	m.state = StateRoundWaiting
	m.emit(HookRoundStart, Event{})
	m.emitTo(m.activePlayerID(), HookHand, Event{})
	m.scheduleLocked(m.cfg.RoundDelay)
}

func (m *Machine) finishRound() {
	m.cancelTimerLocked()
	m.startRound()
}

func (m *Machine) enterChangeColor() {
	m.state = StateRoundColor
	m.emit(HookColorChangeNeeded, Event{})
	m.scheduleLocked(m.cfg.RoundDelay)
}

func (m *Machine) enterAnnounceWinner() {
	m.cancelTimerLocked()

	winner := m.winnerLocked()
	scores := make(map[string]int, len(m.ctx.Players))
	for _, p := range m.ctx.Players {
		scores[p.ID] = deck.ScoreHand(m.ctx.Hands[p.ID])
	}
	m.logAction(winner.ID, "game_winner", map[string]any{"scores": scores})
	m.pending = append(m.pending, Notification{
		Hook:     HookWinner,
		Winner:   &winner,
		Scores:   scores,
		Snapshot: m.snapshotLocked(),
	})

	if m.recorder != nil && m.ctx.GameID != uuid.Nil {
		gameID := m.ctx.GameID
		winnerID := winner.ID
		recorded := make(map[string]int, len(scores))
		for id, s := range scores {
			recorded[id] = s
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for id, score := range recorded {
				if err := m.recorder.RecordScore(ctx, gameID, id, score); err != nil {
					m.log.WithError(err).WithField("player", id).Warn("failed to record score")
				}
			}
			if err := m.recorder.SetWinner(ctx, gameID, winnerID); err != nil {
				m.log.WithError(err).Warn("failed to record winner")
			}
			if err := m.recorder.StopGame(ctx, gameID); err != nil {
				m.log.WithError(err).Warn("failed to close game record")
			}
		}()
	}

	m.state = StateAnnounceWinner
	m.scheduleLocked(m.cfg.EndDelay)
}

func (m *Machine) enterNoPlayers() {
	m.logAction("", "game_cancelled", nil)
	m.emit(HookNoPlayers, Event{})
	m.state = StateNoPlayers
	m.scheduleLocked(m.cfg.EndDelay)
}

// winnerLocked identifies the player who emptied their hand; when the game
// ends by forfeit instead, the sole surviving player wins.
func (m *Machine) winnerLocked() Player {
	for _, p := range m.ctx.Players {
		if hand, ok := m.ctx.Hands[p.ID]; ok && len(hand) == 0 {
			return p
		}
	}
	if len(m.ctx.Players) == 1 {
		return m.ctx.Players[0]
	}
	return Player{}
}

// --- timers ---------------------------------------------------------------

// scheduleLocked arms the single delayed-transition slot for the current
// state, superseding whatever was armed before. The firing carries the token
// so that exiting the state (which bumps the token) implicitly cancels it.
func (m *Machine) scheduleLocked(d time.Duration) {
	m.timerToken++
	token := m.timerToken
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(d, func() {
		select {
		case m.events <- envelope{tick: true, token: token}:
		case <-m.stopc:
		}
	})
}

func (m *Machine) cancelTimerLocked() {
	m.timerToken++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// --- effects --------------------------------------------------------------

// emit queues a broadcast notification with a post-commit snapshot.
func (m *Machine) emit(hook Hook, ev Event) {
	m.pending = append(m.pending, Notification{
		Hook:     hook,
		Event:    ev,
		Snapshot: m.snapshotLocked(),
	})
}

// emitTo queues a notification addressed to a single player.
func (m *Machine) emitTo(playerID string, hook Hook, ev Event) {
	m.pending = append(m.pending, Notification{
		Hook:     hook,
		Event:    ev,
		PlayerID: playerID,
		Snapshot: m.snapshotLocked(),
	})
}

func (m *Machine) snapshotLocked() Snapshot {
	c := m.ctx
	snap := Snapshot{
		State:       m.state,
		GameID:      c.GameID,
		Players:     append([]Player(nil), c.Players...),
		ActiveColor: c.ActiveColor,
		DiscardTop:  c.DiscardTop(),
		DeckSize:    len(c.Deck),
		DiscardSize: len(c.DiscardPile),
		HandSizes:   make(map[string]int, len(c.Hands)),
		Hands:       make(map[string][]deck.Card, len(c.Hands)),
	}
	if c.ActivePlayer != nil {
		active := *c.ActivePlayer
		snap.ActivePlayer = &active
	}
	for id, hand := range c.Hands {
		snap.HandSizes[id] = len(hand)
		snap.Hands[id] = append([]deck.Card(nil), hand...)
	}
	return snap
}

func (m *Machine) activePlayerID() string {
	if m.ctx.ActivePlayer == nil {
		return ""
	}
	return m.ctx.ActivePlayer.ID
}

// logAction pushes an applied transition onto the action history queue,
// best-effort, off the event loop.
func (m *Machine) logAction(playerID, action string, payload map[string]any) {
	if m.history == nil {
		return
	}
	m.seq++
	rec := ActionRecord{
		GameID:      m.ctx.GameID,
		ActionIndex: m.seq,
		PlayerID:    playerID,
		ActionType:  action,
		Payload:     payload,
		Timestamp:   time.Now().UnixMilli(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := m.history.Publish(ctx, rec); err != nil {
			m.log.WithError(err).Debug("failed to publish action record")
		}
	}()
}
