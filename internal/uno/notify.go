// internal/uno/notify.go
package uno

import (
	"context"

	"github.com/google/uuid"

	"github.com/cardtable/uno-service/internal/deck"
)

// Hook names the notification points the machine fires. The collaborator
// behind NotifyFn decides how (and whether) each one is rendered; the
// machine's only obligation is to call the right hook at the right transition
// with the right data.
type Hook string

const (
	HookSolicit           Hook = "solicit"
	HookNoPlayers         Hook = "no_players"
	HookGameStart         Hook = "game_start"
	HookGameStop          Hook = "game_stop"
	HookGameStatus        Hook = "game_status"
	HookNoGame            Hook = "no_game"
	HookPlayerAdd         Hook = "player_add"
	HookPlayerRemove      Hook = "player_remove"
	HookAlreadyJoined     Hook = "already_joined"
	HookRoundStart        Hook = "round_start"
	HookHand              Hook = "hand"
	HookPlay              Hook = "play"
	HookDraw              Hook = "draw"
	HookAlreadyDrawn      Hook = "already_drawn"
	HookPass              Hook = "pass"
	HookUno               Hook = "uno"
	HookSkipPlayer        Hook = "skip_player"
	HookInvalidPlayer     Hook = "invalid_player"
	HookMissingCard       Hook = "missing_card"
	HookInvalidCard       Hook = "invalid_card"
	HookInvalidColor      Hook = "invalid_color"
	HookInvalidPass       Hook = "invalid_pass"
	HookColorChangeNeeded Hook = "color_change_needed"
	HookColorChange       Hook = "color_change"
	HookDeckRecycled      Hook = "deck_recycled"
	HookWinner            Hook = "winner"
)

// Snapshot is a read-only copy of the context taken at emission time. It is
// safe to retain and read after the machine has moved on.
type Snapshot struct {
	State        State                  `json:"state"`
	GameID       uuid.UUID              `json:"gameId"`
	Players      []Player               `json:"players"`
	ActivePlayer *Player                `json:"activePlayer,omitempty"`
	ActiveColor  deck.Color             `json:"activeColor"`
	DiscardTop   *deck.Card             `json:"discardTop,omitempty"`
	DeckSize     int                    `json:"deckSize"`
	DiscardSize  int                    `json:"discardSize"`
	HandSizes    map[string]int         `json:"handSizes"`
	Hands        map[string][]deck.Card `json:"-"`
}

// Notification is one egress effect: a hook, the event that triggered it (zero
// for timer-driven hooks), and a context snapshot taken after the commit.
// PlayerID is set for hooks addressed to a single player, such as hand
// reveals and rejections.
type Notification struct {
	Hook     Hook           `json:"hook"`
	Event    Event          `json:"event"`
	PlayerID string         `json:"playerId,omitempty"`
	Winner   *Player        `json:"winner,omitempty"`
	Scores   map[string]int `json:"scores,omitempty"`
	Snapshot Snapshot       `json:"snapshot"`
}

// NotifyFn delivers notifications to the outside world. It is called after the
// triggering event's context changes have committed and must not block; slow
// delivery belongs behind a channel on the collaborator's side.
type NotifyFn func(n Notification)

// Recorder is the persistence egress. All calls are best-effort: the machine
// invokes them off the event loop and logs failures instead of surfacing them
// into game progression.
type Recorder interface {
	CreateGame(ctx context.Context, gameID uuid.UUID, players []Player) error
	StopGame(ctx context.Context, gameID uuid.UUID) error
	RecordScore(ctx context.Context, gameID uuid.UUID, playerID string, score int) error
	SetWinner(ctx context.Context, gameID uuid.UUID, playerID string) error
}

// ActionRecord is one applied transition, queued for the action historian.
type ActionRecord struct {
	GameID      uuid.UUID      `json:"game_id"`
	ActionIndex int            `json:"action_index"`
	PlayerID    string         `json:"player_id,omitempty"`
	ActionType  string         `json:"action_type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   int64          `json:"timestamp"`
}

// ActionLog receives the machine's applied-action stream, best-effort.
type ActionLog interface {
	Publish(ctx context.Context, rec ActionRecord) error
}
