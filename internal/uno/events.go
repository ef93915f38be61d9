// internal/uno/events.go
package uno

import "github.com/cardtable/uno-service/internal/deck"

// EventType tags an inbound command. The transport layer translates user
// input into exactly one of these before dispatch.
type EventType string

const (
	EventGameStart    EventType = "GAME_START"
	EventGameStop     EventType = "GAME_STOP"
	EventGameStatus   EventType = "GAME_STATUS"
	EventPlayerAdd    EventType = "PLAYER_ADD"
	EventPlayerRemove EventType = "PLAYER_REMOVE"
	EventCardPlay     EventType = "CARD_PLAY"
	EventCardDraw     EventType = "CARD_DRAW"
	EventPlayerPass   EventType = "PLAYER_PASS"
	EventColorChange  EventType = "COLOR_CHANGE"
	EventHandRequest  EventType = "HAND_REQUEST"
)

// Event is a single command delivered to the machine. PlayerID identifies the
// acting player; Card is set for CARD_PLAY (nil when the input failed to
// parse, which the guards treat as always-invalid) and Color carries the raw
// requested color string for COLOR_CHANGE.
type Event struct {
	Type     EventType  `json:"type"`
	PlayerID string     `json:"playerId"`
	Username string     `json:"username,omitempty"`
	Card     *deck.Card `json:"card,omitempty"`
	Color    string     `json:"color,omitempty"`
}
