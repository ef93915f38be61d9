// internal/handlers/messages.go
package handlers

import (
	"fmt"
	"strings"

	"github.com/cardtable/uno-service/internal/auth"
	"github.com/cardtable/uno-service/internal/deck"
	"github.com/cardtable/uno-service/internal/uno"
)

// commandMessage is an inbound WebSocket frame: a command type plus the
// payload fields the command needs. The acting player always comes from the
// session token, never from the frame.
type commandMessage struct {
	Type  string `json:"type"`
	Card  string `json:"card,omitempty"`
	Color string `json:"color,omitempty"`
}

// outboundMessage is the rendered form of a machine notification. Hand is
// only populated on privately-addressed messages.
type outboundMessage struct {
	Hook     uno.Hook       `json:"hook"`
	Event    uno.Event      `json:"event"`
	Winner   *uno.Player    `json:"winner,omitempty"`
	Scores   map[string]int `json:"scores,omitempty"`
	Snapshot uno.Snapshot   `json:"snapshot"`
	Hand     []deck.Card    `json:"hand,omitempty"`
}

// errorMessage is sent back to a client whose frame was rejected before it
// ever became an event.
type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// translateCommand validates a frame against the session claims and builds
// the engine event. Malformed input is rejected here, at the ingress
// boundary, so the machine only ever sees well-formed events; a card string
// that fails to parse never reaches dispatch.
func translateCommand(claims auth.Claims, msg commandMessage) (uno.Event, error) {
	ev := uno.Event{
		Type:     uno.EventType(strings.ToUpper(strings.TrimSpace(msg.Type))),
		PlayerID: claims.PlayerID,
		Username: claims.Username,
	}

	switch ev.Type {
	case uno.EventGameStart, uno.EventGameStop:
		if !claims.Admin {
			return uno.Event{}, fmt.Errorf("command %s requires an admin session", ev.Type)
		}
	case uno.EventCardPlay:
		card := deck.FromString(msg.Card)
		if card == nil {
			return uno.Event{}, fmt.Errorf("unrecognized card %q", msg.Card)
		}
		ev.Card = card
	case uno.EventColorChange:
		ev.Color = msg.Color
	case uno.EventGameStatus, uno.EventPlayerAdd, uno.EventPlayerRemove,
		uno.EventCardDraw, uno.EventPlayerPass, uno.EventHandRequest:
		// no payload
	default:
		return uno.Event{}, fmt.Errorf("unknown command type %q", msg.Type)
	}
	return ev, nil
}

// renderNotification builds the outbound frame for one notification. The full
// hands map never leaves the snapshot (it is not serialized); the addressed
// player's own hand is attached explicitly on private messages.
func renderNotification(n uno.Notification) outboundMessage {
	out := outboundMessage{
		Hook:     n.Hook,
		Event:    n.Event,
		Winner:   n.Winner,
		Scores:   n.Scores,
		Snapshot: n.Snapshot,
	}
	if n.PlayerID != "" {
		out.Hand = n.Snapshot.Hands[n.PlayerID]
	}
	return out
}
