// internal/handlers/table_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/cardtable/uno-service/internal/auth"
	"github.com/cardtable/uno-service/internal/middleware"
	"github.com/cardtable/uno-service/internal/uno"
)

const writeTimeout = 5 * time.Second

// client is one WebSocket connection attached to a table. out is the send
// buffer drained by the connection's writer goroutine.
type client struct {
	playerID string
	username string
	admin    bool
	out      chan []byte
}

// TableWSHandler upgrades the HTTP connection to WebSocket for one table:
// /table/ws/{table}?token=... The token is the session JWT from /session; its
// claims identify the player for every frame on the connection.
func TableWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := strings.Trim(strings.TrimPrefix(r.URL.Path, "/table/ws/"), "/")
		if table == "" || strings.Contains(table, "/") {
			http.Error(w, "Missing table in path (/table/ws/{table})", http.StatusBadRequest)
			return
		}

		claims, err := sessionClaims(gs.Sessions, r)
		if err != nil {
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"uno"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for table %s: %v", table, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "uno" {
			c.Close(websocket.StatusPolicyViolation, "Client must use the 'uno' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, table, claims.PlayerID)

		m := gs.machineFor(table)
		cl := &client{
			playerID: claims.PlayerID,
			username: claims.Username,
			admin:    claims.Admin,
			out:      make(chan []byte, 32),
		}
		gs.register(table, cl)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine: drains the client's send buffer onto the socket.
		go func() {
			for frame := range cl.out {
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err := c.Write(wctx, websocket.MessageText, frame)
				wcancel()
				if err != nil {
					cancel()
					return
				}
			}
		}()

		readErr := readLoop(ctx, c, cl, m, logger, table)

		gs.unregister(table, cl)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, table, claims.PlayerID, readErr)
		c.Close(websocket.StatusNormalClosure, "Closing connection.")
	}
}

// readLoop consumes frames until the connection drops, translating each into
// an engine event. Rejected frames get an error reply on this connection and
// never reach the machine.
func readLoop(ctx context.Context, c *websocket.Conn, cl *client, m *uno.Machine, logger *logrus.Logger, table string) error {
	claims := auth.Claims{PlayerID: cl.playerID, Username: cl.username, Admin: cl.admin}
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return err
		}

		var msg commandMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendError(cl, "invalid JSON frame")
			continue
		}

		ev, err := translateCommand(claims, msg)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"table":  table,
				"player": cl.playerID,
			}).WithError(err).Debug("rejected command frame")
			sendError(cl, err.Error())
			continue
		}
		m.Send(ev)
	}
}

func sendError(cl *client, message string) {
	frame, err := json.Marshal(errorMessage{Type: "error", Message: message})
	if err != nil {
		return
	}
	select {
	case cl.out <- frame:
	default:
	}
}

// sessionClaims pulls the session token from the query string or the
// Authorization header and verifies it.
func sessionClaims(sessions *auth.Sessions, r *http.Request) (auth.Claims, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return sessions.Verify(token)
}
