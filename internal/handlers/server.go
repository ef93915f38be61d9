// internal/handlers/server.go
package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cardtable/uno-service/internal/auth"
	"github.com/cardtable/uno-service/internal/config"
	"github.com/cardtable/uno-service/internal/database"
	"github.com/cardtable/uno-service/internal/uno"
)

// GameServer owns the table machines and their connected clients. One machine
// per table name; clients attach over WebSocket and the machine's
// notifications fan out to them.
type GameServer struct {
	Logger   *logrus.Logger
	Config   config.Config
	Sessions *auth.Sessions
	Tables   *uno.Store

	// DB is nil when Postgres is not configured; the engine runs without it.
	DB *database.Store
	// History is nil when Redis is not configured.
	History uno.ActionLog

	mu      sync.Mutex
	clients map[string]map[*client]struct{}
}

// NewGameServer wires a gateway around the given collaborators. db and
// history may be nil.
func NewGameServer(logger *logrus.Logger, cfg config.Config, sessions *auth.Sessions, db *database.Store, history uno.ActionLog) *GameServer {
	return &GameServer{
		Logger:   logger,
		Config:   cfg,
		Sessions: sessions,
		Tables:   uno.NewStore(),
		DB:       db,
		History:  history,
		clients:  make(map[string]map[*client]struct{}),
	}
}

// Handler builds the gateway's route table.
func (gs *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", gs.SessionHandler)
	mux.HandleFunc("/leaderboard", gs.LeaderboardHandler)
	mux.HandleFunc("/table/ws/", TableWSHandler(gs.Logger, gs))
	return mux
}

// Close tears down every running table machine.
func (gs *GameServer) Close() {
	gs.Tables.Close()
}

// machineFor returns the table's machine, starting one on first use. The
// machine's notify callback fans out to whatever clients are attached to the
// table at delivery time.
func (gs *GameServer) machineFor(table string) *uno.Machine {
	return gs.Tables.GetOrCreate(table, func() *uno.Machine {
		m := uno.NewMachine(gs.Config.Game, uno.Options{
			Logger: gs.Logger.WithField("table", table),
			Notify: func(n uno.Notification) {
				gs.fanOut(table, n)
			},
			Recorder: gs.recorder(),
			History:  gs.History,
		})
		m.Start()
		return m
	})
}

// recorder adapts the optional DB handle to the engine interface; a typed nil
// pointer must not leak into the interface value.
func (gs *GameServer) recorder() uno.Recorder {
	if gs.DB == nil {
		return nil
	}
	return gs.DB
}

// SessionHandler mints a session token. Anyone may request a player session;
// the admin claim requires the configured admin key.
func (gs *GameServer) SessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		PlayerID string `json:"playerId"`
		Username string `json:"username"`
		AdminKey string `json:"adminKey,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" {
		req.PlayerID = uuid.NewString()
	}
	if req.Username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	admin := false
	if req.AdminKey != "" {
		if gs.Config.Auth.AdminKey == "" || req.AdminKey != gs.Config.Auth.AdminKey {
			http.Error(w, "Invalid admin key", http.StatusForbidden)
			return
		}
		admin = true
	}

	token, err := gs.Sessions.CreateToken(req.PlayerID, req.Username, admin)
	if err != nil {
		gs.Logger.WithError(err).Error("failed to sign session token")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"token":    token,
		"playerId": req.PlayerID,
		"admin":    admin,
	})
}

// LeaderboardHandler serves the all-time score ranking. Without Postgres the
// endpoint reports itself unavailable rather than an empty board.
func (gs *GameServer) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if gs.DB == nil {
		http.Error(w, "Leaderboard is not enabled", http.StatusServiceUnavailable)
		return
	}

	rows, err := gs.DB.Leaderboard(r.Context(), 100)
	if err != nil {
		gs.Logger.WithError(err).Error("leaderboard query failed")
		http.Error(w, "Failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []database.LeaderboardRow{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

// register attaches a client to a table's fan-out set.
func (gs *GameServer) register(table string, cl *client) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	set, ok := gs.clients[table]
	if !ok {
		set = make(map[*client]struct{})
		gs.clients[table] = set
	}
	set[cl] = struct{}{}
}

// unregister detaches a client and closes its send channel.
func (gs *GameServer) unregister(table string, cl *client) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	set, ok := gs.clients[table]
	if !ok {
		return
	}
	if _, ok := set[cl]; ok {
		delete(set, cl)
		close(cl.out)
	}
	if len(set) == 0 {
		delete(gs.clients, table)
	}
}

// fanOut delivers one machine notification to the table's clients. Addressed
// notifications reach only the target player's connections; broadcasts reach
// everyone. A client whose send buffer is full misses the message instead of
// stalling the table.
func (gs *GameServer) fanOut(table string, n uno.Notification) {
	frame, err := json.Marshal(renderNotification(n))
	if err != nil {
		gs.Logger.WithError(err).Error("failed to marshal notification")
		return
	}

	gs.mu.Lock()
	defer gs.mu.Unlock()
	for cl := range gs.clients[table] {
		if n.PlayerID != "" && cl.playerID != n.PlayerID {
			continue
		}
		select {
		case cl.out <- frame:
		default:
			gs.Logger.WithFields(logrus.Fields{
				"table":  table,
				"player": cl.playerID,
			}).Warn("client send buffer full, dropping message")
		}
	}
}
