// internal/config/config.go
package config

import (
	"errors"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the full service configuration, decoded from the environment.
// Values are read once at startup; a .env file is honored via the godotenv
// autoload import in main.
type Config struct {
	Server    Server
	Game      Game
	Auth      Auth
	Postgres  Postgres
	Redis     Redis
	Historian Historian
}

// Server holds the HTTP/WebSocket gateway settings.
type Server struct {
	Addr string `env:"UNO_HTTP_ADDR,default=:8080"`
}

// Auth holds session-token settings for the gateway.
type Auth struct {
	// AdminKey grants the admin claim to sessions created with it. Empty
	// disables admin sessions entirely.
	AdminKey    string        `env:"UNO_ADMIN_KEY"`
	TokenExpiry time.Duration `env:"UNO_TOKEN_EXPIRY,default=72h"`
}

// Postgres holds the score persistence settings. An empty URL disables
// persistence; the engine runs without it.
type Postgres struct {
	URL string `env:"UNO_POSTGRES_URL"`
}

// Redis holds the action-history queue settings. An empty address disables
// history publishing.
type Redis struct {
	Addr  string `env:"UNO_REDIS_ADDR"`
	DB    int    `env:"UNO_REDIS_DB,default=0"`
	Queue string `env:"UNO_HISTORY_QUEUE,default=uno_actions"`
}

// Historian holds the action-history consumer settings.
type Historian struct {
	BatchSize  int           `env:"UNO_HISTORIAN_BATCH_SIZE,default=20"`
	FlushDelay time.Duration `env:"UNO_HISTORIAN_FLUSH_DELAY,default=500ms"`
	// Inactivity is how long a game's action stream may go silent before its
	// row is closed as abandoned.
	Inactivity time.Duration `env:"UNO_HISTORIAN_INACTIVITY,default=10m"`
}

// Normalize fills zero-valued settings with their defaults.
func (h *Historian) Normalize() {
	if h.BatchSize <= 0 {
		h.BatchSize = 20
	}
	if h.FlushDelay <= 0 {
		h.FlushDelay = 500 * time.Millisecond
	}
	if h.Inactivity <= 0 {
		h.Inactivity = 10 * time.Minute
	}
}

// Game holds every named tunable the state machine consumes. Nothing in the
// core logic hardcodes these.
type Game struct {
	// SolicitDelay is how long the join window stays open.
	SolicitDelay time.Duration `env:"UNO_GAME_SOLICIT_DELAY,default=60s"`
	// RoundDelay is the per-turn timeout, also used for color choices.
	RoundDelay time.Duration `env:"UNO_GAME_ROUND_DELAY,default=120s"`
	// EndDelay is the pause on winner/no-players/stop announcements before
	// the table returns to idle.
	EndDelay time.Duration `env:"UNO_GAME_END_DELAY,default=20s"`

	MinPlayers int `env:"UNO_GAME_MIN_PLAYERS,default=2"`
	// Debug allows single-player games for testing.
	Debug bool `env:"UNO_GAME_DEBUG_MODE,default=false"`

	HandSize          int `env:"UNO_GAME_HAND_SIZE,default=7"`
	DrawTwoCount      int `env:"UNO_GAME_DRAW_TWO_COUNT,default=2"`
	WildDrawFourCount int `env:"UNO_GAME_WILD_DRAW_COUNT,default=4"`
}

// MinimumPlayers is the effective threshold for canGameStart.
func (g Game) MinimumPlayers() int {
	if g.Debug {
		return 1
	}
	return g.MinPlayers
}

// Normalize fills zero-valued tunables with their defaults so a zero Game (as
// used in tests) behaves sensibly.
func (g *Game) Normalize() {
	if g.SolicitDelay <= 0 {
		g.SolicitDelay = 60 * time.Second
	}
	if g.RoundDelay <= 0 {
		g.RoundDelay = 120 * time.Second
	}
	if g.EndDelay <= 0 {
		g.EndDelay = 20 * time.Second
	}
	if g.MinPlayers <= 0 {
		g.MinPlayers = 2
	}
	if g.HandSize <= 0 {
		g.HandSize = 7
	}
	if g.DrawTwoCount <= 0 {
		g.DrawTwoCount = 2
	}
	if g.WildDrawFourCount <= 0 {
		g.WildDrawFourCount = 4
	}
}

// Load decodes the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	err := envdecode.Decode(&cfg)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, err
	}
	cfg.Game.Normalize()
	return cfg, nil
}
