// internal/database/store.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/cardtable/uno-service/internal/uno"
)

// Store persists game outcomes to Postgres. It implements uno.Recorder. All
// writes are best-effort from the engine's point of view: the machine fires
// them off the event loop and failures are logged, never fed back into game
// progression.
type Store struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

// Connect opens a pgx pool against url and verifies it with a short ping.
func Connect(ctx context.Context, url string, log *logrus.Entry) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// CreateGame upserts the participating users and opens a game row with one
// game_players row per seat.
func (s *Store) CreateGame(ctx context.Context, gameID uuid.UUID, players []uno.Player) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		insertGame := `
			INSERT INTO games (id, started)
			VALUES ($1, NOW())
			ON CONFLICT (id) DO NOTHING
		`
		if _, err := tx.Exec(ctx, insertGame, gameID); err != nil {
			return err
		}
		for _, p := range players {
			upsertUser := `
				INSERT INTO users (id, username)
				VALUES ($1, $2)
				ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
			`
			if _, err := tx.Exec(ctx, upsertUser, p.ID, p.Username); err != nil {
				return err
			}
			insertSeat := `
				INSERT INTO game_players (game_id, player_id)
				VALUES ($1, $2)
				ON CONFLICT (game_id, player_id) DO NOTHING
			`
			if _, err := tx.Exec(ctx, insertSeat, gameID, p.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx create game %s: %w", gameID, err)
	}
	return nil
}

// StopGame closes the game row.
func (s *Store) StopGame(ctx context.Context, gameID uuid.UUID) error {
	q := `UPDATE games SET stopped = NOW() WHERE id = $1 AND stopped IS NULL`
	if _, err := s.pool.Exec(ctx, q, gameID); err != nil {
		return fmt.Errorf("stop game %s: %w", gameID, err)
	}
	return nil
}

// RecordScore stores one player's end-of-game score.
func (s *Store) RecordScore(ctx context.Context, gameID uuid.UUID, playerID string, score int) error {
	q := `UPDATE game_players SET score = $3 WHERE game_id = $1 AND player_id = $2`
	if _, err := s.pool.Exec(ctx, q, gameID, playerID, score); err != nil {
		return fmt.Errorf("record score for %s in game %s: %w", playerID, gameID, err)
	}
	return nil
}

// SetWinner marks the winning seat.
func (s *Store) SetWinner(ctx context.Context, gameID uuid.UUID, playerID string) error {
	q := `UPDATE game_players SET did_win = TRUE WHERE game_id = $1 AND player_id = $2`
	if _, err := s.pool.Exec(ctx, q, gameID, playerID); err != nil {
		return fmt.Errorf("set winner for game %s: %w", gameID, err)
	}
	return nil
}

// InsertActions writes a batch of action records in one transaction. The game
// row is upserted first so actions survive even when the gateway's own
// CreateGame write lost a race or failed.
func (s *Store) InsertActions(ctx context.Context, recs []uno.ActionRecord) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertGame := `
			INSERT INTO games (id, started)
			VALUES ($1, NOW())
			ON CONFLICT (id) DO NOTHING
		`
		insertAction := `
			INSERT INTO game_actions (game_id, action_index, player_id, action_type, payload, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (game_id, action_index) DO NOTHING
		`
		for _, rec := range recs {
			if _, err := tx.Exec(ctx, upsertGame, rec.GameID); err != nil {
				return err
			}
			payload, err := json.Marshal(rec.Payload)
			if err != nil {
				return err
			}
			recordedAt := time.UnixMilli(rec.Timestamp)
			if _, err := tx.Exec(ctx, insertAction,
				rec.GameID, rec.ActionIndex, rec.PlayerID, rec.ActionType, payload, recordedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx insert %d actions: %w", len(recs), err)
	}
	return nil
}

// MarkAbandoned closes a game row that never saw a proper stop.
func (s *Store) MarkAbandoned(ctx context.Context, gameID uuid.UUID) error {
	q := `UPDATE games SET stopped = NOW(), abandoned = TRUE WHERE id = $1 AND stopped IS NULL`
	if _, err := s.pool.Exec(ctx, q, gameID); err != nil {
		return fmt.Errorf("mark game %s abandoned: %w", gameID, err)
	}
	return nil
}

// LeaderboardRow is one ranked entry of the all-time leaderboard.
type LeaderboardRow struct {
	PlayerID string  `json:"playerId"`
	Username string  `json:"username"`
	Score    int     `json:"score"`
	Games    int     `json:"games"`
	Ratio    float64 `json:"ratio"`
	Wins     int     `json:"wins"`
}

// Leaderboard returns up to limit players ranked by total score across all
// completed games.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `
		SELECT u.id,
		       u.username,
		       COALESCE(SUM(gp.score), 0)    AS total_score,
		       COUNT(gp.game_id)             AS games,
		       COUNT(*) FILTER (WHERE gp.did_win) AS wins
		  FROM users u
		  JOIN game_players gp ON gp.player_id = u.id
		 GROUP BY u.id, u.username
		HAVING COUNT(gp.game_id) > 0
		 ORDER BY total_score DESC
		 LIMIT $1
	`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	defer rows.Close()

	var out []LeaderboardRow
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.PlayerID, &r.Username, &r.Score, &r.Games, &r.Wins); err != nil {
			return nil, fmt.Errorf("leaderboard scan: %w", err)
		}
		if r.Games > 0 {
			r.Ratio = float64(r.Score) / float64(r.Games)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
