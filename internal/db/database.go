package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/manpreetbhatti/tally/backend/internal/games"
	"github.com/manpreetbhatti/tally/backend/internal/model"
)

// Database is the SQLite games store. One row per game; players and their
// scores live in a JSON column since they are always read and written as a
// whole.
type Database struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ games.Repository = (*Database)(nil)

func New(dbPath string, logger zerolog.Logger) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Writers serialize on the single connection, which is what makes
	// Mutate's read-modify-write atomic.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Str("path", dbPath).Msg("database initialized")
	return &Database{db: db, logger: logger.With().Str("component", "db").Logger()}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		game_type TEXT NOT NULL DEFAULT '',
		lower_score_wins BOOLEAN NOT NULL DEFAULT FALSE,
		players TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_games_updated_at ON games(updated_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping is used by the health check.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) Create(ctx context.Context, game *model.Game) error {
	players, err := json.Marshal(game.Players)
	if err != nil {
		return err
	}

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO games (id, name, game_type, lower_score_wins, players)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, game.GameID, game.Name, string(game.GameType), game.LowerScoreWins, string(players))
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return games.ErrGameExists(game.GameID)
	}
	return nil
}

func (d *Database) Get(ctx context.Context, gameID string) (*model.Game, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT id, name, game_type, lower_score_wins, players FROM games WHERE id = ?",
		gameID,
	)
	return scanGame(row, gameID)
}

func (d *Database) List(ctx context.Context) ([]*model.Game, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, name, game_type, lower_score_wins, players FROM games ORDER BY id ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*model.Game{}
	for rows.Next() {
		g, err := scanGame(rows, "")
		if err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

// Mutate loads the game, applies fn and writes it back in one transaction.
// A failing fn rolls back and leaves the row untouched.
func (d *Database) Mutate(ctx context.Context, gameID string, fn func(*model.Game) error) (*model.Game, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT id, name, game_type, lower_score_wins, players FROM games WHERE id = ?",
		gameID,
	)
	g, err := scanGame(row, gameID)
	if err != nil {
		return nil, err
	}

	if err := fn(g); err != nil {
		return nil, err
	}

	players, err := json.Marshal(g.Players)
	if err != nil {
		return nil, err
	}

	// The id column is authoritative; a full overwrite cannot rename a game.
	g.GameID = gameID
	_, err = tx.ExecContext(ctx, `
		UPDATE games
		SET name = ?, game_type = ?, lower_score_wins = ?, players = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, g.Name, string(g.GameType), g.LowerScoreWins, string(players), gameID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return g, nil
}

func (d *Database) Delete(ctx context.Context, gameID string) error {
	res, err := d.db.ExecContext(ctx, "DELETE FROM games WHERE id = ?", gameID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return games.ErrGameNotFound(gameID)
	}
	return nil
}

// Stats

func (d *Database) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var gameCount int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM games").Scan(&gameCount); err != nil {
		return nil, err
	}
	stats["game_count"] = gameCount

	var playerCount int
	if err := d.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(json_array_length(players)), 0) FROM games",
	).Scan(&playerCount); err != nil {
		return nil, err
	}
	stats["player_count"] = playerCount

	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner, gameID string) (*model.Game, error) {
	var (
		g        model.Game
		gameType string
		players  string
	)
	err := row.Scan(&g.GameID, &g.Name, &gameType, &g.LowerScoreWins, &players)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, games.ErrGameNotFound(gameID)
	}
	if err != nil {
		return nil, err
	}

	g.GameType = model.GameType(gameType)
	if err := json.Unmarshal([]byte(players), &g.Players); err != nil {
		return nil, fmt.Errorf("decode players of %s: %w", g.GameID, err)
	}
	g.Normalize()
	return &g, nil
}
