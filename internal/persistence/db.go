// Package persistence provides SQLite-based game storage. A game is stored as
// its configuration, initialization and ordered transaction log; the live
// ledger is rebuilt by replay on load.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/tradeworld/internal/game"
	"github.com/talgya/tradeworld/internal/protocol"
)

// DB wraps a SQLite connection for game persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS games (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL,
		config_json TEXT NOT NULL,
		init_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		game_id INTEGER NOT NULL REFERENCES games(id),
		seq INTEGER NOT NULL,
		tx_json TEXT NOT NULL,
		PRIMARY KEY (game_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_game ON transactions(game_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateGame stores a new game's configuration and initialization and returns
// its id. Transactions are appended separately as they settle.
func (db *DB) CreateGame(g *game.Game) (int64, error) {
	configJSON, err := json.Marshal(g.Configuration())
	if err != nil {
		return 0, fmt.Errorf("marshal configuration: %w", err)
	}
	initJSON, err := json.Marshal(g.Initialization())
	if err != nil {
		return 0, fmt.Errorf("marshal initialization: %w", err)
	}

	res, err := db.conn.Exec(
		"INSERT INTO games (created_at, config_json, init_json) VALUES (?, ?, ?)",
		time.Now().UTC().Format(time.RFC3339), string(configJSON), string(initJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("insert game: %w", err)
	}
	return res.LastInsertId()
}

// AppendTransaction appends one settled transaction to a game's log.
func (db *DB) AppendTransaction(gameID int64, seq int, tx *protocol.Transaction) error {
	txJSON, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	_, err = db.conn.Exec(
		"INSERT INTO transactions (game_id, seq, tx_json) VALUES (?, ?, ?)",
		gameID, seq, string(txJSON),
	)
	if err != nil {
		return fmt.Errorf("insert transaction %d/%d: %w", gameID, seq, err)
	}
	return nil
}

// SaveGame stores a complete game, transaction log included, and returns its
// id. Used when persisting only at the end of a run.
func (db *DB) SaveGame(g *game.Game) (int64, error) {
	gameID, err := db.CreateGame(g)
	if err != nil {
		return 0, err
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO transactions (game_id, seq, tx_json) VALUES (?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for seq, t := range g.Transactions() {
		txJSON, err := json.Marshal(t)
		if err != nil {
			return 0, fmt.Errorf("marshal transaction %d: %w", seq, err)
		}
		if _, err := stmt.Exec(gameID, seq, string(txJSON)); err != nil {
			return 0, fmt.Errorf("insert transaction %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	slog.Info("game saved", "game_id", gameID, "transactions", len(g.Transactions()))
	return gameID, nil
}

// LoadGame reconstructs a stored game by replaying its transaction log.
func (db *DB) LoadGame(gameID int64) (*game.Game, error) {
	var row struct {
		ConfigJSON string `db:"config_json"`
		InitJSON   string `db:"init_json"`
	}
	err := db.conn.Get(&row, "SELECT config_json, init_json FROM games WHERE id = ?", gameID)
	if err != nil {
		return nil, fmt.Errorf("load game %d: %w", gameID, err)
	}

	var cfg game.GameConfiguration
	if err := json.Unmarshal([]byte(row.ConfigJSON), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	var init game.GameInitialization
	if err := json.Unmarshal([]byte(row.InitJSON), &init); err != nil {
		return nil, fmt.Errorf("unmarshal initialization: %w", err)
	}

	var txRows []string
	err = db.conn.Select(&txRows,
		"SELECT tx_json FROM transactions WHERE game_id = ? ORDER BY seq", gameID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	txs := make([]*protocol.Transaction, 0, len(txRows))
	for _, txJSON := range txRows {
		var t protocol.Transaction
		if err := json.Unmarshal([]byte(txJSON), &t); err != nil {
			return nil, fmt.Errorf("unmarshal transaction: %w", err)
		}
		txs = append(txs, &t)
	}

	return game.FromSnapshot(&game.Snapshot{
		Configuration:  &cfg,
		Initialization: &init,
		Transactions:   txs,
	})
}

// LatestGameID returns the id of the most recently created game.
func (db *DB) LatestGameID() (int64, error) {
	var id int64
	err := db.conn.Get(&id, "SELECT id FROM games ORDER BY id DESC LIMIT 1")
	if err != nil {
		return 0, fmt.Errorf("latest game: %w", err)
	}
	return id, nil
}

// GameSummary is one row of the stored-game listing.
type GameSummary struct {
	ID           int64  `db:"id" json:"id"`
	CreatedAt    string `db:"created_at" json:"created_at"`
	Transactions int    `db:"tx_count" json:"transactions"`
}

// ListGames returns summaries of all stored games, newest first.
func (db *DB) ListGames() ([]GameSummary, error) {
	var rows []GameSummary
	err := db.conn.Select(&rows, `
		SELECT g.id, g.created_at, COUNT(t.game_id) AS tx_count
		FROM games g LEFT JOIN transactions t ON t.game_id = g.id
		GROUP BY g.id ORDER BY g.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return rows, nil
}
