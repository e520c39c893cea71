// Sqlite-backed summary cache.
package summarize

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// cache persists computed summaries keyed by conversation id and the number
// of exchanges the summary covers, so a restart does not redo the work.
type cache struct {
	db *sql.DB
}

func openCache(path string) (*cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open summary cache: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS summaries (
			conversation_id TEXT NOT NULL,
			covered_exchanges INTEGER NOT NULL,
			summary TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, covered_exchanges)
		)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init summary cache: %w", err)
	}
	return &cache{db: db}, nil
}

func (c *cache) Get(conversationID string, coveredExchanges int) (string, bool) {
	if c == nil || conversationID == "" {
		return "", false
	}
	var summary string
	err := c.db.QueryRow(
		`SELECT summary FROM summaries WHERE conversation_id = ? AND covered_exchanges = ?`,
		conversationID, coveredExchanges,
	).Scan(&summary)
	if err != nil {
		return "", false
	}
	return summary, true
}

func (c *cache) Put(conversationID string, coveredExchanges int, summary string) error {
	if c == nil || conversationID == "" {
		return nil
	}
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO summaries (conversation_id, covered_exchanges, summary, created_at)
		 VALUES (?, ?, ?, ?)`,
		conversationID, coveredExchanges, summary, time.Now().Unix(),
	)
	return err
}

func (c *cache) Close() {
	if c != nil && c.db != nil {
		_ = c.db.Close()
	}
}
