package retrieval

import "database/sql"

// migrate creates the schema if it doesn't exist. Documents are keyed by
// (corpus, id) so the same excerpt can live in more than one corpus.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS documents (
			corpus     TEXT NOT NULL,
			id         TEXT NOT NULL,
			text       TEXT NOT NULL,
			embedding  BLOB,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (corpus, id)
		);

		CREATE INDEX IF NOT EXISTS documents_corpus ON documents(corpus);
	`
	_, err := db.Exec(schema)
	return err
}
