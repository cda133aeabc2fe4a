package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/retail-copilot/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS answers (
	id          TEXT PRIMARY KEY,
	question_id TEXT NOT NULL,
	question    TEXT NOT NULL,
	format_hint TEXT NOT NULL,
	record      TEXT NOT NULL,
	asked_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_answers_question_id ON answers(question_id);
CREATE INDEX IF NOT EXISTS idx_answers_asked_at ON answers(asked_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveAnswer(ctx context.Context, entry *model.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.AskedAt.IsZero() {
		entry.AskedAt = time.Now().UTC()
	}

	recordJSON, err := json.Marshal(entry.Record)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal answer record")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO answers (id, question_id, question, format_hint, record, asked_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Record.QuestionID, entry.Question, entry.FormatHint, string(recordJSON), entry.AskedAt,
	)
	return eris.Wrap(err, "sqlite: insert answer")
}

func (s *SQLiteStore) ListAnswers(ctx context.Context, filter AnswerFilter) ([]model.HistoryEntry, error) {
	query := `SELECT id, question_id, question, format_hint, record, asked_at FROM answers WHERE 1=1`
	var args []any

	if filter.QuestionID != "" {
		query += ` AND question_id = ?`
		args = append(args, filter.QuestionID)
	}
	query += ` ORDER BY asked_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list answers")
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var (
			e          model.HistoryEntry
			questionID string
			recordJSON string
		)
		if err := rows.Scan(&e.ID, &questionID, &e.Question, &e.FormatHint, &recordJSON, &e.AskedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan answer")
		}
		if err := json.Unmarshal([]byte(recordJSON), &e.Record); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal answer record")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list answers iterate")
}
