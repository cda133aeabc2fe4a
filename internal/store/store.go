package store

import (
	"context"

	"github.com/sells-group/retail-copilot/internal/model"
)

// AnswerFilter specifies criteria for listing answer history.
type AnswerFilter struct {
	QuestionID string `json:"question_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// Store defines the append-only persistence interface for answer records.
// Every terminal pipeline state produces one record; records are never
// updated after insertion.
type Store interface {
	SaveAnswer(ctx context.Context, entry *model.HistoryEntry) error
	ListAnswers(ctx context.Context, filter AnswerFilter) ([]model.HistoryEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
