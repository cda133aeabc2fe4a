package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/retail-copilot/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleEntry(questionID string) *model.HistoryEntry {
	return &model.HistoryEntry{
		Question:   "What was total revenue in March 1997?",
		FormatHint: "float",
		Record: model.AnswerRecord{
			QuestionID:  questionID,
			FinalAnswer: 38547.22,
			SQL:         "SELECT SUM(UnitPrice * Quantity) FROM [Order Details]",
			Confidence:  0.9,
			Explanation: "Summed extended price over March 1997 orders.",
			Citations:   []string{"Orders", "kpi_definitions::chunk0"},
		},
	}
}

func TestSQLiteStore_SaveAndList(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := sampleEntry("q1")
	require.NoError(t, s.SaveAnswer(ctx, entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.AskedAt.IsZero())

	entries, err := s.ListAnswers(ctx, AnswerFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "q1", entries[0].Record.QuestionID)
	assert.Equal(t, "float", entries[0].FormatHint)
	assert.Equal(t, 38547.22, entries[0].Record.FinalAnswer)
	assert.Equal(t, []string{"Orders", "kpi_definitions::chunk0"}, entries[0].Record.Citations)
}

func TestSQLiteStore_FilterByQuestionID(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAnswer(ctx, sampleEntry("q1")))
	require.NoError(t, s.SaveAnswer(ctx, sampleEntry("q2")))

	entries, err := s.ListAnswers(ctx, AnswerFilter{QuestionID: "q2"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "q2", entries[0].Record.QuestionID)
}

func TestSQLiteStore_AppendOnlyOrder(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	older := sampleEntry("q1")
	older.AskedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.SaveAnswer(ctx, older))

	newer := sampleEntry("q2")
	require.NoError(t, s.SaveAnswer(ctx, newer))

	entries, err := s.ListAnswers(ctx, AnswerFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Most recent first.
	assert.Equal(t, "q2", entries[0].Record.QuestionID)
}

func TestSQLiteStore_Limit(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveAnswer(ctx, sampleEntry("q")))
	}

	entries, err := s.ListAnswers(ctx, AnswerFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
