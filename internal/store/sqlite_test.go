package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analytics-copilot/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "runs.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "questions.jsonl", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusComplete))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, "questions.jsonl", got.Source)
	assert.Equal(t, 3, got.Questions)
}

func TestSQLiteStore_UpdateMissingRun(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateRunStatus(context.Background(), "nope", model.RunStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_ListRunsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateRun(ctx, "a.jsonl", 1)
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, "b.jsonl", 1)
	require.NoError(t, err)
	require.NoError(t, s.UpdateRunStatus(ctx, a.ID, model.RunStatusComplete))

	complete, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, a.ID, complete[0].ID)

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStore_AnswersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "questions.jsonl", 2)
	require.NoError(t, err)

	sqlText := "SELECT 1"
	records := []model.AnswerRecord{
		{
			ID:          "q1",
			FinalAnswer: []any{"Chang", "Chai"},
			SQL:         &sqlText,
			Confidence:  0.9,
			Explanation: "Answered with a database query.",
			Citations:   []model.Citation{{SourceID: "Products", Kind: model.CiteTable}},
		},
		{ID: "q2", FinalAnswer: nil, Confidence: 0, Explanation: "Could not answer."},
	}
	require.NoError(t, s.SaveAnswers(ctx, run.ID, records))

	got, err := s.ListAnswers(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "q1", got[0].ID)
	assert.Equal(t, 0.9, got[0].Confidence)
	require.NotNil(t, got[0].SQL)
	assert.Equal(t, "SELECT 1", *got[0].SQL)
	assert.Nil(t, got[1].FinalAnswer)
}

func TestOpen_SQLiteDriver(t *testing.T) {
	s, err := Open(context.Background(), testStoreConfig(t))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.CreateRun(context.Background(), "api", 1)
	assert.NoError(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := testStoreConfig(t)
	cfg.Driver = "oracle-db"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}
