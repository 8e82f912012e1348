package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   "file::memory:?cache=shared",
	}, nil, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestStore_RecordAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	result := &types.FinalResult{
		RunID:     "run-1",
		Success:   true,
		TicketKey: "PROJ-42",
		TicketURL: "https://tracker.example.com/browse/PROJ-42",
		QualityMetrics: map[string]float64{
			"Drafter":     0.89,
			"Feasibility": 0.94,
		},
		TotalDuration: 12 * time.Second,
	}
	attempts := []types.StageResult{
		{StageName: "Drafter", Success: true, QualityScore: 0.6, Duration: 2 * time.Second},
		{StageName: "Drafter", Success: true, QualityScore: 0.89, Duration: 2 * time.Second},
		{StageName: "Feasibility", Success: true, QualityScore: 0.94, Duration: 3 * time.Second},
	}

	require.NoError(t, store.RecordRun(ctx, result, attempts))

	run, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, run.Success)
	assert.Equal(t, "PROJ-42", run.TicketKey)
	assert.Contains(t, run.QualityMetrics, "Drafter")
	require.Len(t, run.Attempts, 3)
	assert.Equal(t, "Drafter", run.Attempts[0].StageName)
	assert.Equal(t, 0.6, run.Attempts[0].QualityScore)
	assert.Equal(t, 2, run.Attempts[2].Seq)
}

func TestStore_RecordFailedRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	result := &types.FinalResult{
		RunID:         "run-2",
		Success:       false,
		TotalDuration: 4 * time.Second,
		Error:         types.NewError(types.ErrExternalAPI, "AUTH_FAILED"),
	}
	attempts := []types.StageResult{
		{StageName: "Creator", Success: false, Error: types.NewError(types.ErrExternalAPI, "AUTH_FAILED")},
	}

	require.NoError(t, store.RecordRun(ctx, result, attempts))

	run, err := store.Get(ctx, "run-2")
	require.NoError(t, err)
	assert.False(t, run.Success)
	assert.Equal(t, string(types.ErrExternalAPI), run.ErrorCode)
	assert.Equal(t, "AUTH_FAILED", run.ErrorMessage)
	require.Len(t, run.Attempts, 1)
	assert.Equal(t, string(types.ErrExternalAPI), run.Attempts[0].ErrorCode)
}

func TestStore_List(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"list-1", "list-2", "list-3"} {
		require.NoError(t, store.RecordRun(ctx, &types.FinalResult{RunID: id, Success: true}, nil))
	}

	runs, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStore_GetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.Error(t, err)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"}, nil, zap.NewNop())
	assert.Error(t, err)
}
