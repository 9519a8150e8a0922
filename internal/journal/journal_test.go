package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/assetguard/internal/db"
	"github.com/openmined/assetguard/internal/engine"
	"github.com/openmined/assetguard/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const digestA = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func sampleReport(started time.Time) *engine.Report {
	fp := metadata.Fingerprint{Timestamp: started, Digest: digestA}
	return &engine.Report{
		Root:     "/assets",
		Started:  started,
		Finished: started.Add(2 * time.Second),
		Results: []*engine.Result{
			{AssetID: "a.bin", Outcome: engine.MissingMetadata{}, Action: engine.ActionCreated, Fingerprint: &fp, Persisted: true, Size: 5, Took: 3 * time.Millisecond},
			{AssetID: "b.bin", Outcome: engine.TimestampMatches{}},
			{AssetID: "c.bin", Err: errors.New("metadata parse failed")},
			{AssetID: "d.bin", Outcome: engine.HashMismatch{Fresh: fp}, Action: engine.ActionReported, Fingerprint: &fp},
		},
	}
}

func TestJournal_RecordsRun(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	runID, err := j.BeginRun(ctx, RunInfo{Root: "/assets", DryRun: true}, started)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	run, err := j.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.True(t, run.Finished().IsZero())
	assert.True(t, run.DryRun)

	require.NoError(t, j.FinishRun(ctx, runID, sampleReport(started)))

	run, err = j.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "/assets", run.Root)
	assert.True(t, run.Started().Equal(started))
	assert.True(t, run.Finished().Equal(started.Add(2*time.Second)))
	assert.Equal(t, 4, run.Total)
	assert.Equal(t, 1, run.Valid)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 1, run.Mismatched)
	assert.Equal(t, 1, run.Errors)
	assert.Equal(t, 1, run.Persisted)
	assert.EqualValues(t, 5, run.Bytes)
	assert.False(t, run.Canceled)

	entries, err := j.RunResults(ctx, runID)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "a.bin", entries[0].AssetID)
	assert.Equal(t, "missing metadata", entries[0].Outcome)
	assert.Equal(t, "created", entries[0].Action)
	assert.Equal(t, digestA, entries[0].SHA256)
	assert.True(t, entries[0].Persisted)
	assert.EqualValues(t, 3, entries[0].TookMs)

	assert.Equal(t, "error", entries[2].Outcome)
	assert.Equal(t, "metadata parse failed", entries[2].Error)

	assert.Equal(t, "hash mismatch", entries[3].Outcome)
	assert.Equal(t, "reported", entries[3].Action)
	assert.False(t, entries[3].Persisted)
}

func TestJournal_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	var ids []string
	for i := range 3 {
		id, err := j.BeginRun(ctx, RunInfo{Root: "/assets"}, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := j.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)

	runs, err = j.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ids[2], runs[0].ID)
}

func TestJournal_AssetResultsAcrossRuns(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := range 2 {
		started := base.Add(time.Duration(i) * time.Hour)
		id, err := j.BeginRun(ctx, RunInfo{Root: "/assets"}, started)
		require.NoError(t, err)
		require.NoError(t, j.FinishRun(ctx, id, sampleReport(started)))
	}

	entries, err := j.AssetResults(ctx, "d.bin")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = j.AssetResults(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournal_UnknownRun(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	_, err := j.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = j.FinishRun(ctx, "missing", &engine.Report{})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestJournal_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	id, err := j.BeginRun(ctx, RunInfo{Root: "/assets"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	assert.Equal(t, path, j.Path())

	run, err := j.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)

	version, err := db.SchemaVersion(j.db)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}
