package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diva-ocr/internal/db"
	"diva-ocr/internal/models"
)

func newTestJournal(t *testing.T) *JournalService {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "ocrjobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewJournalService(conn)
}

func TestJournal_RunLifecycle(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	run, err := journal.StartRun(ctx, "http://diva/api/v2")
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, run.Status)

	stored, err := journal.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, stored.Status)
	assert.False(t, stored.FinishedAt.Valid)

	require.NoError(t, journal.FinishRun(ctx, run.ID, StepRecognize, errors.New("boom")))
	stored, err = journal.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, stored.Status)
	assert.Equal(t, StepRecognize, stored.FailedStep)
	assert.Equal(t, "boom", stored.Error)
	assert.True(t, stored.FinishedAt.Valid)
}

func TestJournal_GetRunNotFound(t *testing.T) {
	journal := newTestJournal(t)
	_, err := journal.GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestJournal_JobsAndArtifacts(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	run, err := journal.StartRun(ctx, "http://diva/api/v2")
	require.NoError(t, err)

	link := "http://diva/results/1"
	jobID, err := journal.RecordJob(ctx, run.ID, models.OperationTraining, "ocr_train_example", link)
	require.NoError(t, err)

	_, err = journal.RecordJob(ctx, run.ID, models.OperationTraining, "ocr_train_example", link)
	assert.Error(t, err, "a result link is recorded once per run")

	tracker := NewTracker()
	tracker.Submitted(link, models.OperationTraining, "ocr_train_example")
	tracker.Polled(link, "planned", true)
	tracker.Polled(link, "done", false)
	tracker.Collected(link)
	job, _ := tracker.Get(link)
	require.NoError(t, journal.SyncJob(ctx, jobID, job))
	require.NoError(t, journal.SyncJob(ctx, jobID, nil))

	require.NoError(t, journal.RecordArtifact(ctx, jobID, "minModel.pyrnn.gz", "http://diva/files/m", "model/minModel.pyrnn.gz", 42))

	jobs, err := journal.ListJobs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, JobStateCollected, jobs[0].State)
	assert.Equal(t, "done", jobs[0].RemoteStatus)
	assert.Equal(t, 2, jobs[0].Polls)
	assert.Equal(t, link, jobs[0].ResultLink)

	artifacts, err := journal.ListArtifacts(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, int64(42), artifacts[0].Bytes)
	assert.Equal(t, "model/minModel.pyrnn.gz", artifacts[0].Path)
}
