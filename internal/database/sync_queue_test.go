package database

import (
	"context"
	"testing"
	"time"

	"consultbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueueCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.SyncTask{
		TaskType:       "upsert",
		ConsultationID: 100,
		Payload:        `{"test": true}`,
	}

	// Create
	err := db.CreateSyncTask(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, SyncStatusPending, task.Status)

	// Get Pending
	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(100), tasks[0].ConsultationID)
	assert.Equal(t, `{"test": true}`, tasks[0].Payload)

	got, err := db.GetSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "upsert", got.TaskType)

	_, err = db.GetSyncTask(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	// Update Status
	err = db.UpdateSyncTaskStatus(ctx, tasks[0].ID, SyncStatusCompleted, "", nil)
	require.NoError(t, err)

	tasks, _ = db.GetPendingSyncTasks(ctx, 10)
	assert.Len(t, tasks, 0)

	got, err = db.GetSyncTask(ctx, task.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ProcessedAt)

	// Failed tasks
	errMsg := "some error"
	err = db.CreateSyncTask(ctx, &models.SyncTask{TaskType: "test", ConsultationID: 101, Status: SyncStatusFailed, LastError: &errMsg})
	require.NoError(t, err)
	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "some error", *failed[0].LastError)

	// Requeue
	n, err := db.RequeueFailedSyncTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	tasks, _ = db.GetPendingSyncTasks(ctx, 10)
	assert.Len(t, tasks, 1)
}

func TestSyncQueueRetrySchedule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.SyncTask{TaskType: "upsert", ConsultationID: 102}
	require.NoError(t, db.CreateSyncTask(ctx, task))

	nextRetry := time.Now().Add(time.Hour)
	err := db.UpdateSyncTaskStatus(ctx, task.ID, SyncStatusRetry, "temporary error", &nextRetry)
	require.NoError(t, err)

	// Should not be returned because nextRetry is in the future
	tasks, _ := db.GetPendingSyncTasks(ctx, 10)
	for _, pending := range tasks {
		if pending.ID == task.ID {
			assert.Fail(t, "task with future retry should not be pending")
		}
	}

	pastRetry := time.Now().Add(-time.Hour)
	err = db.UpdateSyncTaskStatus(ctx, task.ID, SyncStatusRetry, "temporary error", &pastRetry)
	require.NoError(t, err)
	tasks, _ = db.GetPendingSyncTasks(ctx, 10)
	found := false
	for _, pending := range tasks {
		if pending.ID == task.ID {
			found = true
			assert.Equal(t, 2, pending.RetryCount)
			require.NotNil(t, pending.LastError)
			assert.Equal(t, "temporary error", *pending.LastError)
		}
	}
	assert.True(t, found)
}
