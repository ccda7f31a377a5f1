package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"consultbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
}

func TestNewDB_Memory(t *testing.T) {
	db, err := NewDB(":memory:", nil)
	require.NoError(t, err)
	defer db.Close()

	// tables must survive across calls on the single connection
	ctx := context.Background()
	require.NoError(t, db.CreateSyncTask(ctx, &models.SyncTask{TaskType: "upsert", ConsultationID: 1}))
	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestNewDB_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	db, err := NewDB(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()
}

func TestDB_Ready(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Ready(context.Background()))
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close() // Close the DB to trigger errors

	ctx := context.Background()

	t.Run("CreateConsultation_Error", func(t *testing.T) {
		err := db.CreateConsultation(ctx, &models.Consultation{Reference: "x"})
		assert.Error(t, err)
	})

	t.Run("GetConsultation_Error", func(t *testing.T) {
		_, err := db.GetConsultation(ctx, 1)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("CreateSyncTask_Error", func(t *testing.T) {
		err := db.CreateSyncTask(ctx, &models.SyncTask{})
		assert.Error(t, err)
	})

	t.Run("Ready_Error", func(t *testing.T) {
		assert.Error(t, db.Ready(ctx))
	})
}
