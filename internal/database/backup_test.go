package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lendery/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "source.db")
	storagePath := filepath.Join(tempDir, "backups")

	logger := zerolog.Nop()
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	createTestItem(t, db, 1, 2)
	db.Close()

	cfg := config.BackupConfig{
		Enabled:       true,
		StoragePath:   storagePath,
		RetentionDays: 1,
	}
	s := NewBackupService(dbPath, cfg, &logger)

	t.Run("Snapshot", func(t *testing.T) {
		require.NoError(t, s.Snapshot())

		files, err := os.ReadDir(storagePath)
		require.NoError(t, err)
		require.Len(t, files, 1)

		// The snapshot is a valid database with the ledger inside.
		copyPath := filepath.Join(storagePath, files[0].Name())
		snap, err := NewDB(copyPath, &logger)
		require.NoError(t, err)
		defer snap.Close()

		items, err := snap.GetActiveItems(context.Background(), 1)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("PruneOld", func(t *testing.T) {
		oldFile := filepath.Join(storagePath, "ledger_old.db")
		require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))

		oldTime := time.Now().AddDate(0, 0, -2)
		require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))

		s.pruneOld()

		_, err := os.Stat(oldFile)
		assert.True(t, os.IsNotExist(err))
	})
}
