package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirpputori/backend/internal/store"
)

func TestSweep(t *testing.T) {
	t.Run("deletes expired rows and their files", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		dir := t.TempDir()
		filePath := filepath.Join(dir, "a.jpg")
		thumbnailPath := filepath.Join(dir, "a.thumb.jpg")
		require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(thumbnailPath, []byte("x"), 0o644))

		now := time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
		s := New(store.New(db), 10*time.Second, 10*time.Minute)
		s.now = func() time.Time { return now }

		mock.ExpectQuery(`DELETE FROM attachments WHERE item_id IS NULL AND uploaded_at < \$1`).
			WithArgs(now.Add(-10 * time.Minute)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "file_path", "thumbnail_path", "item_id", "uploader_id", "uploaded_at"}).
				AddRow(int64(4), filePath, thumbnailPath, nil, int64(1), now.Add(-time.Hour)))

		s.Sweep(context.Background())

		assert.NoFileExists(t, filePath)
		assert.NoFileExists(t, thumbnailPath)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("leaves files alone when nothing expired", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		s := New(store.New(db), 10*time.Second, 10*time.Minute)
		mock.ExpectQuery(`DELETE FROM attachments WHERE item_id IS NULL`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "file_path", "thumbnail_path", "item_id", "uploader_id", "uploaded_at"}))

		s.Sweep(context.Background())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		s := New(store.New(db), time.Hour, time.Hour)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			s.Run(ctx)
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop on context cancellation")
		}
	})
}
