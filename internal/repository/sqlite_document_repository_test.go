package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pai-docqa-go/internal/model"
	"pai-docqa-go/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepo(t *testing.T) DocumentRepository {
	t.Helper()
	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "docqa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo, err := NewSQLiteDocumentRepository(context.Background(), db)
	require.NoError(t, err)
	return repo
}

func queuedDoc(id, name string) *model.Document {
	return &model.Document{
		DocID:        id,
		OriginalFile: name,
		FileType:     model.FileTypeOf(name),
		ObjectKey:    "uploads/" + id + "_" + name,
		Status:       model.StatusQueued,
	}
}

func TestSQLiteDocumentRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	require.NoError(t, repo.Create(ctx, queuedDoc("d1", "a.pdf")))
	require.NoError(t, repo.Create(ctx, queuedDoc("d2", "b.png")))

	got, err := repo.FindByDocID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, got.Status)
	assert.Equal(t, "pdf", got.FileType)
	assert.Nil(t, got.ProcessedAt)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, repo.Transition(ctx, "d1", model.StatusQueued, model.StatusProcessing, model.StatusUpdate{}))
	now := time.Now()
	require.NoError(t, repo.Transition(ctx, "d1", model.StatusProcessing, model.StatusCompleted, model.StatusUpdate{
		ChunksCount: 5, OCRUsed: true, ProcessedAt: &now,
	}))

	got, err = repo.FindByDocID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 5, got.ChunksCount)
	assert.True(t, got.OCRUsed)
	require.NotNil(t, got.ProcessedAt)
	assert.WithinDuration(t, now, *got.ProcessedAt, time.Second)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "d1", all[0].DocID)
	assert.Equal(t, "d2", all[1].DocID)

	some, err := repo.FindByDocIDs(ctx, []string{"d2", "missing"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "d2", some[0].DocID)
}

func TestSQLiteDocumentRepository_TransitionsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)
	require.NoError(t, repo.Create(ctx, queuedDoc("d1", "a.txt")))

	// 非法迁移
	err := repo.Transition(ctx, "d1", model.StatusQueued, model.StatusCompleted, model.StatusUpdate{})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	require.NoError(t, repo.Transition(ctx, "d1", model.StatusQueued, model.StatusProcessing, model.StatusUpdate{}))
	// 重复迁移与当前状态冲突
	err = repo.Transition(ctx, "d1", model.StatusQueued, model.StatusProcessing, model.StatusUpdate{})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	require.NoError(t, repo.Transition(ctx, "d1", model.StatusProcessing, model.StatusFailed, model.StatusUpdate{ErrorMessage: "boom"}))
	err = repo.Transition(ctx, "d1", model.StatusProcessing, model.StatusCompleted, model.StatusUpdate{})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	got, err := repo.FindByDocID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
}

func TestSQLiteDocumentRepository_NotFound(t *testing.T) {
	repo := newSQLiteRepo(t)
	_, err := repo.FindByDocID(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
