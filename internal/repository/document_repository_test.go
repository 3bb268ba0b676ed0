package repository

import (
	"context"
	"testing"
	"time"

	"pai-docqa-go/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return db, mock
}

func TestDocumentRepository_TransitionUpdatesWithStatusGuard(t *testing.T) {
	db, mock := newMockGorm(t)
	repo := NewDocumentRepository(db)

	mock.ExpectExec("UPDATE `documents` SET .* WHERE doc_id = \\? AND status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	err := repo.Transition(context.Background(), "d1", model.StatusProcessing, model.StatusCompleted,
		model.StatusUpdate{ChunksCount: 3, ProcessedAt: &now})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_TransitionConflict(t *testing.T) {
	db, mock := newMockGorm(t)
	repo := NewDocumentRepository(db)

	mock.ExpectExec("UPDATE `documents` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Transition(context.Background(), "d1", model.StatusQueued, model.StatusProcessing, model.StatusUpdate{})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_RejectsIllegalTransitionWithoutQuery(t *testing.T) {
	db, mock := newMockGorm(t)
	repo := NewDocumentRepository(db)

	err := repo.Transition(context.Background(), "d1", model.StatusCompleted, model.StatusQueued, model.StatusUpdate{})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_FindByDocIDNotFound(t *testing.T) {
	db, mock := newMockGorm(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `documents` WHERE doc_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "doc_id"}))

	_, err := repo.FindByDocID(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
