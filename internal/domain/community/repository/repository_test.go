package repository

import (
	"context"
	"errors"
	"testing"

	"farm_community/internal/domain/community/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestToggle_RemovesExistingReaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReactionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "reactions" WHERE`).
		WithArgs("u3", "p1", "like").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "posts" SET "reaction_count"=reaction_count \+ \$1 WHERE id = \$2`).
		WithArgs(-1, "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := repo.Toggle(context.Background(), &model.Reaction{
		PostID: "p1", TargetID: "p1", TargetKind: model.TargetPost, UserID: "u3", ReactionType: model.ReactionLike,
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToggle_CommentTargetLeavesPostCounter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReactionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "reactions" WHERE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := repo.Toggle(context.Background(), &model.Reaction{
		PostID: "p1", TargetID: "c1", TargetKind: model.TargetComment, UserID: "u3", ReactionType: model.ReactionHelpful,
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToggle_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReactionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "reactions" WHERE`).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := repo.Toggle(context.Background(), &model.Reaction{
		PostID: "p1", TargetID: "p1", TargetKind: model.TargetPost, UserID: "u3", ReactionType: model.ReactionLike,
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReactionCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReactionRepository(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "reactions" WHERE target_id = \$1 AND reaction_type = \$2`).
		WithArgs("p1", "like").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := repo.Count(context.Background(), "p1", "like")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestIncrementCommentCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "posts" SET "comment_count"=comment_count \+ \$1 WHERE id = \$2`).
		WithArgs(1, "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.IncrementCommentCount(context.Background(), "p1", 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePost_ReportsRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "posts" WHERE id = \$1`).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := repo.Delete(context.Background(), "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByPost_OrdersByCreation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCommentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "post_id", "author_id", "body", "parent_comment_id"}).
		AddRow("c1", "p1", "u2", "try neem oil", nil).
		AddRow("c2", "p1", "u1", "thanks!", "c1")
	mock.ExpectQuery(`SELECT \* FROM "comments" WHERE post_id = \$1 ORDER BY created_at ASC,id ASC`).
		WithArgs("p1").
		WillReturnRows(rows)

	list, err := repo.ListByPost(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Nil(t, list[0].ParentID)
	require.NotNil(t, list[1].ParentID)
	assert.Equal(t, "c1", *list[1].ParentID)
}

func TestListPosts_EmptyShortCircuits(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "posts" WHERE category = \$1 AND \$2 = ANY\(tags\)`).
		WithArgs("question", "rice").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	posts, total, err := repo.List(context.Background(), PostQuery{Category: "question", Tag: "rice"}, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, posts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
