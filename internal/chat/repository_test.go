package chat

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewRepository(db), mock
}

func TestRepository_Insert(t *testing.T) {
	repo, mock := newMockRepository(t)
	m := liveRow("1f0c8c1e-0000-4000-8000-000000000001")
	m.AuthorID = 3
	m.AuthorName = "Mystic Eagle #311"
	m.IsAnonymous = true

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).
		WithArgs(m.ID, m.Content, 3, m.AuthorName, true, m.CreatedAt, m.ExpiresAt, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), m))
}

func TestRepository_InsertError(t *testing.T) {
	repo, mock := newMockRepository(t)
	boom := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).WillReturnError(boom)

	err := repo.Insert(context.Background(), liveRow("x"))
	assert.ErrorIs(t, err, boom)
}

func TestRepository_SoftDelete(t *testing.T) {
	repo, mock := newMockRepository(t)
	query := regexp.QuoteMeta("UPDATE messages SET is_deleted = TRUE WHERE id = $1 AND author_id = $2")

	mock.ExpectExec(query).WithArgs("mine", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("theirs", 1).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SoftDelete(context.Background(), "mine", 1))
	assert.ErrorIs(t, repo.SoftDelete(context.Background(), "theirs", 1), ErrNotFound)
}

func TestRepository_Recent(t *testing.T) {
	repo, mock := newMockRepository(t)
	cols := []string{"id", "content", "author_id", "author_name", "is_anonymous", "created_at", "expires_at", "is_deleted"}
	rows := sqlmock.NewRows(cols).
		AddRow("a", "ENC:1", 1, "Storm Lord #100", true, t0.Add(-2*MessageTTL/3), t0.Add(MessageTTL/3), false).
		AddRow("b", "ENC:2", 2, "Bright Tiger #200", true, t0, t0.Add(MessageTTL), false)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_deleted = FALSE AND expires_at > $1")).
		WithArgs(t0, HistoryLimit).
		WillReturnRows(rows)

	got, err := repo.Recent(context.Background(), t0, HistoryLimit)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "Bright Tiger #200", got[1].AuthorName)
}
