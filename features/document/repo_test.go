package document_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/features/document"
	"docsearch/internal/ingest"
)

var columns = []string{"id", "filename", "sha256", "status", "page_count", "chunk_count", "operation_status", "error", "created_at", "updated_at"}

func TestPostgresRepo_MarkProcessing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents (id, filename, sha256, status) VALUES ($1, $2, $3, $4)")).
		WithArgs("doc-1", "paper.pdf", "abc", "processing").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := document.NewPostgresRepo(db)
	err = repo.MarkProcessing(context.Background(), ingest.Source{DocumentID: "doc-1", Filename: "paper.pdf", SHA256: "abc"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_MarkCompletedAndFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := document.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status = $1, page_count = $2, chunk_count = $3, operation_status = $4, error = '', updated_at = NOW() WHERE id = $5")).
		WithArgs("completed", 2, 6, "completed", "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status = $1, error = $2, updated_at = NOW() WHERE id = $3")).
		WithArgs("failed", "no text", "doc-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.MarkCompleted(context.Background(), "doc-1", 2, 6, "completed"))
	assert.NoError(t, repo.MarkFailed(context.Background(), "doc-2", "no text"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(columns).
		AddRow("doc-2", "b.pdf", "h2", "completed", 3, 9, "completed", "", now, now).
		AddRow("doc-1", "a.pdf", "h1", "failed", 0, 0, "", "no text", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE deleted_at IS NULL ORDER BY created_at DESC")).
		WillReturnRows(rows)

	docs, err := document.NewPostgresRepo(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-2", docs[0].ID)
	assert.Equal(t, 9, docs[0].ChunkCount)
	assert.Equal(t, "no text", docs[1].Error)
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := document.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1 AND deleted_at IS NULL")).
			WithArgs("doc-1").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("doc-1", "a.pdf", "h1", "completed", 1, 3, "completed", "", now, now))

		d, err := repo.Get(context.Background(), "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "a.pdf", d.Filename)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1 AND deleted_at IS NULL")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})
}

func TestPostgresRepo_SoftDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := document.NewPostgresRepo(db)

	query := regexp.QuoteMeta("UPDATE documents SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL")
	mock.ExpectExec(query).WithArgs("doc-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.SoftDelete(context.Background(), "doc-1"))
	assert.ErrorIs(t, repo.SoftDelete(context.Background(), "gone"), sql.ErrNoRows)
}

func TestPostgresRepo_Count(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM documents WHERE deleted_at IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := document.NewPostgresRepo(db).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
