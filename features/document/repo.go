package document

import (
	"context"
	"database/sql"

	"docsearch/internal/ingest"
)

// PostgresRepo stores one row per uploaded document. It also satisfies
// ingest.Registry.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

var _ ingest.Registry = (*PostgresRepo)(nil)

func (r *PostgresRepo) MarkProcessing(ctx context.Context, src ingest.Source) error {
	query := `INSERT INTO documents (id, filename, sha256, status) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, error = '', updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, src.DocumentID, src.Filename, src.SHA256, ingest.StatusProcessing)
	return err
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, id string, pageCount, chunkCount int, operationStatus string) error {
	query := `UPDATE documents SET status = $1, page_count = $2, chunk_count = $3, operation_status = $4, error = '', updated_at = NOW() WHERE id = $5`
	_, err := r.db.ExecContext(ctx, query, ingest.StatusCompleted, pageCount, chunkCount, operationStatus, id)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, reason string) error {
	query := `UPDATE documents SET status = $1, error = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, ingest.StatusFailed, reason, id)
	return err
}

func (r *PostgresRepo) List(ctx context.Context) ([]Document, error) {
	query := `SELECT id, filename, sha256, status, page_count, chunk_count, operation_status, error, created_at, updated_at FROM documents WHERE deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.SHA256, &d.Status, &d.PageCount, &d.ChunkCount, &d.OperationStatus, &d.Error, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	d := &Document{}
	query := `SELECT id, filename, sha256, status, page_count, chunk_count, operation_status, error, created_at, updated_at FROM documents WHERE id = $1 AND deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Filename, &d.SHA256, &d.Status, &d.PageCount, &d.ChunkCount, &d.OperationStatus, &d.Error, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PostgresRepo) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE documents SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM documents WHERE deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}
