package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/couplegram/couplegram/internal/models"
)

// PostgresFileRepository keeps uploaded blobs in a BYTEA column.
type PostgresFileRepository struct {
	DB *sqlx.DB
}

// NewPostgresFileRepository creates a new PostgresFileRepository.
func NewPostgresFileRepository(db *sql.DB) *PostgresFileRepository {
	return &PostgresFileRepository{DB: sqlx.NewDb(db, "postgres")}
}

// CreateFile stores meta and its content.
func (r *PostgresFileRepository) CreateFile(ctx context.Context, meta *models.StoredFile, data []byte) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO files (id, name, content_type, size, data, created_at) VALUES ($1, $2, $3, $4, $5, $6)
	`, meta.ID, meta.Name, meta.ContentType, meta.Size, data, meta.CreatedAt)
	return classify("create file", err)
}

// GetFile returns the metadata and content of a file.
func (r *PostgresFileRepository) GetFile(ctx context.Context, id string) (*models.StoredFile, []byte, error) {
	var row struct {
		models.StoredFile
		Data []byte `db:"data"`
	}
	err := r.DB.GetContext(ctx, &row, `
		SELECT id, name, content_type, size, data, created_at FROM files WHERE id = $1
	`, id)
	if err != nil {
		return nil, nil, classify("get file", err)
	}
	meta := row.StoredFile
	return &meta, row.Data, nil
}

// FileExists reports whether a file is stored under id.
func (r *PostgresFileRepository) FileExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.DB.GetContext(ctx, &ok, `SELECT EXISTS(SELECT 1 FROM files WHERE id = $1)`, id); err != nil {
		return false, classify("file exists", err)
	}
	return ok, nil
}

// DeleteFile removes a file.
func (r *PostgresFileRepository) DeleteFile(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return classify("delete file", err)
	}
	return affected("delete file", res)
}
