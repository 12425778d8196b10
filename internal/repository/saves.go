package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

const saveColumns = "id, user_id, post_id, created_at"

// PostgresSaveRepository stores save records.
type PostgresSaveRepository struct {
	DB *sqlx.DB
}

// NewPostgresSaveRepository creates a new PostgresSaveRepository.
func NewPostgresSaveRepository(db *sql.DB) *PostgresSaveRepository {
	return &PostgresSaveRepository{DB: sqlx.NewDb(db, "postgres")}
}

// CreateSave inserts s. Saving the same post twice yields ErrConflict; an
// unknown user or post yields ErrInvalid.
func (r *PostgresSaveRepository) CreateSave(ctx context.Context, s *models.SaveRecord) error {
	_, err := r.DB.NamedExecContext(ctx, `
		INSERT INTO saves (`+saveColumns+`) VALUES (:id, :user_id, :post_id, :created_at)
	`, s)
	return classify("create save", err)
}

// GetSave fetches a save record by id.
func (r *PostgresSaveRepository) GetSave(ctx context.Context, id string) (*models.SaveRecord, error) {
	var s models.SaveRecord
	if err := r.DB.GetContext(ctx, &s, `SELECT `+saveColumns+` FROM saves WHERE id = $1`, id); err != nil {
		return nil, classify("get save", err)
	}
	return &s, nil
}

// DeleteSave removes a save record.
func (r *PostgresSaveRepository) DeleteSave(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM saves WHERE id = $1`, id)
	if err != nil {
		return classify("delete save", err)
	}
	return affected("delete save", res)
}

// ListSaves runs q over the save records.
func (r *PostgresSaveRepository) ListSaves(ctx context.Context, q gateway.Query) ([]models.SaveRecord, error) {
	if err := cursorExists(ctx, r.DB, "saves", q); err != nil {
		return nil, err
	}
	stmt, args, err := saveListing.build(q)
	if err != nil {
		return nil, err
	}
	saves := make([]models.SaveRecord, 0)
	if err := r.DB.SelectContext(ctx, &saves, stmt, args...); err != nil {
		return nil, classify("list saves", err)
	}
	return saves, nil
}
