package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/flash-sale-service/internal/model"
)

// ActivityRepo provides data access to the seckill_activities table.  The
// table holds activity definitions and the materialized sold count; the
// live remaining stock during a sale is owned by the counter store, never
// read from here.
type ActivityRepo struct {
	db *sql.DB
}

// NewActivityRepo returns an ActivityRepo bound to the provided database.
func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

const activityColumns = `id, product_id, name, stock, sold, starts_at, ends_at, status, created_at, updated_at`

// Create inserts an activity and returns its id.  New activities start in
// NOT_STARTED unless the caller sets another status explicitly.
func (r *ActivityRepo) Create(ctx context.Context, a model.Activity) (uint64, error) {
	status := a.Status
	if status == "" {
		status = model.ActivityNotStarted
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO seckill_activities (product_id, name, stock, sold, starts_at, ends_at, status)
         VALUES (?, ?, ?, 0, ?, ?, ?)`,
		a.ProductID, a.Name, a.Stock,
		a.StartsAt.UTC().Format("2006-01-02 15:04:05"),
		a.EndsAt.UTC().Format("2006-01-02 15:04:05"),
		status)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a single activity.
func (r *ActivityRepo) GetByID(ctx context.Context, id uint64) (model.Activity, error) {
	var a model.Activity
	err := r.db.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM seckill_activities WHERE id = ? LIMIT 1`, id).
		Scan(&a.ID, &a.ProductID, &a.Name, &a.Stock, &a.Sold, &a.StartsAt, &a.EndsAt, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Activity{}, ErrActivityNotFound
	}
	if err != nil {
		return model.Activity{}, err
	}
	return a, nil
}

// List returns all activities, newest first.
func (r *ActivityRepo) List(ctx context.Context) ([]model.Activity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM seckill_activities ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Activity
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.ProductID, &a.Name, &a.Stock, &a.Sold, &a.StartsAt, &a.EndsAt, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateStatus moves an activity to a new status.
func (r *ActivityRepo) UpdateStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE seckill_activities SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrActivityNotFound
	}
	return nil
}

// AddSold bumps the materialized sold count.  The guard keeps sold from
// passing stock even if the order stream replays a message.
func (r *ActivityRepo) AddSold(ctx context.Context, id uint64, n int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE seckill_activities SET sold = sold + ? WHERE id = ? AND sold + ? <= stock`,
		n, id, n)
	return err
}
