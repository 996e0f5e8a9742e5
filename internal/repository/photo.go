package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/DukeRupert/darkroom/internal/domain"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PhotoRepository handles persistence for photos.
type PhotoRepository struct {
	db DBTX
}

func NewPhotoRepository(db DBTX) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// CreatePhoto inserts p. A photo whose URL is already recorded is
// returned as stored.
func (r *PhotoRepository) CreatePhoto(ctx context.Context, p domain.Photo) (domain.Photo, error) {
	const query = `
		INSERT INTO photos (id, url, extension, title, hidden, taken_at, taken_at_naive)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (url) DO UPDATE SET url = EXCLUDED.url
		RETURNING id, url, extension, title, hidden, taken_at, taken_at_naive, created_at, updated_at`
	var out domain.Photo
	err := r.db.QueryRowContext(ctx, query,
		p.ID,
		p.URL,
		p.Extension,
		p.Title,
		p.Hidden,
		p.TakenAt,
		p.TakenAtNaive,
	).Scan(
		&out.ID,
		&out.URL,
		&out.Extension,
		&out.Title,
		&out.Hidden,
		&out.TakenAt,
		&out.TakenAtNaive,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return domain.Photo{}, err
	}
	return out, nil
}

func (r *PhotoRepository) GetPhotoByURL(ctx context.Context, url string) (domain.Photo, error) {
	const query = `
		SELECT id, url, extension, title, hidden, taken_at, taken_at_naive, created_at, updated_at
		FROM photos
		WHERE url = $1`
	var p domain.Photo
	err := r.db.QueryRowContext(ctx, query, url).Scan(
		&p.ID,
		&p.URL,
		&p.Extension,
		&p.Title,
		&p.Hidden,
		&p.TakenAt,
		&p.TakenAtNaive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Photo{}, ErrNotFound
		}
		return domain.Photo{}, err
	}
	return p, nil
}

// DeletePhotoByURL removes the record of the photo stored at url. A
// missing record is not an error.
func (r *PhotoRepository) DeletePhotoByURL(ctx context.Context, url string) error {
	const query = `DELETE FROM photos WHERE url = $1`
	_, err := r.db.ExecContext(ctx, query, url)
	return err
}

// ListInvalidTakenAtNaive returns photos whose taken_at_naive is not
// exactly "YYYY-MM-DD HH:MM:SS".
func (r *PhotoRepository) ListInvalidTakenAtNaive(ctx context.Context) ([]domain.Photo, error) {
	const query = `
		SELECT id, url, extension, title, hidden, taken_at, taken_at_naive, created_at, updated_at
		FROM photos
		WHERE taken_at_naive !~ '^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$'
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []domain.Photo
	for rows.Next() {
		var p domain.Photo
		if err := rows.Scan(
			&p.ID,
			&p.URL,
			&p.Extension,
			&p.Title,
			&p.Hidden,
			&p.TakenAt,
			&p.TakenAtNaive,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return photos, nil
}

func (r *PhotoRepository) UpdateTakenAtNaive(ctx context.Context, id, takenAtNaive string) error {
	const query = `
		UPDATE photos
		SET taken_at_naive = $2, updated_at = NOW()
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, takenAtNaive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
