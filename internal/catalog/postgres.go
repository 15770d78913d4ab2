package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"cinevault/internal/storage"
)

// MovieRepo implements MovieRepository using PostgreSQL.
type MovieRepo struct{ db *storage.DB }

// NewMovieRepo constructs a movie repository.
func NewMovieRepo(db *storage.DB) *MovieRepo { return &MovieRepo{db: db} }

const movieColumns = `id, slug, title, synopsis, file_id, published, released_at, created_at, updated_at`

func scanMovie(row pgx.Row) (*Movie, error) {
	var m Movie
	err := row.Scan(&m.ID, &m.Slug, &m.Title, &m.Synopsis, &m.FileID,
		&m.Published, &m.ReleasedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Create inserts a new movie. The ID and timestamps are assigned here.
func (r *MovieRepo) Create(ctx context.Context, m *Movie) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	m.ID = id
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	const q = `
INSERT INTO movies (id, slug, title, synopsis, file_id, published, released_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err = r.db.Pool.Exec(ctx, q, m.ID, m.Slug, m.Title, m.Synopsis, m.FileID,
		m.Published, m.ReleasedAt, m.CreatedAt, m.UpdatedAt)
	if storage.IsUniqueViolation(err) {
		return ErrSlugTaken
	}
	return err
}

// Update rewrites the mutable fields of the movie identified by m.Slug.
func (r *MovieRepo) Update(ctx context.Context, m *Movie) error {
	const q = `
UPDATE movies
SET title=$2, synopsis=$3, file_id=$4, published=$5, released_at=$6, updated_at=now()
WHERE slug=$1`
	tag, err := r.db.Pool.Exec(ctx, q, m.Slug, m.Title, m.Synopsis, m.FileID, m.Published, m.ReleasedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the movie with the given slug.
func (r *MovieRepo) Delete(ctx context.Context, slug string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM movies WHERE slug=$1`, slug)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindBySlug returns the movie with the given slug regardless of state.
func (r *MovieRepo) FindBySlug(ctx context.Context, slug string) (*Movie, error) {
	const q = `SELECT ` + movieColumns + ` FROM movies WHERE slug=$1`
	return scanMovie(r.db.Pool.QueryRow(ctx, q, slug))
}

// FindPublishedBySlug implements MovieRepository.FindPublishedBySlug.
func (r *MovieRepo) FindPublishedBySlug(ctx context.Context, slug string) (*Movie, error) {
	const q = `SELECT ` + movieColumns + ` FROM movies WHERE slug=$1 AND published`
	return scanMovie(r.db.Pool.QueryRow(ctx, q, slug))
}

// List returns movies ordered by creation time, newest first.
func (r *MovieRepo) List(ctx context.Context, publishedOnly bool) ([]Movie, error) {
	q := `SELECT ` + movieColumns + ` FROM movies ORDER BY created_at DESC`
	if publishedOnly {
		q = `SELECT ` + movieColumns + ` FROM movies WHERE published ORDER BY created_at DESC`
	}
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Movie
	for rows.Next() {
		var m Movie
		if err := rows.Scan(&m.ID, &m.Slug, &m.Title, &m.Synopsis, &m.FileID,
			&m.Published, &m.ReleasedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PostRepo implements PostRepository using PostgreSQL.
type PostRepo struct{ db *storage.DB }

// NewPostRepo constructs a blog post repository.
func NewPostRepo(db *storage.DB) *PostRepo { return &PostRepo{db: db} }

const postColumns = `id, slug, title, body, published, created_at, updated_at`

func scanPost(row pgx.Row) (*Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Body, &p.Published, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a new post. The ID and timestamps are assigned here.
func (r *PostRepo) Create(ctx context.Context, p *Post) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	p.ID = id
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	const q = `
INSERT INTO posts (id, slug, title, body, published, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = r.db.Pool.Exec(ctx, q, p.ID, p.Slug, p.Title, p.Body, p.Published, p.CreatedAt, p.UpdatedAt)
	if storage.IsUniqueViolation(err) {
		return ErrSlugTaken
	}
	return err
}

// Update rewrites the mutable fields of the post identified by p.Slug.
func (r *PostRepo) Update(ctx context.Context, p *Post) error {
	const q = `UPDATE posts SET title=$2, body=$3, published=$4, updated_at=now() WHERE slug=$1`
	tag, err := r.db.Pool.Exec(ctx, q, p.Slug, p.Title, p.Body, p.Published)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the post with the given slug.
func (r *PostRepo) Delete(ctx context.Context, slug string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM posts WHERE slug=$1`, slug)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindBySlug returns the post with the given slug.
func (r *PostRepo) FindBySlug(ctx context.Context, slug string) (*Post, error) {
	const q = `SELECT ` + postColumns + ` FROM posts WHERE slug=$1`
	return scanPost(r.db.Pool.QueryRow(ctx, q, slug))
}

// List returns posts ordered by creation time, newest first.
func (r *PostRepo) List(ctx context.Context, publishedOnly bool) ([]Post, error) {
	q := `SELECT ` + postColumns + ` FROM posts ORDER BY created_at DESC`
	if publishedOnly {
		q = `SELECT ` + postColumns + ` FROM posts WHERE published ORDER BY created_at DESC`
	}
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.Slug, &p.Title, &p.Body, &p.Published, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
