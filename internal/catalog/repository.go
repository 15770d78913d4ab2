package catalog

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the requested entry does not exist or,
	// for public lookups, is not published.
	ErrNotFound = errors.New("catalog entry not found")

	// ErrSlugTaken is returned when creating an entry with a slug that
	// already exists.
	ErrSlugTaken = errors.New("slug already taken")
)

// MovieRepository is the storage contract for movies.
type MovieRepository interface {
	Create(ctx context.Context, m *Movie) error
	Update(ctx context.Context, m *Movie) error
	Delete(ctx context.Context, slug string) error
	FindBySlug(ctx context.Context, slug string) (*Movie, error)
	// FindPublishedBySlug resolves a slug only if the movie is published.
	// The streaming token issuer goes through this to keep unreleased
	// titles unplayable.
	FindPublishedBySlug(ctx context.Context, slug string) (*Movie, error)
	List(ctx context.Context, publishedOnly bool) ([]Movie, error)
}

// PostRepository is the storage contract for blog posts.
type PostRepository interface {
	Create(ctx context.Context, p *Post) error
	Update(ctx context.Context, p *Post) error
	Delete(ctx context.Context, slug string) error
	FindBySlug(ctx context.Context, slug string) (*Post, error)
	List(ctx context.Context, publishedOnly bool) ([]Post, error)
}
