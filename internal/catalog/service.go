package catalog

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidInput is returned when a create/update payload fails validation.
var ErrInvalidInput = errors.New("invalid catalog input")

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Service applies catalog business rules and delegates storage to the
// repositories.
type Service struct {
	movies MovieRepository
	posts  PostRepository
}

// NewService returns a Service backed by the given repositories.
func NewService(movies MovieRepository, posts PostRepository) *Service {
	return &Service{movies: movies, posts: posts}
}

// CreateMovie validates and stores a new movie.
func (s *Service) CreateMovie(ctx context.Context, m *Movie) error {
	if err := validateSlugTitle(m.Slug, m.Title); err != nil {
		return err
	}
	return s.movies.Create(ctx, m)
}

// UpdateMovie validates and rewrites an existing movie addressed by slug.
func (s *Service) UpdateMovie(ctx context.Context, m *Movie) error {
	if err := validateSlugTitle(m.Slug, m.Title); err != nil {
		return err
	}
	return s.movies.Update(ctx, m)
}

// DeleteMovie removes a movie by slug.
func (s *Service) DeleteMovie(ctx context.Context, slug string) error {
	return s.movies.Delete(ctx, slug)
}

// GetMovie returns a movie by slug regardless of publication state.
func (s *Service) GetMovie(ctx context.Context, slug string) (*Movie, error) {
	return s.movies.FindBySlug(ctx, slug)
}

// ListMovies returns movies, optionally restricted to published ones.
func (s *Service) ListMovies(ctx context.Context, publishedOnly bool) ([]Movie, error) {
	return s.movies.List(ctx, publishedOnly)
}

// CreatePost validates and stores a new blog post.
func (s *Service) CreatePost(ctx context.Context, p *Post) error {
	if err := validateSlugTitle(p.Slug, p.Title); err != nil {
		return err
	}
	return s.posts.Create(ctx, p)
}

// UpdatePost validates and rewrites an existing post addressed by slug.
func (s *Service) UpdatePost(ctx context.Context, p *Post) error {
	if err := validateSlugTitle(p.Slug, p.Title); err != nil {
		return err
	}
	return s.posts.Update(ctx, p)
}

// DeletePost removes a post by slug.
func (s *Service) DeletePost(ctx context.Context, slug string) error {
	return s.posts.Delete(ctx, slug)
}

// GetPost returns a post by slug.
func (s *Service) GetPost(ctx context.Context, slug string) (*Post, error) {
	return s.posts.FindBySlug(ctx, slug)
}

// ListPosts returns posts, optionally restricted to published ones.
func (s *Service) ListPosts(ctx context.Context, publishedOnly bool) ([]Post, error) {
	return s.posts.List(ctx, publishedOnly)
}

func validateSlugTitle(slug, title string) error {
	if !slugPattern.MatchString(slug) {
		return ErrInvalidInput
	}
	if strings.TrimSpace(title) == "" {
		return ErrInvalidInput
	}
	return nil
}
