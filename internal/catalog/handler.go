package catalog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler exposes catalog CRUD endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts the catalog endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/movies", func(r chi.Router) {
		r.Get("/", h.ListMovies)
		r.Post("/", h.CreateMovie)
		r.Route("/{slug}", func(r chi.Router) {
			r.Get("/", h.GetMovie)
			r.Put("/", h.UpdateMovie)
			r.Delete("/", h.DeleteMovie)
		})
	})
	r.Route("/posts", func(r chi.Router) {
		r.Get("/", h.ListPosts)
		r.Post("/", h.CreatePost)
		r.Route("/{slug}", func(r chi.Router) {
			r.Get("/", h.GetPost)
			r.Put("/", h.UpdatePost)
			r.Delete("/", h.DeletePost)
		})
	})
}

// movieInput is the write payload for movies. FileID is accepted on writes
// but never echoed back in responses.
type movieInput struct {
	Slug       string     `json:"slug"`
	Title      string     `json:"title"`
	Synopsis   string     `json:"synopsis"`
	FileID     string     `json:"fileId"`
	Published  bool       `json:"published"`
	ReleasedAt *time.Time `json:"releasedAt"`
}

type postInput struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Published bool   `json:"published"`
}

// CreateMovie handles POST /api/movies.
func (h *Handler) CreateMovie(w http.ResponseWriter, r *http.Request) {
	var in movieInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.log.Debug("invalid movie body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m := &Movie{Slug: in.Slug, Title: in.Title, Synopsis: in.Synopsis,
		FileID: in.FileID, Published: in.Published, ReleasedAt: in.ReleasedAt}
	if err := h.svc.CreateMovie(r.Context(), m); err != nil {
		h.writeError(w, err, "create movie")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GetMovie handles GET /api/movies/{slug}.
func (h *Handler) GetMovie(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMovie(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err, "get movie")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListMovies handles GET /api/movies. ?published=true limits the listing to
// published entries (the public site uses this; the dashboard omits it).
func (h *Handler) ListMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := h.svc.ListMovies(r.Context(), r.URL.Query().Get("published") == "true")
	if err != nil {
		h.writeError(w, err, "list movies")
		return
	}
	if movies == nil {
		movies = []Movie{}
	}
	writeJSON(w, http.StatusOK, movies)
}

// UpdateMovie handles PUT /api/movies/{slug}.
func (h *Handler) UpdateMovie(w http.ResponseWriter, r *http.Request) {
	var in movieInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m := &Movie{Slug: chi.URLParam(r, "slug"), Title: in.Title, Synopsis: in.Synopsis,
		FileID: in.FileID, Published: in.Published, ReleasedAt: in.ReleasedAt}
	if err := h.svc.UpdateMovie(r.Context(), m); err != nil {
		h.writeError(w, err, "update movie")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteMovie handles DELETE /api/movies/{slug}.
func (h *Handler) DeleteMovie(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteMovie(r.Context(), chi.URLParam(r, "slug")); err != nil {
		h.writeError(w, err, "delete movie")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreatePost handles POST /api/posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var in postInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p := &Post{Slug: in.Slug, Title: in.Title, Body: in.Body, Published: in.Published}
	if err := h.svc.CreatePost(r.Context(), p); err != nil {
		h.writeError(w, err, "create post")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPost handles GET /api/posts/{slug}.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPost(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err, "get post")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListPosts handles GET /api/posts.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.ListPosts(r.Context(), r.URL.Query().Get("published") == "true")
	if err != nil {
		h.writeError(w, err, "list posts")
		return
	}
	if posts == nil {
		posts = []Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

// UpdatePost handles PUT /api/posts/{slug}.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var in postInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p := &Post{Slug: chi.URLParam(r, "slug"), Title: in.Title, Body: in.Body, Published: in.Published}
	if err := h.svc.UpdatePost(r.Context(), p); err != nil {
		h.writeError(w, err, "update post")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePost handles DELETE /api/posts/{slug}.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePost(r.Context(), chi.URLParam(r, "slug")); err != nil {
		h.writeError(w, err, "delete post")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrSlugTaken):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, ErrInvalidInput):
		w.WriteHeader(http.StatusBadRequest)
	default:
		h.log.Error(op+" failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
