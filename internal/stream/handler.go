package stream

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"cinevault/internal/catalog"
	"cinevault/internal/filehost"
	"cinevault/internal/platform/logger"
	"cinevault/internal/platform/metrics"
)

// Handler exposes the video-access and stream-proxy endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler. svc may be nil when the bot credentials are
// not configured; the endpoints then answer 503 until an operator fixes the
// deployment. Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

type videoAccessRequest struct {
	FileReference string `json:"fileReference"`
	ResourceSlug  string `json:"resourceSlug"`
}

type videoAccessResponse struct {
	StreamURL         string `json:"streamUrl"`
	DirectURLFallback string `json:"directUrlFallback"`
	ExpiresAt         string `json:"expiresAt"`
	FileSize          int64  `json:"fileSize"`
}

// VideoAccess handles POST /api/video-access.
// Body: { "fileReference": "...", "resourceSlug": "movie-x" }.
func (h *Handler) VideoAccess(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	var req videoAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.ResourceSlug == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	identity := logger.RemoteIP(r)
	grant, err := h.svc.Issue(r.Context(), req.ResourceSlug, req.FileReference, identity, r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, filehost.ErrFileNotFound), errors.Is(err, filehost.ErrUnavailable):
			// Upstream detail stays in the log; the client just retries
			// with a fresh request later.
			h.log.Warn("upstream lookup failed",
				slog.String("slug", req.ResourceSlug),
				slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadGateway)
		default:
			h.log.Error("issue token failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	if h.metrics != nil {
		h.metrics.IncTokensIssued()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(videoAccessResponse{
		StreamURL:         grant.StreamURL,
		DirectURLFallback: grant.DirectURL,
		ExpiresAt:         grant.ExpiresAt.UTC().Format(time.RFC3339),
		FileSize:          grant.FileSize,
	})
}

// Stream handles GET /stream/{token}: verifies the token, re-resolves the
// upstream locator, and relays the byte stream without buffering it.
//
// Range requests are not forwarded upstream: the response advertises
// Accept-Ranges so players enable seeking, but a ranged request degrades to
// a full re-fetch from offset zero. Known limitation.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	tokenString := chi.URLParam(r, "token")
	identity := logger.RemoteIP(r)

	t, err := h.svc.Verify(tokenString, identity)
	if err != nil {
		h.log.Info("stream rejected",
			slog.String("remote", identity),
			slog.String("reason", err.Error()))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// The request context cancels the upstream fetch when the client
	// disconnects, so abandoned playback leaves no dangling upstream work.
	dl, err := h.svc.OpenStream(r.Context(), t)
	if err != nil {
		switch {
		case errors.Is(err, filehost.ErrFileNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, filehost.ErrUnavailable):
			h.log.Warn("upstream fetch failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadGateway)
		default:
			h.log.Error("open stream failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	defer dl.Body.Close()

	// A use is consumed only once the upstream stream is open: an upstream
	// outage or a vanished file must not eat into the token's budget.
	if err := h.svc.ConsumeUse(r.Context(), tokenString); err != nil {
		if errors.Is(err, ErrUseLimitExceeded) {
			h.log.Info("stream rejected use limit", slog.String("remote", identity))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h.log.Error("consume token use failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	contentType := dl.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	if dl.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.ContentLength, 10))
	}
	w.Header().Set("Accept-Ranges", "bytes")
	// Stream URLs are single-purpose and time-limited; intermediaries must
	// not cache the bytes.
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if h.metrics != nil {
		h.metrics.IncStreamsServed()
		h.metrics.RelayStarted()
		defer h.metrics.RelayFinished()
	}

	n, err := io.Copy(w, dl.Body)
	if h.metrics != nil {
		h.metrics.AddStreamBytes(n)
	}
	if err != nil {
		// Mid-stream failures (including client disconnects) cannot change
		// the status line anymore; just log them.
		h.log.Debug("stream relay interrupted",
			slog.String("file_id", t.FileID),
			slog.Int64("bytes", n),
			slog.String("error", err.Error()))
		return
	}

	h.log.Info("stream relayed",
		slog.String("file_id", t.FileID),
		slog.String("remote", identity),
		slog.Int64("bytes", n))
}
