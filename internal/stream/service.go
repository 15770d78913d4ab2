package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cinevault/internal/analytics"
	"cinevault/internal/catalog"
	"cinevault/internal/filehost"
	"cinevault/internal/platform/config"
)

// DefaultLifetime is the token lifetime used when none is configured.
const DefaultLifetime = time.Hour

var (
	// ErrTokenExpired is returned when a structurally valid token is past
	// its expiry instant.
	ErrTokenExpired = errors.New("access token expired")

	// ErrIdentityMismatch is returned under strict binding when the token
	// was issued to a different requester identity.
	ErrIdentityMismatch = errors.New("access token identity mismatch")

	// ErrUseLimitExceeded is returned when consuming a use would exceed the
	// token's max_uses, or when no record of the token exists at all.
	ErrUseLimitExceeded = errors.New("access token use limit exceeded")
)

// ContentStore resolves slugs against the catalog. Satisfied by
// *catalog.MovieRepo.
type ContentStore interface {
	FindPublishedBySlug(ctx context.Context, slug string) (*catalog.Movie, error)
}

// FileHost is the upstream bot file API. Satisfied by *filehost.Client;
// tests substitute a double so nothing touches the network.
type FileHost interface {
	ResolveFile(ctx context.Context, fileID string) (filehost.Locator, error)
	FetchFile(ctx context.Context, loc filehost.Locator) (*filehost.Download, error)
	DirectURL(loc filehost.Locator) string
}

// EventSink records access events. Failures are swallowed by the Service.
type EventSink interface {
	Record(ctx context.Context, ev *analytics.Event) error
}

// UsageStore persists issued-token records and enforces per-token use
// limits. Satisfied by *UsageRepo. A nil UsageStore disables enforcement:
// verification then checks only expiry (and binding policy).
type UsageStore interface {
	Save(ctx context.Context, rec *TokenRecord) error
	Consume(ctx context.Context, tokenHash []byte) error
}

// Grant is the result of issuing a video access token.
type Grant struct {
	StreamURL string
	DirectURL string
	ExpiresAt time.Time
	FileSize  int64
}

// Service mints and verifies access tokens and resolves upstream streams.
type Service struct {
	store    ContentStore
	host     FileHost
	events   EventSink
	usage    UsageStore
	log      *slog.Logger
	lifetime time.Duration
	binding  config.BindingPolicy
	maxUses  int

	now func() time.Time // overridable in tests
}

// NewService returns a Service. lifetime <= 0 falls back to DefaultLifetime.
// usage may be nil to disable use-count enforcement; maxUses is the per-token
// budget recorded at issuance when enforcement is on.
func NewService(store ContentStore, host FileHost, events EventSink, usage UsageStore,
	lifetime time.Duration, binding config.BindingPolicy, maxUses int, log *slog.Logger) *Service {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Service{
		store:    store,
		host:     host,
		events:   events,
		usage:    usage,
		log:      log,
		lifetime: lifetime,
		binding:  binding,
		maxUses:  maxUses,
		now:      time.Now,
	}
}

// Issue resolves slug against the catalog, obtains a fresh upstream locator,
// and mints a token bound to identity and the configured lifetime.
//
// The analytics write is best-effort; the token-record write is not, since
// stream requests are rejected against it when enforcement is on.
func (s *Service) Issue(ctx context.Context, slug, fileRef, identity, agent string) (*Grant, error) {
	movie, err := s.store.FindPublishedBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	fileID := movie.FileID
	if fileID == "" {
		// Legacy entries carry the file reference on the request instead
		// of the catalog row.
		fileID = fileRef
	}
	if fileID == "" {
		return nil, catalog.ErrNotFound
	}

	loc, err := s.host.ResolveFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(s.lifetime)
	token := Encode(Token{FileID: fileID, Identity: identity, ExpiresAt: expiresAt.UnixMilli()})

	if s.usage != nil {
		rec := &TokenRecord{
			TokenHash:      HashToken(token),
			FileID:         fileID,
			SubjectSlug:    slug,
			RequesterIP:    identity,
			RequesterAgent: agent,
			ExpiresAt:      expiresAt,
			MaxUses:        s.maxUses,
		}
		if err := s.usage.Save(ctx, rec); err != nil {
			return nil, err
		}
	}

	ev := &analytics.Event{
		Type:           "video_access",
		SubjectID:      movie.Slug,
		RequesterIP:    identity,
		RequesterAgent: agent,
		Source:         "issuer",
	}
	if err := s.events.Record(ctx, ev); err != nil {
		s.log.Warn("access event not recorded", slog.String("slug", slug), slog.String("error", err.Error()))
	}

	return &Grant{
		StreamURL: "/stream/" + token,
		DirectURL: s.host.DirectURL(loc),
		ExpiresAt: expiresAt,
		FileSize:  loc.Size,
	}, nil
}

// Verify decodes the token and checks expiry. Under strict binding it also
// requires the embedded identity to match the presenting caller; under
// lenient binding (the default) mismatches are ignored, since network-layer
// identities rotate across mobile and proxy paths.
func (s *Service) Verify(tokenString, identity string) (Token, error) {
	t, err := Decode(tokenString)
	if err != nil {
		return Token{}, err
	}
	if s.now().UnixMilli() > t.ExpiresAt {
		return Token{}, ErrTokenExpired
	}
	if s.binding == config.BindingStrict && t.Identity != identity {
		return Token{}, ErrIdentityMismatch
	}
	return t, nil
}

// ConsumeUse burns one use of the token. A no-op when enforcement is off.
func (s *Service) ConsumeUse(ctx context.Context, tokenString string) error {
	if s.usage == nil {
		return nil
	}
	return s.usage.Consume(ctx, HashToken(tokenString))
}

// OpenStream re-resolves the upstream locator for a verified token and opens
// the byte stream. Locators expire upstream independently of our tokens, so
// every stream request resolves fresh; nothing is cached between calls.
func (s *Service) OpenStream(ctx context.Context, t Token) (*filehost.Download, error) {
	loc, err := s.host.ResolveFile(ctx, t.FileID)
	if err != nil {
		return nil, err
	}
	return s.host.FetchFile(ctx, loc)
}
