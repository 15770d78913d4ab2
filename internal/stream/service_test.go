package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"cinevault/internal/analytics"
	"cinevault/internal/catalog"
	"cinevault/internal/filehost"
	"cinevault/internal/platform/config"
)

type fakeStore struct {
	movie *catalog.Movie
}

func (s *fakeStore) FindPublishedBySlug(_ context.Context, slug string) (*catalog.Movie, error) {
	if s.movie == nil || s.movie.Slug != slug {
		return nil, catalog.ErrNotFound
	}
	return s.movie, nil
}

type fakeHost struct {
	locator    filehost.Locator
	resolveErr error
	fetchErr   error
	body       string
	resolved   int
}

func (h *fakeHost) ResolveFile(_ context.Context, _ string) (filehost.Locator, error) {
	h.resolved++
	if h.resolveErr != nil {
		return filehost.Locator{}, h.resolveErr
	}
	return h.locator, nil
}

func (h *fakeHost) FetchFile(_ context.Context, _ filehost.Locator) (*filehost.Download, error) {
	if h.fetchErr != nil {
		return nil, h.fetchErr
	}
	return &filehost.Download{
		Body:          io.NopCloser(strings.NewReader(h.body)),
		ContentType:   "video/mp4",
		ContentLength: int64(len(h.body)),
	}, nil
}

func (h *fakeHost) DirectURL(loc filehost.Locator) string {
	return "https://files.example/direct/" + loc.Path
}

type fakeSink struct {
	events []*analytics.Event
	err    error
}

func (s *fakeSink) Record(_ context.Context, ev *analytics.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

// fakeUsage mirrors the SQL semantics of UsageRepo: one atomic
// compare-and-increment per Consume.
type fakeUsage struct {
	mu      sync.Mutex
	records map[string]*TokenRecord
	saveErr error
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{records: make(map[string]*TokenRecord)}
}

func (u *fakeUsage) Save(_ context.Context, rec *TokenRecord) error {
	if u.saveErr != nil {
		return u.saveErr
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.records[string(rec.TokenHash)] = rec
	return nil
}

func (u *fakeUsage) Consume(_ context.Context, tokenHash []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	rec, ok := u.records[string(tokenHash)]
	if !ok || rec.UsedCount >= rec.MaxUses {
		return ErrUseLimitExceeded
	}
	rec.UsedCount++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testMovie() *catalog.Movie {
	return &catalog.Movie{Slug: "movie-x", Title: "Movie X", FileID: "FILE123", Published: true}
}

func TestService_Issue(t *testing.T) {
	store := &fakeStore{movie: testMovie()}
	host := &fakeHost{locator: filehost.Locator{Path: "videos/file_1.mp4", Size: 1048576}}
	sink := &fakeSink{}
	svc := NewService(store, host, sink, nil, time.Hour, config.BindingLenient, 0, testLogger())

	issuedAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	grant, err := svc.Issue(context.Background(), "movie-x", "", "203.0.113.7", "player/1.0")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if !strings.HasPrefix(grant.StreamURL, "/stream/") {
		t.Errorf("StreamURL = %q, want /stream/ prefix", grant.StreamURL)
	}
	if grant.FileSize != 1048576 {
		t.Errorf("FileSize = %d, want 1048576", grant.FileSize)
	}
	if !grant.ExpiresAt.Equal(issuedAt.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", grant.ExpiresAt, issuedAt.Add(time.Hour))
	}

	tok, err := Decode(strings.TrimPrefix(grant.StreamURL, "/stream/"))
	if err != nil {
		t.Fatalf("Decode issued token: %v", err)
	}
	if tok.FileID != "FILE123" || tok.Identity != "203.0.113.7" {
		t.Errorf("decoded token = %+v", tok)
	}
	if tok.ExpiresAt != issuedAt.Add(time.Hour).UnixMilli() {
		t.Errorf("token ExpiresAt = %d, want %d", tok.ExpiresAt, issuedAt.Add(time.Hour).UnixMilli())
	}

	if len(sink.events) != 1 || sink.events[0].Type != "video_access" || sink.events[0].SubjectID != "movie-x" {
		t.Errorf("expected one video_access event for movie-x, got %+v", sink.events)
	}
}

func TestService_Issue_unknownSlug(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeHost{}, &fakeSink{}, nil, time.Hour, config.BindingLenient, 0, testLogger())

	_, err := svc.Issue(context.Background(), "missing", "", "203.0.113.7", "")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestService_Issue_upstreamLookupFails(t *testing.T) {
	host := &fakeHost{resolveErr: filehost.ErrFileNotFound}
	svc := NewService(&fakeStore{movie: testMovie()}, host, &fakeSink{}, nil, time.Hour, config.BindingLenient, 0, testLogger())

	_, err := svc.Issue(context.Background(), "movie-x", "", "203.0.113.7", "")
	if !errors.Is(err, filehost.ErrFileNotFound) {
		t.Errorf("err = %v, want filehost.ErrFileNotFound", err)
	}
}

func TestService_Issue_analyticsFailureIsSwallowed(t *testing.T) {
	sink := &fakeSink{err: errors.New("sink down")}
	host := &fakeHost{locator: filehost.Locator{Path: "p", Size: 1}}
	svc := NewService(&fakeStore{movie: testMovie()}, host, sink, nil, time.Hour, config.BindingLenient, 0, testLogger())

	if _, err := svc.Issue(context.Background(), "movie-x", "", "203.0.113.7", ""); err != nil {
		t.Errorf("issuance must not fail on analytics errors, got %v", err)
	}
}

func TestService_Issue_fileReferenceFallback(t *testing.T) {
	movie := testMovie()
	movie.FileID = ""
	host := &fakeHost{locator: filehost.Locator{Path: "p", Size: 1}}
	svc := NewService(&fakeStore{movie: movie}, host, &fakeSink{}, nil, time.Hour, config.BindingLenient, 0, testLogger())

	grant, err := svc.Issue(context.Background(), "movie-x", "LEGACY42", "203.0.113.7", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	tok, _ := Decode(strings.TrimPrefix(grant.StreamURL, "/stream/"))
	if tok.FileID != "LEGACY42" {
		t.Errorf("FileID = %q, want request fallback LEGACY42", tok.FileID)
	}

	// No file id anywhere means the title is not playable.
	if _, err := svc.Issue(context.Background(), "movie-x", "", "203.0.113.7", ""); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound when no file id exists", err)
	}
}

// Tokens embed the requester identity verbatim, so an IPv6 address puts
// extra colons inside the payload. The issuer's own tokens must still verify.
func TestService_Issue_ipv6Identity(t *testing.T) {
	host := &fakeHost{locator: filehost.Locator{Path: "p", Size: 1}}
	svc := NewService(&fakeStore{movie: testMovie()}, host, &fakeSink{}, nil, time.Hour, config.BindingStrict, 0, testLogger())

	grant, err := svc.Issue(context.Background(), "movie-x", "", "2001:db8::1", "player/1.0")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	token := strings.TrimPrefix(grant.StreamURL, "/stream/")

	tok, err := svc.Verify(token, "2001:db8::1")
	if err != nil {
		t.Fatalf("Verify own token: %v", err)
	}
	if tok.FileID != "FILE123" || tok.Identity != "2001:db8::1" {
		t.Errorf("decoded token = %+v", tok)
	}

	if _, err := svc.Verify(token, "2001:db8::2"); !errors.Is(err, ErrIdentityMismatch) {
		t.Errorf("strict binding with other address: err = %v, want ErrIdentityMismatch", err)
	}
}

func TestService_Verify_expiryBoundary(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeHost{}, &fakeSink{}, nil, time.Hour, config.BindingLenient, 0, testLogger())
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	// Coarse margins: one second on either side of now.
	expired := Encode(Token{FileID: "F", Identity: "1.2.3.4", ExpiresAt: now.Add(-time.Second).UnixMilli()})
	if _, err := svc.Verify(expired, "1.2.3.4"); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired token: err = %v, want ErrTokenExpired", err)
	}

	valid := Encode(Token{FileID: "F", Identity: "1.2.3.4", ExpiresAt: now.Add(time.Second).UnixMilli()})
	if _, err := svc.Verify(valid, "1.2.3.4"); err != nil {
		t.Errorf("valid token: err = %v", err)
	}
}

func TestService_Verify_malformed(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeHost{}, &fakeSink{}, nil, time.Hour, config.BindingLenient, 0, testLogger())

	if _, err := svc.Verify("not-a-token!!!", "1.2.3.4"); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("err = %v, want ErrMalformedToken", err)
	}
}

func TestService_Verify_bindingPolicies(t *testing.T) {
	now := time.Now()
	tok := Encode(Token{FileID: "F", Identity: "203.0.113.7", ExpiresAt: now.Add(time.Hour).UnixMilli()})

	lenient := NewService(&fakeStore{}, &fakeHost{}, &fakeSink{}, nil, time.Hour, config.BindingLenient, 0, testLogger())
	if _, err := lenient.Verify(tok, "198.51.100.9"); err != nil {
		t.Errorf("lenient binding must ignore identity mismatch, got %v", err)
	}

	strict := NewService(&fakeStore{}, &fakeHost{}, &fakeSink{}, nil, time.Hour, config.BindingStrict, 0, testLogger())
	if _, err := strict.Verify(tok, "198.51.100.9"); !errors.Is(err, ErrIdentityMismatch) {
		t.Errorf("strict binding: err = %v, want ErrIdentityMismatch", err)
	}
	if _, err := strict.Verify(tok, "203.0.113.7"); err != nil {
		t.Errorf("strict binding with matching identity: err = %v", err)
	}
}

func TestService_ConsumeUse_exhaustion(t *testing.T) {
	usage := newFakeUsage()
	host := &fakeHost{locator: filehost.Locator{Path: "p", Size: 1}}
	svc := NewService(&fakeStore{movie: testMovie()}, host, &fakeSink{}, usage, time.Hour, config.BindingLenient, 5, testLogger())

	grant, err := svc.Issue(context.Background(), "movie-x", "", "203.0.113.7", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	token := strings.TrimPrefix(grant.StreamURL, "/stream/")

	for i := 0; i < 5; i++ {
		if err := svc.ConsumeUse(context.Background(), token); err != nil {
			t.Fatalf("use %d: %v", i+1, err)
		}
	}
	if err := svc.ConsumeUse(context.Background(), token); !errors.Is(err, ErrUseLimitExceeded) {
		t.Errorf("6th use: err = %v, want ErrUseLimitExceeded", err)
	}
}

func TestService_ConsumeUse_unissuedTokenRejected(t *testing.T) {
	usage := newFakeUsage()
	svc := NewService(&fakeStore{}, &fakeHost{}, &fakeSink{}, usage, time.Hour, config.BindingLenient, 5, testLogger())

	forged := Encode(Token{FileID: "B", Identity: "1.2.3.4", ExpiresAt: time.Now().Add(time.Hour).UnixMilli()})
	if err := svc.ConsumeUse(context.Background(), forged); !errors.Is(err, ErrUseLimitExceeded) {
		t.Errorf("forged token: err = %v, want ErrUseLimitExceeded", err)
	}
}

func TestService_ConsumeUse_concurrentLastUse(t *testing.T) {
	usage := newFakeUsage()
	host := &fakeHost{locator: filehost.Locator{Path: "p", Size: 1}}
	svc := NewService(&fakeStore{movie: testMovie()}, host, &fakeSink{}, usage, time.Hour, config.BindingLenient, 2, testLogger())

	grant, err := svc.Issue(context.Background(), "movie-x", "", "203.0.113.7", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	token := strings.TrimPrefix(grant.StreamURL, "/stream/")
	if err := svc.ConsumeUse(context.Background(), token); err != nil {
		t.Fatalf("first use: %v", err)
	}

	// One use left; two concurrent consumers must not both pass.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.ConsumeUse(context.Background(), token)
		}()
	}
	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		if err == nil {
			ok++
		} else if errors.Is(err, ErrUseLimitExceeded) {
			rejected++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("got %d successes and %d rejections, want exactly 1 and 1", ok, rejected)
	}
}

func TestService_OpenStream_resolvesFreshEachTime(t *testing.T) {
	host := &fakeHost{locator: filehost.Locator{Path: "p", Size: 4}, body: "data"}
	svc := NewService(&fakeStore{}, host, &fakeSink{}, nil, time.Hour, config.BindingLenient, 0, testLogger())

	tok := Token{FileID: "FILE123"}
	for i := 0; i < 2; i++ {
		dl, err := svc.OpenStream(context.Background(), tok)
		if err != nil {
			t.Fatalf("OpenStream: %v", err)
		}
		dl.Body.Close()
	}
	if host.resolved != 2 {
		t.Errorf("locator resolved %d times, want once per stream call", host.resolved)
	}
}
