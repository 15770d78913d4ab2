package stream

import (
	"context"
	"crypto/sha256"
	"time"

	"cinevault/internal/storage"
)

// TokenRecord is the persisted shadow of an issued token, keyed by the
// sha256 of the wire string so the raw token is never stored.
type TokenRecord struct {
	TokenHash      []byte
	FileID         string
	SubjectSlug    string
	RequesterIP    string
	RequesterAgent string
	ExpiresAt      time.Time
	UsedCount      int
	MaxUses        int
}

// HashToken returns the stable hash used to key token records.
func HashToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// UsageRepo implements UsageStore using PostgreSQL.
type UsageRepo struct{ db *storage.DB }

// NewUsageRepo constructs a token-record repository.
func NewUsageRepo(db *storage.DB) *UsageRepo { return &UsageRepo{db: db} }

// Save persists the record for a freshly issued token.
func (r *UsageRepo) Save(ctx context.Context, rec *TokenRecord) error {
	const q = `
INSERT INTO access_tokens (token_hash, file_id, subject_slug, requester_ip, requester_agent, created_at, expires_at, used_count, max_uses)
VALUES ($1,$2,$3,$4,$5,now(),$6,0,$7)
ON CONFLICT (token_hash) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, rec.TokenHash, rec.FileID, rec.SubjectSlug,
		rec.RequesterIP, rec.RequesterAgent, rec.ExpiresAt, rec.MaxUses)
	return err
}

// Consume burns one use atomically. The guard lives in the UPDATE itself so
// two concurrent consumers of the last remaining use cannot both pass: the
// database serializes the increments and exactly one sees rows-affected 1.
// A missing record also yields rows-affected 0, which rejects tokens this
// server never issued.
func (r *UsageRepo) Consume(ctx context.Context, tokenHash []byte) error {
	const q = `
UPDATE access_tokens
SET used_count = used_count + 1
WHERE token_hash = $1 AND used_count < max_uses`
	tag, err := r.db.Pool.Exec(ctx, q, tokenHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUseLimitExceeded
	}
	return nil
}

// PurgeExpired deletes records for tokens that can no longer verify. Run
// periodically; the verifier never reads expired rows, so this is hygiene,
// not correctness.
func (r *UsageRepo) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM access_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
