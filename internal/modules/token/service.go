package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/kennethcanega/userdesk/internal/domain"
	"github.com/kennethcanega/userdesk/internal/repository"

	"gorm.io/gorm"
)

// Service owns the refresh-token chain per user: at most one active chain,
// advanced one hop at a time by rotation. Every mutating operation runs in
// a single database transaction so a half-applied step is never observable.
type Service struct {
	db     *gorm.DB
	users  *repository.UserRepository
	tokens *repository.RefreshTokenRepository
	ttl    time.Duration
}

func NewService(db *gorm.DB, users *repository.UserRepository, tokens *repository.RefreshTokenRepository, ttl time.Duration) *Service {
	return &Service{db: db, users: users, tokens: tokens, ttl: ttl}
}

// TTL returns the configured refresh-token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue revokes every outstanding token for the user and mints a fresh one.
// A new login deliberately kills all older sessions. The returned plaintext
// is the only copy that ever exists outside the client.
func (s *Service) Issue(ctx context.Context, userID int64) (string, error) {
	plain, hash, err := generate()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.tokens.WithTx(tx).RevokeByUser(ctx, userID); err != nil {
			return err
		}
		return s.tokens.WithTx(tx).Create(ctx, &domain.RefreshToken{
			UserID:    userID,
			TokenHash: hash,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		})
	})
	if err != nil {
		return "", err
	}
	return plain, nil
}

// Rotate consumes a presented token and issues its successor for the same
// user. Only the consumed token is revoked; the issue-time purge is not
// repeated, keeping chain advancement strictly one hop. Returns the owner
// so the caller can mint a new access token.
func (s *Service) Rotate(ctx context.Context, plain string) (*domain.User, string, error) {
	newPlain, newHash, err := generate()
	if err != nil {
		return nil, "", err
	}

	var owner *domain.User
	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, user, err := s.lookupUsable(ctx, tx, plain)
		if err != nil {
			return err
		}

		if err := s.tokens.WithTx(tx).Revoke(ctx, current.ID); err != nil {
			return err
		}
		if err := s.tokens.WithTx(tx).Create(ctx, &domain.RefreshToken{
			UserID:    current.UserID,
			TokenHash: newHash,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}); err != nil {
			return err
		}
		owner = user
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return owner, newPlain, nil
}

// RevokeByPlainToken marks the matching token revoked and returns its owner
// for logout bookkeeping.
func (s *Service) RevokeByPlainToken(ctx context.Context, plain string) (*domain.User, error) {
	var owner *domain.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, user, err := s.lookupUsable(ctx, tx, plain)
		if err != nil {
			return err
		}
		if err := s.tokens.WithTx(tx).Revoke(ctx, current.ID); err != nil {
			return err
		}
		owner = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return owner, nil
}

// RevokeAllForUser mass-revokes the user's outstanding tokens. Used on
// logout and for administrative force-logout.
func (s *Service) RevokeAllForUser(ctx context.Context, userID int64) error {
	return s.tokens.RevokeByUser(ctx, userID)
}

// Validate is the read-only usability check. It never mutates state.
func (s *Service) Validate(ctx context.Context, plain string) (*domain.RefreshToken, error) {
	current, _, err := s.lookupUsable(ctx, s.db, plain)
	if err != nil {
		return nil, err
	}
	return current, nil
}

// DeleteExpired removes rows past their expiry. Revoked-but-unexpired rows
// are kept so reuse of a rotated token stays distinguishable in the data.
func (s *Service) DeleteExpired(ctx context.Context) error {
	return s.tokens.DeleteExpired(ctx)
}

func (s *Service) lookupUsable(ctx context.Context, db *gorm.DB, plain string) (*domain.RefreshToken, *domain.User, error) {
	if plain == "" {
		return nil, nil, ErrInvalidToken
	}

	current, err := s.tokens.WithTx(db).GetByHash(ctx, hashToken(plain))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	if !current.Usable(time.Now().UTC()) {
		return nil, nil, ErrInvalidToken
	}

	user, err := s.users.WithTx(db).GetByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	if !user.Active {
		return nil, nil, ErrInvalidToken
	}
	return current, user, nil
}

// generate mints an opaque token with 512 bits of entropy, base64url
// without padding, and its SHA-256 hash in the same encoding. Only the
// hash is ever persisted.
func generate() (plain, hash string, err error) {
	buf := make([]byte, 64)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	plain = base64.RawURLEncoding.EncodeToString(buf)
	return plain, hashToken(plain), nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
