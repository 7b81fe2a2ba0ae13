package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/hotel-account-api/internal/domain"
)

// Store is the record store the service requires. Implementations must wrap
// domain.ErrNotFound for missing records and domain.ErrStorage for
// infrastructure failures so the two are never conflated.
type Store interface {
	Put(ctx context.Context, rec *domain.OTPRecord) error
	Get(ctx context.Context, email string) (*domain.OTPRecord, error)
	Update(ctx context.Context, email string, updates map[string]interface{}) error
	Delete(ctx context.Context, email string) error
	// DeleteVerifiedBefore removes verified records whose updated_at is older
	// than cutoff. Pending records are never touched.
	DeleteVerifiedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Config carries the OTP tunables.
type Config struct {
	CodeTTL       time.Duration // how long an issued code stays matchable
	VerifiedGrace time.Duration // how long a verification gates a privileged action
	MaxAttempts   int           // failed matches before the code is destroyed
}

func (c Config) withDefaults() Config {
	if c.CodeTTL <= 0 {
		c.CodeTTL = 5 * time.Minute
	}
	if c.VerifiedGrace <= 0 {
		c.VerifiedGrace = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	return c
}

type Service interface {
	// Issue stores a fresh code for (email, purpose), overwriting any prior
	// record for that email, and returns the code. Delivery is the caller's job.
	Issue(ctx context.Context, email, purpose string) (string, error)
	// Verify matches a caller-supplied code. On success the record enters the
	// verified state for the grace window. Failures return one of the
	// domain.ErrOTP* sentinels, or a storage error wrapping domain.ErrStorage.
	Verify(ctx context.Context, email, purpose, code string) error
	// IsVerified reports whether (email, purpose) passed verification within
	// the grace window. A verified record found past its window is removed.
	IsVerified(ctx context.Context, email, purpose string) (bool, error)
	// ClearVerified consumes the verified window after the privileged action.
	ClearVerified(ctx context.Context, email, purpose string) error
	// Remove deletes the live record for email if its purpose matches.
	Remove(ctx context.Context, email, purpose string) error
	// CleanupExpiredVerified removes verified records older than the grace
	// window and returns how many were deleted. Meant for a periodic timer.
	CleanupExpiredVerified(ctx context.Context) (int, error)
}

type service struct {
	store Store
	cfg   Config
}

func NewService(store Store, cfg Config) Service {
	return &service{store: store, cfg: cfg.withDefaults()}
}

func (s *service) Issue(ctx context.Context, email, purpose string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	now := time.Now().UTC()
	rec := &domain.OTPRecord{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		State:     domain.OTPStatePending,
		Attempts:  0,
		ExpiresAt: now.Add(s.cfg.CodeTTL).Unix(),
		UpdatedAt: now,
		// Backstop TTL: outlives the code TTL and the grace window so the
		// table self-cleans even when the cleanup job is down.
		PurgeAt: now.Add(s.cfg.CodeTTL + s.cfg.VerifiedGrace).Unix(),
	}
	if err := s.store.Put(ctx, rec); err != nil {
		slog.Error("failed to store otp record", "email", email, "purpose", purpose, "err", err)
		return "", fmt.Errorf("store otp record: %w", err)
	}
	return code, nil
}

func (s *service) Verify(ctx context.Context, email, purpose, code string) error {
	rec, err := s.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no code issued for %s: %w", purpose, domain.ErrOTPNotFound)
		}
		slog.Error("otp store read failed", "email", email, "err", err)
		return fmt.Errorf("read otp record: %w", err)
	}
	if rec.State != domain.OTPStatePending {
		// Already consumed; a verified code must not be re-matchable.
		return fmt.Errorf("code already used: %w", domain.ErrOTPNotFound)
	}
	if rec.Purpose != purpose {
		return fmt.Errorf("code was issued for %q: %w", rec.Purpose, domain.ErrOTPPurposeMismatch)
	}
	now := time.Now().UTC()
	if now.Unix() > rec.ExpiresAt {
		s.deleteQuietly(ctx, email, "expired")
		return domain.ErrOTPExpired
	}
	if rec.Code != code {
		attempts := rec.Attempts + 1
		if attempts >= s.cfg.MaxAttempts {
			s.deleteQuietly(ctx, email, "attempts exceeded")
			return domain.ErrOTPTooManyAttempts
		}
		if err := s.store.Update(ctx, email, map[string]interface{}{"attempts": attempts}); err != nil {
			slog.Warn("failed to record otp attempt", "email", email, "err", err)
		}
		return domain.ErrOTPCodeMismatch
	}

	updates := map[string]interface{}{
		"state":          domain.OTPStateVerified,
		"verified_until": now.Add(s.cfg.VerifiedGrace).Unix(),
		"purge_at":       now.Add(s.cfg.VerifiedGrace + time.Minute).Unix(),
	}
	if err := s.store.Update(ctx, email, updates); err != nil {
		slog.Error("failed to mark otp verified", "email", email, "err", err)
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

func (s *service) IsVerified(ctx context.Context, email, purpose string) (bool, error) {
	rec, err := s.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read otp record: %w", err)
	}
	if rec.State != domain.OTPStateVerified || rec.Purpose != purpose {
		return false, nil
	}
	if time.Now().Unix() > rec.VerifiedUntil {
		// Lazy expiry of the verified window.
		s.deleteQuietly(ctx, email, "verified window elapsed")
		return false, nil
	}
	return true, nil
}

func (s *service) ClearVerified(ctx context.Context, email, purpose string) error {
	rec, err := s.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read otp record: %w", err)
	}
	if rec.State != domain.OTPStateVerified || rec.Purpose != purpose {
		return nil
	}
	return s.store.Delete(ctx, email)
}

func (s *service) Remove(ctx context.Context, email, purpose string) error {
	rec, err := s.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read otp record: %w", err)
	}
	if rec.Purpose != purpose {
		return nil
	}
	return s.store.Delete(ctx, email)
}

func (s *service) CleanupExpiredVerified(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.VerifiedGrace)
	n, err := s.store.DeleteVerifiedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup verified records: %w", err)
	}
	if n > 0 {
		slog.Info("removed stale verified otp records", "count", n)
	}
	return n, nil
}

func (s *service) deleteQuietly(ctx context.Context, email, reason string) {
	if err := s.store.Delete(ctx, email); err != nil {
		slog.Warn("failed to delete otp record", "email", email, "reason", reason, "err", err)
	}
}

// generateCode produces a 6-digit numeric string uniform over [100000, 999999].
// The fixed lower bound keeps the width at exactly six digits.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
