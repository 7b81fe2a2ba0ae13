package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hotel-account-api/internal/application/otp"
	"github.com/hotel-account-api/internal/domain"
	"github.com/hotel-account-api/internal/infrastructure/smtp"
	"github.com/hotel-account-api/internal/infrastructure/sns"
	"github.com/hotel-account-api/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

// Delivery channels for verification codes.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// UserStore is the minimal interface the service requires from the user store.
type UserStore interface {
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type RequestOTPInput struct {
	Purpose string `json:"purpose" validate:"required,oneof=email_change password_change"`
	Channel string `json:"channel" validate:"omitempty,oneof=email sms"`
}

type VerifyOTPInput struct {
	Purpose string `json:"purpose" validate:"required,oneof=email_change password_change"`
	Code    string `json:"code" validate:"required,len=6,numeric"`
}

type ChangeEmailInput struct {
	NewEmail string `json:"new_email" validate:"required,email"`
}

type ChangePasswordInput struct {
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type PasswordResetRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Channel string `json:"channel" validate:"omitempty,oneof=email sms"`
}

type PasswordResetConfirm struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type Service interface {
	Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)

	// RequestOTP issues a code for one of the account-settings purposes and
	// delivers it to the account's email (or phone, when channel is "sms").
	// The returned delivery ID correlates the send in logs and support tooling.
	RequestOTP(ctx context.Context, userID string, in RequestOTPInput) (deliveryID string, err error)
	VerifyOTP(ctx context.Context, userID string, in VerifyOTPInput) error
	CancelOTP(ctx context.Context, userID, purpose string) error

	// ChangeEmail and ChangePassword require a live verified window for their
	// purpose; on success the window is consumed.
	ChangeEmail(ctx context.Context, userID string, in ChangeEmailInput) error
	ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error

	RequestPasswordReset(ctx context.Context, in PasswordResetRequest) (deliveryID string, err error)
	ConfirmPasswordReset(ctx context.Context, in PasswordResetConfirm) error
}

type service struct {
	userRepo  UserStore
	otpSvc    otp.Service
	mailer    smtp.Mailer
	smsSender sns.SMSSender
}

func NewService(userRepo UserStore, otpSvc otp.Service, mailer smtp.Mailer, smsSender sns.SMSSender) Service {
	return &service{userRepo: userRepo, otpSvc: otpSvc, mailer: mailer, smsSender: smsSender}
}

func (s *service) Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if _, err := s.userRepo.GetByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("username taken: %w", domain.ErrConflict)
	}
	if _, err := s.userRepo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Username:     req.Username,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.userRepo.Get(ctx, userID)
}

func (s *service) RequestOTP(ctx context.Context, userID string, in RequestOTPInput) (string, error) {
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	code, err := s.otpSvc.Issue(ctx, u.Email, in.Purpose)
	if err != nil {
		return "", err
	}
	deliveryID, err := s.deliver(ctx, u, code, in.Channel)
	if err != nil {
		return "", err
	}
	slog.Info("otp issued", "delivery_id", deliveryID, "purpose", in.Purpose, "channel", channelOrDefault(in.Channel))
	return deliveryID, nil
}

func (s *service) VerifyOTP(ctx context.Context, userID string, in VerifyOTPInput) error {
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return s.otpSvc.Verify(ctx, u.Email, in.Purpose, in.Code)
}

func (s *service) CancelOTP(ctx context.Context, userID, purpose string) error {
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return s.otpSvc.Remove(ctx, u.Email, purpose)
}

func (s *service) ChangeEmail(ctx context.Context, userID string, in ChangeEmailInput) error {
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	ok, err := s.otpSvc.IsVerified(ctx, u.Email, domain.PurposeEmailChange)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("email change requires a verified code: %w", domain.ErrForbidden)
	}
	if _, err := s.userRepo.GetByEmail(ctx, in.NewEmail); err == nil {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	if err := s.userRepo.Update(ctx, userID, map[string]interface{}{"email": in.NewEmail}); err != nil {
		return err
	}
	if err := s.otpSvc.ClearVerified(ctx, u.Email, domain.PurposeEmailChange); err != nil {
		slog.Warn("failed to clear verified otp after email change", "user_id", userID, "err", err)
	}
	return nil
}

func (s *service) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	ok, err := s.otpSvc.IsVerified(ctx, u.Email, domain.PurposePasswordChange)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("password change requires a verified code: %w", domain.ErrForbidden)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.userRepo.Update(ctx, userID, map[string]interface{}{"password_hash": string(hash)}); err != nil {
		return err
	}
	if err := s.otpSvc.ClearVerified(ctx, u.Email, domain.PurposePasswordChange); err != nil {
		slog.Warn("failed to clear verified otp after password change", "user_id", userID, "err", err)
	}
	return nil
}

func (s *service) RequestPasswordReset(ctx context.Context, in PasswordResetRequest) (string, error) {
	u, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		return "", fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	code, err := s.otpSvc.Issue(ctx, u.Email, domain.PurposePasswordReset)
	if err != nil {
		return "", err
	}
	deliveryID, err := s.deliver(ctx, u, code, in.Channel)
	if err != nil {
		return "", err
	}
	slog.Info("password reset code issued", "delivery_id", deliveryID, "channel", channelOrDefault(in.Channel))
	return deliveryID, nil
}

func (s *service) ConfirmPasswordReset(ctx context.Context, in PasswordResetConfirm) error {
	u, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err := s.otpSvc.Verify(ctx, u.Email, domain.PurposePasswordReset, in.Code); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.userRepo.Update(ctx, u.UserID, map[string]interface{}{"password_hash": string(hash)}); err != nil {
		return err
	}
	if err := s.otpSvc.ClearVerified(ctx, u.Email, domain.PurposePasswordReset); err != nil {
		slog.Warn("failed to clear verified otp after password reset", "user_id", u.UserID, "err", err)
	}
	return nil
}

// deliver sends the code over the requested channel and returns a delivery ID.
func (s *service) deliver(ctx context.Context, u *domain.User, code, channel string) (string, error) {
	deliveryID := id.New()
	msg := "Your verification code: " + code
	if channel == ChannelSMS {
		if u.Phone == nil {
			return "", fmt.Errorf("no phone number on account: %w", domain.ErrBadRequest)
		}
		if s.smsSender == nil {
			return "", errors.New("sms delivery not configured")
		}
		if err := s.smsSender.SendSMS(ctx, *u.Phone, msg); err != nil {
			return "", fmt.Errorf("send sms: %w", err)
		}
		return deliveryID, nil
	}
	if err := s.mailer.SendEmail(u.Email, "Your verification code", msg); err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	return deliveryID, nil
}

func channelOrDefault(channel string) string {
	if channel == "" {
		return ChannelEmail
	}
	return channel
}
