package account

import (
	"context"
	"errors"
	"testing"

	"github.com/hotel-account-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockOTPService struct{ mock.Mock }

func (m *mockOTPService) Issue(ctx context.Context, email, purpose string) (string, error) {
	args := m.Called(ctx, email, purpose)
	return args.String(0), args.Error(1)
}
func (m *mockOTPService) Verify(ctx context.Context, email, purpose, code string) error {
	return m.Called(ctx, email, purpose, code).Error(0)
}
func (m *mockOTPService) IsVerified(ctx context.Context, email, purpose string) (bool, error) {
	args := m.Called(ctx, email, purpose)
	return args.Bool(0), args.Error(1)
}
func (m *mockOTPService) ClearVerified(ctx context.Context, email, purpose string) error {
	return m.Called(ctx, email, purpose).Error(0)
}
func (m *mockOTPService) Remove(ctx context.Context, email, purpose string) error {
	return m.Called(ctx, email, purpose).Error(0)
}
func (m *mockOTPService) CleanupExpiredVerified(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

type mockSMSSender struct{ mock.Mock }

func (m *mockSMSSender) SendSMS(ctx context.Context, to, message string) error {
	return m.Called(ctx, to, message).Error(0)
}

// --- Register ---

func TestRegister_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByUsername", mock.Anything, "alice").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "alice@example.com").Return(nil, domain.ErrNotFound)
	us.On("Put", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

	svc := NewService(us, nil, nil, nil)
	u, err := svc.Register(context.Background(), domain.CreateUserRequest{
		Username:  "alice",
		Password:  "password123",
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Smith",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, u.UserID)
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.True(t, u.Enable)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("password123")))
	us.AssertExpectations(t)
}

func TestRegister_UsernameTaken(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByUsername", mock.Anything, "alice").Return(&domain.User{UserID: "u1"}, nil)

	svc := NewService(us, nil, nil, nil)
	_, err := svc.Register(context.Background(), domain.CreateUserRequest{
		Username: "alice", Password: "password123", Email: "alice@example.com",
		FirstName: "Alice", LastName: "Smith",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// --- RequestOTP ---

func TestRequestOTP_EmailChannel(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPService{}
	ml := &mockMailer{}

	u := &domain.User{UserID: "u1", Email: "a@b.com"}
	us.On("Get", mock.Anything, "u1").Return(u, nil)
	os.On("Issue", mock.Anything, "a@b.com", domain.PurposeEmailChange).Return("482913", nil)
	ml.On("SendEmail", "a@b.com", mock.Anything, mock.MatchedBy(func(body string) bool {
		return body == "Your verification code: 482913"
	})).Return(nil)

	svc := NewService(us, os, ml, nil)
	deliveryID, err := svc.RequestOTP(context.Background(), "u1", RequestOTPInput{Purpose: domain.PurposeEmailChange})

	require.NoError(t, err)
	assert.NotEmpty(t, deliveryID)
	us.AssertExpectations(t)
	os.AssertExpectations(t)
	ml.AssertExpectations(t)
}

func TestRequestOTP_SMSChannel(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPService{}
	sms := &mockSMSSender{}

	phone := "+15551234567"
	u := &domain.User{UserID: "u1", Email: "a@b.com", Phone: &phone}
	us.On("Get", mock.Anything, "u1").Return(u, nil)
	os.On("Issue", mock.Anything, "a@b.com", domain.PurposePasswordChange).Return("482913", nil)
	sms.On("SendSMS", mock.Anything, phone, "Your verification code: 482913").Return(nil)

	svc := NewService(us, os, nil, sms)
	_, err := svc.RequestOTP(context.Background(), "u1", RequestOTPInput{
		Purpose: domain.PurposePasswordChange,
		Channel: ChannelSMS,
	})

	require.NoError(t, err)
	sms.AssertExpectations(t)
}

func TestRequestOTP_SMSWithoutPhone(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPService{}

	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)
	os.On("Issue", mock.Anything, "a@b.com", domain.PurposeEmailChange).Return("482913", nil)

	svc := NewService(us, os, nil, &mockSMSSender{})
	_, err := svc.RequestOTP(context.Background(), "u1", RequestOTPInput{
		Purpose: domain.PurposeEmailChange,
		Channel: ChannelSMS,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestRequestOTP_UserNotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

	svc := NewService(us, nil, nil, nil)
	_, err := svc.RequestOTP(context.Background(), "ghost", RequestOTPInput{Purpose: domain.PurposeEmailChange})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- ChangeEmail ---

func TestChangeEmail_RequiresVerifiedWindow(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPService{}

	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)
	os.On("IsVerified", mock.Anything, "a@b.com", domain.PurposeEmailChange).Return(false, nil)

	svc := NewService(us, os, nil, nil)
	err := svc.ChangeEmail(context.Background(), "u1", ChangeEmailInput{NewEmail: "new@b.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestChangeEmail_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPService{}

	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)
	os.On("IsVerified", mock.Anything, "a@b.com", domain.PurposeEmailChange).Return(true, nil)
	us.On("GetByEmail", mock.Anything, "new@b.com").Return(nil, domain.ErrNotFound)
	us.On("Update", mock.Anything, "u1", map[string]interface{}{"email": "new@b.com"}).Return(nil)
	os.On("ClearVerified", mock.Anything, "a@b.com", domain.PurposeEmailChange).Return(nil)

	svc := NewService(us, os, nil, nil)
	err := svc.ChangeEmail(context.Background(), "u1", ChangeEmailInput{NewEmail: "new@b.com"})
	require.NoError(t, err)
	us.AssertExpectations(t)
	os.AssertExpectations(t)
}

func TestChangeEmail_NewEmailTaken(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPService{}

	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)
	os.On("IsVerified", mock.Anything, "a@b.com", domain.PurposeEmailChange).Return(true, nil)
	us.On("GetByEmail", mock.Anything, "taken@b.com").Return(&domain.User{UserID: "u2"}, nil)

	svc := NewService(us, os, nil, nil)
	err := svc.ChangeEmail(context.Background(), "u1", ChangeEmailInput{NewEmail: "taken@b.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// --- ChangePassword ---

func TestChangePassword_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPService{}

	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)
	os.On("IsVerified", mock.Anything, "a@b.com", domain.PurposePasswordChange).Return(true, nil)
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		hash, ok := m["password_hash"].(string)
		return ok && bcrypt.CompareHashAndPassword([]byte(hash), []byte("newpassword1")) == nil
	})).Return(nil)
	os.On("ClearVerified", mock.Anything, "a@b.com", domain.PurposePasswordChange).Return(nil)

	svc := NewService(us, os, nil, nil)
	err := svc.ChangePassword(context.Background(), "u1", ChangePasswordInput{NewPassword: "newpassword1"})
	require.NoError(t, err)
	us.AssertExpectations(t)
	os.AssertExpectations(t)
}

func TestChangePassword_RequiresVerifiedWindow(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPService{}

	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)
	os.On("IsVerified", mock.Anything, "a@b.com", domain.PurposePasswordChange).Return(false, nil)

	svc := NewService(us, os, nil, nil)
	err := svc.ChangePassword(context.Background(), "u1", ChangePasswordInput{NewPassword: "newpassword1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

// --- password reset flow ---

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "ghost@b.com").Return(nil, domain.ErrNotFound)

	svc := NewService(us, nil, nil, nil)
	_, err := svc.RequestPasswordReset(context.Background(), PasswordResetRequest{Email: "ghost@b.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConfirmPasswordReset_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPService{}

	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)
	os.On("Verify", mock.Anything, "a@b.com", domain.PurposePasswordReset, "482913").Return(nil)
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		_, ok := m["password_hash"]
		return ok
	})).Return(nil)
	os.On("ClearVerified", mock.Anything, "a@b.com", domain.PurposePasswordReset).Return(nil)

	svc := NewService(us, os, nil, nil)
	err := svc.ConfirmPasswordReset(context.Background(), PasswordResetConfirm{
		Email: "a@b.com", Code: "482913", NewPassword: "newpassword1",
	})
	require.NoError(t, err)
	us.AssertExpectations(t)
	os.AssertExpectations(t)
}

func TestConfirmPasswordReset_BadCode(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPService{}

	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)
	os.On("Verify", mock.Anything, "a@b.com", domain.PurposePasswordReset, "000000").Return(domain.ErrOTPCodeMismatch)

	svc := NewService(us, os, nil, nil)
	err := svc.ConfirmPasswordReset(context.Background(), PasswordResetConfirm{
		Email: "a@b.com", Code: "000000", NewPassword: "newpassword1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOTPCodeMismatch))
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

// --- CancelOTP ---

func TestCancelOTP(t *testing.T) {
	us := &mockUserStore{}
	os := &mockOTPService{}

	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: "a@b.com"}, nil)
	os.On("Remove", mock.Anything, "a@b.com", domain.PurposeEmailChange).Return(nil)

	svc := NewService(us, os, nil, nil)
	require.NoError(t, svc.CancelOTP(context.Background(), "u1", domain.PurposeEmailChange))
	os.AssertExpectations(t)
}
