package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storehouse/accounts/internal/domain"
	"github.com/storehouse/accounts/internal/mailer"
	"github.com/storehouse/accounts/internal/platform/auth"
	"github.com/storehouse/accounts/internal/repository"
	"github.com/storehouse/accounts/pkg/config"
	"github.com/storehouse/accounts/pkg/events"
	"github.com/storehouse/accounts/pkg/logger"
)

type AuthService interface {
	// Register creates a new account and issues a session token. The email
	// verification step is best-effort and never rolls back registration.
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.Account, string, error)

	// Login runs the credential verification flow: lookup, lock and active
	// checks, password verification with lockout bookkeeping, token issuance.
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)

	// VerifySession validates a session token against signature, expiry,
	// the account's active flag and its password change time.
	VerifySession(ctx context.Context, token string) (*domain.Account, *auth.Claims, error)

	VerifyEmail(ctx context.Context, token string) (*domain.Account, error)
	ResendVerification(ctx context.Context, email string) error

	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	UpdateProfile(ctx context.Context, id int64, req *domain.UpdateProfileRequest) (*domain.Account, error)
	ChangePassword(ctx context.Context, id int64, req *domain.ChangePasswordRequest) (string, error)
	Deactivate(ctx context.Context, id int64) error

	ListAccounts(ctx context.Context, limit, offset int) ([]domain.Account, error)
	UpdateRole(ctx context.Context, id int64, role string) error
	Unlock(ctx context.Context, id int64) error
}

type authService struct {
	accounts   repository.AccountRepository
	verifyRepo repository.VerifyRepository
	mailer     mailer.Service
	eventBus   events.Publisher
	config     *config.Config
}

func NewAuthService(
	accounts repository.AccountRepository,
	verifyRepo repository.VerifyRepository,
	mailer mailer.Service,
	eventBus events.Publisher,
	config *config.Config,
) AuthService {
	return &authService{
		accounts:   accounts,
		verifyRepo: verifyRepo,
		mailer:     mailer,
		eventBus:   eventBus,
		config:     config,
	}
}

func (s *authService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.Account, string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, "", err
	}

	// Hashing happens here, at the call site, not in a persistence hook.
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	account, err := s.accounts.Create(ctx, req, passwordHash)
	if err != nil {
		return nil, "", err
	}

	s.sendVerification(ctx, account)

	token, err := auth.NewSessionToken(account.ID, account.Email, account.Role, s.config.Auth.JWTSecret, s.config.Auth.SessionTTL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session token: %w", err)
	}

	s.publish(ctx, events.AccountRegistered, events.AccountRegisteredEvent{
		AccountID:    account.ID,
		Email:        account.Email,
		Username:     account.Username,
		RegisteredAt: account.CreatedAt,
	})

	return account, token, nil
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByIdentifier(ctx, req.Identifier())
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		// Indistinguishable from a wrong password.
		return nil, domain.ErrInvalidCredentials
	}

	now := time.Now()
	if account.IsLocked(now) {
		return nil, domain.ErrAccountLocked
	}
	if !account.Active {
		return nil, domain.ErrAccountInactive
	}

	valid, err := auth.VerifyPassword(req.Password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		attempts, lockedUntil, ferr := s.accounts.RecordFailedAttempt(ctx, account.ID, s.config.Auth.LockoutThreshold, s.config.Auth.LockoutDuration)
		if ferr != nil {
			logger.ErrorContext(ctx, "Failed to record failed login attempt", "error", ferr, "account_id", account.ID)
		} else if lockedUntil != nil && lockedUntil.After(now) && attempts >= s.config.Auth.LockoutThreshold {
			s.publish(ctx, events.AccountLocked, events.AccountLockedEvent{
				AccountID:      account.ID,
				Email:          account.Email,
				FailedAttempts: attempts,
				LockedUntil:    *lockedUntil,
			})
		}
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.accounts.RecordLogin(ctx, account.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now

	token, err := auth.NewSessionToken(account.ID, account.Email, account.Role, s.config.Auth.JWTSecret, s.config.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}

	s.publish(ctx, events.AccountLoggedIn, events.AccountLoggedInEvent{
		AccountID: account.ID,
		Email:     account.Email,
		LoginAt:   now,
	})

	return &domain.LoginResponse{
		Token:     token,
		ExpiresIn: int64(s.config.Auth.SessionTTL.Seconds()),
		Account:   account.ToSummary(),
	}, nil
}

func (s *authService) VerifySession(ctx context.Context, token string) (*domain.Account, *auth.Claims, error) {
	claims, err := auth.Parse(token, s.config.Auth.JWTSecret)
	if err != nil {
		return nil, nil, err
	}

	account, err := s.accounts.FindByID(ctx, claims.Sub)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, nil, domain.ErrTokenInvalid
	}
	if !account.Active {
		return nil, nil, domain.ErrAccountInactive
	}
	if claims.IssuedAt == nil || account.ChangedPasswordAfter(claims.IssuedAt.Time) {
		return nil, nil, domain.ErrTokenStale
	}

	return account, claims, nil
}

func (s *authService) VerifyEmail(ctx context.Context, token string) (*domain.Account, error) {
	accountID, err := s.verifyRepo.ConsumeEmailVerification(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}
	if accountID == 0 {
		return nil, domain.ErrTokenInvalid
	}

	if err := s.accounts.MarkEmailVerified(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load verified account: %w", err)
	}

	s.publish(ctx, events.AccountEmailVerified, events.AccountEmailVerifiedEvent{
		AccountID:  accountID,
		Email:      account.Email,
		VerifiedAt: time.Now(),
	})

	return account, nil
}

func (s *authService) ResendVerification(ctx context.Context, email string) error {
	account, err := s.accounts.FindByIdentifier(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		// Don't reveal whether the account exists.
		return nil
	}
	if account.EmailVerified {
		return nil
	}

	s.sendVerification(ctx, account)
	return nil
}

func (s *authService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, domain.ErrNotFound
	}
	return account, nil
}

func (s *authService) UpdateProfile(ctx context.Context, id int64, req *domain.UpdateProfileRequest) (*domain.Account, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.accounts.UpdateProfile(ctx, id, req)
}

func (s *authService) ChangePassword(ctx context.Context, id int64, req *domain.ChangePasswordRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return "", domain.ErrNotFound
	}

	valid, err := auth.VerifyPassword(req.CurrentPassword, account.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return "", domain.ErrInvalidCredentials
	}

	passwordHash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	// Stamp the change one second in the past so the token issued below,
	// in the same request, is not itself rejected as stale.
	changedAt := time.Now().Add(-time.Second)
	if err := s.accounts.UpdatePassword(ctx, id, passwordHash, changedAt); err != nil {
		return "", fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.mailer.SendPasswordChangedEmail(account.Email, account.FullName()); err != nil {
		logger.WarnContext(ctx, "Failed to send password changed email", "error", err, "account_id", id)
	}

	s.publish(ctx, events.AccountPasswordChanged, events.AccountPasswordChangedEvent{
		AccountID: id,
		ChangedAt: changedAt,
	})

	token, err := auth.NewSessionToken(account.ID, account.Email, account.Role, s.config.Auth.JWTSecret, s.config.Auth.SessionTTL)
	if err != nil {
		return "", fmt.Errorf("failed to create session token: %w", err)
	}
	return token, nil
}

func (s *authService) Deactivate(ctx context.Context, id int64) error {
	if err := s.accounts.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}

	s.publish(ctx, events.AccountDeactivated, events.AccountDeactivatedEvent{
		AccountID:     id,
		DeactivatedAt: time.Now(),
	})
	return nil
}

func (s *authService) ListAccounts(ctx context.Context, limit, offset int) ([]domain.Account, error) {
	accounts, err := s.accounts.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (s *authService) UpdateRole(ctx context.Context, id int64, role string) error {
	if !domain.IsValidRole(role) {
		return fmt.Errorf("%w: invalid role %q", domain.ErrValidation, role)
	}
	if err := s.accounts.UpdateRole(ctx, id, role); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

func (s *authService) Unlock(ctx context.Context, id int64) error {
	if err := s.accounts.ClearLock(ctx, id); err != nil {
		return fmt.Errorf("failed to unlock account: %w", err)
	}
	return nil
}

// sendVerification creates and delivers an email verification token.
// Every step is best-effort: failures are logged and never propagate.
func (s *authService) sendVerification(ctx context.Context, account *domain.Account) {
	verifyToken := uuid.NewString()
	expiresAt := time.Now().Add(s.config.Auth.EmailVerificationTTL)

	if err := s.verifyRepo.CreateEmailVerification(ctx, account.ID, verifyToken, expiresAt); err != nil {
		logger.ErrorContext(ctx, "Failed to create email verification token", "error", err, "account_id", account.ID)
		return
	}

	verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.config.Email.BaseURL, verifyToken)
	if err := s.mailer.SendVerificationEmail(account.Email, account.FullName(), verifyURL, verifyToken); err != nil {
		logger.ErrorContext(ctx, "Failed to send verification email", "error", err, "account_id", account.ID)
	}
}

func (s *authService) publish(ctx context.Context, subject string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "error", err, "subject", subject)
	}
}
