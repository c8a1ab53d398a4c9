package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storehouse/accounts/internal/domain"
	"github.com/storehouse/accounts/internal/platform/auth"
	"github.com/storehouse/accounts/internal/repository"
	"github.com/storehouse/accounts/pkg/config"
)

// ---------- Fakes ----------

type fakeAccounts struct {
	nextID int64
	byID   map[int64]*domain.Account
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{nextID: 1, byID: make(map[int64]*domain.Account)}
}

func (f *fakeAccounts) Create(_ context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.Account, error) {
	for _, a := range f.byID {
		if a.Email == req.Email || a.Username == req.Username || a.Phone == req.Phone {
			return nil, domain.ErrDuplicateAccount
		}
	}
	now := time.Now()
	a := &domain.Account{
		ID:           f.nextID,
		Username:     req.Username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: passwordHash,
		Role:         domain.RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.nextID++
	f.byID[a.ID] = a
	cpy := *a
	return &cpy, nil
}

func (f *fakeAccounts) FindByIdentifier(_ context.Context, identifier string) (*domain.Account, error) {
	for _, a := range f.byID {
		if a.Email == identifier || a.Username == identifier {
			cpy := *a
			return &cpy, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) FindByID(_ context.Context, id int64) (*domain.Account, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cpy := *a
	return &cpy, nil
}

// Mirrors the conditional UPDATE in the Postgres repository.
func (f *fakeAccounts) RecordFailedAttempt(_ context.Context, id int64, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	a, ok := f.byID[id]
	if !ok {
		return 0, nil, domain.ErrNotFound
	}
	now := time.Now()
	if a.LockedUntil != nil && !a.LockedUntil.After(now) {
		a.FailedAttempts = 1
		a.LockedUntil = nil
	} else {
		a.FailedAttempts++
		if a.LockedUntil == nil && a.FailedAttempts >= threshold {
			until := now.Add(lockFor)
			a.LockedUntil = &until
		}
	}
	return a.FailedAttempts, a.LockedUntil, nil
}

func (f *fakeAccounts) RecordLogin(_ context.Context, id int64, at time.Time) error {
	a, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.LastLoginAt = &at
	return nil
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, id int64, passwordHash string, changedAt time.Time) error {
	a, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.PasswordChangedAt = &changedAt
	return nil
}

func (f *fakeAccounts) UpdateProfile(_ context.Context, id int64, req *domain.UpdateProfileRequest) (*domain.Account, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if req.FirstName != nil {
		a.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		a.LastName = *req.LastName
	}
	if req.Phone != nil {
		a.Phone = *req.Phone
	}
	cpy := *a
	return &cpy, nil
}

func (f *fakeAccounts) SetActive(_ context.Context, id int64, active bool) error {
	a, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Active = active
	return nil
}

func (f *fakeAccounts) MarkEmailVerified(_ context.Context, id int64) error {
	a, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.EmailVerified = true
	return nil
}

func (f *fakeAccounts) UpdateRole(_ context.Context, id int64, role string) error {
	a, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Role = role
	return nil
}

func (f *fakeAccounts) ClearLock(_ context.Context, id int64) error {
	a, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	return nil
}

func (f *fakeAccounts) List(_ context.Context, limit, offset int) ([]domain.Account, error) {
	var out []domain.Account
	for _, a := range f.byID {
		out = append(out, *a)
	}
	return out, nil
}

type fakeVerify struct {
	tokens    map[string]int64
	used      map[string]bool
	createErr error
}

var _ repository.VerifyRepository = (*fakeVerify)(nil)

func newFakeVerify() *fakeVerify {
	return &fakeVerify{tokens: make(map[string]int64), used: make(map[string]bool)}
}

func (f *fakeVerify) CreateEmailVerification(_ context.Context, accountID int64, token string, _ time.Time) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[token] = accountID
	return nil
}

func (f *fakeVerify) ConsumeEmailVerification(_ context.Context, token string) (int64, error) {
	if f.used[token] {
		return 0, nil
	}
	id, ok := f.tokens[token]
	if !ok {
		return 0, nil
	}
	f.used[token] = true
	return id, nil
}

func (f *fakeVerify) DeleteExpiredTokens(context.Context) (int64, error) { return 0, nil }

type fakeMailer struct {
	verifyCount  int
	changedCount int
	lastTo       string
	sendErr      error
}

func (f *fakeMailer) SendVerificationEmail(toEmail, toName, verifyURL, token string) error {
	f.verifyCount++
	f.lastTo = toEmail
	return f.sendErr
}

func (f *fakeMailer) SendPasswordChangedEmail(toEmail, toName string) error {
	f.changedCount++
	f.lastTo = toEmail
	return f.sendErr
}

type fakePublisher struct {
	subjects []string
	pubErr   error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	f.subjects = append(f.subjects, subject)
	return f.pubErr
}

func (f *fakePublisher) Close() error { return nil }

// ---------- Helpers ----------

type fixture struct {
	svc      AuthService
	accounts *fakeAccounts
	verify   *fakeVerify
	mailer   *fakeMailer
	bus      *fakePublisher
	cfg      *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		accounts: newFakeAccounts(),
		verify:   newFakeVerify(),
		mailer:   &fakeMailer{},
		bus:      &fakePublisher{},
		cfg:      config.Load(),
	}
	f.svc = NewAuthService(f.accounts, f.verify, f.mailer, f.bus, f.cfg)
	return f
}

func registerReq() *domain.RegisterRequest {
	return &domain.RegisterRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Username:  "adal",
		Email:     "ada@example.com",
		Phone:     "+2348012345678",
		Password:  "secret1",
	}
}

func (f *fixture) register(t *testing.T) *domain.Account {
	t.Helper()
	account, _, err := f.svc.Register(context.Background(), registerReq())
	if err != nil {
		t.Fatalf("Register() = %v", err)
	}
	return account
}

func (f *fixture) login(password string) (*domain.LoginResponse, error) {
	return f.svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "ada@example.com",
		Password: password,
	})
}

// ---------- Registration ----------

func TestRegisterStoresVerifiableHash(t *testing.T) {
	f := newFixture(t)
	account := f.register(t)

	stored := f.accounts.byID[account.ID]
	if stored.PasswordHash == "secret1" {
		t.Fatal("password stored in plaintext")
	}
	ok, err := auth.VerifyPassword("secret1", stored.PasswordHash)
	if err != nil || !ok {
		t.Errorf("stored hash does not verify: ok=%v err=%v", ok, err)
	}
}

func TestRegisterIssuesUsableToken(t *testing.T) {
	f := newFixture(t)
	_, token, err := f.svc.Register(context.Background(), registerReq())
	if err != nil {
		t.Fatal(err)
	}

	account, claims, err := f.svc.VerifySession(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifySession() = %v", err)
	}
	if account.Email != "ada@example.com" || claims.Sub != account.ID {
		t.Errorf("session bound to wrong account: %v / %v", account.Email, claims.Sub)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	req := registerReq()
	req.Username = "other"
	req.Phone = "+2348099999999"
	req.Email = "Ada@Example.COM" // case variation must still collide
	_, _, err := f.svc.Register(context.Background(), req)
	if !errors.Is(err, domain.ErrDuplicateAccount) {
		t.Errorf("Register() = %v, want ErrDuplicateAccount", err)
	}
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.sendErr = errors.New("smtp down")

	account, token, err := f.svc.Register(context.Background(), registerReq())
	if err != nil {
		t.Fatalf("Register() = %v; mail failure must not roll back registration", err)
	}
	if account == nil || token == "" {
		t.Error("registration should still return an account and token")
	}
}

func TestRegisterSurvivesVerifyTokenFailure(t *testing.T) {
	f := newFixture(t)
	f.verify.createErr = errors.New("db down")

	if _, _, err := f.svc.Register(context.Background(), registerReq()); err != nil {
		t.Fatalf("Register() = %v; verification token failure must not roll back registration", err)
	}
	if f.mailer.verifyCount != 0 {
		t.Error("no email should be sent when the token could not be stored")
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	req := registerReq()
	req.Password = ""

	if _, _, err := f.svc.Register(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Register() = %v, want ErrValidation", err)
	}
}

// ---------- Login ----------

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	account := f.register(t)
	f.accounts.byID[account.ID].FailedAttempts = 3

	resp, err := f.login("secret1")
	if err != nil {
		t.Fatalf("Login() = %v", err)
	}

	stored := f.accounts.byID[account.ID]
	if stored.FailedAttempts != 0 {
		t.Errorf("failed_attempts = %d, want 0 after successful login", stored.FailedAttempts)
	}
	if stored.LastLoginAt == nil {
		t.Error("last_login_at not stamped")
	}
	if resp.Token == "" || resp.Account.Email != "ada@example.com" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestLoginByUsername(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	_, err := f.svc.Login(context.Background(), &domain.LoginRequest{Username: "adal", Password: "secret1"})
	if err != nil {
		t.Errorf("Login() by username = %v", err)
	}
}

func TestLoginMissingCredentials(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), &domain.LoginRequest{Email: "a@b.com"})
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Errorf("Login() = %v, want ErrMissingCredentials", err)
	}
}

func TestLoginUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.login("secret1")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("Login() = %v, want ErrInvalidCredentials (no enumeration)", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	f := newFixture(t)
	account := f.register(t)
	f.accounts.byID[account.ID].Active = false

	_, err := f.login("secret1")
	if !errors.Is(err, domain.ErrAccountInactive) {
		t.Errorf("Login() = %v, want ErrAccountInactive", err)
	}
}

func TestLoginLockoutAfterFiveFailures(t *testing.T) {
	f := newFixture(t)
	account := f.register(t)

	for i := 0; i < 5; i++ {
		if _, err := f.login("wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: Login() = %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	stored := f.accounts.byID[account.ID]
	if stored.FailedAttempts != 5 {
		t.Errorf("failed_attempts = %d, want 5", stored.FailedAttempts)
	}
	if stored.LockedUntil == nil || !stored.LockedUntil.After(time.Now()) {
		t.Fatal("account should be locked after the fifth failure")
	}

	// Sixth attempt fails with the lockout signal even with the correct password.
	if _, err := f.login("secret1"); !errors.Is(err, domain.ErrAccountLocked) {
		t.Errorf("Login() = %v, want ErrAccountLocked", err)
	}

	locked := false
	for _, s := range f.bus.subjects {
		if s == "account.locked" {
			locked = true
		}
	}
	if !locked {
		t.Error("lockout should publish an account.locked event")
	}
}

func TestLoginAfterLockExpiry(t *testing.T) {
	f := newFixture(t)
	account := f.register(t)

	past := time.Now().Add(-time.Minute)
	stored := f.accounts.byID[account.ID]
	stored.FailedAttempts = 5
	stored.LockedUntil = &past

	resp, err := f.login("secret1")
	if err != nil {
		t.Fatalf("Login() after lock expiry = %v", err)
	}
	if resp == nil || f.accounts.byID[account.ID].FailedAttempts != 0 {
		t.Error("expired lock should be ignored and counters reset on success")
	}
}

func TestLoginExpiredLockRestartsCounter(t *testing.T) {
	f := newFixture(t)
	account := f.register(t)

	past := time.Now().Add(-time.Minute)
	stored := f.accounts.byID[account.ID]
	stored.FailedAttempts = 5
	stored.LockedUntil = &past

	if _, err := f.login("wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("Login() = %v", err)
	}

	stored = f.accounts.byID[account.ID]
	if stored.FailedAttempts != 1 {
		t.Errorf("failed_attempts = %d, want 1 (restart after expired lock)", stored.FailedAttempts)
	}
	if stored.LockedUntil != nil {
		t.Error("expired lock should be cleared")
	}
}

// ---------- Sessions ----------

func TestVerifySessionStaleAfterPasswordChange(t *testing.T) {
	f := newFixture(t)
	account, token, err := f.svc.Register(context.Background(), registerReq())
	if err != nil {
		t.Fatal(err)
	}

	changed := time.Now().Add(time.Minute)
	f.accounts.byID[account.ID].PasswordChangedAt = &changed

	if _, _, err := f.svc.VerifySession(context.Background(), token); !errors.Is(err, domain.ErrTokenStale) {
		t.Errorf("VerifySession() = %v, want ErrTokenStale", err)
	}
}

func TestVerifySessionInactiveAccount(t *testing.T) {
	f := newFixture(t)
	account, token, err := f.svc.Register(context.Background(), registerReq())
	if err != nil {
		t.Fatal(err)
	}
	f.accounts.byID[account.ID].Active = false

	if _, _, err := f.svc.VerifySession(context.Background(), token); !errors.Is(err, domain.ErrAccountInactive) {
		t.Errorf("VerifySession() = %v, want ErrAccountInactive", err)
	}
}

// ---------- Password change ----------

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	account := f.register(t)

	token, err := f.svc.ChangePassword(context.Background(), account.ID, &domain.ChangePasswordRequest{
		CurrentPassword: "secret1",
		NewPassword:     "secret2",
	})
	if err != nil {
		t.Fatalf("ChangePassword() = %v", err)
	}

	// The token issued alongside the change is itself valid.
	if _, _, err := f.svc.VerifySession(context.Background(), token); err != nil {
		t.Errorf("fresh token should verify: %v", err)
	}

	// Old password no longer works; new one does.
	if _, err := f.login("secret1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("old password Login() = %v", err)
	}
	if _, err := f.login("secret2"); err != nil {
		t.Errorf("new password Login() = %v", err)
	}

	if f.mailer.changedCount != 1 {
		t.Error("password change notice not sent")
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newFixture(t)
	account := f.register(t)

	_, err := f.svc.ChangePassword(context.Background(), account.ID, &domain.ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "secret2",
	})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("ChangePassword() = %v, want ErrInvalidCredentials", err)
	}
}

// ---------- Email verification ----------

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	account := f.register(t)

	var token string
	for tok := range f.verify.tokens {
		token = tok
	}
	if token == "" {
		t.Fatal("registration should have created a verification token")
	}

	verified, err := f.svc.VerifyEmail(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyEmail() = %v", err)
	}
	if !verified.EmailVerified {
		t.Error("account should be marked verified")
	}
	if !f.accounts.byID[account.ID].EmailVerified {
		t.Error("verified flag not persisted")
	}

	// The token is single-use.
	if _, err := f.svc.VerifyEmail(context.Background(), token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("second VerifyEmail() = %v, want ErrTokenInvalid", err)
	}
}

func TestResendVerificationHidesExistence(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.ResendVerification(context.Background(), "nobody@example.com"); err != nil {
		t.Errorf("ResendVerification() for unknown email = %v, want nil", err)
	}
}

// ---------- Deactivation ----------

func TestDeactivateBlocksLogin(t *testing.T) {
	f := newFixture(t)
	account := f.register(t)

	if err := f.svc.Deactivate(context.Background(), account.ID); err != nil {
		t.Fatalf("Deactivate() = %v", err)
	}

	if _, err := f.login("secret1"); !errors.Is(err, domain.ErrAccountInactive) {
		t.Errorf("Login() after deactivation = %v, want ErrAccountInactive", err)
	}
}
