package domain

import (
	"errors"
	"testing"
	"time"
)

func TestAccountIsLocked(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		lockedUntil *time.Time
		want        bool
	}{
		{"no lock", nil, false},
		{"lock in future", timePtr(now.Add(time.Hour)), true},
		{"lock elapsed", timePtr(now.Add(-time.Minute)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Account{LockedUntil: tt.lockedUntil}
			if got := a.IsLocked(now); got != tt.want {
				t.Errorf("IsLocked() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccountFullName(t *testing.T) {
	a := &Account{FirstName: "Ada", LastName: "Lovelace"}
	if got := a.FullName(); got != "Ada Lovelace" {
		t.Errorf("FullName() = %q", got)
	}
}

func TestAccountChangedPasswordAfter(t *testing.T) {
	issued := time.Now()

	a := &Account{}
	if a.ChangedPasswordAfter(issued) {
		t.Error("account without password_changed_at should never be stale")
	}

	changed := issued.Add(time.Minute)
	a.PasswordChangedAt = &changed
	if !a.ChangedPasswordAfter(issued) {
		t.Error("token issued before password change should be stale")
	}

	if a.ChangedPasswordAfter(changed.Add(time.Minute)) {
		t.Error("token issued after password change should not be stale")
	}
}

func TestRegisterRequestValidate(t *testing.T) {
	valid := func() RegisterRequest {
		return RegisterRequest{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Username:  "adal",
			Email:     "ada@example.com",
			Phone:     "+2348012345678",
			Password:  "secret1",
		}
	}

	t.Run("valid", func(t *testing.T) {
		req := valid()
		if err := req.Validate(); err != nil {
			t.Fatalf("Validate() = %v", err)
		}
	})

	t.Run("missing field", func(t *testing.T) {
		req := valid()
		req.Email = ""
		if err := req.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("Validate() = %v, want ErrValidation", err)
		}
	})

	t.Run("short password", func(t *testing.T) {
		req := valid()
		req.Password = "abc"
		if err := req.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("Validate() = %v, want ErrValidation", err)
		}
	})

	t.Run("bad email", func(t *testing.T) {
		req := valid()
		req.Email = "not-an-email"
		if err := req.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("Validate() = %v, want ErrValidation", err)
		}
	})

	t.Run("long username", func(t *testing.T) {
		req := valid()
		req.Username = "this-username-is-way-too-long"
		if err := req.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("Validate() = %v, want ErrValidation", err)
		}
	})
}

func TestRegisterRequestNormalizeLowercasesEmail(t *testing.T) {
	req := RegisterRequest{Email: "  Ada@Example.COM ", Username: " adal "}
	req.Normalize()
	if req.Email != "ada@example.com" {
		t.Errorf("Normalize() email = %q", req.Email)
	}
	if req.Username != "adal" {
		t.Errorf("Normalize() username = %q", req.Username)
	}
}

func TestLoginRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     LoginRequest
		wantErr error
	}{
		{"email login", LoginRequest{Email: "a@b.com", Password: "x"}, nil},
		{"username login", LoginRequest{Username: "ada", Password: "x"}, nil},
		{"no identifier", LoginRequest{Password: "x"}, ErrMissingCredentials},
		{"no password", LoginRequest{Email: "a@b.com"}, ErrMissingCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoginRequestIdentifier(t *testing.T) {
	r := LoginRequest{Email: "a@b.com", Username: "ada"}
	if r.Identifier() != "a@b.com" {
		t.Error("email should win when both are present")
	}
	r.Email = ""
	if r.Identifier() != "ada" {
		t.Error("username should be used when email is absent")
	}
}

func TestToSummaryExcludesSecrets(t *testing.T) {
	now := time.Now()
	a := &Account{
		ID:             7,
		Username:       "adal",
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Email:          "ada@example.com",
		Phone:          "+2348012345678",
		PasswordHash:   "$argon2id$...",
		Role:           RoleUser,
		FailedAttempts: 3,
		LockedUntil:    &now,
	}

	s := a.ToSummary()
	if s.ID != 7 || s.Email != "ada@example.com" || s.FullName != "Ada Lovelace" {
		t.Errorf("ToSummary() = %+v", s)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
