package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/storehouse/accounts/internal/domain"
)

type AccountRepository interface {
	Create(ctx context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.Account, error)
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)
	FindByID(ctx context.Context, id int64) (*domain.Account, error)

	// RecordFailedAttempt applies the lockout transition atomically: an
	// expired lock restarts the counter at 1 and clears the lock, otherwise
	// the counter increments and the lock is set when the new count reaches
	// the threshold. Returns the resulting counter and lock expiry.
	RecordFailedAttempt(ctx context.Context, id int64, threshold int, lockFor time.Duration) (int, *time.Time, error)

	// RecordLogin resets the failed-attempt counter, clears any lock and
	// stamps last_login_at.
	RecordLogin(ctx context.Context, id int64, at time.Time) error

	UpdatePassword(ctx context.Context, id int64, passwordHash string, changedAt time.Time) error
	UpdateProfile(ctx context.Context, id int64, req *domain.UpdateProfileRequest) (*domain.Account, error)
	SetActive(ctx context.Context, id int64, active bool) error
	MarkEmailVerified(ctx context.Context, id int64) error
	UpdateRole(ctx context.Context, id int64, role string) error
	ClearLock(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]domain.Account, error)
}

type accountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

const accountCols = `id, username, first_name, last_name, email, phone, password_hash, role, active,
	email_verified, failed_attempts, locked_until, password_changed_at, last_login_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.Username, &a.FirstName, &a.LastName, &a.Email, &a.Phone, &a.PasswordHash, &a.Role, &a.Active,
		&a.EmailVerified, &a.FailedAttempts, &a.LockedUntil, &a.PasswordChangedAt, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) Create(ctx context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.Account, error) {
	const q = `
		INSERT INTO accounts (username, first_name, last_name, email, phone, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6, 'user')
		RETURNING ` + accountCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAccount(r.pool.QueryRow(ctx, q, req.Username, req.FirstName, req.LastName, req.Email, req.Phone, passwordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateAccount
		}
		return nil, err
	}
	return a, nil
}

func (r *accountRepository) FindByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE email = $1 OR username = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAccount(r.pool.QueryRow(ctx, q, identifier))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *accountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	const q = `SELECT ` + accountCols + ` FROM accounts WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAccount(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *accountRepository) RecordFailedAttempt(ctx context.Context, id int64, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	// Single conditional UPDATE so concurrent failed attempts never lose
	// increments. Both CASE expressions see the pre-update column values.
	const q = `
		UPDATE accounts
		SET failed_attempts = CASE
				WHEN locked_until IS NOT NULL AND locked_until <= now() THEN 1
				ELSE failed_attempts + 1
			END,
			locked_until = CASE
				WHEN locked_until IS NOT NULL AND locked_until <= now() THEN NULL
				WHEN locked_until IS NULL AND failed_attempts + 1 >= $2 THEN now() + make_interval(secs => $3)
				ELSE locked_until
			END,
			updated_at = now()
		WHERE id = $1
		RETURNING failed_attempts, locked_until`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var attempts int
	var lockedUntil *time.Time
	err := r.pool.QueryRow(ctx, q, id, threshold, lockFor.Seconds()).Scan(&attempts, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, domain.ErrNotFound
	}
	return attempts, lockedUntil, err
}

func (r *accountRepository) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	const q = `
		UPDATE accounts
		SET failed_attempts = 0, locked_until = NULL, last_login_at = $2, updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string, changedAt time.Time) error {
	const q = `
		UPDATE accounts
		SET password_hash = $2, password_changed_at = $3, updated_at = now()
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, passwordHash, changedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepository) UpdateProfile(ctx context.Context, id int64, req *domain.UpdateProfileRequest) (*domain.Account, error) {
	const q = `
		UPDATE accounts
		SET first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			phone = COALESCE($4, phone),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + accountCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAccount(r.pool.QueryRow(ctx, q, id, req.FirstName, req.LastName, req.Phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateAccount
		}
		return nil, err
	}
	return a, nil
}

func (r *accountRepository) SetActive(ctx context.Context, id int64, active bool) error {
	const q = `UPDATE accounts SET active = $2, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, active)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepository) MarkEmailVerified(ctx context.Context, id int64) error {
	const q = `UPDATE accounts SET email_verified = true, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepository) UpdateRole(ctx context.Context, id int64, role string) error {
	const q = `UPDATE accounts SET role = $2, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, role)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepository) ClearLock(ctx context.Context, id int64) error {
	const q = `UPDATE accounts SET failed_attempts = 0, locked_until = NULL, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepository) List(ctx context.Context, limit, offset int) ([]domain.Account, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
		SELECT ` + accountCols + `
		FROM accounts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}

	return accounts, rows.Err()
}
