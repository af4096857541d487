package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adventuresafari/identity/internal/common"
	"github.com/adventuresafari/identity/internal/dbx"
	"github.com/adventuresafari/identity/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, name, email, password_hash, google_id, apple_id, avatar, auth_methods,
	is_email_verified, email_verification_token, email_verification_expires,
	password_reset_token, password_reset_expires,
	login_attempts, is_locked, lock_until, last_login, created_at, updated_at`

// addMethodExpr appends the method to auth_methods unless it is already a
// member of the comma-joined set. Method names are internal constants, never
// caller input.
func addMethodExpr(m models.AuthMethod) string {
	return fmt.Sprintf(
		`CASE WHEN (',' || auth_methods || ',') LIKE '%%,%s,%%' THEN auth_methods ELSE auth_methods || ',%s' END`,
		m, m)
}

func providerColumn(provider models.AuthMethod) (string, error) {
	switch provider {
	case models.AuthMethodGoogle:
		return "google_id", nil
	case models.AuthMethodApple:
		return "apple_id", nil
	default:
		return "", fmt.Errorf("no provider id column for auth method %q", provider)
	}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query := `
		INSERT INTO users (id, name, email, password_hash, google_id, apple_id, avatar, auth_methods,
			is_email_verified, email_verification_token, email_verification_expires, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + userColumns

	row := r.db.QueryRowContext(ctx, query,
		user.ID, user.Name, user.Email,
		nullString(user.PasswordHash), nullString(user.GoogleID), nullString(user.AppleID),
		user.Avatar, models.JoinAuthMethods(user.AuthMethods),
		user.IsEmailVerified,
		nullString(user.EmailVerificationToken), nullTime(user.EmailVerificationExpires),
		nullTime(user.LastLogin),
	)

	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.queryOne(ctx, query, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.queryOne(ctx, query, email)
}

func (r *PostgresRepository) TouchProviderLogin(ctx context.Context, provider models.AuthMethod, providerID string) (*models.User, error) {
	col, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE users
		SET last_login = now(), updated_at = now()
		WHERE ` + col + ` = $1
		RETURNING ` + userColumns

	return r.queryOne(ctx, query, providerID)
}

func (r *PostgresRepository) LinkProvider(ctx context.Context, email string, provider models.AuthMethod, providerID, avatar string) (*models.User, error) {
	col, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE users
		SET ` + col + ` = $2,
			auth_methods = ` + addMethodExpr(provider) + `,
			is_email_verified = TRUE,
			avatar = CASE WHEN avatar = '' AND $3 <> '' THEN $3 ELSE avatar END,
			last_login = now(),
			updated_at = now()
		WHERE email = $1
		RETURNING ` + userColumns

	user, err := r.queryOne(ctx, query, email, providerID, avatar)
	if err != nil && isUniqueViolation(err) {
		// The provider id is already attached to another record.
		return nil, common.ErrorAlreadyExists
	}
	return user, err
}

func (r *PostgresRepository) SetPendingPassword(ctx context.Context, userID, passwordHash, tokenHash string, expires time.Time) (*models.User, error) {
	query := `
		UPDATE users
		SET password_hash = $2,
			email_verification_token = $3,
			email_verification_expires = $4,
			updated_at = now()
		WHERE id = $1 AND (',' || auth_methods || ',') NOT LIKE '%,email,%'
		RETURNING ` + userColumns

	return r.queryOne(ctx, query, userID, passwordHash, tokenHash, expires)
}

func (r *PostgresRepository) SetVerificationToken(ctx context.Context, userID, tokenHash string, expires time.Time) (*models.User, error) {
	query := `
		UPDATE users
		SET email_verification_token = $2,
			email_verification_expires = $3,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	return r.queryOne(ctx, query, userID, tokenHash, expires)
}

func (r *PostgresRepository) ConsumeVerificationToken(ctx context.Context, tokenHash string, addEmailMethod bool) (*models.User, error) {
	query := `
		UPDATE users
		SET is_email_verified = TRUE,
			email_verification_token = NULL,
			email_verification_expires = NULL,
			auth_methods = CASE WHEN $2::boolean AND (',' || auth_methods || ',') NOT LIKE '%,email,%'
				THEN auth_methods || ',email' ELSE auth_methods END,
			updated_at = now()
		WHERE email_verification_token = $1 AND email_verification_expires > now()
		RETURNING ` + userColumns

	return r.queryOne(ctx, query, tokenHash, addEmailMethod)
}

func (r *PostgresRepository) SetPasswordResetToken(ctx context.Context, userID, tokenHash string, expires time.Time) (*models.User, error) {
	query := `
		UPDATE users
		SET password_reset_token = $2,
			password_reset_expires = $3,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	return r.queryOne(ctx, query, userID, tokenHash, expires)
}

func (r *PostgresRepository) ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string) (*models.User, error) {
	query := `
		UPDATE users
		SET password_hash = $2,
			auth_methods = ` + addMethodExpr(models.AuthMethodEmail) + `,
			password_reset_token = NULL,
			password_reset_expires = NULL,
			updated_at = now()
		WHERE password_reset_token = $1 AND password_reset_expires > now()
		RETURNING ` + userColumns

	return r.queryOne(ctx, query, tokenHash, passwordHash)
}

func (r *PostgresRepository) RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockUntil time.Time) (*models.User, error) {
	query := `
		UPDATE users
		SET login_attempts = login_attempts + 1,
			is_locked = CASE WHEN login_attempts + 1 >= $2 THEN TRUE ELSE is_locked END,
			lock_until = CASE WHEN login_attempts + 1 >= $2 THEN $3 ELSE lock_until END,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	return r.queryOne(ctx, query, userID, maxAttempts, lockUntil)
}

func (r *PostgresRepository) RecordSuccessfulLogin(ctx context.Context, userID string) (*models.User, error) {
	query := `
		UPDATE users
		SET last_login = now(),
			login_attempts = 0,
			is_locked = FALSE,
			lock_until = NULL,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	return r.queryOne(ctx, query, userID)
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		if isUniqueViolation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u             models.User
		passwordHash  sql.NullString
		googleID      sql.NullString
		appleID       sql.NullString
		authMethods   string
		verifToken    sql.NullString
		verifExpires  sql.NullTime
		resetToken    sql.NullString
		resetExpires  sql.NullTime
		lockUntil     sql.NullTime
		lastLogin     sql.NullTime
	)

	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &passwordHash, &googleID, &appleID, &u.Avatar, &authMethods,
		&u.IsEmailVerified, &verifToken, &verifExpires,
		&resetToken, &resetExpires,
		&u.LoginAttempts, &u.IsLocked, &lockUntil, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.PasswordHash = passwordHash.String
	u.GoogleID = googleID.String
	u.AppleID = appleID.String
	u.AuthMethods = models.ParseAuthMethods(authMethods)
	u.EmailVerificationToken = verifToken.String
	u.EmailVerificationExpires = verifExpires.Time
	u.PasswordResetToken = resetToken.String
	u.PasswordResetExpires = resetExpires.Time
	u.LockUntil = lockUntil.Time
	u.LastLogin = lastLogin.Time

	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
