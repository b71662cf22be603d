package repos

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"securities-sales-crm/identity/internal/models"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrUserInactive   = errors.New("user inactive")
	ErrWrongPassword  = errors.New("wrong password")
	errUniqueViolated = "23505"
)

type UsersRepo struct {
	pool *pgxpool.Pool
}

func NewUsersRepo(pool *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{pool: pool}
}

const userColumns = `user_id, email, name, role, active, password_hash, created_at, updated_at, last_login_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.UserID, &u.Email, &u.Name, &u.Role, &u.Active, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

func (r *UsersRepo) CreateUser(ctx context.Context, email string, name string, role string, passwordHash string) (models.User, error) {
	now := time.Now().UTC()
	user, err := scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, email, name, role, active, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6, $6)
		RETURNING `+userColumns+`
	`, uuid.New(), strings.ToLower(strings.TrimSpace(email)), name, role, passwordHash, now))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == errUniqueViolated {
		return models.User{}, ErrEmailTaken
	}
	return user, err
}

func (r *UsersRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE user_id = $1
	`, userID))
}

func (r *UsersRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))))
}

func (r *UsersRepo) ListUsers(ctx context.Context, limit int, offset int) ([]models.User, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UsersRepo) UpdateUser(ctx context.Context, userID uuid.UUID, name string, role string, active bool) (models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		UPDATE users
		SET name = $2, role = $3, active = $4, updated_at = $5
		WHERE user_id = $1
		RETURNING `+userColumns+`
	`, userID, name, role, active, time.Now().UTC()))
	return user, err
}

// DeleteUser removes the row outright; dependent rows in other services are
// cleaned up asynchronously by their consumers.
func (r *UsersRepo) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUserIDsByRoles feeds the consumer's fan-out of approval.requested
// notifications to every active approver.
func (r *UsersRepo) ListUserIDsByRoles(ctx context.Context, roles []string) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id
		FROM users
		WHERE active AND role = ANY($1)
	`, roles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UsersRepo) TouchLastLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET last_login_at = $2 WHERE user_id = $1
	`, userID, time.Now().UTC())
	return err
}
