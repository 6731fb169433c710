package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"netwatch/internal/client"
	"netwatch/internal/model"
	"netwatch/internal/util"
)

type userRepository struct {
	client *client.PostgresClient
}

func NewUserRepository(pg *client.PostgresClient, logger *zap.Logger) UserRepository {
	// Using global util logger instead of individual logger
	return &userRepository{client: pg}
}

func (r *userRepository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS users (
			id              BIGSERIAL PRIMARY KEY,
			username        TEXT NOT NULL UNIQUE,
			email_hash      TEXT NOT NULL UNIQUE,
			email_encrypted BYTEA NOT NULL,
			email_dek       BYTEA NOT NULL,
			email_key_id    TEXT NOT NULL,
			password        TEXT NOT NULL,
			role            TEXT NOT NULL DEFAULT 'user',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_login      TIMESTAMPTZ
		)`
	if _, err := r.client.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure users table: %w", err)
	}
	return nil
}

func (r *userRepository) CreateUser(ctx context.Context, user *model.User) error {
	const query = `
		INSERT INTO users (username, email_hash, email_encrypted, email_dek, email_key_id, password, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.client.Pool.QueryRow(ctx, query,
		user.Username, user.EmailHash, user.EmailEncrypted, user.EmailDEK,
		user.EmailKeyID, user.Password, user.Role,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		util.Error("Failed to create user",
			zap.String("username", user.Username),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", user.Role))
	return nil
}

const userColumns = `id, username, email_hash, email_encrypted, email_dek, email_key_id, password, role, created_at, last_login`

func (r *userRepository) scanUser(row pgx.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.EmailHash, &user.EmailEncrypted,
		&user.EmailDEK, &user.EmailKeyID, &user.Password, &user.Role,
		&user.CreatedAt, &user.LastLogin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return r.scanUser(r.client.Pool.QueryRow(ctx, query, id))
}

func (r *userRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1`, userColumns)
	return r.scanUser(r.client.Pool.QueryRow(ctx, query, username))
}

func (r *userRepository) GetUserByEmailHash(ctx context.Context, emailHash string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email_hash = $1`, userColumns)
	return r.scanUser(r.client.Pool.QueryRow(ctx, query, emailHash))
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.client.Pool.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

func (r *userRepository) UpdateUserRole(ctx context.Context, id int64, role string) error {
	tag, err := r.client.Pool.Exec(ctx, `UPDATE users SET role = $1 WHERE id = $2`, role, id)
	if err != nil {
		util.Error("Failed to update user role",
			zap.Int64("user_id", id),
			zap.String("role", role),
			zap.Error(err))
		return fmt.Errorf("failed to update user role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}

	util.Info("User role updated",
		zap.Int64("user_id", id),
		zap.String("role", role))
	return nil
}

func (r *userRepository) DeleteUser(ctx context.Context, id int64) error {
	// Nodes and alerts cascade through foreign keys.
	tag, err := r.client.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		util.Error("Failed to delete user", zap.Int64("user_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}

	util.Info("User deleted", zap.Int64("user_id", id))
	return nil
}

func (r *userRepository) ListUsers(ctx context.Context) ([]*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users ORDER BY created_at DESC`, userColumns)
	rows, err := r.client.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *userRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.client.Pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
