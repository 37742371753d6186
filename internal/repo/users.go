package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"coursebook/internal/model"
)

func (r *repository) CreateUser(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, roles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, pq.Array(u.Roles),
	).Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, `
		SELECT id, email, password_hash, first_name, last_name, roles, created_at
		FROM users WHERE email = $1
	`, email)
}

func (r *repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.getUser(ctx, `
		SELECT id, email, password_hash, first_name, last_name, roles, created_at
		FROM users WHERE id = $1
	`, id)
}

func (r *repository) getUser(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, query, arg)

	var u model.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		pq.Array(&u.Roles), &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *repository) GetAllUsers(ctx context.Context) ([]model.User, error) {
	query := `
		SELECT id, email, password_hash, first_name, last_name, roles, created_at
		FROM users
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(
			&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
			pq.Array(&u.Roles), &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (r *repository) SetUserRoles(ctx context.Context, userID string, roles []string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET roles = $1 WHERE id = $2
	`, pq.Array(roles), userID)
	if err != nil {
		return fmt.Errorf("failed to update user roles: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
