package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"campusgrid/internal/models"
	"campusgrid/internal/services"
	"campusgrid/internal/utils"

	"github.com/jmoiron/sqlx"
)

type UserRepository interface {
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	StoreRefreshToken(ctx context.Context, userID int, token string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, token string) (int, error)
	RevokeToken(ctx context.Context, token string) error
}

type userRepository struct {
	db    *sqlx.DB
	cache services.Cache
}

func NewUserRepository(db *sqlx.DB, cache services.Cache) UserRepository {
	return &userRepository{db: db, cache: cache}
}

func (r *userRepository) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query, req.Username, req.Email, hashedPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return &models.User{
		ID:       int(id),
		Username: req.Username,
		Email:    req.Email,
	}, nil
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?`
	err := r.db.GetContext(ctx, &user, query, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (r *userRepository) StoreRefreshToken(ctx context.Context, userID int, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("token expiration is in the past")
	}
	return r.cache.Set(ctx, "refresh_token:"+token, userID, ttl)
}

func (r *userRepository) GetRefreshToken(ctx context.Context, token string) (int, error) {
	var userID int
	if err := r.cache.Get(ctx, "refresh_token:"+token, &userID); err != nil {
		return 0, fmt.Errorf("refresh token not found")
	}
	return userID, nil
}

func (r *userRepository) RevokeToken(ctx context.Context, token string) error {
	return r.cache.Delete(ctx, "refresh_token:"+token)
}
