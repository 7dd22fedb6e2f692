package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"appsync/config/database"
	"appsync/internal/user/model"
	"appsync/pkg/apperr"
	"appsync/pkg/logger"
	"appsync/pkg/timex"

	"github.com/lib/pq"
)

// Repository stores accounts. Lookups return (nil, nil) when nothing matches.
type Repository interface {
	Create(ctx context.Context, username, email, hash string, now time.Time) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, u model.User) error
	// Delete removes the user and every record they own.
	Delete(ctx context.Context, id int64) error
}

const userColumns = `id, username, email, password_hash, created_at, updated_at`

type PostgresRepository struct {
	DB *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

// mapError turns unique violations into conflicts and everything else into
// storage failures.
func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		field := "username"
		if strings.Contains(pqErr.Constraint, "email") {
			field = "email"
		}
		return apperr.Wrap(apperr.KindConflict, field+" already exists", err)
	}
	logger.Sugar.Errorf("Failed to %s: %v", op, err)
	return apperr.Storage("failed to "+op, err)
}

func (r *PostgresRepository) queryUser(ctx context.Context, op, query string, args ...any) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, query, args...).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(op, err)
	}
	u.CreatedAt = timex.Truncate(u.CreatedAt)
	u.UpdatedAt = timex.Truncate(u.UpdatedAt)
	return &u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, username, email, hash string, now time.Time) (*model.User, error) {
	return r.queryUser(ctx, "create user",
		`INSERT INTO users (username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4) RETURNING `+userColumns,
		username, email, hash, now)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.queryUser(ctx, fmt.Sprintf("get user %d", id), `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.queryUser(ctx, "get user by username", `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.queryUser(ctx, "get user by email", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) Update(ctx context.Context, u model.User) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET email = $2, password_hash = $3, updated_at = $4 WHERE id = $1`,
		u.ID, u.Email, u.PasswordHash, u.UpdatedAt)
	if err != nil {
		return mapError(fmt.Sprintf("update user %d", u.ID), err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	err := database.WithTx(ctx, r.DB, func(ctx context.Context, tx database.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM app_data WHERE user_id = $1`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return mapError(fmt.Sprintf("delete user %d", id), err)
	}
	return nil
}

// RecordPurger removes every record of an owner.
type RecordPurger interface {
	DeleteByOwner(ctx context.Context, ownerID int64) (int64, error)
}

type MemoryRepository struct {
	mu     sync.RWMutex
	users  map[int64]model.User
	nextID int64
	purger RecordPurger
}

// NewMemoryRepository cascades deletes into purger when it is not nil.
func NewMemoryRepository(purger RecordPurger) *MemoryRepository {
	return &MemoryRepository{users: make(map[int64]model.User), purger: purger}
}

func (m *MemoryRepository) Create(_ context.Context, username, email, hash string, now time.Time) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username {
			return nil, apperr.Conflict("username already exists")
		}
		if u.Email == email {
			return nil, apperr.Conflict("email already exists")
		}
	}
	m.nextID++
	u := model.User{ID: m.nextID, Username: username, Email: email, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = u
	return &u, nil
}

func (m *MemoryRepository) find(match func(model.User) bool) *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			out := u
			return &out
		}
	}
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id int64) (*model.User, error) {
	return m.find(func(u model.User) bool { return u.ID == id }), nil
}

func (m *MemoryRepository) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return m.find(func(u model.User) bool { return u.Username == username }), nil
}

func (m *MemoryRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u model.User) bool { return u.Email == email }), nil
}

func (m *MemoryRepository) Update(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; !ok {
		return apperr.NotFound("user not found")
	}
	for id, other := range m.users {
		if id != u.ID && other.Email == u.Email {
			return apperr.Conflict("email already exists")
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id int64) error {
	if m.purger != nil {
		if _, err := m.purger.DeleteByOwner(ctx, id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}
