package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no user matches the lookup.
	ErrNotFound = errors.New("user not found")

	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	List(ctx context.Context, excludeID int64) ([]User, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user and returns it with the assigned id.
func (r *PostgresRepository) Create(ctx context.Context, user User) (User, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO users (username, email, password_hash)
        VALUES ($1, $2, $3) RETURNING id, created_at`,
		user.Username, user.Email, user.PasswordHash)
	if err := row.Scan(&user.ID, &user.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrUsernameTaken
		}
		return User{}, err
	}
	return user, nil
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT id, username, email, password_hash, created_at
        FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// FindByUsername fetches a user by username.
func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT id, username, email, password_hash, created_at
        FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// List returns all users except the excluded one, ordered by id.
func (r *PostgresRepository) List(ctx context.Context, excludeID int64) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT id, username, email, password_hash, created_at
        FROM users WHERE id <> $1 ORDER BY id`, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type userRow interface {
	Scan(dest ...any) error
}

func scanUser(row userRow) (User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}
