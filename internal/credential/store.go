package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/nikhilbhutani/medtranslate/internal/apperr"
	"github.com/nikhilbhutani/medtranslate/internal/models"
)

// Querier is the subset of *pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Result is the outcome of a credential check.
type Result int

const (
	Rejected Result = iota
	Authenticated
)

func (r Result) String() string {
	if r == Authenticated {
		return "authenticated"
	}
	return "rejected"
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS credentials (
	username      TEXT PRIMARY KEY,
	password_hash BYTEA NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Store struct {
	db   Querier
	cost int
}

func NewStore(db Querier, cost int) *Store {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Store{db: db, cost: cost}
}

// EnsureSchema creates the credentials table when it is absent. Safe to call
// on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure credentials schema: %w", err)
	}
	return nil
}

// Register stores a bcrypt hash of password under username. A username that
// already exists yields apperr.ErrDuplicateUser and leaves the row untouched.
func (s *Store) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("%w: username and password required", apperr.ErrInvalidInput)
	}
	// bcrypt ignores everything past 72 bytes; refuse rather than truncate
	if len(password) > 72 {
		return fmt.Errorf("%w: password longer than 72 bytes", apperr.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO credentials (username, password_hash) VALUES ($1, $2)
		 ON CONFLICT (username) DO NOTHING`,
		username, hash,
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrDuplicateUser
	}
	return nil
}

// Verify checks password against the stored hash. An unknown username is
// Rejected, not an error; only storage failures return an error.
func (s *Store) Verify(ctx context.Context, username, password string) (Result, error) {
	cred, err := s.get(ctx, strings.TrimSpace(username))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rejected, nil
	}
	if err != nil {
		return Rejected, err
	}

	if err := bcrypt.CompareHashAndPassword(cred.PasswordHash, []byte(password)); err != nil {
		return Rejected, nil
	}
	return Authenticated, nil
}

func (s *Store) get(ctx context.Context, username string) (*models.Credential, error) {
	var c models.Credential
	err := s.db.QueryRow(ctx,
		"SELECT username, password_hash, created_at FROM credentials WHERE username = $1", username,
	).Scan(&c.Username, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}
