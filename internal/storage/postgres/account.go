package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Account represents a login account in the database.
type Account struct {
	ID           int64
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// ErrAccountNotFound is returned when an account lookup yields no results.
var ErrAccountNotFound = errors.New("account not found")

// ErrAccountExists is returned when attempting to create a duplicate account name.
var ErrAccountExists = errors.New("account already exists")

// ErrInvalidCredentials is returned when authentication fails.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidAccountName is returned for names that are empty, too long, or
// contain the token separator ':'.
var ErrInvalidAccountName = errors.New("invalid account name")

// MaxAccountNameLength matches the accounts.account_name column width.
const MaxAccountNameLength = 64

// ValidAccountName reports whether name may be stored as an account name.
func ValidAccountName(name string) bool {
	return name != "" && len(name) <= MaxAccountNameLength && !strings.Contains(name, ":")
}

// AccountRepository provides account persistence operations.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates an AccountRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, account_name, password_hash, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var acct Account
	err := row.Scan(&acct.ID, &acct.Name, &acct.PasswordHash, &acct.CreatedAt)
	return acct, err
}

// Create inserts a new account with a bcrypt-hashed password.
//
// Precondition: name must satisfy ValidAccountName; password must be non-empty.
// Postcondition: Returns the created Account with ID and CreatedAt set,
// ErrInvalidAccountName, or ErrAccountExists if the name is taken.
func (r *AccountRepository) Create(ctx context.Context, name, password string) (Account, error) {
	if !ValidAccountName(name) {
		return Account{}, ErrInvalidAccountName
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, fmt.Errorf("hashing password: %w", err)
	}

	acct, err := scanAccount(r.db.QueryRow(ctx,
		`INSERT INTO accounts (account_name, password_hash)
		 VALUES ($1, $2)
		 RETURNING `+accountColumns,
		name, hash,
	))
	if err != nil {
		if isDuplicateKeyError(err) {
			return Account{}, ErrAccountExists
		}
		return Account{}, fmt.Errorf("inserting account: %w", err)
	}
	return acct, nil
}

// Authenticate verifies credentials and returns the matching account.
//
// Precondition: name and password must be non-empty.
// Postcondition: Returns the Account if credentials are valid,
// ErrAccountNotFound if the name doesn't exist,
// or ErrInvalidCredentials if the password is wrong.
func (r *AccountRepository) Authenticate(ctx context.Context, name, password string) (Account, error) {
	acct, err := r.GetByName(ctx, name)
	if err != nil {
		return Account{}, err
	}
	if !CheckPassword(password, acct.PasswordHash) {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// GetByName retrieves an account by name.
//
// Postcondition: Returns the Account or ErrAccountNotFound.
func (r *AccountRepository) GetByName(ctx context.Context, name string) (Account, error) {
	acct, err := scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_name = $1`,
		name,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("querying account: %w", err)
	}
	return acct, nil
}

// SetPassword replaces the password of the named account.
//
// Precondition: password must be non-empty.
// Postcondition: The stored hash is replaced, or ErrAccountNotFound is returned.
func (r *AccountRepository) SetPassword(ctx context.Context, name, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET password_hash = $1 WHERE account_name = $2`,
		hash, name,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// HashPassword creates a bcrypt hash of the given password.
//
// Precondition: password must be non-empty and at most 72 bytes.
// Postcondition: Returns a bcrypt hash string.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
//
// Postcondition: Returns true if password matches the hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// SQLSTATE 23505 is unique_violation
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
