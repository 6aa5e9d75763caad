package data

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"golang.org/x/crypto/bcrypt"
	"time"
)

// User is an account that can authenticate against the API.
type User struct {
	ID             int64          `json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	Email          string         `json:"email"`
	FirstName      string         `json:"first_name,omitempty"`
	LastName       string         `json:"last_name,omitempty"`
	Password       password       `json:"-"`
	PermissionFlag PermissionFlag `json:"permission_flag"`
	Version        int            `json:"-"`
}

// password holds the bcrypt hash and, only while a request is being handled, the plaintext.
type password struct {
	plaintext *string
	hash      []byte
}

// Set hashes plaintextPassword with bcrypt (cost 12).
func (p *password) Set(plaintextPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintextPassword), 12)
	if err != nil {
		return err
	}
	p.plaintext = &plaintextPassword
	p.hash = hash
	return nil
}

// Matches reports whether plaintextPassword matches the stored hash.
func (p *password) Matches(plaintextPassword string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(p.hash, []byte(plaintextPassword))
	if err != nil {
		switch {
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, err
		}
	}
	return true, nil
}

// UserModel wraps the connection pool for queries against the users table.
type UserModel struct {
	DB *sql.DB
}

const userColumns = `users.id, users.created_at, users.email, users.first_name, users.last_name, users.password_hash, users.permission_flag, users.version`

func scanUser(scan func(dest ...any) error, user *User) error {
	return scan(
		&user.ID,
		&user.CreatedAt,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Password.hash,
		&user.PermissionFlag,
		&user.Version,
	)
}

// Insert adds a user, returning ErrDuplicateEmail when the address is taken.
func (m UserModel) Insert(user *User) error {
	if user.Password.hash == nil {
		panic("missing password hash for user")
	}

	query := `
INSERT INTO users (email, first_name, last_name, password_hash, permission_flag)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, version`

	args := []any{user.Email, user.FirstName, user.LastName, user.Password.hash, user.PermissionFlag}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	err := m.DB.QueryRowContext(ctx, query, args...).Scan(&user.ID, &user.CreatedAt, &user.Version)
	if err != nil {
		switch {
		case isUniqueViolation(err, "users_email_key"):
			return ErrDuplicateEmail
		default:
			return err
		}
	}
	return nil
}

func (m UserModel) getOne(where string, args ...any) (*User, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM users
WHERE %s`, userColumns, where)

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var user User
	err := scanUser(m.DB.QueryRowContext(ctx, query, args...).Scan, &user)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return &user, nil
}

// Get returns the user with the given id or ErrRecordNotFound.
func (m UserModel) Get(id int64) (*User, error) {
	if id < 1 {
		return nil, ErrRecordNotFound
	}
	return m.getOne("users.id = $1", id)
}

// GetByEmail returns the user with the given email address or ErrRecordNotFound.
func (m UserModel) GetByEmail(email string) (*User, error) {
	return m.getOne("users.email = $1", email)
}

// GetForToken returns the owner of an unexpired token of the given scope.
func (m UserModel) GetForToken(tokenScope, tokenPlaintext string) (*User, error) {
	tokenHash := sha256.Sum256([]byte(tokenPlaintext))

	query := fmt.Sprintf(`
SELECT %s
FROM users
INNER JOIN tokens ON users.id = tokens.user_id
WHERE tokens.hash = $1
AND tokens.scope = $2
AND tokens.expiry > $3`, userColumns)

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var user User
	err := scanUser(m.DB.QueryRowContext(ctx, query, tokenHash[:], tokenScope, time.Now()).Scan, &user)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return &user, nil
}

// GetAll returns one page of users.
func (m UserModel) GetAll(filters Filters) ([]*User, Metadata, error) {
	query := fmt.Sprintf(`
SELECT count(*) OVER(), %s
FROM users
ORDER BY %s %s, id ASC
LIMIT $1 OFFSET $2`, userColumns, filters.sortColumn(), filters.sortDirection())

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := m.DB.QueryContext(ctx, query, filters.Limit(), filters.Offset())
	if err != nil {
		return nil, Metadata{}, err
	}
	defer rows.Close()

	totalRecords := 0
	users := []*User{}
	for rows.Next() {
		var user User
		err := scanUser(func(dest ...any) error {
			return rows.Scan(append([]any{&totalRecords}, dest...)...)
		}, &user)
		if err != nil {
			return nil, Metadata{}, err
		}
		users = append(users, &user)
	}
	if err = rows.Err(); err != nil {
		return nil, Metadata{}, err
	}

	return users, CalculateMetadata(totalRecords, filters.Page, filters.PageSize), nil
}

// Update writes the user back using optimistic locking on the version column.
func (m UserModel) Update(user *User) error {
	query := `
UPDATE users
SET email = $1, first_name = $2, last_name = $3, password_hash = $4, permission_flag = $5, version = version + 1
WHERE id = $6 AND version = $7
RETURNING version`

	args := []any{
		user.Email,
		user.FirstName,
		user.LastName,
		user.Password.hash,
		user.PermissionFlag,
		user.ID,
		user.Version,
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	err := m.DB.QueryRowContext(ctx, query, args...).Scan(&user.Version)
	if err != nil {
		switch {
		case isUniqueViolation(err, "users_email_key"):
			return ErrDuplicateEmail
		case errors.Is(err, sql.ErrNoRows):
			return ErrEditConflict
		default:
			return err
		}
	}
	return nil
}

// Delete removes a user together with their tokens and favorites.
func (m UserModel) Delete(id int64) error {
	if id < 1 {
		return ErrRecordNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	result, err := m.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
