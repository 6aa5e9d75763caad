package data

import (
	"database/sql"
	"errors"
	"github.com/lib/pq"
	"time"
)

// Sentinel errors returned by the models and checked by handlers with errors.Is.
var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrEditConflict      = errors.New("edit conflict")
	ErrDuplicateEmail    = errors.New("duplicate email")
	ErrDuplicateMovie    = errors.New("duplicate movie")
	ErrDuplicateFavorite = errors.New("duplicate favorite")
)

// queryTimeout bounds every statement sent to PostgreSQL.
const queryTimeout = 3 * time.Second

// Models groups the data access objects used by the API. The fields are interfaces so
// handlers can be exercised against in-memory implementations; NewModels wires the
// PostgreSQL-backed ones.
type Models struct {
	Movies interface {
		Insert(movie *Movie) error
		Get(id int64) (*Movie, error)
		GetByNameAndDescription(name, description string) (*Movie, error)
		GetAll(search string, filters Filters) ([]*Movie, Metadata, error)
		Update(movie *Movie) error
		Delete(id int64) error
	}
	Videos interface {
		Insert(video *Video) error
		Get(id int64) (*Video, error)
		GetAll(movieID int64, filters Filters) ([]*Video, Metadata, error)
		Delete(id int64) error
	}
	Favorites interface {
		Insert(userID, videoID int64) (*Favorite, error)
		Exists(userID, videoID int64) (bool, error)
		Delete(userID, videoID int64) error
		GetAllForUser(userID int64) ([]*Favorite, error)
	}
	Tokens interface {
		New(userID int64, ttl time.Duration, scope string) (*Token, error)
		DeleteAllForUser(scope string, userID int64) error
	}
	Users interface {
		Insert(user *User) error
		Get(id int64) (*User, error)
		GetByEmail(email string) (*User, error)
		GetForToken(tokenScope, tokenPlaintext string) (*User, error)
		GetAll(filters Filters) ([]*User, Metadata, error)
		Update(user *User) error
		Delete(id int64) error
	}
}

// NewModels returns Models backed by the given connection pool.
func NewModels(db *sql.DB) Models {
	return Models{
		Movies:    MovieModel{DB: db},
		Videos:    VideoModel{DB: db},
		Favorites: FavoriteModel{DB: db},
		Tokens:    TokenModel{DB: db},
		Users:     UserModel{DB: db},
	}
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation on constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == constraint
	}
	return false
}

// isForeignKeyViolation reports whether err is a PostgreSQL foreign_key_violation.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
