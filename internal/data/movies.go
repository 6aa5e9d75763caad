package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Movie is an entry of the catalog. The (name, description) pair is unique.
type Movie struct {
	ID          int64     `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     int32     `json:"version"` // Incremented on every update, used for optimistic locking.
}

// MovieModel wraps the connection pool for queries against the movies table.
type MovieModel struct {
	DB *sql.DB
}

// Insert adds a movie and fills in its generated id, created_at and version. A taken
// (name, description) pair fails with ErrDuplicateMovie.
func (m MovieModel) Insert(movie *Movie) error {
	query := `
INSERT INTO movies (name, description)
VALUES ($1, $2)
RETURNING id, created_at, version`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	err := m.DB.QueryRowContext(ctx, query, movie.Name, movie.Description).Scan(&movie.ID, &movie.CreatedAt, &movie.Version)
	if err != nil {
		switch {
		case isUniqueViolation(err, "movies_name_description_key"):
			return ErrDuplicateMovie
		default:
			return err
		}
	}
	return nil
}

// Get returns the movie with the given id or ErrRecordNotFound.
func (m MovieModel) Get(id int64) (*Movie, error) {
	if id < 1 {
		return nil, ErrRecordNotFound
	}

	query := `
SELECT id, created_at, name, description, version
FROM movies
WHERE id = $1`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	return m.scanOne(m.DB.QueryRowContext(ctx, query, id))
}

// GetByNameAndDescription returns the movie with exactly this name and description,
// or ErrRecordNotFound.
func (m MovieModel) GetByNameAndDescription(name, description string) (*Movie, error) {
	query := `
SELECT id, created_at, name, description, version
FROM movies
WHERE name = $1 AND description = $2`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	return m.scanOne(m.DB.QueryRowContext(ctx, query, name, description))
}

func (m MovieModel) scanOne(row *sql.Row) (*Movie, error) {
	var movie Movie
	err := row.Scan(&movie.ID, &movie.CreatedAt, &movie.Name, &movie.Description, &movie.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return &movie, nil
}

// Update writes name and description back, failing with ErrEditConflict when the row
// changed since it was read and with ErrDuplicateMovie when the new pair is taken.
func (m MovieModel) Update(movie *Movie) error {
	query := `
UPDATE movies
SET name = $1, description = $2, version = version + 1
WHERE id = $3 AND version = $4
RETURNING version`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	err := m.DB.QueryRowContext(ctx, query, movie.Name, movie.Description, movie.ID, movie.Version).Scan(&movie.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrEditConflict
		case isUniqueViolation(err, "movies_name_description_key"):
			return ErrDuplicateMovie
		default:
			return err
		}
	}
	return nil
}

// Delete removes a movie. Its videos and their favorites go with it (ON DELETE CASCADE).
func (m MovieModel) Delete(id int64) error {
	if id < 1 {
		return ErrRecordNotFound
	}

	query := `
DELETE FROM movies
WHERE id = $1`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	result, err := m.DB.ExecContext(ctx, query, id)
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

// GetAll returns one page of movies whose name or description matches search
// (full-text, ignored when empty).
func (m MovieModel) GetAll(search string, filters Filters) ([]*Movie, Metadata, error) {
	query := fmt.Sprintf(`
SELECT count(*) OVER(), id, created_at, name, description, version
FROM movies
WHERE (to_tsvector('simple', name || ' ' || description) @@ plainto_tsquery('simple', $1) OR $1 = '')
ORDER BY %s %s, id ASC
LIMIT $2 OFFSET $3`, filters.sortColumn(), filters.sortDirection())

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := m.DB.QueryContext(ctx, query, search, filters.Limit(), filters.Offset())
	if err != nil {
		return nil, Metadata{}, err
	}
	defer rows.Close()

	totalRecords := 0
	movies := []*Movie{}
	for rows.Next() {
		var movie Movie
		err := rows.Scan(&totalRecords, &movie.ID, &movie.CreatedAt, &movie.Name, &movie.Description, &movie.Version)
		if err != nil {
			return nil, Metadata{}, err
		}
		movies = append(movies, &movie)
	}
	if err = rows.Err(); err != nil {
		return nil, Metadata{}, err
	}

	return movies, CalculateMetadata(totalRecords, filters.Page, filters.PageSize), nil
}
