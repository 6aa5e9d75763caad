package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Video is a playable asset belonging to a movie; videos are what users favorite.
type Video struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	MovieID   int64     `json:"movie_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Version   int32     `json:"version"`
}

// VideoModel wraps the connection pool for queries against the videos table.
type VideoModel struct {
	DB *sql.DB
}

// Insert adds a video. A movie_id without a matching movie surfaces as ErrRecordNotFound.
func (m VideoModel) Insert(video *Video) error {
	query := `
INSERT INTO videos (movie_id, title, url)
VALUES ($1, $2, $3)
RETURNING id, created_at, version`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	err := m.DB.QueryRowContext(ctx, query, video.MovieID, video.Title, video.URL).Scan(&video.ID, &video.CreatedAt, &video.Version)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrRecordNotFound
		}
		return err
	}
	return nil
}

// Get returns the video with the given id or ErrRecordNotFound.
func (m VideoModel) Get(id int64) (*Video, error) {
	if id < 1 {
		return nil, ErrRecordNotFound
	}

	query := `
SELECT id, created_at, movie_id, title, url, version
FROM videos
WHERE id = $1`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var video Video
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&video.ID,
		&video.CreatedAt,
		&video.MovieID,
		&video.Title,
		&video.URL,
		&video.Version,
	)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return &video, nil
}

// Delete removes a video and, through the foreign key, every favorite of it.
func (m VideoModel) Delete(id int64) error {
	if id < 1 {
		return ErrRecordNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	result, err := m.DB.ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, id)
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

// GetAll returns one page of videos, restricted to one movie when movieID is positive.
func (m VideoModel) GetAll(movieID int64, filters Filters) ([]*Video, Metadata, error) {
	query := fmt.Sprintf(`
SELECT count(*) OVER(), id, created_at, movie_id, title, url, version
FROM videos
WHERE (movie_id = $1 OR $1 = 0)
ORDER BY %s %s, id ASC
LIMIT $2 OFFSET $3`, filters.sortColumn(), filters.sortDirection())

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := m.DB.QueryContext(ctx, query, movieID, filters.Limit(), filters.Offset())
	if err != nil {
		return nil, Metadata{}, err
	}
	defer rows.Close()

	totalRecords := 0
	videos := []*Video{}
	for rows.Next() {
		var video Video
		err := rows.Scan(
			&totalRecords,
			&video.ID,
			&video.CreatedAt,
			&video.MovieID,
			&video.Title,
			&video.URL,
			&video.Version,
		)
		if err != nil {
			return nil, Metadata{}, err
		}
		videos = append(videos, &video)
	}
	if err = rows.Err(); err != nil {
		return nil, Metadata{}, err
	}

	return videos, CalculateMetadata(totalRecords, filters.Page, filters.PageSize), nil
}
