package data

import (
	"context"
	"database/sql"
	"time"
)

// Favorite records that a user favorited a video.
type Favorite struct {
	UserID    int64     `json:"-"`
	Video     Video     `json:"video"`
	CreatedAt time.Time `json:"favorited_at"`
}

// FavoriteModel wraps the connection pool for queries against the favorites table.
type FavoriteModel struct {
	DB *sql.DB
}

// Insert favorites a video for a user. The (user_id, video_id) primary key guarantees a
// single record per pair; a second insert fails with ErrDuplicateFavorite.
func (m FavoriteModel) Insert(userID, videoID int64) (*Favorite, error) {
	query := `
INSERT INTO favorites (user_id, video_id)
VALUES ($1, $2)
RETURNING created_at`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	favorite := &Favorite{UserID: userID, Video: Video{ID: videoID}}
	err := m.DB.QueryRowContext(ctx, query, userID, videoID).Scan(&favorite.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err, "favorites_pkey"):
			return nil, ErrDuplicateFavorite
		case isForeignKeyViolation(err):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return favorite, nil
}

// Exists reports whether the user has favorited the video.
func (m FavoriteModel) Exists(userID, videoID int64) (bool, error) {
	query := `
SELECT EXISTS(SELECT 1 FROM favorites WHERE user_id = $1 AND video_id = $2)`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var exists bool
	err := m.DB.QueryRowContext(ctx, query, userID, videoID).Scan(&exists)
	return exists, err
}

// Delete removes a favorite, returning ErrRecordNotFound when there was none.
func (m FavoriteModel) Delete(userID, videoID int64) error {
	query := `
DELETE FROM favorites
WHERE user_id = $1 AND video_id = $2`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	result, err := m.DB.ExecContext(ctx, query, userID, videoID)
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

// GetAllForUser returns the user's favorites with their videos, newest first.
func (m FavoriteModel) GetAllForUser(userID int64) ([]*Favorite, error) {
	query := `
SELECT favorites.created_at, videos.id, videos.created_at, videos.movie_id, videos.title, videos.url, videos.version
FROM favorites
INNER JOIN videos ON videos.id = favorites.video_id
WHERE favorites.user_id = $1
ORDER BY favorites.created_at DESC, videos.id ASC`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := m.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	favorites := []*Favorite{}
	for rows.Next() {
		favorite := Favorite{UserID: userID}
		err := rows.Scan(
			&favorite.CreatedAt,
			&favorite.Video.ID,
			&favorite.Video.CreatedAt,
			&favorite.Video.MovieID,
			&favorite.Video.Title,
			&favorite.Video.URL,
			&favorite.Video.Version,
		)
		if err != nil {
			return nil, err
		}
		favorites = append(favorites, &favorite)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return favorites, nil
}
