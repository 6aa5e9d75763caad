package main

import (
	"errors"
	"fmt"
	"moviefavs.interimme.net/internal/data"
	"moviefavs.interimme.net/internal/validator"
	"net/http"
)

// extractVideoID parses :videoId; a malformed id is a 404.
func (app *application) extractVideoID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := app.readIDParam(r, "videoId")
		if err != nil {
			app.notFoundResponse(w, r)
			return
		}

		r = contextSet(r, videoIDContextKey, id)
		next.ServeHTTP(w, r)
	})
}

func (app *application) validateVideoExists(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		video, err := app.models.Videos.Get(app.contextGetID(r, videoIDContextKey))
		if err != nil {
			switch {
			case errors.Is(err, data.ErrRecordNotFound):
				app.notFoundResponse(w, r)
			default:
				app.serverErrorResponse(w, r, err)
			}
			return
		}

		r = contextSet(r, videoContextKey, video)
		next.ServeHTTP(w, r)
	})
}

// listVideosHandler returns one page of videos, optionally of a single movie.
//
//	@Summary	List videos
//	@Tags		videos
//	@Produce	json
//	@Param		movie_id	query		int		false	"Only videos of this movie"
//	@Param		page		query		int		false	"Page number"
//	@Param		page_size	query		int		false	"Page size (max 100)"
//	@Param		sort		query		string	false	"id, title, -id or -title"
//	@Success	200			{object}	main.envelope
//	@Failure	422			{object}	main.envelope
//	@Router		/videos [get]
func (app *application) listVideosHandler(w http.ResponseWriter, r *http.Request) {
	v := validator.New()
	qs := r.URL.Query()

	movieID := app.readInt(qs, "movie_id", 0, v)
	v.Check(movieID >= 0, "movie_id", "must not be negative")

	var filters data.Filters
	filters.Page = app.readInt(qs, "page", 1, v)
	filters.PageSize = app.readInt(qs, "page_size", 20, v)
	filters.Sort = app.readString(qs, "sort", "id")
	filters.SortSafelist = []string{"id", "title", "-id", "-title"}

	if data.ValidateFilters(v, filters); !v.Valid() {
		app.failedValidationResponse(w, r, v.Errors)
		return
	}

	videos, metadata, err := app.models.Videos.GetAll(int64(movieID), filters)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"videos": videos, "metadata": metadata}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// showVideoHandler returns the video loaded by validateVideoExists.
//
//	@Summary	Show a video
//	@Tags		videos
//	@Produce	json
//	@Param		videoId	path		int	true	"Video ID"
//	@Success	200		{object}	main.envelope
//	@Failure	404		{object}	main.envelope
//	@Router		/videos/{videoId} [get]
func (app *application) showVideoHandler(w http.ResponseWriter, r *http.Request) {
	err := app.writeJSON(w, http.StatusOK, envelope{"video": app.contextGetVideo(r)}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// createVideoHandler adds a video to an existing movie.
//
//	@Summary	Create a video
//	@Tags		videos
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Success	201	{object}	main.envelope
//	@Failure	400	{object}	main.envelope
//	@Failure	401	{object}	main.envelope
//	@Failure	403	{object}	main.envelope
//	@Router		/videos [post]
func (app *application) createVideoHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		MovieID int64  `json:"movie_id"`
		Title   string `json:"title"`
		URL     string `json:"url"`
	}

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	video := &data.Video{
		MovieID: input.MovieID,
		Title:   input.Title,
		URL:     input.URL,
	}

	err = app.models.Videos.Insert(video)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			app.failedBodyValidationResponse(w, r, map[string]string{
				"movie_id": "no movie with this id exists",
			})
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/videos/%d", video.ID))

	err = app.writeJSON(w, http.StatusCreated, envelope{"video": video}, headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

//	@Summary	Delete a video
//	@Tags		videos
//	@Security	BearerAuth
//	@Produce	json
//	@Param		videoId	path		int	true	"Video ID"
//	@Success	200		{object}	main.envelope
//	@Failure	404		{object}	main.envelope
//	@Router		/videos/{videoId} [delete]
func (app *application) deleteVideoHandler(w http.ResponseWriter, r *http.Request) {
	err := app.models.Videos.Delete(app.contextGetVideo(r).ID)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			app.notFoundResponse(w, r)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"message": "video successfully deleted"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
