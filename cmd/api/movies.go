package main

import (
	"errors"
	"fmt"
	"moviefavs.interimme.net/internal/data"
	"moviefavs.interimme.net/internal/validator"
	"net/http"
)

// movieQuery is the parsed query string of a movie list request.
type movieQuery struct {
	search  string
	filters data.Filters
}

// extractMovieSearchQuery parses search and pagination parameters into the context,
// answering 422 when they are invalid.
func (app *application) extractMovieSearchQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := validator.New()
		qs := r.URL.Query()

		var q movieQuery
		q.search = app.readString(qs, "search", "")
		q.filters.Page = app.readInt(qs, "page", 1, v)
		q.filters.PageSize = app.readInt(qs, "page_size", 20, v)
		q.filters.Sort = app.readString(qs, "sort", "id")
		q.filters.SortSafelist = []string{"id", "name", "-id", "-name"}

		if data.ValidateFilters(v, q.filters); !v.Valid() {
			app.failedValidationResponse(w, r, v.Errors)
			return
		}

		r = contextSet(r, movieQueryKey, q)
		next.ServeHTTP(w, r)
	})
}

// extractMovieID parses :movieId. An id that is not a positive integer cannot name a
// movie, so it is a 404.
func (app *application) extractMovieID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := app.readIDParam(r, "movieId")
		if err != nil {
			app.notFoundResponse(w, r)
			return
		}

		r = contextSet(r, movieIDContextKey, id)
		next.ServeHTTP(w, r)
	})
}

func (app *application) validateMovieExists(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		movie, err := app.models.Movies.Get(app.contextGetID(r, movieIDContextKey))
		if err != nil {
			switch {
			case errors.Is(err, data.ErrRecordNotFound):
				app.notFoundResponse(w, r)
			default:
				app.serverErrorResponse(w, r, err)
			}
			return
		}

		r = contextSet(r, movieContextKey, movie)
		next.ServeHTTP(w, r)
	})
}

var errMovieTaken = map[string]string{"name": "a movie with this name and description already exists"}

// validateNameAndDescriptionAvailability rejects a body whose (name, description) pair
// already belongs to another movie. On routes that target an existing movie, fields
// missing from the body keep the movie's current values, and matching the movie itself
// is not a conflict.
func (app *application) validateNameAndDescriptionAvailability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := app.contextGetBody(r)
		name, hasName := body.stringField("name")
		description, hasDescription := body.stringField("description")

		current, targeted := app.contextLookupMovie(r)
		if targeted {
			if !hasName {
				name = current.Name
			}
			if !hasDescription {
				description = current.Description
			}
		}

		existing, err := app.models.Movies.GetByNameAndDescription(name, description)
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
		case err != nil:
			app.serverErrorResponse(w, r, err)
			return
		case !targeted || existing.ID != current.ID:
			app.failedBodyValidationResponse(w, r, errMovieTaken)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// listMoviesHandler returns one page of movies.
//
//	@Summary	List movies
//	@Tags		movies
//	@Produce	json
//	@Param		search		query		string	false	"Full-text search on name and description"
//	@Param		page		query		int		false	"Page number"
//	@Param		page_size	query		int		false	"Page size (max 100)"
//	@Param		sort		query		string	false	"id, name, -id or -name"
//	@Success	200			{object}	main.envelope
//	@Failure	422			{object}	main.envelope
//	@Router		/movies [get]
func (app *application) listMoviesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.Context().Value(movieQueryKey).(movieQuery)

	movies, metadata, err := app.models.Movies.GetAll(q.search, q.filters)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"movies": movies, "metadata": metadata}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// createMovieHandler stores a new movie and points the Location header at it.
//
//	@Summary	Create a movie
//	@Tags		movies
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Success	201	{object}	main.envelope
//	@Failure	400	{object}	main.envelope
//	@Failure	401	{object}	main.envelope
//	@Failure	403	{object}	main.envelope
//	@Router		/movies [post]
func (app *application) createMovieHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	movie := &data.Movie{
		Name:        input.Name,
		Description: input.Description,
	}

	err = app.models.Movies.Insert(movie)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrDuplicateMovie):
			app.failedBodyValidationResponse(w, r, errMovieTaken)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/movies/%d", movie.ID))

	err = app.writeJSON(w, http.StatusCreated, envelope{"movie": movie}, headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// showMovieHandler returns the movie loaded by validateMovieExists.
//
//	@Summary	Show a movie
//	@Tags		movies
//	@Produce	json
//	@Param		movieId	path		int	true	"Movie ID"
//	@Success	200		{object}	main.envelope
//	@Failure	404		{object}	main.envelope
//	@Router		/movies/{movieId} [get]
func (app *application) showMovieHandler(w http.ResponseWriter, r *http.Request) {
	err := app.writeJSON(w, http.StatusOK, envelope{"movie": app.contextGetMovie(r)}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// putMovieHandler replaces both fields of a movie.
//
//	@Summary	Replace a movie
//	@Tags		movies
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		movieId	path		int	true	"Movie ID"
//	@Success	200		{object}	main.envelope
//	@Failure	400		{object}	main.envelope
//	@Failure	404		{object}	main.envelope
//	@Failure	409		{object}	main.envelope
//	@Router		/movies/{movieId} [put]
func (app *application) putMovieHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	movie := app.contextGetMovie(r)
	movie.Name = input.Name
	movie.Description = input.Description

	app.updateMovie(w, r, movie)
}

// patchMovieHandler changes only the fields present in the body.
//
//	@Summary	Update a movie partially
//	@Tags		movies
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		movieId	path		int	true	"Movie ID"
//	@Success	200		{object}	main.envelope
//	@Failure	400		{object}	main.envelope
//	@Failure	404		{object}	main.envelope
//	@Failure	409		{object}	main.envelope
//	@Router		/movies/{movieId} [patch]
func (app *application) patchMovieHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	movie := app.contextGetMovie(r)
	if input.Name != nil {
		movie.Name = *input.Name
	}
	if input.Description != nil {
		movie.Description = *input.Description
	}

	app.updateMovie(w, r, movie)
}

func (app *application) updateMovie(w http.ResponseWriter, r *http.Request, movie *data.Movie) {
	err := app.models.Movies.Update(movie)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrDuplicateMovie):
			app.failedBodyValidationResponse(w, r, errMovieTaken)
		case errors.Is(err, data.ErrEditConflict):
			app.editConflictResponse(w, r)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"movie": movie}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// deleteMovieHandler removes a movie with its videos and their favorites.
//
//	@Summary	Delete a movie
//	@Tags		movies
//	@Security	BearerAuth
//	@Produce	json
//	@Param		movieId	path		int	true	"Movie ID"
//	@Success	200		{object}	main.envelope
//	@Failure	401		{object}	main.envelope
//	@Failure	403		{object}	main.envelope
//	@Failure	404		{object}	main.envelope
//	@Router		/movies/{movieId} [delete]
func (app *application) deleteMovieHandler(w http.ResponseWriter, r *http.Request) {
	err := app.models.Movies.Delete(app.contextGetMovie(r).ID)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			app.notFoundResponse(w, r)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"message": "movie successfully deleted"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
