package main

import (
	"errors"
	"moviefavs.interimme.net/internal/data"
	"net/http"
)

// validateVideoIsNotFavorited stops a second favorite of the same video with a 400.
func (app *application) validateVideoIsNotFavorited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exists, err := app.models.Favorites.Exists(app.contextGetIdentity(r).UserID, app.contextGetVideo(r).ID)
		if err != nil {
			app.serverErrorResponse(w, r, err)
			return
		}
		if exists {
			app.failedBodyValidationResponse(w, r, map[string]string{
				"video_id": "video is already in favorites",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// validateVideoIsFavorited answers 400 when there is no favorite to remove.
func (app *application) validateVideoIsFavorited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exists, err := app.models.Favorites.Exists(app.contextGetIdentity(r).UserID, app.contextGetVideo(r).ID)
		if err != nil {
			app.serverErrorResponse(w, r, err)
			return
		}
		if !exists {
			app.failedBodyValidationResponse(w, r, map[string]string{
				"video_id": "video is not in favorites",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// listFavoritesHandler returns the caller's favorites, most recent first.
//
//	@Summary	List favorites
//	@Tags		favorites
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	main.envelope
//	@Failure	401	{object}	main.envelope
//	@Router		/favorites [get]
func (app *application) listFavoritesHandler(w http.ResponseWriter, r *http.Request) {
	favorites, err := app.models.Favorites.GetAllForUser(app.contextGetIdentity(r).UserID)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"favorites": favorites}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// addToFavoritesHandler favorites the video for the caller. Two requests racing past
// validateVideoIsNotFavorited end with one 201 and one 409.
//
//	@Summary	Add a video to favorites
//	@Tags		favorites
//	@Security	BearerAuth
//	@Produce	json
//	@Param		videoId	path		int	true	"Video ID"
//	@Success	201		{object}	main.envelope
//	@Failure	400		{object}	main.envelope
//	@Failure	401		{object}	main.envelope
//	@Failure	404		{object}	main.envelope
//	@Failure	409		{object}	main.envelope
//	@Router		/favorites/{videoId} [post]
func (app *application) addToFavoritesHandler(w http.ResponseWriter, r *http.Request) {
	favorite, err := app.models.Favorites.Insert(app.contextGetIdentity(r).UserID, app.contextGetVideo(r).ID)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrDuplicateFavorite):
			app.favoriteConflictResponse(w, r)
		case errors.Is(err, data.ErrRecordNotFound):
			app.notFoundResponse(w, r)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}
	favorite.Video = *app.contextGetVideo(r)

	err = app.writeJSON(w, http.StatusCreated, envelope{"favorite": favorite}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

//	@Summary	Remove a video from favorites
//	@Tags		favorites
//	@Security	BearerAuth
//	@Produce	json
//	@Param		videoId	path		int	true	"Video ID"
//	@Success	200		{object}	main.envelope
//	@Failure	400		{object}	main.envelope
//	@Failure	401		{object}	main.envelope
//	@Failure	404		{object}	main.envelope
//	@Router		/favorites/{videoId} [delete]
func (app *application) deleteFromFavoritesHandler(w http.ResponseWriter, r *http.Request) {
	err := app.models.Favorites.Delete(app.contextGetIdentity(r).UserID, app.contextGetVideo(r).ID)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			app.notFoundResponse(w, r)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"message": "video removed from favorites"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
