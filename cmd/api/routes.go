package main

import (
	"expvar"
	"github.com/julienschmidt/httprouter"
	"github.com/justinas/alice"
	httpSwagger "github.com/swaggo/http-swagger"
	_ "moviefavs.interimme.net/docs"
	"moviefavs.interimme.net/internal/data"
	"moviefavs.interimme.net/internal/validator"
	"net/http"
)

// routeConfig registers the routes of one resource on the shared router.
type routeConfig struct {
	name      string
	configure func(router *httprouter.Router) *httprouter.Router
}

// routes builds the router, registers every resource and wraps the result in the global
// middleware chain.
func (app *application) routes() http.Handler {
	router := httprouter.New()

	router.NotFound = http.HandlerFunc(app.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(app.methodNotAllowedResponse)

	router.HandlerFunc(http.MethodGet, "/", app.runningHandler)
	router.HandlerFunc(http.MethodGet, "/healthcheck", app.healthcheckHandler)
	router.Handler(http.MethodGet, "/api-docs/*any", httpSwagger.WrapHandler)
	router.Handler(http.MethodGet, "/metrics", app.metrics.handler())
	router.Handler(http.MethodGet, "/debug/vars", expvar.Handler())

	configs := []routeConfig{
		{name: "UsersRoutes", configure: app.usersRoutes},
		{name: "AuthRoutes", configure: app.authRoutes},
		{name: "MoviesRoutes", configure: app.moviesRoutes},
		{name: "VideosRoutes", configure: app.videosRoutes},
		{name: "FavoritesRoutes", configure: app.favoritesRoutes},
	}
	for _, rc := range configs {
		router = rc.configure(router)
		app.logger.PrintDebug("routes configured", map[string]string{"name": rc.name})
	}

	return app.globalChain().Then(router)
}

// globalChain is applied to every request before route dispatch. Metrics and the
// request log wrap recoverPanic so that recovered panics are counted and logged.
func (app *application) globalChain() alice.Chain {
	return alice.New(
		app.recordMetrics,
		app.logRequest,
		app.recoverPanic,
		app.secureHeaders,
		app.enableCORS,
		app.rateLimit,
	)
}

func movieRules(optional bool) []*validator.FieldRule {
	rules := []*validator.FieldRule{
		validator.Body("name").IsString().MinLength(1).WithMessage("Must include a name (non-empty string)"),
		validator.Body("description").IsString(),
	}
	if optional {
		for _, rule := range rules {
			rule.Optional()
		}
	}
	return rules
}

func (app *application) moviesRoutes(router *httprouter.Router) *httprouter.Router {
	editor := app.requirePermission(data.PermissionEditor)

	router.Handler(http.MethodGet, "/movies", alice.New(
		app.extractMovieSearchQuery,
	).ThenFunc(app.listMoviesHandler))

	router.Handler(http.MethodPost, "/movies", alice.New(
		app.checkBody(movieRules(false)...),
		app.requireJWT,
		editor,
		app.verifyBodyFieldsErrors,
		app.validateNameAndDescriptionAvailability,
	).ThenFunc(app.createMovieHandler))

	// Every /movies/:movieId method resolves the movie first, so a missing movie is a
	// 404 before any credential or body check.
	movie := alice.New(app.extractMovieID, app.validateMovieExists)

	router.Handler(http.MethodGet, "/movies/:movieId", movie.ThenFunc(app.showMovieHandler))

	router.Handler(http.MethodDelete, "/movies/:movieId", movie.Append(
		app.requireJWT,
		editor,
	).ThenFunc(app.deleteMovieHandler))

	router.Handler(http.MethodPut, "/movies/:movieId", movie.Append(
		app.checkBody(movieRules(false)...),
		app.requireJWT,
		editor,
		app.verifyBodyFieldsErrors,
		app.validateNameAndDescriptionAvailability,
	).ThenFunc(app.putMovieHandler))

	router.Handler(http.MethodPatch, "/movies/:movieId", movie.Append(
		app.checkBody(movieRules(true)...),
		app.requireJWT,
		app.verifyBodyFieldsErrors,
		editor,
		app.validateNameAndDescriptionAvailability,
	).ThenFunc(app.patchMovieHandler))

	return router
}

func (app *application) videosRoutes(router *httprouter.Router) *httprouter.Router {
	editor := app.requirePermission(data.PermissionEditor)

	router.HandlerFunc(http.MethodGet, "/videos", app.listVideosHandler)

	router.Handler(http.MethodPost, "/videos", alice.New(
		app.checkBody(
			validator.Body("movie_id").IsInt(),
			validator.Body("title").IsString().MinLength(1),
			validator.Body("url").IsString().Optional(),
		),
		app.requireJWT,
		editor,
		app.verifyBodyFieldsErrors,
	).ThenFunc(app.createVideoHandler))

	router.Handler(http.MethodGet, "/videos/:videoId", alice.New(
		app.extractVideoID,
		app.validateVideoExists,
	).ThenFunc(app.showVideoHandler))

	router.Handler(http.MethodDelete, "/videos/:videoId", alice.New(
		app.requireJWT,
		editor,
		app.extractVideoID,
		app.validateVideoExists,
	).ThenFunc(app.deleteVideoHandler))

	return router
}

func (app *application) favoritesRoutes(router *httprouter.Router) *httprouter.Router {
	router.Handler(http.MethodGet, "/favorites", alice.New(
		app.requireJWT,
	).ThenFunc(app.listFavoritesHandler))

	router.Handler(http.MethodPost, "/favorites/:videoId", alice.New(
		app.requireJWT,
		app.extractVideoID,
		app.validateVideoExists,
		app.validateVideoIsNotFavorited,
	).ThenFunc(app.addToFavoritesHandler))

	router.Handler(http.MethodDelete, "/favorites/:videoId", alice.New(
		app.requireJWT,
		app.extractVideoID,
		app.validateVideoExists,
		app.validateVideoIsFavorited,
	).ThenFunc(app.deleteFromFavoritesHandler))

	return router
}

// userRules returns the rules for a user body. Names are always optional; with optional
// set, every field is.
func userRules(optional bool, withPermission bool) []*validator.FieldRule {
	rules := []*validator.FieldRule{
		validator.Body("email").IsEmail(),
		validator.Body("password").IsString().MinLength(8).MaxLength(72),
		validator.Body("first_name").IsString().Optional(),
		validator.Body("last_name").IsString().Optional(),
	}
	if withPermission {
		rules = append(rules, validator.Body("permission_flag").
			Custom("must be one of free, paid, editor or admin", data.PermissionFlagValue))
	}
	if optional {
		for _, rule := range rules {
			rule.Optional()
		}
	}
	return rules
}

func (app *application) usersRoutes(router *httprouter.Router) *httprouter.Router {
	router.Handler(http.MethodGet, "/users", alice.New(
		app.requireJWT,
		app.requirePermission(data.PermissionAdmin),
	).ThenFunc(app.listUsersHandler))

	router.Handler(http.MethodPost, "/users", alice.New(
		app.checkBody(userRules(false, false)...),
		app.verifyBodyFieldsErrors,
		app.validateSameEmailDoesntExist,
	).ThenFunc(app.createUserHandler))

	// Every /users/:userId route starts the same way.
	user := alice.New(
		app.requireJWT,
		app.extractUserID,
		app.onlySameUserOrAdmin,
		app.validateUserExists,
	)

	router.Handler(http.MethodGet, "/users/:userId", user.ThenFunc(app.showUserHandler))
	router.Handler(http.MethodDelete, "/users/:userId", user.ThenFunc(app.deleteUserHandler))

	router.Handler(http.MethodPut, "/users/:userId", user.Append(
		app.checkBody(userRules(false, true)...),
		app.verifyBodyFieldsErrors,
		app.validateSameEmailBelongsToSameUser,
		app.userCantChangePermission,
	).ThenFunc(app.putUserHandler))

	router.Handler(http.MethodPatch, "/users/:userId", user.Append(
		app.checkBody(userRules(true, true)...),
		app.verifyBodyFieldsErrors,
		app.validatePatchEmail,
		app.userCantChangePermission,
	).ThenFunc(app.patchUserHandler))

	router.Handler(http.MethodPut, "/users/:userId/permission-flag/:permissionFlag", alice.New(
		app.requireJWT,
		app.requirePermission(data.PermissionAdmin),
		app.extractUserID,
		app.validateUserExists,
	).ThenFunc(app.updatePermissionFlagHandler))

	return router
}

func (app *application) authRoutes(router *httprouter.Router) *httprouter.Router {
	router.Handler(http.MethodPost, "/auth", alice.New(
		app.checkBody(
			validator.Body("email").IsEmail(),
			validator.Body("password").IsString().MinLength(1),
		),
		app.verifyBodyFieldsErrors,
		app.verifyUserPassword,
	).ThenFunc(app.createJWTHandler))

	router.Handler(http.MethodPost, "/auth/refresh-token", alice.New(
		app.checkBody(validator.Body("refresh_token").IsString().MinLength(1)),
		app.requireJWT,
		app.verifyBodyFieldsErrors,
		app.validRefreshNeeded,
	).ThenFunc(app.createJWTHandler))

	return router
}
