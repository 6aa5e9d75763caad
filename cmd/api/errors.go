package main

import (
	"fmt"
	"net/http"
)

// logError logs err with the method and URL of the request that caused it.
func (app *application) logError(r *http.Request, err error) {
	app.logger.PrintError(err, map[string]string{
		"request_method": r.Method,
		"request_url":    r.URL.String(),
	})
}

// errorResponse writes {"error": message} with the given status. message is a string
// for single-problem errors and a field map for validation failures.
func (app *application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message any) {
	env := envelope{"error": message}

	err := app.writeJSON(w, status, env, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(http.StatusInternalServerError) // The body could not be encoded; send the status alone.
	}
}

// serverErrorResponse logs err and sends a generic 500 Internal Server Error.
func (app *application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)
	message := "the server encountered a problem and could not process your request"
	app.errorResponse(w, r, http.StatusInternalServerError, message)
}

// notFoundResponse sends a 404 Not Found for a missing route or entity.
func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	message := "the requested resource could not be found"
	app.errorResponse(w, r, http.StatusNotFound, message)
}

// methodNotAllowedResponse sends a 405 when the route exists but not for r.Method.
func (app *application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	message := fmt.Sprintf("the %s method is not supported for this resource", r.Method)
	app.errorResponse(w, r, http.StatusMethodNotAllowed, message)
}

// badRequestResponse sends a 400 Bad Request carrying the message of err.
func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

// failedBodyValidationResponse reports every failed body field rule at once.
func (app *application) failedBodyValidationResponse(w http.ResponseWriter, r *http.Request, errors map[string]string) {
	app.errorResponse(w, r, http.StatusBadRequest, errors)
}

// failedValidationResponse is used for invalid query parameters of list endpoints.
func (app *application) failedValidationResponse(w http.ResponseWriter, r *http.Request, errors map[string]string) {
	app.errorResponse(w, r, http.StatusUnprocessableEntity, errors)
}

// editConflictResponse sends a 409 when the record changed since it was read.
func (app *application) editConflictResponse(w http.ResponseWriter, r *http.Request) {
	message := "unable to update the record due to an edit conflict, please try again"
	app.errorResponse(w, r, http.StatusConflict, message)
}

// favoriteConflictResponse sends a 409 when a concurrent request favorited the same video first.
func (app *application) favoriteConflictResponse(w http.ResponseWriter, r *http.Request) {
	message := "the video was favorited by a concurrent request"
	app.errorResponse(w, r, http.StatusConflict, message)
}

// rateLimitExceededResponse sends a 429 Too Many Requests.
func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request) {
	message := "rate limit exceeded"
	app.errorResponse(w, r, http.StatusTooManyRequests, message)
}

// invalidCredentialsResponse sends a 401 for an unknown email or a wrong password.
func (app *application) invalidCredentialsResponse(w http.ResponseWriter, r *http.Request) {
	message := "invalid authentication credentials"
	app.errorResponse(w, r, http.StatusUnauthorized, message)
}

// invalidAuthenticationTokenResponse sends a 401 with a WWW-Authenticate challenge for a
// missing, malformed, expired or forged access token.
func (app *application) invalidAuthenticationTokenResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	message := "invalid or missing authentication token"
	app.errorResponse(w, r, http.StatusUnauthorized, message)
}

// invalidRefreshTokenResponse sends a 401 for a refresh token that is unknown, expired or
// issued to another user.
func (app *application) invalidRefreshTokenResponse(w http.ResponseWriter, r *http.Request) {
	message := "invalid or expired refresh token"
	app.errorResponse(w, r, http.StatusUnauthorized, message)
}

// notPermittedResponse sends a 403 when the caller's permission flag is too low.
func (app *application) notPermittedResponse(w http.ResponseWriter, r *http.Request) {
	message := "your user account doesn't have the necessary permissions to access this resource"
	app.errorResponse(w, r, http.StatusForbidden, message)
}
