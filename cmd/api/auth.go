package main

import (
	"errors"
	"fmt"
	"github.com/pascaldekloe/jwt"
	"moviefavs.interimme.net/internal/data"
	"net/http"
	"strconv"
	"time"
)

// Private claims carried by access tokens next to the registered ones.
const (
	emailClaim          = "email"
	permissionFlagClaim = "permission_flag"
)

var errInvalidAccessToken = errors.New("invalid access token")

// issueAccessToken signs an HS256 access token for user. The configured issuer is also
// the only audience.
func (app *application) issueAccessToken(user *data.User) ([]byte, time.Time, error) {
	now := time.Now()
	expires := now.Add(app.config.jwt.ttl)

	var claims jwt.Claims
	claims.Subject = strconv.FormatInt(user.ID, 10)
	claims.Issued = jwt.NewNumericTime(now)
	claims.NotBefore = jwt.NewNumericTime(now)
	claims.Expires = jwt.NewNumericTime(expires)
	claims.Issuer = app.config.jwt.issuer
	claims.Audiences = []string{app.config.jwt.issuer}
	claims.Set = map[string]interface{}{
		emailClaim:          user.Email,
		permissionFlagClaim: user.PermissionFlag.String(),
	}

	token, err := claims.HMACSign(jwt.HS256, []byte(app.config.jwt.secret))
	if err != nil {
		return nil, time.Time{}, err
	}
	return token, expires, nil
}

// parseAccessToken verifies the signature, time window, issuer and audience of token
// and returns the identity it asserts.
func (app *application) parseAccessToken(token string) (*identity, error) {
	claims, err := jwt.HMACCheck([]byte(token), []byte(app.config.jwt.secret))
	if err != nil {
		return nil, err
	}

	if !claims.Valid(time.Now()) {
		return nil, fmt.Errorf("%w: outside its validity window", errInvalidAccessToken)
	}
	if claims.Issuer != app.config.jwt.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", errInvalidAccessToken, claims.Issuer)
	}
	if !claims.AcceptAudience(app.config.jwt.issuer) {
		return nil, fmt.Errorf("%w: audience not accepted", errInvalidAccessToken)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", errInvalidAccessToken)
	}

	email, _ := claims.String(emailClaim)

	flagName, ok := claims.String(permissionFlagClaim)
	if !ok {
		return nil, fmt.Errorf("%w: missing permission flag", errInvalidAccessToken)
	}
	flag, err := data.ParsePermissionFlag(flagName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidAccessToken, err)
	}

	return &identity{UserID: userID, Email: email, PermissionFlag: flag}, nil
}

// verifyUserPassword loads the user by email and checks the password. Both an unknown
// email and a wrong password answer 401 with the same message.
func (app *application) verifyUserPassword(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := app.contextGetBody(r)
		email, _ := body.stringField("email")
		password, _ := body.stringField("password")

		user, err := app.models.Users.GetByEmail(email)
		if err != nil {
			switch {
			case errors.Is(err, data.ErrRecordNotFound):
				app.invalidCredentialsResponse(w, r)
			default:
				app.serverErrorResponse(w, r, err)
			}
			return
		}

		match, err := user.Password.Matches(password)
		if err != nil {
			app.serverErrorResponse(w, r, err)
			return
		}
		if !match {
			app.invalidCredentialsResponse(w, r)
			return
		}

		r = contextSet(r, userContextKey, user)
		next.ServeHTTP(w, r)
	})
}

// validRefreshNeeded accepts the refresh token only if it is live and belongs to the
// caller identified by the access token.
func (app *application) validRefreshNeeded(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := app.contextGetIdentity(r)
		body, _ := app.contextGetBody(r)
		plaintext, _ := body.stringField("refresh_token")

		user, err := app.models.Users.GetForToken(data.ScopeRefresh, plaintext)
		if err != nil {
			switch {
			case errors.Is(err, data.ErrRecordNotFound):
				app.invalidRefreshTokenResponse(w, r)
			default:
				app.serverErrorResponse(w, r, err)
			}
			return
		}

		if user.ID != id.UserID {
			app.invalidRefreshTokenResponse(w, r)
			return
		}

		r = contextSet(r, userContextKey, user)
		next.ServeHTTP(w, r)
	})
}

// createJWTHandler issues an access token and a fresh refresh token for the user
// resolved by the previous step. Earlier refresh tokens of the user stop working.
//
//	@Summary	Issue access and refresh tokens
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Success	201	{object}	main.envelope
//	@Failure	400	{object}	main.envelope
//	@Failure	401	{object}	main.envelope
//	@Router		/auth [post]
func (app *application) createJWTHandler(w http.ResponseWriter, r *http.Request) {
	user := app.contextGetUser(r)

	accessToken, expires, err := app.issueAccessToken(user)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.models.Tokens.DeleteAllForUser(data.ScopeRefresh, user.ID)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	refresh, err := app.models.Tokens.New(user.ID, app.config.refreshTTL, data.ScopeRefresh)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	env := envelope{
		"access_token":  string(accessToken),
		"refresh_token": refresh.Plaintext,
		"expiry":        expires,
	}
	err = app.writeJSON(w, http.StatusCreated, env, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
