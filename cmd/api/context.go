package main

import (
	"context"
	"moviefavs.interimme.net/internal/data"
	"moviefavs.interimme.net/internal/validator"
	"net/http"
)

type contextKey string

// Keys of the values middleware attach to a request. Each value is written once by the
// step that produces it and only read afterwards.
const (
	identityContextKey = contextKey("identity")
	bodyContextKey     = contextKey("body")
	movieIDContextKey  = contextKey("movieID")
	movieContextKey    = contextKey("movie")
	movieQueryKey      = contextKey("movieQuery")
	videoIDContextKey  = contextKey("videoID")
	videoContextKey    = contextKey("video")
	userIDContextKey   = contextKey("userID")
	userContextKey     = contextKey("user")
)

// identity is the authenticated caller, decoded from a verified access token.
type identity struct {
	UserID         int64
	Email          string
	PermissionFlag data.PermissionFlag
}

// requestBody is the decoded JSON body and the outcome of its field rules.
type requestBody struct {
	fields    map[string]any
	validator *validator.Validator
}

// stringField returns a body field that the field rules already required to be a string.
func (b *requestBody) stringField(key string) (string, bool) {
	s, ok := b.fields[key].(string)
	return s, ok
}

func contextSet(r *http.Request, key contextKey, value any) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), key, value))
}

// The getters below panic when the value is missing: that means a chain was declared
// with a step ahead of the one that provides its input.

func (app *application) contextSetIdentity(r *http.Request, id *identity) *http.Request {
	return contextSet(r, identityContextKey, id)
}

func (app *application) contextGetIdentity(r *http.Request) *identity {
	id, ok := r.Context().Value(identityContextKey).(*identity)
	if !ok {
		panic("missing identity value in request context")
	}
	return id
}

func (app *application) contextGetBody(r *http.Request) (*requestBody, bool) {
	body, ok := r.Context().Value(bodyContextKey).(*requestBody)
	return body, ok
}

func (app *application) contextGetID(r *http.Request, key contextKey) int64 {
	id, ok := r.Context().Value(key).(int64)
	if !ok {
		panic("missing " + string(key) + " value in request context")
	}
	return id
}

func (app *application) contextGetMovie(r *http.Request) *data.Movie {
	movie, ok := app.contextLookupMovie(r)
	if !ok {
		panic("missing movie value in request context")
	}
	return movie
}

// contextLookupMovie is the non-panicking variant for steps shared by routes with and
// without a movie id.
func (app *application) contextLookupMovie(r *http.Request) (*data.Movie, bool) {
	movie, ok := r.Context().Value(movieContextKey).(*data.Movie)
	return movie, ok
}

func (app *application) contextGetVideo(r *http.Request) *data.Video {
	video, ok := r.Context().Value(videoContextKey).(*data.Video)
	if !ok {
		panic("missing video value in request context")
	}
	return video
}

func (app *application) contextGetUser(r *http.Request) *data.User {
	user, ok := r.Context().Value(userContextKey).(*data.User)
	if !ok {
		panic("missing user value in request context")
	}
	return user
}
