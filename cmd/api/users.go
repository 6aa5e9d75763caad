package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/julienschmidt/httprouter"
	"moviefavs.interimme.net/internal/data"
	"moviefavs.interimme.net/internal/validator"
	"net/http"
)

// extractUserID parses :userId; a malformed id is a 404.
func (app *application) extractUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := app.readIDParam(r, "userId")
		if err != nil {
			app.notFoundResponse(w, r)
			return
		}

		r = contextSet(r, userIDContextKey, id)
		next.ServeHTTP(w, r)
	})
}

// onlySameUserOrAdmin lets a user reach their own account and admins reach any account.
func (app *application) onlySameUserOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := app.contextGetIdentity(r)
		if id.UserID != app.contextGetID(r, userIDContextKey) && !id.PermissionFlag.Includes(data.PermissionAdmin) {
			app.notPermittedResponse(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (app *application) validateUserExists(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := app.models.Users.Get(app.contextGetID(r, userIDContextKey))
		if err != nil {
			switch {
			case errors.Is(err, data.ErrRecordNotFound):
				app.notFoundResponse(w, r)
			default:
				app.serverErrorResponse(w, r, err)
			}
			return
		}

		r = contextSet(r, userContextKey, user)
		next.ServeHTTP(w, r)
	})
}

var errEmailTaken = map[string]string{"email": "a user with this email address already exists"}

// validateSameEmailDoesntExist rejects registration with an email already in use.
func (app *application) validateSameEmailDoesntExist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := app.contextGetBody(r)
		email, _ := body.stringField("email")

		_, err := app.models.Users.GetByEmail(email)
		switch {
		case err == nil:
			app.failedBodyValidationResponse(w, r, errEmailTaken)
			return
		case !errors.Is(err, data.ErrRecordNotFound):
			app.serverErrorResponse(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// validateSameEmailBelongsToSameUser allows an email in the body only if it is free or
// already the target user's.
func (app *application) validateSameEmailBelongsToSameUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := app.contextGetBody(r)
		email, _ := body.stringField("email")

		existing, err := app.models.Users.GetByEmail(email)
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
		case err != nil:
			app.serverErrorResponse(w, r, err)
			return
		case existing.ID != app.contextGetUser(r).ID:
			app.failedBodyValidationResponse(w, r, errEmailTaken)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// validatePatchEmail applies validateSameEmailBelongsToSameUser only when the body
// changes the email.
func (app *application) validatePatchEmail(next http.Handler) http.Handler {
	checked := app.validateSameEmailBelongsToSameUser(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := app.contextGetBody(r)
		if _, ok := body.fields["email"]; ok {
			checked.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userCantChangePermission keeps non-admins from changing a permission flag through the
// user update routes. Sending the current value is allowed.
func (app *application) userCantChangePermission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := app.contextGetBody(r)
		value, ok := body.fields["permission_flag"]
		if ok && !app.contextGetIdentity(r).PermissionFlag.Includes(data.PermissionAdmin) {
			flag, err := permissionFlagFromBody(value)
			if err != nil || flag != app.contextGetUser(r).PermissionFlag {
				app.failedBodyValidationResponse(w, r, map[string]string{
					"permission_flag": "user cannot change permission flag",
				})
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func permissionFlagFromBody(value any) (data.PermissionFlag, error) {
	js, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}
	var flag data.PermissionFlag
	err = flag.UnmarshalJSON(js)
	return flag, err
}

// listUsersHandler returns one page of users.
//
//	@Summary	List users
//	@Tags		users
//	@Security	BearerAuth
//	@Produce	json
//	@Param		page		query		int		false	"Page number"
//	@Param		page_size	query		int		false	"Page size (max 100)"
//	@Param		sort		query		string	false	"id, email, -id or -email"
//	@Success	200			{object}	main.envelope
//	@Failure	403			{object}	main.envelope
//	@Failure	422			{object}	main.envelope
//	@Router		/users [get]
func (app *application) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	v := validator.New()
	qs := r.URL.Query()

	var filters data.Filters
	filters.Page = app.readInt(qs, "page", 1, v)
	filters.PageSize = app.readInt(qs, "page_size", 20, v)
	filters.Sort = app.readString(qs, "sort", "id")
	filters.SortSafelist = []string{"id", "email", "-id", "-email"}

	if data.ValidateFilters(v, filters); !v.Valid() {
		app.failedValidationResponse(w, r, v.Errors)
		return
	}

	users, metadata, err := app.models.Users.GetAll(filters)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"users": users, "metadata": metadata}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// createUserHandler registers a free account and sends the welcome email in the
// background.
//
//	@Summary	Register a user
//	@Tags		users
//	@Accept		json
//	@Produce	json
//	@Success	201	{object}	main.envelope
//	@Failure	400	{object}	main.envelope
//	@Router		/users [post]
func (app *application) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	user := &data.User{
		Email:          input.Email,
		FirstName:      input.FirstName,
		LastName:       input.LastName,
		PermissionFlag: data.PermissionFree,
	}

	err = user.Password.Set(input.Password)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.models.Users.Insert(user)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrDuplicateEmail):
			app.failedBodyValidationResponse(w, r, errEmailTaken)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	app.background(func() {
		data := map[string]any{
			"userID":    user.ID,
			"firstName": user.FirstName,
		}

		err := app.mailer.Send(user.Email, "user_welcome.tmpl", data)
		if err != nil {
			app.logger.PrintError(err, map[string]string{"user_email": user.Email})
		}
	})

	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/users/%d", user.ID))

	err = app.writeJSON(w, http.StatusCreated, envelope{"user": user}, headers)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

//	@Summary	Show a user
//	@Tags		users
//	@Security	BearerAuth
//	@Produce	json
//	@Param		userId	path		int	true	"User ID"
//	@Success	200		{object}	main.envelope
//	@Failure	403		{object}	main.envelope
//	@Failure	404		{object}	main.envelope
//	@Router		/users/{userId} [get]
func (app *application) showUserHandler(w http.ResponseWriter, r *http.Request) {
	err := app.writeJSON(w, http.StatusOK, envelope{"user": app.contextGetUser(r)}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

//	@Summary	Delete a user
//	@Tags		users
//	@Security	BearerAuth
//	@Produce	json
//	@Param		userId	path		int	true	"User ID"
//	@Success	200		{object}	main.envelope
//	@Failure	403		{object}	main.envelope
//	@Failure	404		{object}	main.envelope
//	@Router		/users/{userId} [delete]
func (app *application) deleteUserHandler(w http.ResponseWriter, r *http.Request) {
	err := app.models.Users.Delete(app.contextGetUser(r).ID)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			app.notFoundResponse(w, r)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"message": "user successfully deleted"}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// putUserHandler replaces every field of the account, password included.
//
//	@Summary	Replace a user
//	@Tags		users
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		userId	path		int	true	"User ID"
//	@Success	200		{object}	main.envelope
//	@Failure	400		{object}	main.envelope
//	@Failure	403		{object}	main.envelope
//	@Failure	404		{object}	main.envelope
//	@Failure	409		{object}	main.envelope
//	@Router		/users/{userId} [put]
func (app *application) putUserHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email          string              `json:"email"`
		Password       string              `json:"password"`
		FirstName      string              `json:"first_name"`
		LastName       string              `json:"last_name"`
		PermissionFlag data.PermissionFlag `json:"permission_flag"`
	}

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	user := app.contextGetUser(r)
	user.Email = input.Email
	user.FirstName = input.FirstName
	user.LastName = input.LastName
	user.PermissionFlag = input.PermissionFlag

	err = user.Password.Set(input.Password)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	app.updateUser(w, r, user)
}

// patchUserHandler changes only the fields present in the body.
//
//	@Summary	Update a user partially
//	@Tags		users
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		userId	path		int	true	"User ID"
//	@Success	200		{object}	main.envelope
//	@Failure	400		{object}	main.envelope
//	@Failure	403		{object}	main.envelope
//	@Failure	404		{object}	main.envelope
//	@Failure	409		{object}	main.envelope
//	@Router		/users/{userId} [patch]
func (app *application) patchUserHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email          *string              `json:"email"`
		Password       *string              `json:"password"`
		FirstName      *string              `json:"first_name"`
		LastName       *string              `json:"last_name"`
		PermissionFlag *data.PermissionFlag `json:"permission_flag"`
	}

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	user := app.contextGetUser(r)
	if input.Email != nil {
		user.Email = *input.Email
	}
	if input.FirstName != nil {
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		user.LastName = *input.LastName
	}
	if input.PermissionFlag != nil {
		user.PermissionFlag = *input.PermissionFlag
	}
	if input.Password != nil {
		err = user.Password.Set(*input.Password)
		if err != nil {
			app.serverErrorResponse(w, r, err)
			return
		}
	}

	app.updateUser(w, r, user)
}

// updatePermissionFlagHandler sets the permission flag named (or numbered) in the path.
//
//	@Summary	Set a user's permission flag
//	@Tags		users
//	@Security	BearerAuth
//	@Produce	json
//	@Param		userId			path		int		true	"User ID"
//	@Param		permissionFlag	path		string	true	"free, paid, editor, admin or 1-4"
//	@Success	200				{object}	main.envelope
//	@Failure	400				{object}	main.envelope
//	@Failure	403				{object}	main.envelope
//	@Failure	404				{object}	main.envelope
//	@Router		/users/{userId}/permission-flag/{permissionFlag} [put]
func (app *application) updatePermissionFlagHandler(w http.ResponseWriter, r *http.Request) {
	params := httprouter.ParamsFromContext(r.Context())

	flag, err := data.ParsePermissionFlag(params.ByName("permissionFlag"))
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	user := app.contextGetUser(r)
	user.PermissionFlag = flag

	app.updateUser(w, r, user)
}

func (app *application) updateUser(w http.ResponseWriter, r *http.Request, user *data.User) {
	err := app.models.Users.Update(user)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrDuplicateEmail):
			app.failedBodyValidationResponse(w, r, errEmailTaken)
		case errors.Is(err, data.ErrEditConflict):
			app.editConflictResponse(w, r)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	err = app.writeJSON(w, http.StatusOK, envelope{"user": user}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
