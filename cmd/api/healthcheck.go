package main

import (
	"fmt"
	"net/http"
)

func (app *application) runningMessage() string {
	return fmt.Sprintf("Server running at http://localhost:%d", app.config.port)
}

// runningHandler answers GET / with a plain-text liveness line.
func (app *application) runningHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, app.runningMessage())
}

//	@Summary	Service status
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	main.envelope
//	@Router		/healthcheck [get]
func (app *application) healthcheckHandler(w http.ResponseWriter, r *http.Request) {
	env := envelope{
		"status": "available",
		"system_info": map[string]string{
			"environment": app.config.env,
			"version":     version,
		},
	}

	err := app.writeJSON(w, http.StatusOK, env, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
