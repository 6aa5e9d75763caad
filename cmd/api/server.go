package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// serve runs the HTTP server until SIGINT or SIGTERM, then shuts it down gracefully and
// waits for background tasks such as welcome emails.
func (app *application) serve() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.config.port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     log.New(app.logger, "", 0),
	}

	shutdownError := make(chan error, 1)
	go app.shutdownOnSignal(srv, shutdownError)

	app.logger.PrintInfo("starting server", map[string]string{
		"addr": srv.Addr,
		"env":  app.config.env,
		"url":  app.runningMessage(),
	})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-shutdownError; err != nil {
		return err
	}

	app.logger.PrintInfo("stopped server", map[string]string{"addr": srv.Addr})
	return nil
}

// shutdownOnSignal blocks until the process is asked to stop, drains srv within the
// configured timeout and reports the outcome on done.
func (app *application) shutdownOnSignal(srv *http.Server, done chan<- error) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	s := <-quit

	app.logger.PrintInfo("caught signal", map[string]string{"signal": s.String()})

	ctx, cancel := context.WithTimeout(context.Background(), app.config.shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		done <- err
		return
	}

	app.logger.PrintInfo("completing background tasks", map[string]string{"addr": srv.Addr})
	app.wg.Wait()
	done <- nil
}
