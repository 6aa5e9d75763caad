package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/felixge/httpsnoop"
	"github.com/tomasen/realip"
	"golang.org/x/time/rate"
	"io"
	"moviefavs.interimme.net/internal/data"
	"moviefavs.interimme.net/internal/validator"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// recoverPanic turns a panic in any later handler into a 500 response and closes the
// connection.
func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				app.serverErrorResponse(w, r, fmt.Errorf("%s", err))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimit applies a token bucket per client IP. Clients idle for three minutes are
// forgotten.
func (app *application) rateLimit(next http.Handler) http.Handler {
	if !app.config.limiter.enabled {
		return next
	}

	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)

	go func() {
		for {
			time.Sleep(time.Minute)

			mu.Lock()
			for ip, client := range clients {
				if time.Since(client.lastSeen) > 3*time.Minute {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := realip.FromRequest(r)

		mu.Lock()
		if _, found := clients[ip]; !found {
			clients[ip] = &client{
				limiter: rate.NewLimiter(rate.Limit(app.config.limiter.rps), app.config.limiter.burst),
			}
		}
		clients[ip].lastSeen = time.Now()

		if !clients[ip].limiter.Allow() {
			mu.Unlock()
			app.rateLimitExceededResponse(w, r)
			return
		}
		mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// enableCORS answers cross-origin requests from the trusted origins; the "*" entry
// trusts every origin. Preflight requests are answered here and never reach the router.
func (app *application) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Origin")
		w.Header().Add("Vary", "Access-Control-Request-Method")

		origin := r.Header.Get("Origin")
		if origin != "" {
			allowed := ""
			for _, trusted := range app.config.cors.trustedOrigins {
				if trusted == "*" || trusted == origin {
					allowed = trusted
					break
				}
			}

			if allowed != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowed)

				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, PUT, PATCH, POST, DELETE")
					w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
		}

		next.ServeHTTP(w, r)
	})
}

// secureHeaders sets the usual hardening headers on every response. The API docs page
// runs inline scripts, so it is exempt from the content security policy.
func (app *application) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if !strings.HasPrefix(r.URL.Path, "/api-docs") {
			h.Set("Content-Security-Policy", "default-src 'self';base-uri 'self';font-src 'self' https: data:;form-action 'self';frame-ancestors 'self';img-src 'self' data:;object-src 'none';script-src 'self';script-src-attr 'none';style-src 'self' https: 'unsafe-inline';upgrade-insecure-requests")
		}
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		h.Set("Origin-Agent-Cluster", "?1")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-DNS-Prefetch-Control", "off")
		h.Set("X-Download-Options", "noopen")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("X-Permitted-Cross-Domain-Policies", "none")
		h.Set("X-XSS-Protection", "0")

		next.ServeHTTP(w, r)
	})
}

// logRequest writes one entry per request. Outside debug mode the entry is terse; with
// debugging on it also carries client details.
func (app *application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics := httpsnoop.CaptureMetrics(next, w, r)

		properties := map[string]string{
			"method":   r.Method,
			"url":      r.URL.RequestURI(),
			"status":   strconv.Itoa(metrics.Code),
			"duration": metrics.Duration.String(),
		}

		if !app.config.debug {
			app.logger.PrintInfo("request", properties)
			return
		}

		properties["remote_addr"] = realip.FromRequest(r)
		properties["user_agent"] = r.UserAgent()
		properties["proto"] = r.Proto
		properties["bytes_written"] = strconv.FormatInt(metrics.Written, 10)
		app.logger.PrintDebug("request", properties)
	})
}

// recordMetrics records Prometheus request counts, latencies and in-flight requests.
func (app *application) recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.metrics.requestsInFlight.Inc()
		defer app.metrics.requestsInFlight.Dec()

		m := httpsnoop.CaptureMetrics(next, w, r)

		app.metrics.responsesTotal.WithLabelValues(r.Method, strconv.Itoa(m.Code)).Inc()
		app.metrics.requestDuration.WithLabelValues(r.Method).Observe(m.Duration.Seconds())
	})
}

// requireJWT authenticates the request from its bearer access token and stores the
// caller's identity in the request context.
func (app *application) requireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Authorization")

		headerParts := strings.Split(r.Header.Get("Authorization"), " ")
		if len(headerParts) != 2 || headerParts[0] != "Bearer" || headerParts[1] == "" {
			app.invalidAuthenticationTokenResponse(w, r)
			return
		}

		id, err := app.parseAccessToken(headerParts[1])
		if err != nil {
			app.invalidAuthenticationTokenResponse(w, r)
			return
		}

		r = app.contextSetIdentity(r, id)
		next.ServeHTTP(w, r)
	})
}

// requirePermission rejects callers below the required level. It reads the identity, so
// it must follow requireJWT in a chain.
func (app *application) requirePermission(required data.PermissionFlag) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := app.contextGetIdentity(r)
			if !id.PermissionFlag.Includes(required) {
				app.notPermittedResponse(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkBody decodes the JSON body and applies the field rules, recording failures
// without stopping the chain; verifyBodyFieldsErrors reports them later. The body is
// restored so the controller can decode it again into its input struct.
func (app *application) checkBody(rules ...*validator.FieldRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := validator.New()
			fields := map[string]any{}

			raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			var maxBytesError *http.MaxBytesError
			switch {
			case errors.As(err, &maxBytesError):
				v.AddError("body", fmt.Sprintf("body must not be larger than %d bytes", maxBytesError.Limit))
			case err != nil:
				v.AddError("body", err.Error())
			case len(bytes.TrimSpace(raw)) > 0:
				if err := json.Unmarshal(raw, &fields); err != nil {
					v.AddError("body", "body must be a JSON object")
				}
			}

			for _, rule := range rules {
				rule.Apply(v, fields)
			}

			r.Body = io.NopCloser(bytes.NewReader(raw))
			r = contextSet(r, bodyContextKey, &requestBody{fields: fields, validator: v})
			next.ServeHTTP(w, r)
		})
	}
}

// verifyBodyFieldsErrors stops the chain with a 400 listing every field error recorded
// by checkBody.
func (app *application) verifyBodyFieldsErrors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if body, ok := app.contextGetBody(r); ok && !body.validator.Valid() {
			app.failedBodyValidationResponse(w, r, body.validator.Errors)
			return
		}
		next.ServeHTTP(w, r)
	})
}
