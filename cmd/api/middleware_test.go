package main

import (
	"bytes"
	"encoding/json"
	"github.com/pascaldekloe/jwt"
	"io"
	"moviefavs.interimme.net/internal/data"
	"moviefavs.interimme.net/internal/jsonlog"
	"moviefavs.interimme.net/internal/validator"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// okHandler records whether the chain reached it.
type okHandler struct {
	called bool
	r      *http.Request
}

func (h *okHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.r = r
	w.Write([]byte("OK"))
}

func TestRecoverPanic(t *testing.T) {
	app, _, _ := newTestApplication(t)

	h := app.recoverPanic(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("want status %d; got %d", http.StatusInternalServerError, rr.Code)
	}
	if got := rr.Header().Get("Connection"); got != "close" {
		t.Errorf("want Connection close; got %q", got)
	}
}

func TestSecureHeaders(t *testing.T) {
	app, _, _ := newTestApplication(t)
	next := &okHandler{}
	h := app.secureHeaders(next)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/movies", nil))

	want := map[string]string{
		"Referrer-Policy":        "no-referrer",
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "SAMEORIGIN",
		"X-XSS-Protection":       "0",
	}
	for key, value := range want {
		if got := rr.Header().Get(key); got != value {
			t.Errorf("%s: want %q; got %q", key, value, got)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy")
	}
	if !next.called {
		t.Error("next handler not called")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api-docs/index.html", nil))
	if got := rr.Header().Get("Content-Security-Policy"); got != "" {
		t.Errorf("docs page should have no CSP; got %q", got)
	}
}

func TestEnableCORS(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		method     string
		origin     string
		preflight  bool
		wantOrigin string
		wantStatus int
		wantNext   bool
	}{
		{name: "No origin", trusted: []string{"*"}, method: http.MethodGet, wantStatus: http.StatusOK, wantNext: true},
		{name: "Any origin", trusted: []string{"*"}, method: http.MethodGet, origin: "http://example.com", wantOrigin: "*", wantStatus: http.StatusOK, wantNext: true},
		{name: "Trusted origin", trusted: []string{"http://a.test"}, method: http.MethodGet, origin: "http://a.test", wantOrigin: "http://a.test", wantStatus: http.StatusOK, wantNext: true},
		{name: "Untrusted origin", trusted: []string{"http://a.test"}, method: http.MethodGet, origin: "http://b.test", wantStatus: http.StatusOK, wantNext: true},
		{name: "Preflight", trusted: []string{"*"}, method: http.MethodOptions, origin: "http://example.com", preflight: true, wantOrigin: "*", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, _ := newTestApplication(t)
			app.config.cors.trustedOrigins = tt.trusted
			next := &okHandler{}

			r := httptest.NewRequest(tt.method, "/movies", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				r.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}

			rr := httptest.NewRecorder()
			app.enableCORS(next).ServeHTTP(rr, r)

			if rr.Code != tt.wantStatus {
				t.Errorf("want status %d; got %d", tt.wantStatus, rr.Code)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("want allow origin %q; got %q", tt.wantOrigin, got)
			}
			if next.called != tt.wantNext {
				t.Errorf("want next called %t; got %t", tt.wantNext, next.called)
			}
			if tt.preflight && !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch) {
				t.Errorf("preflight methods missing PATCH: %q", rr.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	app, _, _ := newTestApplication(t)
	app.config.limiter.enabled = true
	app.config.limiter.rps = 0.001
	app.config.limiter.burst = 1

	h := app.rateLimit(&okHandler{})

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.1:1234"

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)
		if rr.Code != want {
			t.Errorf("request %d: want status %d; got %d", i+1, want, rr.Code)
		}
	}
}

func signedToken(t *testing.T, secret string, mutate func(c *jwt.Claims)) string {
	t.Helper()

	now := time.Now()
	var claims jwt.Claims
	claims.Subject = "7"
	claims.Issued = jwt.NewNumericTime(now)
	claims.NotBefore = jwt.NewNumericTime(now)
	claims.Expires = jwt.NewNumericTime(now.Add(time.Minute))
	claims.Issuer = "moviefavs.interimme.net"
	claims.Audiences = []string{"moviefavs.interimme.net"}
	claims.Set = map[string]interface{}{
		emailClaim:          "alice@example.com",
		permissionFlagClaim: "editor",
	}
	if mutate != nil {
		mutate(&claims)
	}

	token, err := claims.HMACSign(jwt.HS256, []byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return string(token)
}

func TestRequireJWT(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{name: "Missing header", header: "", wantCode: http.StatusUnauthorized},
		{name: "Wrong scheme", header: "Basic " + signedToken(t, testJWTSecret, nil), wantCode: http.StatusUnauthorized},
		{name: "Not a JWT", header: "Bearer not-a-token", wantCode: http.StatusUnauthorized},
		{name: "Bad signature", header: "Bearer " + signedToken(t, "another-secret", nil), wantCode: http.StatusUnauthorized},
		{name: "Expired", header: "Bearer " + signedToken(t, testJWTSecret, func(c *jwt.Claims) {
			c.Expires = jwt.NewNumericTime(time.Now().Add(-time.Minute))
		}), wantCode: http.StatusUnauthorized},
		{name: "Not yet valid", header: "Bearer " + signedToken(t, testJWTSecret, func(c *jwt.Claims) {
			c.NotBefore = jwt.NewNumericTime(time.Now().Add(time.Hour))
		}), wantCode: http.StatusUnauthorized},
		{name: "Wrong issuer", header: "Bearer " + signedToken(t, testJWTSecret, func(c *jwt.Claims) {
			c.Issuer = "elsewhere.example.com"
		}), wantCode: http.StatusUnauthorized},
		{name: "Wrong audience", header: "Bearer " + signedToken(t, testJWTSecret, func(c *jwt.Claims) {
			c.Audiences = []string{"elsewhere.example.com"}
		}), wantCode: http.StatusUnauthorized},
		{name: "Unknown permission flag", header: "Bearer " + signedToken(t, testJWTSecret, func(c *jwt.Claims) {
			c.Set[permissionFlagClaim] = "root"
		}), wantCode: http.StatusUnauthorized},
		{name: "Valid", header: "Bearer " + signedToken(t, testJWTSecret, nil), wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, _ := newTestApplication(t)
			next := &okHandler{}

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			rr := httptest.NewRecorder()
			app.requireJWT(next).ServeHTTP(rr, r)

			if rr.Code != tt.wantCode {
				t.Fatalf("want status %d; got %d", tt.wantCode, rr.Code)
			}
			if tt.wantCode != http.StatusOK {
				if next.called {
					t.Error("next handler called for rejected token")
				}
				if got := rr.Header().Get("WWW-Authenticate"); got != "Bearer" {
					t.Errorf("want WWW-Authenticate Bearer; got %q", got)
				}
				return
			}

			id := app.contextGetIdentity(next.r)
			want := identity{UserID: 7, Email: "alice@example.com", PermissionFlag: data.PermissionEditor}
			if *id != want {
				t.Errorf("want identity %+v; got %+v", want, *id)
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name     string
		has      data.PermissionFlag
		required data.PermissionFlag
		wantCode int
	}{
		{name: "Free below editor", has: data.PermissionFree, required: data.PermissionEditor, wantCode: http.StatusForbidden},
		{name: "Paid below editor", has: data.PermissionPaid, required: data.PermissionEditor, wantCode: http.StatusForbidden},
		{name: "Editor is editor", has: data.PermissionEditor, required: data.PermissionEditor, wantCode: http.StatusOK},
		{name: "Admin above editor", has: data.PermissionAdmin, required: data.PermissionEditor, wantCode: http.StatusOK},
		{name: "Editor below admin", has: data.PermissionEditor, required: data.PermissionAdmin, wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, _ := newTestApplication(t)
			next := &okHandler{}

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r = app.contextSetIdentity(r, &identity{UserID: 1, PermissionFlag: tt.has})

			rr := httptest.NewRecorder()
			app.requirePermission(tt.required)(next).ServeHTTP(rr, r)

			if rr.Code != tt.wantCode {
				t.Errorf("want status %d; got %d", tt.wantCode, rr.Code)
			}
			if next.called != (tt.wantCode == http.StatusOK) {
				t.Errorf("next called = %t", next.called)
			}
		})
	}
}

func TestRequirePermissionWithoutIdentity(t *testing.T) {
	app, _, _ := newTestApplication(t)
	next := &okHandler{}

	h := app.recoverPanic(app.requirePermission(data.PermissionFree)(next))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("want status %d; got %d", http.StatusInternalServerError, rr.Code)
	}
	if next.called {
		t.Error("next handler called")
	}
}

func TestCheckBody(t *testing.T) {
	rules := []*validator.FieldRule{
		validator.Body("name").IsString().MinLength(1).WithMessage("Must include a name (non-empty string)"),
		validator.Body("description").IsString(),
		validator.Body("url").IsString().Optional(),
	}

	tests := []struct {
		name       string
		body       string
		wantErrors map[string]string
	}{
		{name: "Valid", body: `{"name": "Alien", "description": "Space"}`},
		{name: "Empty body", body: ``, wantErrors: map[string]string{
			"name":        "Must include a name (non-empty string)",
			"description": "must be a string",
		}},
		{name: "All fields wrong", body: `{"name": "", "description": 3, "url": false}`, wantErrors: map[string]string{
			"name":        "Must include a name (non-empty string)",
			"description": "must be a string",
			"url":         "must be a string",
		}},
		{name: "Not an object", body: `["Alien"]`, wantErrors: map[string]string{
			"body":        "body must be a JSON object",
			"name":        "Must include a name (non-empty string)",
			"description": "must be a string",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, _ := newTestApplication(t)

			var restored []byte
			var bodyErrors map[string]string
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, ok := app.contextGetBody(r)
				if !ok {
					t.Fatal("no body in context")
				}
				bodyErrors = body.validator.Errors
				restored, _ = io.ReadAll(r.Body)
			})

			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			app.checkBody(rules...)(inner).ServeHTTP(rr, r)

			if string(restored) != tt.body {
				t.Errorf("want restored body %q; got %q", tt.body, restored)
			}
			if len(bodyErrors) != len(tt.wantErrors) {
				t.Fatalf("want errors %v; got %v", tt.wantErrors, bodyErrors)
			}
			for key, msg := range tt.wantErrors {
				if bodyErrors[key] != msg {
					t.Errorf("%s: want %q; got %q", key, msg, bodyErrors[key])
				}
			}
		})
	}
}

func TestVerifyBodyFieldsErrors(t *testing.T) {
	app, _, _ := newTestApplication(t)
	next := &okHandler{}

	h := app.checkBody(
		validator.Body("email").IsEmail(),
		validator.Body("password").IsString().MinLength(8),
	)(app.verifyBodyFieldsErrors(next))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email": "nope", "password": "short"}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("want status %d; got %d", http.StatusBadRequest, rr.Code)
	}
	if next.called {
		t.Error("next handler called with invalid body")
	}

	var resp struct {
		Error map[string]string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error["email"] == "" || resp.Error["password"] == "" {
		t.Errorf("want email and password errors; got %v", resp.Error)
	}
}

func TestLogRequest(t *testing.T) {
	tests := []struct {
		name      string
		debug     bool
		wantLevel string
		wantAgent bool
	}{
		{name: "Terse", debug: false, wantLevel: "INFO", wantAgent: false},
		{name: "Debug", debug: true, wantLevel: "DEBUG", wantAgent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, _ := newTestApplication(t)
			var buf bytes.Buffer
			app.logger = jsonlog.New(&buf, jsonlog.LevelDebug)
			app.config.debug = tt.debug

			r := httptest.NewRequest(http.MethodGet, "/movies?page=2", nil)
			r.Header.Set("User-Agent", "moviefavs-test")
			app.logRequest(&okHandler{}).ServeHTTP(httptest.NewRecorder(), r)

			var entry struct {
				Level      string            `json:"level"`
				Message    string            `json:"message"`
				Properties map[string]string `json:"properties"`
			}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("decoding %q: %v", buf.String(), err)
			}

			if entry.Level != tt.wantLevel {
				t.Errorf("want level %s; got %s", tt.wantLevel, entry.Level)
			}
			if entry.Properties["url"] != "/movies?page=2" || entry.Properties["status"] != "200" {
				t.Errorf("unexpected properties %v", entry.Properties)
			}
			if _, ok := entry.Properties["user_agent"]; ok != tt.wantAgent {
				t.Errorf("user_agent present = %t", ok)
			}
		})
	}
}

func TestRecordMetrics(t *testing.T) {
	app, _, _ := newTestApplication(t)

	app.recordMetrics(&okHandler{}).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rr := httptest.NewRecorder()
	app.metrics.handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	want := `moviefavs_http_responses_total{code="200",method="GET"} 1`
	if !strings.Contains(rr.Body.String(), want) {
		t.Errorf("metrics output missing %q", want)
	}
}
