package main

import (
	"context"
	"database/sql"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"io/fs"
	"moviefavs.interimme.net/internal/data"
	"moviefavs.interimme.net/internal/jsonlog"
	"moviefavs.interimme.net/internal/mailer"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Build information, set with -ldflags "-X main.version=... -X main.buildTime=...".
var (
	buildTime string
	version   = "1.0.0"
)

// config holds every setting of the application. Defaults come from the environment
// (optionally loaded from a .env file) and can be overridden with command-line flags.
type config struct {
	port  int
	env   string // development, staging or production
	debug bool   // verbose request logging
	db    struct {
		dsn          string
		maxOpenConns int
		maxIdleConns int
		maxIdleTime  string
	}
	limiter struct {
		enabled bool
		rps     float64
		burst   int
	}
	smtp struct {
		host     string
		port     int
		username string
		password string
		sender   string
	}
	cors struct {
		trustedOrigins []string // "*" allows any origin
	}
	jwt struct {
		secret string
		issuer string        // also used as the only accepted audience
		ttl    time.Duration // lifetime of access tokens
	}
	refreshTTL      time.Duration
	shutdownTimeout time.Duration
}

// emailSender is the part of mailer.Mailer the handlers use.
type emailSender interface {
	Send(recipient, templateFile string, data any) error
}

// application holds the dependencies shared by handlers and middleware.
type application struct {
	config  config
	logger  *jsonlog.Logger
	models  data.Models
	mailer  emailSender
	metrics *appMetrics
	wg      sync.WaitGroup // Tracks background goroutines so shutdown can wait for them.
}

//	@title						Moviefavs API
//	@version					1.0.0
//	@description				Movies catalog with videos, per-user favorites and JWT authenticated accounts.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
func main() {
	// Outside production the environment may come from a .env file; a missing file is fine.
	if os.Getenv("ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "unable to load .env file: %v\n", err)
			os.Exit(1)
		}
	}

	var cfg config

	flag.IntVar(&cfg.port, "port", envInt("PORT", 3000), "API server port")
	flag.StringVar(&cfg.env, "env", envString("ENV", "development"), "Environment (development|staging|production)")
	flag.BoolVar(&cfg.debug, "debug", os.Getenv("DEBUG") != "", "Log full request metadata")

	flag.StringVar(&cfg.db.dsn, "db-dsn", envString("DB_DSN", ""), "PostgreSQL DSN")
	flag.IntVar(&cfg.db.maxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.IntVar(&cfg.db.maxIdleConns, "db-max-idle-conns", 25, "PostgreSQL max idle connections")
	flag.StringVar(&cfg.db.maxIdleTime, "db-max-idle-time", "15m", "PostgreSQL max connection idle time")

	flag.BoolVar(&cfg.limiter.enabled, "limiter-enabled", envBool("LIMITER_ENABLED", true), "Enable rate limiter")
	flag.Float64Var(&cfg.limiter.rps, "limiter-rps", 2, "Rate limiter maximum requests per second")
	flag.IntVar(&cfg.limiter.burst, "limiter-burst", 4, "Rate limiter maximum burst")

	flag.StringVar(&cfg.smtp.host, "smtp-host", envString("SMTP_HOST", "localhost"), "SMTP host")
	flag.IntVar(&cfg.smtp.port, "smtp-port", envInt("SMTP_PORT", 25), "SMTP port")
	flag.StringVar(&cfg.smtp.username, "smtp-username", envString("SMTP_USERNAME", ""), "SMTP username")
	flag.StringVar(&cfg.smtp.password, "smtp-password", envString("SMTP_PASSWORD", ""), "SMTP password")
	flag.StringVar(&cfg.smtp.sender, "smtp-sender", envString("SMTP_SENDER", "Moviefavs <no-reply@moviefavs.interimme.net>"), "SMTP sender")

	cfg.cors.trustedOrigins = strings.Fields(envString("CORS_TRUSTED_ORIGINS", "*"))
	flag.Func("cors-trusted-origins", "Trusted CORS origins (space separated, * for any)", func(val string) error {
		cfg.cors.trustedOrigins = strings.Fields(val)
		return nil
	})

	flag.StringVar(&cfg.jwt.secret, "jwt-secret", envString("JWT_SECRET", ""), "JWT secret")
	flag.StringVar(&cfg.jwt.issuer, "jwt-issuer", "moviefavs.interimme.net", "JWT issuer and audience")
	flag.DurationVar(&cfg.jwt.ttl, "jwt-ttl", 15*time.Minute, "Access token lifetime")
	flag.DurationVar(&cfg.refreshTTL, "refresh-ttl", 7*24*time.Hour, "Refresh token lifetime")
	flag.DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")

	displayVersion := flag.Bool("version", false, "Display version and exit")

	flag.Parse()

	if *displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		fmt.Printf("Build time:\t%s\n", buildTime)
		os.Exit(0)
	}

	minLevel := jsonlog.LevelInfo
	if cfg.debug {
		minLevel = jsonlog.LevelDebug
	}
	logger := jsonlog.New(os.Stdout, minLevel)

	if cfg.jwt.secret == "" {
		logger.PrintFatal(errors.New("a JWT secret is required (-jwt-secret or JWT_SECRET)"), nil)
	}

	db, err := openDB(cfg)
	if err != nil {
		logger.PrintFatal(err, nil)
	}
	defer db.Close()

	logger.PrintInfo("database connection pool established", nil)

	expvar.NewString("version").Set(version)
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))
	expvar.Publish("database", expvar.Func(func() any {
		return db.Stats()
	}))
	expvar.Publish("timestamp", expvar.Func(func() any {
		return time.Now().Unix()
	}))

	app := &application{
		config:  cfg,
		logger:  logger,
		models:  data.NewModels(db),
		mailer:  mailer.New(cfg.smtp.host, cfg.smtp.port, cfg.smtp.username, cfg.smtp.password, cfg.smtp.sender),
		metrics: newMetrics(),
	}
	app.metrics.registerDB(db)

	err = app.serve()
	if err != nil {
		logger.PrintFatal(err, nil)
	}
}

// openDB opens a PostgreSQL pool with the configured limits and checks it with a ping.
func openDB(cfg config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.db.dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.db.maxOpenConns)
	db.SetMaxIdleConns(cfg.db.maxIdleConns)

	duration, err := time.ParseDuration(cfg.db.maxIdleTime)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(duration)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func envString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}
