package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"chatd/internal/config"
	"chatd/internal/httpserver"
	"chatd/internal/security"
	"chatd/internal/store/memory"
	"chatd/internal/store/sqlite"
	"chatd/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg)

	repos, cleanup, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer cleanup()

	// Security components
	tokenSvc := security.NewTokenService(
		cfg.JWTSecret,
		time.Duration(cfg.AccessTokenMinutes)*time.Minute,
		time.Duration(cfg.RefreshTokenDays)*24*time.Hour,
	)
	passwordHasher := security.NewPasswordHasher(0)

	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}

	hub := ws.NewHub(log)

	router := httpserver.NewRouter(cfg, repos, hub, tokenSvc, passwordHasher, encryptor, log)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr()).Str("driver", cfg.Driver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	var log zerolog.Logger
	if cfg.Env == "development" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Str("app", cfg.AppName).Logger()
}

// openStore builds the repository bundle for the configured driver.
func openStore(cfg *config.Config) (httpserver.Repos, func(), error) {
	switch cfg.Driver {
	case "memory":
		s := memory.New()
		return httpserver.Repos{
			Users:        s.Users(),
			Rooms:        s.Rooms(),
			Participants: s.Participants(),
			Messages:     s.Messages(),
			Reactions:    s.Reactions(),
			Blocks:       s.Blocks(),
			AuditLog:     s.AuditLog(),
		}, func() {}, nil
	default:
		db, err := sqlite.Open(cfg.DatabasePath)
		if err != nil {
			return httpserver.Repos{}, nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return httpserver.Repos{}, nil, err
		}
		return httpserver.Repos{
			Users:        sqlite.NewUserRepo(db),
			Rooms:        sqlite.NewRoomRepo(db),
			Participants: sqlite.NewParticipantRepo(db),
			Messages:     sqlite.NewMessageRepo(db),
			Reactions:    sqlite.NewReactionRepo(db),
			Blocks:       sqlite.NewBlockRepo(db),
			AuditLog:     sqlite.NewAuditLogRepo(db),
		}, func() { db.Close() }, nil
	}
}
