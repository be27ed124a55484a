package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"chatd/internal/config"
	"chatd/internal/domain"
	"chatd/internal/security"
	"chatd/internal/service"
	"chatd/internal/ws"
)

// Repos bundles the persistence interfaces the router wires into services.
// The concrete backend (sqlite or memory) is chosen in main.
type Repos struct {
	Users        domain.UserRepository
	Rooms        domain.RoomRepository
	Participants domain.ParticipantRepository
	Messages     domain.MessageRepository
	Reactions    domain.ReactionRepository
	Blocks       domain.BlockRepository
	AuditLog     domain.AuditLogRepository
}

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(
	cfg *config.Config,
	repos Repos,
	hub *ws.Hub,
	tokenSvc *security.TokenService,
	passwordHasher *security.PasswordHasher,
	encryptor *security.Encryptor,
	log zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	blockPolicy := service.NewBlockPolicy(repos.Blocks)
	authSvc := service.NewAuthService(repos.Users, passwordHasher, tokenSvc, hub, log)
	userSvc := service.NewUserService(repos.Users, repos.Blocks, hub)
	roomSvc := service.NewRoomService(repos.Rooms, repos.Participants, repos.Users, repos.AuditLog, blockPolicy, hub)
	msgSvc := service.NewMessageService(
		repos.Rooms, repos.Participants, repos.Messages, repos.Reactions,
		repos.Users, repos.AuditLog, blockPolicy, encryptor, hub,
	)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(authSvc))
			r.Post("/login", handleLogin(authSvc))
			r.Post("/refresh", handleRefresh(authSvc))
		})

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokenSvc, repos.Users))

			r.Get("/auth/me", handleMe())

			r.Route("/users", func(r chi.Router) {
				r.Get("/", handleListUsers(repos.Users))
				r.Patch("/me", handleUpdateProfile(userSvc))
				r.Post("/me/avatars", handleAddAvatar(userSvc))
				r.Put("/me/avatars", handleSelectAvatar(userSvc))
				r.Delete("/me/avatars", handleDeleteAvatar(userSvc))
				r.Get("/me/blocked", handleListBlocked(userSvc))
				r.Post("/{userID}/block", handleBlockUser(userSvc))
				r.Delete("/{userID}/block", handleUnblockUser(userSvc))
			})

			r.Route("/rooms", func(r chi.Router) {
				r.Delete("/{roomID}", handleDeleteRoom(roomSvc))
				r.Get("/{roomID}/logs", handleGroupLogs(roomSvc))
				r.Get("/{roomID}/details", handleGroupDetails(roomSvc))
			})
		})
	})

	wsHandler := ws.NewHandler(
		hub, tokenSvc, repos.Users, repos.Rooms, roomSvc, msgSvc,
		cfg.CORSOrigins, cfg.SessionBuffer, log,
	)
	r.Get("/ws", wsHandler.ServeHTTP)

	return r
}

// requestLogger logs one line per request through the shared zerolog logger.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
