package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"church-admin-api/internal/config"
	"church-admin-api/internal/handler"
	"church-admin-api/internal/middleware"
)

type Handlers struct {
	Auth          *handler.AuthHandler
	AccessRequest *handler.AccessRequestHandler
	User          *handler.UserHandler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, handlers Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", handlers.Auth.Login)
			auth.Post("/refresh", handlers.Auth.Refresh)
			auth.With(authMiddleware.RequireAuth).Post("/logout", handlers.Auth.Logout)
			auth.With(authMiddleware.RequireAuth).Get("/profile", handlers.Auth.Profile)
			auth.With(authMiddleware.RequireAuth).Put("/profile", handlers.Auth.UpdateProfile)
			auth.With(authMiddleware.RequireAuth).Put("/change-password", handlers.Auth.ChangePassword)

			auth.Route("/users", func(users chi.Router) {
				users.Use(authMiddleware.RequireAuth, authMiddleware.RequireAdmin)
				users.Get("/", handlers.User.List)
				users.Post("/", handlers.User.Create)
				users.Get("/{id}", handlers.User.Get)
				users.Put("/{id}", handlers.User.Update)
				users.Delete("/{id}", handlers.User.Delete)
			})
		})

		api.Route("/access-requests", func(requests chi.Router) {
			requests.Post("/", handlers.AccessRequest.Submit)
			requests.Get("/check-email/{email}", handlers.AccessRequest.CheckEmail)

			requests.Group(func(admin chi.Router) {
				admin.Use(authMiddleware.RequireAuth, authMiddleware.RequireAdmin)
				admin.Get("/", handlers.AccessRequest.List)
				admin.Get("/statistics", handlers.AccessRequest.Statistics)
				admin.Get("/{id}", handlers.AccessRequest.Get)
				admin.Put("/{id}", handlers.AccessRequest.Update)
				admin.Post("/{id}/approve", handlers.AccessRequest.Approve)
				admin.Post("/{id}/reject", handlers.AccessRequest.Reject)
				admin.Delete("/{id}", handlers.AccessRequest.Delete)
			})
		})
	})

	return r
}
