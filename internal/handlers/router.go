package handlers

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"qctracker/internal/auth"
	"qctracker/internal/middleware"
	"qctracker/internal/services"
)

// RouterConfig contains the dependencies of the HTTP surface.
type RouterConfig struct {
	Templates TemplateExecutor
	Sessions  *auth.SessionManager
	Users     *auth.UserService
	Records   *services.RecordService
	Queries   *services.QueryService
	Logger    zerolog.Logger
	// Static is served under /static/ when set.
	Static fs.FS
}

// NewRouter builds the application routes.
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.Templates, cfg.Sessions, cfg.Users)
	dashboardHandler := NewDashboardHandler(cfg.Templates, cfg.Sessions, cfg.Queries)
	testsHandler := NewTestsHandler(cfg.Templates, cfg.Sessions, cfg.Records, cfg.Queries)
	adminHandler := NewAdminHandler(cfg.Templates, cfg.Sessions, cfg.Users, cfg.Queries)

	authMiddleware := middleware.NewAuthMiddleware(cfg.Sessions, cfg.Users)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger.With().Str("component", "http").Logger()))
	r.Use(chimiddleware.Recoverer)

	if cfg.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(cfg.Static))))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Public routes
	r.Get("/", authHandler.Index)
	r.Get("/login", authHandler.LoginPage)
	r.Post("/login", authHandler.Login)
	r.Get("/logout", authHandler.Logout)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)

		r.Get("/dashboard", dashboardHandler.Dashboard)

		// Test records
		r.Get("/test/new", testsHandler.NewForm)
		r.Post("/test/new", testsHandler.Create)
		r.Get("/test/edit/{id}", testsHandler.EditForm)
		r.Post("/test/edit/{id}", testsHandler.Update)
		r.Get("/tests", testsHandler.List)
		r.Get("/export", testsHandler.Export)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAdmin)
			r.Get("/admin/create_user", adminHandler.CreateUserPage)
			r.Post("/admin/create_user", adminHandler.CreateUser)
			r.Get("/admin/users", adminHandler.Users)
			r.Post("/admin/remove_user/{id}", adminHandler.RemoveUser)
			r.Get("/admin/user_actions/{id}", adminHandler.UserActions)
		})
	})

	return r
}
