package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"qctracker/internal/auth"
	"qctracker/internal/middleware"
	"qctracker/internal/models"
	"qctracker/internal/services"
)

// AdminHandler manages tester accounts. Routes are expected behind RequireAdmin.
type AdminHandler struct {
	pages
	userService *auth.UserService
	queries     *services.QueryService
}

func NewAdminHandler(templates TemplateExecutor, sessions *auth.SessionManager, userService *auth.UserService, queries *services.QueryService) *AdminHandler {
	return &AdminHandler{
		pages:       pages{templates: templates, sessions: sessions},
		userService: userService,
		queries:     queries,
	}
}

func (h *AdminHandler) CreateUserPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "create_user.html", map[string]interface{}{
		"Title":      "Create User",
		"ActivePage": "admin",
	})
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirect(w, r, "/admin/create_user", auth.FlashWarning, "Invalid form data.")
		return
	}

	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	fullName := strings.TrimSpace(r.PostForm.Get("full_name"))
	isAdmin := r.PostForm.Get("is_admin") != ""

	created, err := h.userService.Create(r.Context(), username, password, fullName, isAdmin)
	if err != nil {
		var verr *models.ValidationError
		switch {
		case errors.Is(err, models.ErrDuplicateUsername):
			h.redirect(w, r, "/admin/create_user", auth.FlashDanger, "Username already exists.")
		case errors.As(err, &verr):
			h.redirect(w, r, "/admin/create_user", auth.FlashWarning, "Username and password are required.")
		default:
			serverError(w, r, err, "failed to create user")
		}
		return
	}

	hlog.FromRequest(r).Info().
		Int64("admin_id", middleware.GetUser(r).ID).
		Int64("user_id", created.ID).
		Str("username", created.Username).
		Bool("is_admin", created.IsAdmin).
		Msg("user created")
	h.redirect(w, r, "/admin/users", auth.FlashSuccess, "User created.")
}

func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		serverError(w, r, err, "failed to list users")
		return
	}

	h.render(w, r, "admin_users.html", map[string]interface{}{
		"Title":      "Users",
		"ActivePage": "admin",
		"Users":      users,
	})
}

func (h *AdminHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.redirect(w, r, "/admin/users", auth.FlashWarning, "Cannot remove admin or user not found.")
		return
	}

	if err := h.userService.Remove(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrProtectedAccount) {
			h.redirect(w, r, "/admin/users", auth.FlashWarning, "Cannot remove admin or user not found.")
			return
		}
		serverError(w, r, err, "failed to remove user")
		return
	}

	hlog.FromRequest(r).Info().
		Int64("admin_id", middleware.GetUser(r).ID).
		Int64("user_id", id).
		Msg("user removed")
	h.redirect(w, r, "/admin/users", auth.FlashSuccess, "User removed.")
}

// UserActions lists one tester's records, optionally limited to a single day.
func (h *AdminHandler) UserActions(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.redirect(w, r, "/admin/users", auth.FlashWarning, "User not found.")
		return
	}

	target, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.redirect(w, r, "/admin/users", auth.FlashWarning, "User not found.")
			return
		}
		serverError(w, r, err, "failed to load user")
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	records, warnings, err := h.queries.TesterDay(r.Context(), id, date)
	if err != nil {
		serverError(w, r, err, "failed to list user records")
		return
	}
	if len(warnings) > 0 {
		h.flash(w, r, auth.FlashWarning, "Invalid date format. "+dateFormatHint)
	}

	h.render(w, r, "user_actions.html", map[string]interface{}{
		"Title":        "User Actions",
		"ActivePage":   "admin",
		"Target":       target,
		"Records":      records,
		"SelectedDate": date,
	})
}
