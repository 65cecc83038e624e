package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"qctracker/internal/auth"
	"qctracker/internal/models"
)

type AuthHandler struct {
	pages
	userService *auth.UserService
}

func NewAuthHandler(templates TemplateExecutor, sessions *auth.SessionManager, userService *auth.UserService) *AuthHandler {
	return &AuthHandler{
		pages:       pages{templates: templates, sessions: sessions},
		userService: userService,
	}
}

func (h *AuthHandler) Index(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.GetUserID(r); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to dashboard
	if _, ok := h.sessions.GetUserID(r); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	h.render(w, r, "login.html", map[string]interface{}{
		"Title": "Login",
		"Next":  r.URL.Query().Get("next"),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.loginFailed(w, r, "")
		return
	}

	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	next := r.PostForm.Get("next")

	user, err := h.userService.Authenticate(r.Context(), username, password)
	if err != nil {
		if !errors.Is(err, models.ErrInvalidCredentials) {
			hlog.FromRequest(r).Error().Err(err).Msg("login lookup failed")
		}
		hlog.FromRequest(r).Info().Str("username", username).Msg("login failed")
		h.loginFailed(w, r, next)
		return
	}

	if err := h.sessions.SetUser(w, r, user.ID); err != nil {
		serverError(w, r, err, "failed to save session")
		return
	}

	hlog.FromRequest(r).Info().Int64("user_id", user.ID).Msg("login succeeded")
	h.redirect(w, r, safeNext(next), auth.FlashSuccess, "Logged in successfully.")
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) loginFailed(w http.ResponseWriter, r *http.Request, next string) {
	h.flash(w, r, auth.FlashDanger, "Invalid username or password.")
	h.render(w, r, "login.html", map[string]interface{}{
		"Title": "Login",
		"Next":  next,
	})
}

// safeNext only follows local absolute paths.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return "/dashboard"
	}
	return next
}
