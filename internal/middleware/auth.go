package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/hlog"

	"qctracker/internal/auth"
	"qctracker/internal/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// UserResolver loads the account behind a session.
type UserResolver interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type AuthMiddleware struct {
	sessions *auth.SessionManager
	users    UserResolver
}

func NewAuthMiddleware(sessions *auth.SessionManager, users UserResolver) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		users:    users,
	}
}

// RequireAuth resolves the session user and stores it in the request context.
// Anonymous requests are sent to the login page with the requested path.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := m.sessions.GetUserID(r)
		if !ok {
			redirectToLogin(w, r)
			return
		}

		user, err := m.users.GetByID(r.Context(), userID)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				hlog.FromRequest(r).Error().Err(err).Int64("user_id", userID).Msg("failed to resolve session user")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			m.sessions.Clear(w, r)
			redirectToLogin(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireAdmin must run after RequireAuth.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r)
		if user == nil || !user.IsAdmin {
			m.sessions.AddFlash(w, r, auth.FlashDanger, "Admins only.")
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

func GetUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(UserContextKey).(*models.User)
	return user
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := "/login"
	if r.Method == http.MethodGet && r.URL.Path != "/" {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
