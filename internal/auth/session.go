package auth

import (
	"encoding/gob"
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	SessionName   = "qctracker-session"
	SessionUserID = "user_id"
)

// Flash categories, matching the alert styles used by the templates.
const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

// Flash is a one-shot notice shown on the next rendered page.
type Flash struct {
	Category string
	Message  string
}

func init() {
	gob.Register(Flash{})
}

type SessionManager struct {
	store *sessions.CookieStore
}

func NewSessionManager(secret string, maxAge int, secure bool) *SessionManager {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store}
}

// Get returns the request's session. A cookie that fails to decode yields a
// fresh session together with the decode error.
func (m *SessionManager) Get(r *http.Request) (*sessions.Session, error) {
	return m.store.Get(r, SessionName)
}

func (m *SessionManager) SetUser(w http.ResponseWriter, r *http.Request, userID int64) error {
	session, _ := m.Get(r)
	session.Values[SessionUserID] = userID
	return session.Save(r, w)
}

func (m *SessionManager) GetUserID(r *http.Request) (int64, bool) {
	session, err := m.Get(r)
	if err != nil {
		return 0, false
	}

	userID, ok := session.Values[SessionUserID].(int64)
	return userID, ok
}

// Clear drops the identity. Pending flashes are kept so a notice can follow a
// logout or a stale-session redirect.
func (m *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := m.Get(r)
	flashes := session.Flashes()
	session.Values = make(map[interface{}]interface{})
	for _, f := range flashes {
		session.AddFlash(f)
	}
	return session.Save(r, w)
}

func (m *SessionManager) AddFlash(w http.ResponseWriter, r *http.Request, category, message string) error {
	session, _ := m.Get(r)
	session.AddFlash(Flash{Category: category, Message: message})
	return session.Save(r, w)
}

// PopFlashes returns and removes pending notices. It writes a cookie, so it
// must run before the response body.
func (m *SessionManager) PopFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	session, _ := m.Get(r)
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	_ = session.Save(r, w)

	flashes := make([]Flash, 0, len(raw))
	for _, f := range raw {
		if flash, ok := f.(Flash); ok {
			flashes = append(flashes, flash)
		}
	}
	return flashes
}
