package handlers

import (
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"qctracker/internal/auth"
	"qctracker/internal/middleware"
)

// TemplateExecutor is an interface for template execution
// This allows both *template.Template and custom template registries to be used
type TemplateExecutor interface {
	ExecuteTemplate(wr io.Writer, name string, data interface{}) error
}

// pages renders full pages with the current user and pending flash notices.
type pages struct {
	templates TemplateExecutor
	sessions  *auth.SessionManager
}

func (p pages) render(w http.ResponseWriter, r *http.Request, name string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	if _, ok := data["User"]; !ok {
		data["User"] = middleware.GetUser(r)
	}
	data["Flashes"] = p.sessions.PopFlashes(w, r)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := p.templates.ExecuteTemplate(w, name, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("template", name).Msg("template error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (p pages) flash(w http.ResponseWriter, r *http.Request, category, message string) {
	if err := p.sessions.AddFlash(w, r, category, message); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("failed to store flash")
	}
}

func (p pages) redirect(w http.ResponseWriter, r *http.Request, target, category, message string) {
	p.flash(w, r, category, message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	hlog.FromRequest(r).Error().Err(err).Msg(msg)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
