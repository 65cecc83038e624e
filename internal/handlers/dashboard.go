package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"qctracker/internal/auth"
	"qctracker/internal/middleware"
	"qctracker/internal/services"
)

type DashboardHandler struct {
	pages
	queries *services.QueryService
}

func NewDashboardHandler(templates TemplateExecutor, sessions *auth.SessionManager, queries *services.QueryService) *DashboardHandler {
	return &DashboardHandler{
		pages:   pages{templates: templates, sessions: sessions},
		queries: queries,
	}
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	summary, err := h.queries.Summarize(r.Context(), user.ID, time.Now())
	if err != nil {
		// The page is still useful without the counters.
		hlog.FromRequest(r).Warn().Err(err).Msg("failed to summarize records")
	}

	h.render(w, r, "dashboard.html", map[string]interface{}{
		"Title":      "Dashboard",
		"ActivePage": "dashboard",
		"Summary":    summary,
	})
}
