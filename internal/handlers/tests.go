package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"qctracker/internal/auth"
	"qctracker/internal/middleware"
	"qctracker/internal/models"
	"qctracker/internal/services"
)

const dateFormatHint = "Use YYYY-MM-DD."

// TestsHandler serves entry, editing, listing and export of test results.
type TestsHandler struct {
	pages
	records *services.RecordService
	queries *services.QueryService
}

func NewTestsHandler(templates TemplateExecutor, sessions *auth.SessionManager, records *services.RecordService, queries *services.QueryService) *TestsHandler {
	return &TestsHandler{
		pages:   pages{templates: templates, sessions: sessions},
		records: records,
		queries: queries,
	}
}

func (h *TestsHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, "New Test", "/test/new", blankRecord())
}

func (h *TestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.flash(w, r, auth.FlashWarning, "Invalid form data.")
		h.renderForm(w, r, "New Test", "/test/new", blankRecord())
		return
	}

	in := models.NewTestResult{
		DeviceNo:   r.PostForm.Get("device_no"),
		TestNo:     r.PostForm.Get("test_no"),
		Checklist:  checklistFromForm(r),
		TestRemark: r.PostForm.Get("test_remark"),
		OrderID:    r.PostForm.Get("order_id"),
	}

	_, err := h.records.Create(r.Context(), in, middleware.GetUser(r))
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			h.flash(w, r, auth.FlashWarning, "Device No and Test No are required.")
			h.renderForm(w, r, "New Test", "/test/new", presetFromInput(in))
			return
		}
		serverError(w, r, err, "failed to create test result")
		return
	}

	// Blank form for the next device instead of a redirect.
	h.flash(w, r, auth.FlashSuccess, "Test result saved.")
	h.renderForm(w, r, "New Test", "/test/new", blankRecord())
}

func (h *TestsHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}

	rec, err := h.records.Get(r.Context(), id)
	if err != nil {
		h.recordLookupFailed(w, r, err)
		return
	}

	h.renderForm(w, r, "Edit Test", "/test/edit/"+strconv.FormatInt(id, 10), rec)
}

func (h *TestsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.redirect(w, r, "/tests", auth.FlashWarning, "Invalid form data.")
		return
	}

	patch := models.TestResultPatch{
		DeviceNo:   formField(r, "device_no"),
		TestNo:     formField(r, "test_no"),
		Checklist:  checklistFromForm(r),
		TestRemark: formField(r, "test_remark"),
		OrderID:    formField(r, "order_id"),
		NDR:        r.PostForm.Get("ndr") != "",
	}

	if _, err := h.records.Update(r.Context(), id, patch, middleware.GetUser(r)); err != nil {
		h.recordLookupFailed(w, r, err)
		return
	}

	h.redirect(w, r, "/tests", auth.FlashSuccess, "Test record updated.")
}

func (h *TestsHandler) List(w http.ResponseWriter, r *http.Request) {
	params := filterParams(r, true)

	rows, warnings, err := h.queries.ListFiltered(r.Context(), params)
	if err != nil {
		serverError(w, r, err, "failed to list test results")
		return
	}
	for _, warn := range warnings {
		h.flash(w, r, auth.FlashWarning, "Invalid "+warn.Param+" date format. "+dateFormatHint)
	}

	h.render(w, r, "tests_list.html", map[string]interface{}{
		"Title":      "Test Results",
		"ActivePage": "tests",
		"Rows":       rows,
		"Start":      params.Start,
		"End":        params.End,
		"Search":     params.Search,
	})
}

// Export streams the filtered records as an .xlsx download. Only the date
// range applies and malformed dates are ignored silently.
func (h *TestsHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.queries.ExportTable(r.Context(), filterParams(r, false))
	if err != nil {
		serverError(w, r, err, "failed to export test results")
		return
	}

	w.Header().Set("Content-Type", services.ExportContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+services.ExportFilename)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (h *TestsHandler) renderForm(w http.ResponseWriter, r *http.Request, title, action string, preset *models.TestResult) {
	h.render(w, r, "test_form.html", map[string]interface{}{
		"Title":        title,
		"ActivePage":   "new_test",
		"Action":       action,
		"Preset":       preset,
		"YesNoChoices": models.YesNoChoices,
		"OKNGChoices":  models.OKNGChoices,
	})
}

func (h *TestsHandler) recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.redirect(w, r, "/tests", auth.FlashDanger, "Test record not found.")
		return 0, false
	}
	return id, true
}

func (h *TestsHandler) recordLookupFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, models.ErrNotFound) {
		h.redirect(w, r, "/tests", auth.FlashDanger, "Test record not found.")
		return
	}
	serverError(w, r, err, "failed to load test result")
}

// formField returns nil when key was not submitted at all.
func formField(r *http.Request, key string) *string {
	if _, ok := r.PostForm[key]; !ok {
		return nil
	}
	v := r.PostForm.Get(key)
	return &v
}

// checklistFromForm treats a blank choice like an absent one.
func checklistFromForm(r *http.Request) models.ChecklistInput {
	choice := func(key string) *string {
		v := strings.TrimSpace(r.PostForm.Get(key))
		if v == "" {
			return nil
		}
		return &v
	}
	return models.ChecklistInput{
		Pop:               choice("pop"),
		ScratchFeinguide:  choice("scratch_feinguide"),
		ButtonHardness:    choice("button_hardness"),
		ButtonGoingInside: choice("button_going_inside"),
		ButtonOnOff:       choice("button_on_off"),
		Charging:          choice("charging"),
	}
}

func filterParams(r *http.Request, withSearch bool) models.FilterParams {
	q := r.URL.Query()
	p := models.FilterParams{
		Start: q.Get("start"),
		End:   q.Get("end"),
	}
	if withSearch {
		p.Search = strings.TrimSpace(q.Get("search"))
	}
	return p
}

func blankRecord() *models.TestResult {
	return &models.TestResult{Checklist: models.ChecklistInput{}.WithDefaults()}
}

func presetFromInput(in models.NewTestResult) *models.TestResult {
	return &models.TestResult{
		DeviceNo:   strings.TrimSpace(in.DeviceNo),
		Checklist:  in.Checklist.WithDefaults(),
		TestNo:     strings.TrimSpace(in.TestNo),
		TestRemark: strings.TrimSpace(in.TestRemark),
		OrderID:    strings.TrimSpace(in.OrderID),
	}
}
