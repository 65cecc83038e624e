package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"qctracker/internal/auth"
	"qctracker/internal/config"
	"qctracker/internal/database"
	"qctracker/internal/models"
	"qctracker/internal/services"
	"qctracker/internal/store"
	"qctracker/web"
)

type testApp struct {
	server  *httptest.Server
	users   *auth.UserService
	records *store.TestResultStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, config.DatabaseConfig{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "app.db"),
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users, err := auth.NewUserService(db, bcrypt.MinCost, zerolog.Nop())
	require.NoError(t, err)
	_, err = users.Create(ctx, "admin", "admin123", "Administrator", true)
	require.NoError(t, err)
	_, err = users.Create(ctx, "tester", "tester123", "Terry Tester", false)
	require.NoError(t, err)

	templates, err := web.LoadTemplates(web.Assets(""))
	require.NoError(t, err)

	recordStore := store.NewTestResultStore(db)
	router := NewRouter(RouterConfig{
		Templates: templates,
		Sessions:  auth.NewSessionManager("handler-test-secret", 3600, false),
		Users:     users,
		Records:   services.NewRecordService(recordStore, users, zerolog.Nop()),
		Queries:   services.NewQueryService(recordStore, zerolog.Nop()),
		Logger:    zerolog.Nop(),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testApp{server: srv, users: users, records: recordStore}
}

// client keeps cookies and does not follow redirects.
func (a *testApp) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (a *testApp) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(a.server.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (a *testApp) post(t *testing.T, c *http.Client, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := c.PostForm(a.server.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (a *testApp) login(t *testing.T, username, password string) *http.Client {
	t.Helper()
	c := a.client(t)
	resp, _ := a.post(t, c, "/login", url.Values{"username": {username}, "password": {password}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))
	return c
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func (a *testApp) allRecords(t *testing.T) []models.TestResult {
	t.Helper()
	rows, err := a.records.Query(context.Background(), models.TestResultFilter{})
	require.NoError(t, err)
	return rows
}

func TestIndexRedirects(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.get(t, app.client(t), "/")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = app.get(t, app.login(t, "tester", "tester123"), "/")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestLoginFlow(t *testing.T) {
	app := newTestApp(t)
	c := app.client(t)

	resp, _ := app.get(t, c, "/tests")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login?next=%2Ftests", resp.Header.Get("Location"))

	resp, body := app.post(t, c, "/login", url.Values{"username": {"tester"}, "password": {"nope"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Invalid username or password.")

	resp, body = app.post(t, c, "/login", url.Values{"username": {"ghost"}, "password": {"nope"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Invalid username or password.")

	resp, _ = app.post(t, c, "/login", url.Values{
		"username": {"tester"},
		"password": {"tester123"},
		"next":     {"/tests"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/tests", resp.Header.Get("Location"))

	resp, body = app.get(t, c, "/tests")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Logged in successfully.")

	// Notices are shown once.
	_, body = app.get(t, c, "/tests")
	require.NotContains(t, body, "Logged in successfully.")
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "tester", "tester123")

	resp, _ := app.get(t, c, "/logout")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = app.get(t, c, "/dashboard")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/login"))
}

func TestDashboardShowsCounts(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "tester", "tester123")

	resp, body := app.get(t, c, "/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Terry Tester")
	require.Contains(t, body, "Your tests today")
}

func TestCreateRecordRequiresDeviceAndTestNo(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "tester", "tester123")

	resp, body := app.post(t, c, "/test/new", url.Values{
		"device_no": {"   "},
		"test_no":   {"T-9"},
		"pop":       {"Yes"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Device No and Test No are required.")
	require.Contains(t, body, `value="T-9"`)
	require.Empty(t, app.allRecords(t))
}

func TestCreateRecordAppliesDefaults(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "tester", "tester123")

	resp, body := app.post(t, c, "/test/new", url.Values{
		"device_no":     {" DEV-100 "},
		"test_no":       {"T-1"},
		"button_on_off": {"NG"},
		"charging":      {""},
		"test_remark":   {"cracked corner"},
		"order_id":      {"ORD-5"},
		"ndr":           {"1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Test result saved.")
	require.NotContains(t, body, `value="DEV-100"`)

	rows := app.allRecords(t)
	require.Len(t, rows, 1)
	got := rows[0]
	require.Equal(t, "DEV-100", got.DeviceNo)
	require.Equal(t, "T-1", got.TestNo)
	require.Equal(t, models.Checklist{
		Pop:               "No",
		ScratchFeinguide:  "No",
		ButtonHardness:    "OK",
		ButtonGoingInside: "OK",
		ButtonOnOff:       "NG",
		Charging:          "OK",
	}, got.Checklist)
	require.Equal(t, "cracked corner", got.TestRemark)
	require.Equal(t, "ORD-5", got.OrderID)
	require.False(t, got.NDR)
	require.Equal(t, "Terry Tester", got.TesterName)
	require.WithinDuration(t, time.Now().UTC(), got.CreatedAt, time.Minute)
}

func TestEditRecordMergesFields(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "admin", "admin123")

	tester, err := app.users.GetByUsername(context.Background(), "tester")
	require.NoError(t, err)

	id, err := app.records.Insert(context.Background(), &models.TestResult{
		DeviceNo:   "DEV-7",
		Checklist:  models.ChecklistInput{}.WithDefaults(),
		TestNo:     "T-7",
		TestRemark: "first pass",
		NDR:        true,
		TesterID:   tester.ID,
		TesterName: tester.DisplayName(),
		CreatedAt:  time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	path := "/test/edit/" + strconv.FormatInt(id, 10)

	resp, body := app.get(t, c, path)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `value="DEV-7"`)
	require.Contains(t, body, "first pass")

	resp, _ = app.post(t, c, path, url.Values{
		"test_remark": {"retested"},
		"charging":    {"NG"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/tests", resp.Header.Get("Location"))

	_, body = app.get(t, c, "/tests")
	require.Contains(t, body, "Test record updated.")

	rows := app.allRecords(t)
	require.Len(t, rows, 1)
	got := rows[0]
	require.Equal(t, "DEV-7", got.DeviceNo)
	require.Equal(t, "T-7", got.TestNo)
	require.Equal(t, "retested", got.TestRemark)
	require.Equal(t, "NG", got.Charging)
	require.Equal(t, "OK", got.ButtonHardness)
	require.False(t, got.NDR)
	require.Equal(t, tester.ID, got.TesterID)
	require.Equal(t, "Terry Tester", got.TesterName)
	require.True(t, got.CreatedAt.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)))
}

func TestEditUnknownRecord(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "tester", "tester123")

	for _, path := range []string{"/test/edit/404", "/test/edit/abc"} {
		resp, _ := app.get(t, c, path)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		require.Equal(t, "/tests", resp.Header.Get("Location"), path)

		_, body := app.get(t, c, "/tests")
		require.Contains(t, body, "Test record not found.", path)
	}

	resp, _ := app.post(t, c, "/test/edit/404", url.Values{"ndr": {"1"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/tests", resp.Header.Get("Location"))
}

func TestListFiltersAndWarns(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "tester", "tester123")
	ctx := context.Background()

	for _, dev := range []string{"ALPHA-1", "BETA-2"} {
		_, err := app.records.Insert(ctx, &models.TestResult{
			DeviceNo:  dev,
			Checklist: models.ChecklistInput{}.WithDefaults(),
			TestNo:    "T",
			TesterID:  2,
			CreatedAt: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	resp, body := app.get(t, c, "/tests?search=PHA-")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "ALPHA-1")
	require.NotContains(t, body, "BETA-2")

	_, body = app.get(t, c, "/tests?start=2024-05-10&end=2024-05-10")
	require.Contains(t, body, "ALPHA-1")
	require.Contains(t, body, "BETA-2")

	_, body = app.get(t, c, "/tests?start=2024-05-11")
	require.NotContains(t, body, "ALPHA-1")

	resp, body = app.get(t, c, "/tests?start=10/05/2024&end=nope")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Invalid start date format. Use YYYY-MM-DD.")
	require.Contains(t, body, "Invalid end date format. Use YYYY-MM-DD.")
	require.Contains(t, body, "ALPHA-1")
}

func readExport(t *testing.T, body string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	return rows
}

func TestExport(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "tester", "tester123")

	resp, body := app.get(t, c, "/export")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, services.ExportContentType, resp.Header.Get("Content-Type"))
	require.Equal(t, "attachment; filename=test_results.xlsx", resp.Header.Get("Content-Disposition"))
	require.Equal(t, [][]string{services.ExportColumns}, readExport(t, body))

	_, err := app.records.Insert(context.Background(), &models.TestResult{
		DeviceNo:  "GAMMA-3",
		Checklist: models.ChecklistInput{}.WithDefaults(),
		TestNo:    "T-3",
		TesterID:  2,
		CreatedAt: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// search is ignored and a malformed bound is dropped silently.
	resp, body = app.get(t, c, "/export?search=zzz&start=bad&end=2024-05-10")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := readExport(t, body)
	require.Len(t, rows, 2)
	require.Equal(t, "GAMMA-3", rows[1][0])

	_, body = app.get(t, c, "/tests")
	require.NotContains(t, body, "Invalid start date format")
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "tester", "tester123")

	for _, path := range []string{"/admin/users", "/admin/create_user", "/admin/user_actions/1"} {
		resp, _ := app.get(t, c, path)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		require.Equal(t, "/dashboard", resp.Header.Get("Location"), path)
	}

	resp, _ := app.post(t, c, "/admin/remove_user/1", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := app.get(t, c, "/dashboard")
	require.Contains(t, body, "Admins only.")

	_, err := app.users.GetByID(context.Background(), 1)
	require.NoError(t, err)
}

func TestAdminCreateUser(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "admin", "admin123")

	resp, body := app.get(t, c, "/admin/create_user")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `name="full_name"`)

	resp, _ = app.post(t, c, "/admin/create_user", url.Values{
		"username":  {"quinn"},
		"password":  {"pw123456"},
		"full_name": {"Quinn QA"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/admin/users", resp.Header.Get("Location"))

	_, body = app.get(t, c, "/admin/users")
	require.Contains(t, body, "User created.")
	require.Contains(t, body, "Quinn QA")

	created, err := app.users.Authenticate(context.Background(), "quinn", "pw123456")
	require.NoError(t, err)
	require.False(t, created.IsAdmin)

	resp, _ = app.post(t, c, "/admin/create_user", url.Values{
		"username": {"quinn"},
		"password": {"other"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/admin/create_user", resp.Header.Get("Location"))
	_, body = app.get(t, c, "/admin/create_user")
	require.Contains(t, body, "Username already exists.")

	resp, _ = app.post(t, c, "/admin/create_user", url.Values{"username": {"nopass"}})
	require.Equal(t, "/admin/create_user", resp.Header.Get("Location"))
	_, body = app.get(t, c, "/admin/create_user")
	require.Contains(t, body, "Username and password are required.")
}

func TestAdminRemoveUser(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "admin", "admin123")
	ctx := context.Background()

	tester, err := app.users.GetByUsername(ctx, "tester")
	require.NoError(t, err)
	admin, err := app.users.GetByUsername(ctx, "admin")
	require.NoError(t, err)

	for _, id := range []string{strconv.FormatInt(admin.ID, 10), "999"} {
		resp, _ := app.post(t, c, "/admin/remove_user/"+id, nil)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, "/admin/users", resp.Header.Get("Location"))
		_, body := app.get(t, c, "/admin/users")
		require.Contains(t, body, "Cannot remove admin or user not found.")
	}

	_, err = app.users.GetByID(ctx, admin.ID)
	require.NoError(t, err)

	resp, _ := app.post(t, c, "/admin/remove_user/"+strconv.FormatInt(tester.ID, 10), nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body := app.get(t, c, "/admin/users")
	require.Contains(t, body, "User removed.")

	_, err = app.users.GetByID(ctx, tester.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestAdminUserActions(t *testing.T) {
	app := newTestApp(t)
	c := app.login(t, "admin", "admin123")
	ctx := context.Background()

	tester, err := app.users.GetByUsername(ctx, "tester")
	require.NoError(t, err)

	for _, rec := range []struct {
		device  string
		created time.Time
	}{
		{"DAY-A", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"DAY-B", time.Date(2024, 6, 1, 23, 59, 59, 0, time.UTC)},
		{"DAY-C", time.Date(2024, 6, 2, 0, 0, 1, 0, time.UTC)},
	} {
		_, err := app.records.Insert(ctx, &models.TestResult{
			DeviceNo:  rec.device,
			Checklist: models.ChecklistInput{}.WithDefaults(),
			TestNo:    "T",
			TesterID:  tester.ID,
			CreatedAt: rec.created,
		})
		require.NoError(t, err)
	}

	path := "/admin/user_actions/" + strconv.FormatInt(tester.ID, 10)

	resp, body := app.get(t, c, path+"?date=2024-06-01")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Terry Tester")
	require.Contains(t, body, "DAY-A")
	require.Contains(t, body, "DAY-B")
	require.NotContains(t, body, "DAY-C")
	require.Less(t, strings.Index(body, "DAY-B"), strings.Index(body, "DAY-A"))

	_, body = app.get(t, c, path+"?date=June")
	require.Contains(t, body, "Invalid date format. Use YYYY-MM-DD.")
	require.Contains(t, body, "DAY-C")

	resp, _ = app.get(t, c, "/admin/user_actions/999")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/admin/users", resp.Header.Get("Location"))
	_, body = app.get(t, c, "/admin/users")
	require.Contains(t, body, "User not found.")
}

func TestSafeNext(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"", "/dashboard"},
		{"/tests?start=2024-01-01", "/tests?start=2024-01-01"},
		{"https://evil.example", "/dashboard"},
		{"//evil.example", "/dashboard"},
		{`/\evil.example`, "/dashboard"},
		{"tests", "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.next, func(t *testing.T) {
			require.Equal(t, tt.want, safeNext(tt.next))
		})
	}
}
