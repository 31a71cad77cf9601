package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

type dashboardHarness struct {
	server *DashboardServer
	mux    *http.ServeMux
	users  *userStore
	nodes  *nodeStore
	ledger *ledgerStore
}

func newDashboardHarness(t *testing.T) *dashboardHarness {
	t.Helper()
	db := newTestDB(t)
	cfg := testAuthConfig()
	cfg.DataDir = t.TempDir()
	if err := ensureDefaultTemplates(cfg.DataDir); err != nil {
		t.Fatalf("ensureDefaultTemplates: %v", err)
	}

	users := newUserStore(db, time.Second)
	nodes := newNodeStore(db, time.Second)
	ledger := newLedgerStore(db, time.Second)
	sessions := newSessionService(db, cfg.SessionSecret, cfg.sessionTTL(), time.Second)
	server := NewDashboardServer(cfg, users, nodes, ledger, sessions, newDiscordNotifier("", ""))

	mux := http.NewServeMux()
	server.Routes(mux)
	return &dashboardHarness{server: server, mux: mux, users: users, nodes: nodes, ledger: ledger}
}

func (h *dashboardHarness) signupAndLogin(t *testing.T, email string) *http.Cookie {
	t.Helper()
	result, err := registerUser(context.Background(), h.users, h.server.Config(), validSignupInput(email))
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	token, expires, err := h.server.sessions.Issue(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return &http.Cookie{Name: sessionCookieName, Value: token, Expires: expires}
}

func (h *dashboardHarness) do(method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func flashFromResponse(rec *httptest.ResponseRecorder) string {
	for _, c := range rec.Result().Cookies() {
		if c.Name == flashCookieName && c.MaxAge >= 0 {
			msg, _ := url.QueryUnescape(c.Value)
			return msg
		}
	}
	return ""
}

func TestDashboardRequiresLogin(t *testing.T) {
	h := newDashboardHarness(t)

	rec := h.do(http.MethodGet, "/dashboard", nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("redirect: got %q want /login", loc)
	}
}

func TestDashboardRendersForLoggedInUser(t *testing.T) {
	h := newDashboardHarness(t)
	cookie := h.signupAndLogin(t, "render@example.com")

	rec := h.do(http.MethodGet, "/dashboard", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200, body: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Satoshi") {
		t.Fatalf("dashboard should greet the user, body: %s", body)
	}
	if !strings.Contains(body, "No nodes registered yet.") {
		t.Fatalf("fresh account should show an empty node table")
	}
}

func TestSignupFlowSetsSessionCookie(t *testing.T) {
	h := newDashboardHarness(t)

	form := url.Values{
		"name":     {"Satoshi"},
		"email":    {"flow@example.com"},
		"wallet":   {"LC" + strings.Repeat("a", 30)},
		"password": {"correct-horse"},
		"confirm":  {"correct-horse"},
		"terms":    {"on"},
	}
	rec := h.do(http.MethodPost, "/signup", form)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("redirect: got %q want /dashboard", loc)
	}
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			session = c
		}
	}
	if session == nil || session.Value == "" {
		t.Fatalf("signup should set a session cookie")
	}
	if !session.HttpOnly {
		t.Fatalf("session cookie must be HttpOnly")
	}
}

func TestSignupDuplicateEmailFlash(t *testing.T) {
	h := newDashboardHarness(t)
	h.signupAndLogin(t, "taken@example.com")

	form := url.Values{
		"name":     {"Another"},
		"email":    {"taken@example.com"},
		"wallet":   {"LC" + strings.Repeat("b", 30)},
		"password": {"other-password"},
		"confirm":  {"other-password"},
		"terms":    {"on"},
	}
	rec := h.do(http.MethodPost, "/signup", form)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusSeeOther)
	}
	if got := flashFromResponse(rec); got != "This email is already been taken." {
		t.Fatalf("flash: got %q", got)
	}
}

func TestUpdateConfigAppliesToHandlers(t *testing.T) {
	h := newDashboardHarness(t)

	closed := h.server.Config()
	closed.RegistrationOpen = false
	h.server.UpdateConfig(closed)

	form := url.Values{
		"name":     {"Latecomer"},
		"email":    {"late@example.com"},
		"wallet":   {"LC" + strings.Repeat("c", 30)},
		"password": {"correct-horse"},
		"confirm":  {"correct-horse"},
		"terms":    {"on"},
	}
	rec := h.do(http.MethodPost, "/signup", form)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusSeeOther)
	}
	if got := flashFromResponse(rec); !strings.Contains(got, "currently closed") {
		t.Fatalf("flash: got %q", got)
	}
	if _, err := h.users.ByEmail(context.Background(), "late@example.com"); !errors.Is(err, errNotFound) {
		t.Fatalf("closed registration must not create an account, got %v", err)
	}
}

func TestLoginWrongDetailsFlash(t *testing.T) {
	h := newDashboardHarness(t)
	h.signupAndLogin(t, "lwd@example.com")

	form := url.Values{"email": {"lwd@example.com"}, "password": {"bad-password"}}
	rec := h.do(http.MethodPost, "/login", form)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusSeeOther)
	}
	if got := flashFromResponse(rec); got != "Wrong login details." {
		t.Fatalf("flash: got %q", got)
	}
}

func TestRegisterNodeValidation(t *testing.T) {
	h := newDashboardHarness(t)
	cookie := h.signupAndLogin(t, "nodeval@example.com")

	rec := h.do(http.MethodPost, "/dashboard/registernode", url.Values{"ip": {"not-an-ip"}, "port": {"9332"}}, cookie)
	if got := flashFromResponse(rec); got != "Please enter a valid IP Address." {
		t.Fatalf("bad ip flash: got %q", got)
	}

	rec = h.do(http.MethodPost, "/dashboard/registernode", url.Values{"ip": {"203.0.113.4"}, "port": {"99999"}}, cookie)
	if got := flashFromResponse(rec); got != "Please enter a valid port." {
		t.Fatalf("bad port flash: got %q", got)
	}

	// Nothing may be persisted by rejected input.
	count, err := h.nodes.CountAll(context.Background())
	if err != nil {
		t.Fatalf("CountAll: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected registrations persisted %d nodes", count)
	}
}

func TestRegisterNodeAndDuplicate(t *testing.T) {
	h := newDashboardHarness(t)
	cookie := h.signupAndLogin(t, "nodedup@example.com")

	form := url.Values{"ip": {"203.0.113.4"}, "port": {"9332"}}
	rec := h.do(http.MethodPost, "/dashboard/registernode", form, cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusSeeOther)
	}
	if got := flashFromResponse(rec); got != "" {
		t.Fatalf("unexpected flash on success: %q", got)
	}

	// Same IP again, even with another port.
	rec = h.do(http.MethodPost, "/dashboard/registernode", url.Values{"ip": {"203.0.113.4"}, "port": {"19332"}}, cookie)
	if got := flashFromResponse(rec); got != "You have already registered this IP." {
		t.Fatalf("duplicate flash: got %q", got)
	}
}

func TestDeleteNodeByID(t *testing.T) {
	h := newDashboardHarness(t)
	cookie := h.signupAndLogin(t, "nodedel@example.com")

	u, err := h.users.ByEmail(context.Background(), "nodedel@example.com")
	if err != nil {
		t.Fatalf("ByEmail: %v", err)
	}
	nodeID, err := h.nodes.Add(context.Background(), u.ID, "203.0.113.77", 9332)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	rec := h.do(http.MethodPost, "/dashboard/deletenode", url.Values{"node_id": {strconv.FormatInt(nodeID, 10)}}, cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusSeeOther)
	}
	list, err := h.nodes.ByUser(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ByUser: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("node not deleted: %+v", list)
	}

	rec = h.do(http.MethodPost, "/dashboard/deletenode", url.Values{"node_id": {"424242"}}, cookie)
	if got := flashFromResponse(rec); got != "Unknown node." {
		t.Fatalf("unknown node flash: got %q", got)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	h := newDashboardHarness(t)
	cookie := h.signupAndLogin(t, "logout@example.com")

	rec := h.do(http.MethodPost, "/logout", nil, cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusSeeOther)
	}

	rec = h.do(http.MethodGet, "/dashboard", nil, cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("revoked session should bounce to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestDashboardJSON(t *testing.T) {
	h := newDashboardHarness(t)

	rec := h.do(http.MethodGet, "/api/dashboard", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status: got %d want 401", rec.Code)
	}

	cookie := h.signupAndLogin(t, "api@example.com")
	rec = h.do(http.MethodGet, "/api/dashboard", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200, body: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type: got %q", ct)
	}
	var data dashboardData
	if err := fastJSONUnmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Ticker != coinTicker {
		t.Fatalf("ticker: got %q want %q", data.Ticker, coinTicker)
	}
	if data.PendingBalance != "0.00000000" {
		t.Fatalf("pending balance for a fresh account: got %q", data.PendingBalance)
	}
}

func TestHealthz(t *testing.T) {
	h := newDashboardHarness(t)

	rec := h.do(http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("body: %s", rec.Body.String())
	}
}
