package main

import (
	"errors"
	"html/template"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	flashCookieName  = "senseinode_flash"
	noticeCookieName = "senseinode_notice"
)

// DashboardServer serves the account pages and the JSON API. Configuration
// is held in an atomic.Value so a reload never races in-flight requests, and
// templates sit behind a RWMutex for the same reason.
type DashboardServer struct {
	tmpl   *template.Template
	tmplMu sync.RWMutex

	cfg atomic.Value // Config

	users    *userStore
	nodes    *nodeStore
	ledger   *ledgerStore
	sessions *sessionService
	notifier *discordNotifier

	start time.Time
}

func NewDashboardServer(cfg Config, users *userStore, nodes *nodeStore, ledger *ledgerStore, sessions *sessionService, notifier *discordNotifier) *DashboardServer {
	tmpl, err := loadTemplates(cfg.DataDir)
	if err != nil {
		fatal("load templates", err)
	}
	s := &DashboardServer{
		tmpl:     tmpl,
		users:    users,
		nodes:    nodes,
		ledger:   ledger,
		sessions: sessions,
		notifier: notifier,
		start:    time.Now(),
	}
	s.cfg.Store(cfg)
	return s
}

func (s *DashboardServer) Config() Config {
	return s.cfg.Load().(Config)
}

func (s *DashboardServer) UpdateConfig(cfg Config) {
	s.cfg.Store(cfg)
}

// ReloadTemplates re-reads the template files from disk. Triggered by
// SIGUSR1 so operators can restyle pages without a restart.
func (s *DashboardServer) ReloadTemplates() error {
	tmpl, err := loadTemplates(s.Config().DataDir)
	if err != nil {
		return err
	}
	s.tmplMu.Lock()
	s.tmpl = tmpl
	s.tmplMu.Unlock()
	return nil
}

func (s *DashboardServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /signup", s.handleSignupPage)
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("POST /dashboard/registernode", s.handleRegisterNode)
	mux.HandleFunc("POST /dashboard/deletenode", s.handleDeleteNode)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboardJSON)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
}

func (s *DashboardServer) secureCookies() bool {
	return strings.HasPrefix(s.Config().PublicURL, "https://")
}

// currentUser resolves the session cookie to a user. The bool result is
// false when the request has no valid session; errors cover storage trouble
// only, never authentication outcome.
func (s *DashboardServer) currentUser(r *http.Request) (User, bool, error) {
	token := sessionTokenFromRequest(r)
	if token == "" {
		return User{}, false, nil
	}
	userID, err := s.sessions.UserID(r.Context(), token)
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	u, err := s.users.ByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}

// requireUser is the gate in front of every account page. Anonymous
// requests bounce to the login form; storage failures render the error page.
func (s *DashboardServer) requireUser(w http.ResponseWriter, r *http.Request) (User, bool) {
	u, ok, err := s.currentUser(r)
	if err != nil {
		logger.Error("resolve session failed", "error", err)
		s.renderErrorPage(w, "The dashboard is temporarily unavailable. Please try again.")
		return User{}, false
	}
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return User{}, false
	}
	return u, true
}

func (s *DashboardServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok, _ := s.currentUser(r); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *DashboardServer) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "signup", s.pageData(w, r, false))
}

func (s *DashboardServer) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "login", s.pageData(w, r, false))
}

func (s *DashboardServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	cfg := s.Config()
	in := signupInput{
		Name:          r.PostFormValue("name"),
		Email:         r.PostFormValue("email"),
		Wallet:        r.PostFormValue("wallet"),
		Password:      r.PostFormValue("password"),
		Confirm:       r.PostFormValue("confirm"),
		AcceptedTerms: r.PostFormValue("terms") == "on",
	}
	result, err := registerUser(r.Context(), s.users, cfg, in)
	if err != nil {
		if errors.Is(err, errConflict) {
			s.setFlash(w, "This email is already been taken.")
			http.Redirect(w, r, "/signup", http.StatusSeeOther)
			return
		}
		if msg, ok := userMessage(err); ok {
			s.setFlash(w, msg)
			http.Redirect(w, r, "/signup", http.StatusSeeOther)
			return
		}
		logger.Error("signup failed", "error", err)
		s.renderErrorPage(w, "Signup is temporarily unavailable. Please try again.")
		return
	}

	s.notifier.NotifySignup(result.User.Name)
	logger.Info("user registered", "user_id", result.User.ID)

	token, expires, err := s.sessions.Issue(r.Context(), result.User.ID)
	if err != nil {
		logger.Error("issue session after signup failed", "error", err)
		s.setNotice(w, "Account created. Your recovery phrase is: "+result.RecoveryPhrase+" (store it somewhere safe). Please log in.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	setSessionCookie(w, token, expires, s.secureCookies())
	s.setNotice(w, "Welcome! Your recovery phrase is: "+result.RecoveryPhrase+" (store it somewhere safe, it is shown only once).")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *DashboardServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	u, err := loginUser(r.Context(), s.users, r.PostFormValue("email"), r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			s.setFlash(w, "Wrong login details.")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		logger.Error("login failed", "error", err)
		s.renderErrorPage(w, "Login is temporarily unavailable. Please try again.")
		return
	}
	token, expires, err := s.sessions.Issue(r.Context(), u.ID)
	if err != nil {
		logger.Error("issue session failed", "error", err)
		s.renderErrorPage(w, "Login is temporarily unavailable. Please try again.")
		return
	}
	setSessionCookie(w, token, expires, s.secureCookies())
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *DashboardServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionTokenFromRequest(r); token != "" {
		if err := s.sessions.Revoke(r.Context(), token); err != nil {
			logger.Warn("revoke session failed", "error", err)
		}
	}
	clearSessionCookie(w, s.secureCookies())
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *DashboardServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	u, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	data, err := buildDashboardData(r.Context(), u, s.Config(), s.nodes, s.ledger)
	if err != nil {
		logger.Error("build dashboard failed", "user_id", u.ID, "error", err)
		s.renderErrorPage(w, "The dashboard is temporarily unavailable. Please try again.")
		return
	}
	data.Flash = s.takeFlash(w, r)
	data.Notice = s.takeNotice(w, r)
	data.BrandName = s.Config().BrandName
	s.renderPage(w, r, "dashboard", data)
}

func (s *DashboardServer) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	u, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	ipRaw := strings.TrimSpace(r.PostFormValue("ip"))
	portRaw := strings.TrimSpace(r.PostFormValue("port"))

	addr, err := netip.ParseAddr(ipRaw)
	if err != nil {
		s.setFlash(w, "Please enter a valid IP Address.")
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil || port < 1 || port > 65535 {
		s.setFlash(w, "Please enter a valid port.")
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	_, err = s.nodes.Add(r.Context(), u.ID, addr.String(), port)
	if err != nil {
		if errors.Is(err, errConflict) {
			s.setFlash(w, "You have already registered this IP.")
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		logger.Error("register node failed", "user_id", u.ID, "error", err)
		s.renderErrorPage(w, "Node registration is temporarily unavailable. Please try again.")
		return
	}
	logger.Info("node registered", "user_id", u.ID)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *DashboardServer) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	u, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	nodeID, err := strconv.ParseInt(strings.TrimSpace(r.PostFormValue("node_id")), 10, 64)
	if err != nil || nodeID <= 0 {
		s.setFlash(w, "Unknown node.")
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	if err := s.nodes.Remove(r.Context(), u.ID, nodeID); err != nil {
		if errors.Is(err, errNotFound) {
			s.setFlash(w, "Unknown node.")
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		logger.Error("delete node failed", "user_id", u.ID, "error", err)
		s.renderErrorPage(w, "Node removal is temporarily unavailable. Please try again.")
		return
	}
	logger.Info("node deleted", "user_id", u.ID, "node_id", nodeID)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// pageData builds the minimal layout payload for login/signup pages.
func (s *DashboardServer) pageData(w http.ResponseWriter, r *http.Request, loggedIn bool) dashboardData {
	return dashboardData{
		BrandName: s.Config().BrandName,
		LoggedIn:  loggedIn,
		Flash:     s.takeFlash(w, r),
		Notice:    s.takeNotice(w, r),
	}
}

func (s *DashboardServer) renderPage(w http.ResponseWriter, r *http.Request, name string, data dashboardData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	s.tmplMu.RLock()
	tmpl := s.tmpl
	s.tmplMu.RUnlock()
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		logger.Error("render template failed", "template", name, "error", err)
	}
}

type errorPageData struct {
	BrandName string
	LoggedIn  bool
	Flash     string
	Notice    string
	Message   string
}

func (s *DashboardServer) renderErrorPage(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	s.tmplMu.RLock()
	tmpl := s.tmpl
	s.tmplMu.RUnlock()
	data := errorPageData{BrandName: s.Config().BrandName, Message: msg}
	if err := tmpl.ExecuteTemplate(w, "error", data); err != nil {
		logger.Error("render error page failed", "error", err)
	}
}

// Flash and notice cookies carry one-shot messages across the
// redirect-after-post pattern. Values are URL-escaped since cookie values
// cannot hold spaces.
func (s *DashboardServer) setFlash(w http.ResponseWriter, msg string) {
	setOneShotCookie(w, flashCookieName, msg, s.secureCookies())
}

func (s *DashboardServer) setNotice(w http.ResponseWriter, msg string) {
	setOneShotCookie(w, noticeCookieName, msg, s.secureCookies())
}

func (s *DashboardServer) takeFlash(w http.ResponseWriter, r *http.Request) string {
	return takeOneShotCookie(w, r, flashCookieName, s.secureCookies())
}

func (s *DashboardServer) takeNotice(w http.ResponseWriter, r *http.Request) string {
	return takeOneShotCookie(w, r, noticeCookieName, s.secureCookies())
}

func setOneShotCookie(w http.ResponseWriter, name, msg string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    url.QueryEscape(msg),
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func takeOneShotCookie(w http.ResponseWriter, r *http.Request, name string, secure bool) string {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	msg, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}
	return msg
}
