package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"finboard/internal/auth"
	"finboard/internal/config"
	"finboard/internal/dashboard"
	"finboard/internal/models"
	"finboard/internal/portfolio"
	"finboard/internal/recurring"
	"finboard/internal/storage"
	"finboard/internal/ui"

	"github.com/sirupsen/logrus"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie. The root route
	// only checks that it is present.
	SessionCookieName = "auth-storage"
	// minPasswordLen is enforced at registration.
	minPasswordLen = 6
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db         *storage.DB
	renderer   *ui.Renderer
	board      *dashboard.Service
	booker     *recurring.Booker
	issuer     *auth.Issuer
	thresholds portfolio.Thresholds
	widgets    map[string]loader

	sessionTTL   time.Duration
	secureCookie bool
	suspenseWait time.Duration
	now          func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, renderer *ui.Renderer, cfg config.Config) *Handlers {
	h := &Handlers{
		db:           db,
		renderer:     renderer,
		board:        dashboard.NewService(db),
		booker:       recurring.NewBooker(db),
		issuer:       auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		thresholds:   portfolio.DefaultThresholds,
		sessionTTL:   cfg.SessionTTL,
		secureCookie: cfg.SecureCookie,
		suspenseWait: cfg.SuspenseWait,
		now:          time.Now,
	}
	h.widgets = h.registry()
	return h
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

func withUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// AuthMiddleware wraps handlers to require authentication.
// It also implements rolling sessions: if a session is past the halfway point
// of its lifetime, it automatically renews the session.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			h.toLogin(w, r)
			return
		}

		info, err := h.db.ValidateSessionWithInfo(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				logrus.WithError(err).Error("session lookup failed")
			}
			h.clearSessionCookie(w)
			h.toLogin(w, r)
			return
		}

		now := h.now()
		if info.ExpiresAt.Sub(now) < h.sessionTTL/2 {
			if err := h.db.RenewSession(r.Context(), cookie.Value, now.Add(h.sessionTTL)); err != nil {
				logrus.WithError(err).WithField("user", info.User.ID).Warn("session renewal failed")
			} else {
				h.setSessionCookie(w, cookie.Value, info.Persistent)
			}
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), info.User)))
	})
}

func (h *Handlers) toLogin(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", "/login")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// Root sends visitors holding a session cookie to the dashboard and
// everyone else to the login page. The cookie is not validated here.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(SessionCookieName); err == nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// AuthForm holds data for the login and register pages.
type AuthForm struct {
	Error string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.hasSession(r) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	h.authPage(w, r, http.StatusOK, "login", "")
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.authPage(w, r, http.StatusBadRequest, "login", "表单格式错误")
		return
	}
	params := models.LoginParams{
		Username: strings.TrimSpace(r.FormValue("username")),
		Password: r.FormValue("password"),
		Remember: r.FormValue("remember") != "",
	}
	if params.Username == "" || params.Password == "" {
		h.authPage(w, r, http.StatusBadRequest, "login", "请输入用户名和密码")
		return
	}

	user, err := h.authenticate(r.Context(), params)
	if err != nil {
		if errors.Is(err, errBadCredentials) {
			h.authPage(w, r, http.StatusUnauthorized, "login", "用户名或密码错误")
			return
		}
		logrus.WithError(err).Error("login failed")
		h.authPage(w, r, http.StatusInternalServerError, "login", "登录失败，请稍后重试")
		return
	}

	if err := h.startSession(w, r, user, params.Remember); err != nil {
		logrus.WithError(err).WithField("user", user.ID).Error("failed to create session")
		h.authPage(w, r, http.StatusInternalServerError, "login", "登录失败，请稍后重试")
		return
	}
	logrus.WithField("user", user.Username).Info("user logged in")
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

var errBadCredentials = errors.New("invalid username or password")

func (h *Handlers) authenticate(ctx context.Context, params models.LoginParams) (*models.User, error) {
	user, err := h.db.GetUserByUsername(ctx, params.Username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(params.Password, user.PasswordHash) {
		return nil, errBadCredentials
	}
	return user, nil
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if h.hasSession(r) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	h.authPage(w, r, http.StatusOK, "register", "")
}

// Register creates an account and logs it in.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.authPage(w, r, http.StatusBadRequest, "register", "表单格式错误")
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	switch {
	case username == "":
		h.authPage(w, r, http.StatusBadRequest, "register", "请输入用户名")
		return
	case len(password) < minPasswordLen:
		h.authPage(w, r, http.StatusBadRequest, "register", "密码至少 6 位")
		return
	case password != r.FormValue("confirm"):
		h.authPage(w, r, http.StatusBadRequest, "register", "两次输入的密码不一致")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		logrus.WithError(err).Error("failed to hash password")
		h.authPage(w, r, http.StatusInternalServerError, "register", "注册失败，请稍后重试")
		return
	}
	user, err := h.db.CreateUser(r.Context(), models.User{
		Username:     username,
		Email:        strings.TrimSpace(r.FormValue("email")),
		Nickname:     strings.TrimSpace(r.FormValue("nickname")),
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			h.authPage(w, r, http.StatusConflict, "register", "用户名已存在")
			return
		}
		logrus.WithError(err).Error("failed to create user")
		h.authPage(w, r, http.StatusInternalServerError, "register", "注册失败，请稍后重试")
		return
	}

	if err := h.startSession(w, r, user, false); err != nil {
		logrus.WithError(err).WithField("user", user.ID).Error("failed to create session")
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	logrus.WithField("user", user.Username).Info("user registered")
	ui.Notify(r.Context(), ui.Success, "注册成功")
	ui.Flash(w, r)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.db.DeleteSession(r.Context(), cookie.Value); err != nil {
			logrus.WithError(err).Warn("failed to delete session")
		}
	}
	h.clearSessionCookie(w)
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", "/login")
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handlers) hasSession(r *http.Request) bool {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	_, err = h.db.ValidateSession(r.Context(), cookie.Value)
	return err == nil
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, user *models.User, remember bool) error {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return err
	}
	err = h.db.CreateSession(r.Context(), models.Session{
		Token:      token,
		UserID:     user.ID,
		ExpiresAt:  h.now().Add(h.sessionTTL),
		Persistent: remember,
	})
	if err != nil {
		return err
	}
	h.setSessionCookie(w, token, remember)
	return nil
}

// setSessionCookie writes the session cookie. Persistent cookies carry the
// session lifetime; others end with the browser.
func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string, persistent bool) {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if persistent {
		c.MaxAge = int(h.sessionTTL.Seconds())
	}
	http.SetCookie(w, c)
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) authPage(w http.ResponseWriter, r *http.Request, status int, view, msg string) {
	title := "登录"
	if view == "register" {
		title = "注册"
	}
	h.renderer.Page(w, r, status, ui.LayoutAuth, view, ui.Page{Title: title, Form: AuthForm{Error: msg}})
}

// NotFound renders the 404 page.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderer.Page(w, r, http.StatusNotFound, ui.LayoutAuth, "error", ui.Page{
		Title: "页面不存在",
		Form:  "您访问的页面不存在",
	})
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
