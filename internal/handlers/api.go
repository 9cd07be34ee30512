package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finboard/internal/models"
	"finboard/internal/storage"

	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// APILogin exchanges credentials for a bearer token.
func (h *Handlers) APILogin(w http.ResponseWriter, r *http.Request) {
	var params models.LoginParams
	if err := decodeJSON(r, &params); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	params.Username = strings.TrimSpace(params.Username)
	if params.Username == "" || params.Password == "" {
		errorJSON(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := h.authenticate(r.Context(), params)
	if err != nil {
		if errors.Is(err, errBadCredentials) {
			errorJSON(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		logrus.WithError(err).Error("api login failed")
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	token, err := h.issuer.Sign(user)
	if err != nil {
		logrus.WithError(err).Error("failed to sign token")
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, models.AuthResponse{User: user, Token: token})
}

// TokenMiddleware authenticates API requests carrying a bearer token.
func (h *Handlers) TokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			errorJSON(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.issuer.Parse(raw)
		if err != nil {
			errorJSON(w, http.StatusUnauthorized, "invalid token")
			return
		}
		user, err := h.db.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				errorJSON(w, http.StatusUnauthorized, "invalid token")
				return
			}
			logrus.WithError(err).Error("token user lookup failed")
			errorJSON(w, http.StatusInternalServerError, "internal error")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// APIMe returns the token's user.
func (h *Handlers) APIMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GetUserFromContext(r))
}

// APIOverview returns the dashboard headline figures.
func (h *Handlers) APIOverview(w http.ResponseWriter, r *http.Request) {
	data, err := h.board.Overview(r.Context(), GetUserFromContext(r).ID)
	if err != nil {
		apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// APITrend returns monthly income and expense, ?months=N (default 6).
func (h *Handlers) APITrend(w http.ResponseWriter, r *http.Request) {
	months := trendMonths
	if s := r.URL.Query().Get("months"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxAPIMonths {
			errorJSON(w, http.StatusBadRequest, "months must be between 1 and 24")
			return
		}
		months = n
	}
	data, err := h.board.Trend(r.Context(), GetUserFromContext(r).ID, months)
	if err != nil {
		apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// APIAssets returns the asset distribution.
func (h *Handlers) APIAssets(w http.ResponseWriter, r *http.Request) {
	data, err := h.board.Assets(r.Context(), GetUserFromContext(r).ID)
	if err != nil {
		apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// APITransactions lists transactions, optionally for ?month=2006-01 and
// capped by ?limit=N.
func (h *Handlers) APITransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f storage.TransactionFilter
	if m := q.Get("month"); m != "" {
		from, to, err := storage.MonthRange(m, time.Local)
		if err != nil {
			errorJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		f.From, f.To = from, to
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			errorJSON(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	txs, err := h.db.ListTransactions(r.Context(), GetUserFromContext(r).ID, f)
	if err != nil {
		apiError(w, r, err)
		return
	}
	items := make([]models.TransactionItem, 0, len(txs))
	for _, t := range txs {
		items = append(items, t.Item())
	}
	writeJSON(w, http.StatusOK, items)
}

// APICreateTransaction records a transaction from a JSON body.
func (h *Handlers) APICreateTransaction(w http.ResponseWriter, r *http.Request) {
	var t models.Transaction
	if err := decodeJSON(r, &t); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}
	t.ID = 0
	t.UserID = GetUserFromContext(r).ID
	t.RecurringID = nil
	if err := h.db.CreateTransaction(r.Context(), &t); err != nil {
		apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t.Item())
}

// apiError answers 400 or 404 for errors the caller can fix and 500 otherwise.
func apiError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		errorJSON(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidAmount), errors.Is(err, models.ErrInvalidType),
		errors.Is(err, storage.ErrInvalidMonth):
		errorJSON(w, http.StatusBadRequest, err.Error())
	default:
		logrus.WithError(err).WithField("path", r.URL.Path).Error("api request failed")
		errorJSON(w, http.StatusInternalServerError, "internal error")
	}
}

// Health reports whether the database answers.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		logrus.WithError(err).Error("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
