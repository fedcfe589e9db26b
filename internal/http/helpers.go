package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"eaccountant/internal/core"
	"eaccountant/internal/services"
)

// SessionCookie carries the view session id.
const SessionCookie = "eaccountant_session"

// requestTimeout bounds a request that reaches the report source.
const requestTimeout = 15 * time.Second

// allowMethod writes 405 and returns false unless r uses method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	MethodNotAllowedError(method).Write(w)
	return false
}

// parseBool reads a query flag. "1", "true", "yes" and "on" are true.
func parseBool(r *http.Request, key string) bool {
	v := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// parsePeriod reads the period query parameter. Empty means the
// session's current period.
func parsePeriod(r *http.Request) (core.Period, error) {
	raw := sanitizeInput(r.URL.Query().Get("period"))
	if raw == "" {
		return "", nil
	}
	return core.ParsePeriod(raw)
}

// parseLimit reads a positive integer query parameter, clamped to max.
func parseLimit(r *http.Request, key string, def, max int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// session resolves the caller's view session and refreshes its cookie.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *services.Session {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sess, existed := s.svc.Session(id)
	if !existed || sess.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}
