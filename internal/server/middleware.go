package server

import (
	"crypto/subtle"
	"net/http"
	"time"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		ev := s.log.Info()
		if status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", rec.bytes).
			Dur("elapsed", time.Since(start)).
			Msg("Request")
	})
}

// requireAdmin rejects requests that do not carry the admin password in
// the X-Admin-Password header or the pw query or form value.
func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAdmin(r) {
			writeMessage(w, http.StatusForbidden, levelError, "admin password required")
			return
		}
		next(w, r)
	})
}

func (s *Server) isAdmin(r *http.Request) bool {
	if s.adminPassword == "" {
		return false
	}
	given := r.Header.Get("X-Admin-Password")
	if given == "" {
		given = r.URL.Query().Get("pw")
	}
	if given == "" && isForm(r) {
		given = r.PostFormValue("pw")
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(s.adminPassword)) == 1
}
