package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/pulsedesk/auth"
	"github.com/teranos/pulsedesk/logger"
)

// Fixed error strings of the monitoring API
const (
	msgAuthentication     = "authentication failed"
	msgHealthUnauthorized = "Not authorized"
	msgUserUnauthorized   = "Not authorized (user)!"
	msgRateLimited        = "Too many requests"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests tags each request with an id and logs its outcome
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := logger.WithRequestID(r.Context(), requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.log.Debugw("HTTP request",
			logger.FieldRequestID, requestID,
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			"status", rec.status,
			logger.FieldDurationMS, time.Since(start).Milliseconds())
	})
}

func (s *Server) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if l := s.limiter.Load(); l != nil && !l.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, msgRateLimited)
			return
		}
		next(w, r)
	}
}

// requireAuth lets the request through only for an authenticated caller.
// health_check answers failures in its own {healthy:false} shape.
func (s *Server) requireAuth(next http.HandlerFunc, allowToken bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.deps.Auth.Check(r.Context(), auth.CredentialsFromRequest(r), allowToken, s.now())
		if err != nil {
			s.writeAuthError(w, r, err)
			return
		}
		next(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
	}
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.log.With(logger.FieldsFromContext(r.Context())...)
	healthCheck := r.URL.Path == MonitoringPrefix+"/health_check"

	switch {
	case auth.IsAuthorizationError(err):
		log.Infow("Monitoring caller lacks permission", logger.FieldPath, r.URL.Path, logger.FieldError, err)
		if healthCheck {
			writeJSON(w, http.StatusUnauthorized, healthError{Error: msgUserUnauthorized})
			return
		}
		writeError(w, http.StatusUnauthorized, msgUserUnauthorized)
	case auth.IsAuthenticationError(err):
		log.Debugw("Monitoring authentication failed", logger.FieldPath, r.URL.Path, logger.FieldError, err)
		if healthCheck {
			writeJSON(w, http.StatusUnauthorized, healthError{Error: msgHealthUnauthorized})
			return
		}
		writeError(w, http.StatusUnauthorized, msgAuthentication)
	default:
		log.Errorw("Monitoring authentication unavailable", logger.FieldPath, r.URL.Path, logger.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "Authentication unavailable")
	}
}
