package server

import (
	"net/http"

	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
	"github.com/teranos/pulsedesk/logger"
	"github.com/teranos/pulsedesk/monitor"
	"github.com/teranos/pulsedesk/version"
)

type healthError struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error"`
}

type healthResponse struct {
	Healthy bool     `json:"healthy"`
	Message string   `json:"message"`
	Issues  []string `json:"issues,omitempty"`
	Unknown []string `json:"unknown,omitempty"`
}

// HandleHealth is the unauthenticated liveness probe
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Get().Short(),
	})
}

// HandleHealthCheck runs every health check
func (s *Server) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	report := s.deps.Health.Check(r.Context(), s.now())
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveReport(report)
	}

	resp := healthResponse{Healthy: report.Healthy, Message: report.Message, Unknown: report.Unknown}
	if !report.Healthy {
		resp.Issues = report.Issues
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleStatus returns the status snapshot
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.deps.Status == nil {
		writeError(w, http.StatusServiceUnavailable, "Status not available")
		return
	}
	status, err := s.deps.Status.Collect(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to collect status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleToken mints a new monitoring token
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	token, err := s.deps.Auth.MintToken(r.Context(), s.now())
	if err != nil {
		s.internalError(w, r, "Failed to create token", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

// HandleRestartFailedJobs requeues the background jobs over the retry ceiling
func (s *Server) HandleRestartFailedJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if s.deps.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "Job queue not available")
		return
	}
	n, err := s.deps.Queue.RequeueFailed(r.Context(), s.deps.Health.Config().RetryCeiling, s.now())
	if err != nil {
		s.internalError(w, r, "Failed to restart jobs", err)
		return
	}
	s.log.Infow("Restarted failed background jobs", logger.FieldCount, n)
	writeJSON(w, http.StatusOK, map[string]int{"restarted": n})
}

// HandleAmountCheck counts recently created records against thresholds
func (s *Server) HandleAmountCheck(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.deps.Amount == nil {
		writeError(w, http.StatusServiceUnavailable, "Amount check not available")
		return
	}

	var (
		th  monitor.Thresholds
		err error
	)
	for name, dst := range map[string]**int{
		"min_warning":  &th.MinWarning,
		"min_critical": &th.MinCritical,
		"max_warning":  &th.MaxWarning,
		"max_critical": &th.MaxCritical,
	} {
		if *dst, err = optionalInt(r, name); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	result, err := s.deps.Amount.Check(r.Context(), r.URL.Query().Get("periode"), th, s.now())
	switch {
	case errors.IsInvalidRequestError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.IsTransientError(err):
		s.log.Warnw("Amount check unavailable", logger.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "Amount check unavailable")
		return
	case err != nil:
		s.internalError(w, r, "Amount check failed", err)
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveAmount(result)
	}
	writeJSON(w, http.StatusOK, result)
}

// internalError logs err and answers 500, or 503 while sqlite is locked
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.With(logger.FieldsFromContext(r.Context())...).Errorw(msg,
		logger.FieldPath, r.URL.Path, logger.FieldError, err)
	if db.IsBusy(err) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, msg)
		return
	}
	writeError(w, http.StatusInternalServerError, msg)
}
