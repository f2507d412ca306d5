package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/licenses"
	"github.com/jrsteele09/go-tenant-gate/quota"
	"github.com/jrsteele09/go-tenant-gate/sessions"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

// errorResponse is the JSON body of every failed request. The optional
// fields carry the detail of the structured error behind it.
type errorResponse struct {
	Error    string               `json:"error"`
	Message  string               `json:"message"`
	TenantID string               `json:"tenant_id,omitempty"`
	State    licenses.State       `json:"state,omitempty"`
	Reason   string               `json:"reason,omitempty"`
	Kind     tenants.ResourceKind `json:"kind,omitempty"`
	Scope    sessions.Scope       `json:"scope,omitempty"`
	Limit    *int64               `json:"limit,omitempty"`
	Current  *int64               `json:"current,omitempty"`
}

// errorStatus maps an error kind to its code and HTTP status. Order matters:
// the first matching kind wins.
var errorStatus = []struct {
	kind   error
	code   string
	status int
}{
	{tgerrors.ErrInvalidArgument, "invalid_argument", http.StatusBadRequest},
	{tgerrors.ErrInvalidSessionToken, "invalid_session_token", http.StatusUnauthorized},
	{tgerrors.ErrTenantNotFound, "tenant_not_found", http.StatusNotFound},
	{tgerrors.ErrTenantNotProvisioned, "tenant_not_provisioned", http.StatusServiceUnavailable},
	{tgerrors.ErrTenantSuspended, "tenant_suspended", http.StatusForbidden},
	{tgerrors.ErrBackendUnavailable, "backend_unavailable", http.StatusServiceUnavailable},
	{tgerrors.ErrHandleEvicted, "backend_unavailable", http.StatusServiceUnavailable},
	{tgerrors.ErrLicenseDenied, "license_denied", http.StatusForbidden},
	{tgerrors.ErrQuotaExceeded, "quota_exceeded", http.StatusTooManyRequests},
	{tgerrors.ErrSessionLimit, "session_limit", http.StatusTooManyRequests},
	{tgerrors.ErrGracePeriodElapsed, "grace_period_elapsed", http.StatusConflict},
	{tgerrors.ErrIllegalTransition, "illegal_transition", http.StatusConflict},
	{tgerrors.ErrNoLicense, "no_license", http.StatusNotFound},
	{tgerrors.ErrNotFound, "not_found", http.StatusNotFound},
	{tgerrors.ErrConflict, "conflict", http.StatusConflict},
}

// paymentStates are license denials the tenant can clear by paying.
var paymentStates = map[licenses.State]bool{
	licenses.StateTrial:          true,
	licenses.StateExpired:        true,
	licenses.StatePendingPayment: true,
}

// writeError renders err with the status of its kind. Only unexpected
// errors are logged; denials are part of normal operation.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := describeError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func describeError(err error) (int, errorResponse) {
	body := errorResponse{Error: "internal_error", Message: err.Error()}
	status := http.StatusInternalServerError
	for _, m := range errorStatus {
		if tgerrors.Is(err, m.kind) {
			body.Error, status = m.code, m.status
			break
		}
	}

	var admission *licenses.AdmissionError
	var exceeded *quota.ExceededError
	var limit *sessions.LimitError
	var transition *licenses.TransitionError
	switch {
	case tgerrors.As(err, &admission):
		body.TenantID, body.State, body.Reason = admission.TenantID, admission.State, admission.Reason
		if paymentStates[admission.State] {
			status = http.StatusPaymentRequired
		}
	case tgerrors.As(err, &exceeded):
		body.TenantID, body.Kind = exceeded.TenantID, exceeded.Kind
		body.Limit, body.Current = &exceeded.Limit, &exceeded.Current
	case tgerrors.As(err, &limit):
		body.TenantID, body.Scope = limit.TenantID, limit.Scope
		body.Limit, body.Current = &limit.Limit, &limit.Current
	case tgerrors.As(err, &transition):
		body.TenantID, body.State = transition.TenantID, transition.From
	}
	if status == http.StatusInternalServerError {
		body.Message = "internal server error"
	}
	return status, body
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "decode request body: %v", err)
	}
	return nil
}
