package server

import (
	"net/http"
	"strings"
	"time"

	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/licenses"
	"github.com/jrsteele09/go-tenant-gate/quota"
)

type admissionResponse struct {
	TenantID   string              `json:"tenant_id"`
	Slug       string              `json:"slug"`
	Name       string              `json:"name,omitempty"`
	Driver     string              `json:"driver"`
	State      licenses.State      `json:"state,omitempty"`
	Unlicensed bool                `json:"unlicensed"`
	Plan       string              `json:"plan,omitempty"`
	Overrides  *licenses.Overrides `json:"overrides,omitempty"`
	Quota      *quota.Decision     `json:"quota,omitempty"`
	Remaining  *int64              `json:"remaining,omitempty"`
}

// TenantAdmissionHandler reports how the tenant of the request was admitted.
func (s *Server) TenantAdmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admitted, ok := AdmittedFrom(r.Context())
		if !ok {
			s.writeError(w, r, tgerrors.Wrapf(tgerrors.ErrTenantNotFound, "request was not admitted"))
			return
		}

		resp := admissionResponse{
			TenantID:   admitted.Descriptor.TenantID,
			Slug:       admitted.Descriptor.Slug,
			Name:       admitted.Descriptor.Name,
			Driver:     admitted.Handle.Connection().DriverName(),
			State:      admitted.Admission.Effective,
			Unlicensed: admitted.Admission.Unlicensed,
			Quota:      admitted.Quota,
		}
		if admitted.Admission.Plan != nil {
			resp.Plan = admitted.Admission.Plan.Name
		}
		if admitted.Admission.License != nil {
			resp.Overrides = &admitted.Admission.License.Overrides
		}
		if admitted.Quota != nil {
			remaining := admitted.Quota.Remaining()
			resp.Remaining = &remaining
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type sessionRequest struct {
	Tenant string `json:"tenant"`
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

// SessionAdmitHandler admits a session for an already authenticated user. The
// tenant comes from the body or, like TenantMiddleware, the header or host.
func (s *Server) SessionAdmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if req.Tenant == "" {
			req.Tenant = TenantIdentifier(r)
		}
		if req.Tenant == "" || req.UserID == "" {
			s.writeError(w, r, tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "tenant and user_id are required"))
			return
		}

		tok, err := s.gateway.TryAdmitSession(r.Context(), req.Tenant, req.UserID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sessionResponse{
			Token:     tok.Raw,
			SessionID: tok.SessionID,
			TenantID:  tok.TenantID,
			UserID:    tok.UserID,
			IssuedAt:  tok.IssuedAt,
		})
	}
}

// SessionReleaseHandler releases the session named by a bearer token or a
// token in the body. Releasing twice is not an error.
func (s *Server) SessionReleaseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			var req sessionRequest
			if err := decodeJSON(r, &req); err != nil {
				s.writeError(w, r, err)
				return
			}
			raw = req.Token
		}
		if raw == "" {
			s.writeError(w, r, tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "session token required"))
			return
		}

		if _, err := s.gateway.ReleaseSessionRaw(r.Context(), raw); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
