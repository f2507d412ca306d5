package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/licenses"
	"github.com/jrsteele09/go-tenant-gate/stats"
)

// RequireOperator guards the operator routes with the configured admin token.
func (s *Server) RequireOperator() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			want := s.config.GetAdminToken()
			if want == "" {
				next(w, r)
				return
			}
			got := bearerToken(r)
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tenant-gate"`)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "operator token required"})
				return
			}
			next(w, r)
		}
	}
}

type assignLicenseRequest struct {
	PlanID           string             `json:"plan_id"`
	InitialState     licenses.State     `json:"initial_state"`
	HasPaymentMethod bool               `json:"has_payment_method"`
	Overrides        licenses.Overrides `json:"overrides"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty"`
}

// AdminGetLicenseHandler returns the tenant's current license.
func (s *Server) AdminGetLicenseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := s.gateway.License(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// AdminAssignLicenseHandler binds the tenant to a plan as a TRIAL or ACTIVE license.
func (s *Server) AdminAssignLicenseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignLicenseRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		l, err := s.gateway.AssignLicense(r.Context(), licenses.AssignRequest{
			TenantID:         r.PathValue("id"),
			PlanID:           req.PlanID,
			InitialState:     req.InitialState,
			Overrides:        req.Overrides,
			HasPaymentMethod: req.HasPaymentMethod,
			ExpiresAt:        req.ExpiresAt,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, l)
	}
}

type licenseActionRequest struct {
	Reason string `json:"reason"`
}

// AdminLicenseActionHandler applies suspend, activate, cancel or renew.
func (s *Server) AdminLicenseActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("id")
		var req licenseActionRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		var l *licenses.License
		var err error
		switch action := r.PathValue("action"); action {
		case "suspend":
			l, err = s.gateway.SuspendLicense(r.Context(), tenantID, req.Reason)
		case "activate":
			l, err = s.gateway.ActivateLicense(r.Context(), tenantID)
		case "cancel":
			l, err = s.gateway.CancelLicense(r.Context(), tenantID)
		case "renew":
			l, err = s.gateway.RenewLicense(r.Context(), tenantID)
		default:
			err = tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "unknown license action %q", action)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// AdminStatsHandler aggregates tenant metrics. Query parameters: tenant
// (repeatable or comma separated, default every tenant), metric (likewise,
// default all) and timeout (per tenant, a Go duration).
func (s *Server) AdminStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var metrics []stats.Metric
		for _, name := range listParam(q["metric"]) {
			m := stats.Metric(name)
			if !m.Valid() {
				s.writeError(w, r, tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "unknown metric %q", name))
				return
			}
			metrics = append(metrics, m)
		}

		timeout := s.config.GetStatsTenantTimeout()
		if raw := q.Get("timeout"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				s.writeError(w, r, tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "timeout must be a positive duration"))
				return
			}
			timeout = d
		}

		report, err := s.gateway.AggregateStats(r.Context(), listParam(q["tenant"]), stats.NewMetricSet(metrics...), timeout)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func listParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
