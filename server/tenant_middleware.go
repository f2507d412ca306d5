package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-tenant-gate/gateway"
	tgerrors "github.com/jrsteele09/go-tenant-gate/internal/errors"
	"github.com/jrsteele09/go-tenant-gate/tenants"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyTenantID stores the resolved tenant ID
	ContextKeyTenantID ContextKey = "tenant_id"
	// ContextKeyAdmitted stores the *gateway.Admitted of the request
	ContextKeyAdmitted ContextKey = "admitted"
)

// TenantMiddleware admits the request for the tenant named by the X-Tenant-ID
// header or, failing that, the request subdomain. Requests with a method other
// than GET, HEAD or OPTIONS are mutating and, when X-Resource-Kind is set, are
// checked against that resource's quota for X-Resource-Delta (default 1).
func (s *Server) TenantMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			req, err := admissionRequest(r)
			if err != nil {
				s.writeError(w, r, err)
				return
			}

			admitted, err := s.gateway.Admit(r.Context(), req)
			if err != nil {
				s.logger.Debug().Err(err).Str("tenant", req.Identifier).Str("method", r.Method).Msg("request denied")
				s.writeError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyTenantID, admitted.Descriptor.TenantID)
			ctx = context.WithValue(ctx, ContextKeyAdmitted, admitted)
			next(w, r.WithContext(ctx))
		}
	}
}

// AdmittedFrom returns what TenantMiddleware stored for the request.
func AdmittedFrom(ctx context.Context) (*gateway.Admitted, bool) {
	admitted, ok := ctx.Value(ContextKeyAdmitted).(*gateway.Admitted)
	return admitted, ok
}

func admissionRequest(r *http.Request) (gateway.Request, error) {
	req := gateway.Request{
		Identifier: TenantIdentifier(r),
		Mutating:   isMutating(r.Method),
	}
	if req.Identifier == "" {
		return req, tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "tenant identifier required in %s header or subdomain", HeaderTenantID)
	}

	kind := tenants.ResourceKind(r.Header.Get(HeaderResourceKind))
	if kind == "" {
		return req, nil
	}
	if !kind.Valid() {
		return req, tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "unknown resource kind %q", kind)
	}
	req.Kind, req.Delta = kind, 1
	if raw := r.Header.Get(HeaderResourceDelta); raw != "" {
		delta, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || delta < 0 {
			return req, tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "%s must be a non-negative integer", HeaderResourceDelta)
		}
		req.Delta = delta
	}
	return req, nil
}

// TenantIdentifier reads the tenant id or slug from the X-Tenant-ID header,
// then from the first label of the host (acme.example.com is "acme").
func TenantIdentifier(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderTenantID)); id != "" {
		return id
	}

	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return ""
	}
	sub := strings.SplitN(host, ".", 2)[0]
	if sub == "www" {
		return ""
	}
	return sub
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
