package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// Any method; non-GET requests are mutating and checked against the quota
	s.RegisterRouteHandler(RouteTenantAdmission, ChainMiddleware(s.TenantAdmissionHandler(), s.APIMiddleware(s.TenantMiddleware())...))

	s.RegisterRouteHandler("POST "+RouteSessions, ChainMiddleware(s.SessionAdmitHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteSessions, ChainMiddleware(s.SessionReleaseHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteAdminLicense, ChainMiddleware(s.AdminGetLicenseHandler(), s.APIMiddleware(s.RequireOperator())...))
	s.RegisterRouteHandler("POST "+RouteAdminLicense, ChainMiddleware(s.AdminAssignLicenseHandler(), s.APIMiddleware(s.RequireOperator())...))
	s.RegisterRouteHandler("POST "+RouteAdminLicenseAction, ChainMiddleware(s.AdminLicenseActionHandler(), s.APIMiddleware(s.RequireOperator())...))
	s.RegisterRouteHandler("GET "+RouteAdminStats, ChainMiddleware(s.AdminStatsHandler(), s.APIMiddleware(s.RequireOperator())...))
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
