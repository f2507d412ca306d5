package server

// Route path constants
const (
	// Tenant routes, behind TenantMiddleware
	RouteTenantAdmission = "/tenant/admission"

	// Session routes
	RouteSessions = "/sessions"

	// Operator routes
	RouteAdminLicense       = "/admin/tenants/{id}/license"
	RouteAdminLicenseAction = "/admin/tenants/{id}/license/{action}"
	RouteAdminStats         = "/admin/stats"

	RouteHealth = "/healthz"
)

// Request headers read by the tenant routes.
const (
	HeaderTenantID      = "X-Tenant-ID"
	HeaderResourceKind  = "X-Resource-Kind"
	HeaderResourceDelta = "X-Resource-Delta"
)
