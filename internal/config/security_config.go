package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
	SecurityAdmin                       // Access token with the admin role
)

// EndpointSecurityConfig maps "METHOD /route/template" to the required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Ops - Public
	"GET /healthz": SecurityPublic,

	// Gateway webhooks - Public, authenticated by signature
	"POST /webhooks/{gateway}": SecurityPublic,

	// Bookings - Access Protected
	"POST /api/v1/bookings":             SecurityAccess,
	"GET /api/v1/bookings/{id}":         SecurityAccess,
	"PATCH /api/v1/bookings/{id}":       SecurityAccess,
	"POST /api/v1/bookings/{id}/promo":  SecurityAccess,
	"POST /api/v1/bookings/{id}/cancel": SecurityAccess,

	// Payments - Access Protected
	"POST /api/v1/bookings/{id}/payments":               SecurityAccess,
	"POST /api/v1/bookings/{id}/payments/capture":       SecurityAccess,
	"POST /api/v1/bookings/{id}/payments/bakong/verify": SecurityAccess,
	"GET /api/v1/bookings/{id}/transactions":            SecurityAccess,

	// Admin
	"POST /api/v1/admin/bookings/{id}/reject": SecurityAdmin,
}

// GetSecurityLevel returns the security level for a route, defaulting to
// SecurityAccess for anything not listed.
func GetSecurityLevel(method, pathTemplate string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[method+" "+pathTemplate]; ok {
		return level
	}
	return SecurityAccess
}
