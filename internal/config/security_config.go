// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecuritySigned                      // HMAC-signed provider callback
	SecurityAccess                      // Access token required
)

// RouteSecurityConfig maps route templates to their required security level
var RouteSecurityConfig = map[string]SecurityLevel{
	// Operational
	"/healthz": SecurityPublic,

	// Receipt documents are fetched by clients from emailed links
	"/receipts/{key:.+}": SecurityPublic,

	// Payment provider callbacks carry their own signature
	"/webhooks/payments": SecuritySigned,

	// Ledger API - Access Protected
	"/api/v1/payments":                  SecurityAccess,
	"/api/v1/payments/{id}":             SecurityAccess,
	"/api/v1/payments/{id}/receipt":     SecurityAccess,
	"/api/v1/payments/pay-client-debts": SecurityAccess,
	"/api/v1/clients/{id}/payments":     SecurityAccess,
	"/api/v1/clients/{id}/debt":         SecurityAccess,
	"/api/v1/clients/{id}/credit":       SecurityAccess,
	"/api/v1/notifications":             SecurityAccess,
	"/api/v1/notifications/{id}/read":   SecurityAccess,

	// gRPC operational services
	"/grpc.health.v1.Health/Check":                                   SecurityPublic,
	"/grpc.health.v1.Health/Watch":                                   SecurityPublic,
	"/grpc.health.v1.Health/List":                                    SecurityPublic,
	"/grpc.reflection.v1.ServerReflection/ServerReflectionInfo":      SecurityPublic,
	"/grpc.reflection.v1alpha.ServerReflection/ServerReflectionInfo": SecurityPublic,
}

// GetSecurityLevel returns the security level for a given route template or
// gRPC full method name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := RouteSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown routes
	return SecurityAccess
}
