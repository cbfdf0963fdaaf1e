package kernel

// ============================================================================
// Context Types
// ============================================================================

// AuthContext is the resolved credential attached to every authenticated
// request, whether it came in as a bearer token or an API key.
type AuthContext struct {
	UserID   UserID   `json:"user_id"`
	Email    string   `json:"email,omitempty"`
	Scopes   []string `json:"scopes"`
	IsAPIKey bool     `json:"is_api_key"`
}

// IsValid reports whether the AuthContext identifies someone.
func (ac *AuthContext) IsValid() bool {
	return !ac.UserID.IsEmpty()
}

// ScopeAll is the wildcard scope carried by session credentials; it
// satisfies every scope check.
const ScopeAll = "*"

// HasScope reports whether the context carries a specific scope.
// The wildcard ScopeAll grants everything.
func (ac *AuthContext) HasScope(scope string) bool {
	for _, s := range ac.Scopes {
		if s == scope || s == ScopeAll {
			return true
		}
	}
	return false
}

// HasAnyScope reports whether the context carries at least one of the scopes.
func (ac *AuthContext) HasAnyScope(scopes ...string) bool {
	for _, scope := range scopes {
		if ac.HasScope(scope) {
			return true
		}
	}
	return false
}

// ============================================================================
// Context Keys
// ============================================================================

type ContextKey string

const (
	// AuthContextKey stores the AuthContext in fiber Locals / context.Context.
	AuthContextKey ContextKey = "auth_context"

	// RequestIDKey stores the request ID.
	RequestIDKey ContextKey = "request_id"

	// ClientIPKey stores the caller IP for audit logging.
	ClientIPKey ContextKey = "client_ip"
)
