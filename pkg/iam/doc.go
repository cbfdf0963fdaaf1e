// Package iam holds the credential layer of the senderpro backend: short-lived
// signed access tokens, persisted revocable refresh tokens, and scope-bound
// API keys used by the marketing integrations.
//
// # Sub-packages
//
//   - iam/auth     — JWT access tokens, refresh-token store, session service, Fiber middleware
//   - iam/apikey   — scoped API key bundles with auto-rotation
//   - iam/scopes   — the closed set of integration scopes
//   - iam/iamcontainer — dependency wiring for the whole module
//
// # Architecture
//
// Each sub-domain follows the same layering:
//
//	HTTP Handler  →  Service  →  Repository Interface  →  Infrastructure (Postgres/Redis)
//
// Every sub-domain exposes its own error registry ("AUTH", "APIKEY") built on
// errx, so callers can branch on error kind and HTTP layers can render a
// structured body without switch statements.
//
// # Credential model
//
// A login produces a JWT access token (stateless, 180 minutes by default)
// plus an opaque refresh token persisted in Postgres (10 days, revocable,
// several per user — one per active session). Integrations authenticate with
// scoped API keys: opaque delimited strings that embed the owning user, one
// scope, and an issue timestamp, validated without touching storage.
//
// One deliberate trust boundary: because API key validation is stateless,
// regenerating a user's key bundle does not retroactively invalidate copies
// of the previous keys — they stay accepted until their embedded timestamp
// ages past the expiry window. Only the stored bundle used for retrieval
// changes. Changing this would require signing keys and a revocation list,
// which is a product decision, not a patch.
package iam
