// Package auth provides request authentication for sigil-gateway.
//
// # Authentication Method
//
// Every API request carries a personal access token as a bearer credential:
//
//	Authorization: Bearer sigil_<64 hex characters>
//
// The middleware hands the secret to the token service, which matches it
// against stored digests. Raw secrets are never persisted and never logged.
//
// # Failure Signaling
//
// A presented secret that does not match, for any reason, yields the same
// 401 response. Malformed secrets, unknown secrets, expired tokens, and
// storage faults are indistinguishable from the outside. Only the shape of
// the request itself (a missing or malformed Authorization header) is
// reported distinctly.
//
// # Identity Propagation
//
// On success the middleware attaches an Identity to the request context:
//
//	id := auth.FromContext(r.Context())
//	// id.OwnerID, id.TokenID
//
// Handlers scope every store operation to id.OwnerID. There are no roles;
// owners see and manage only their own resources.
package auth
