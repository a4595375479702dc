// Package api exposes the HTTP surface: login and registration, relayed
// payments, funding, spending limits, identity minting and the compliance
// registry. Every route except /api/auth/* and /health requires a bearer
// token.
package api
