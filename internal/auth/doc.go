// Package auth issues and verifies bearer tokens, hashes passwords with
// argon2id and guards HTTP routes behind token verification.
package auth
