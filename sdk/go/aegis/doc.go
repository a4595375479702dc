// Package aegis is a Go client for the Aegis Core HTTP API.
package aegis
