// Package ethereum implements web3.Session on top of go-ethereum: a keyed
// transactor bound to the endpoint's chain id, serialized broadcasting and
// bounded receipt polling.
package ethereum
