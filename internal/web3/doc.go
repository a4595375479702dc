// Package web3 defines the chain-facing contract used by the dispatcher: a
// Session that signs, broadcasts and confirms transactions, and the Outcome
// it reports. Concrete sessions live in subpackages.
package web3
