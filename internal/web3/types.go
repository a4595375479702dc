package web3

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Status classifies how a submitted transaction ended.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
	StatusTimedOut  Status = "timed_out"
	StatusDropped   Status = "dropped"
)

// Sentinel causes carried by non-confirmed outcomes.
var (
	ErrReverted       = errors.New("transaction reverted")
	ErrConfirmTimeout = errors.New("timed out waiting for receipt")
	ErrDropped        = errors.New("transaction dropped")
)

// Call describes a single state-changing transaction sent by the signing
// identity. Label names the operation in logs and metrics.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
	Label string
}

// Outcome is the result of SubmitAndConfirm. Hash is set as soon as the
// transaction was broadcast, even when Status is not confirmed.
type Outcome struct {
	Hash        common.Hash
	Status      Status
	BlockNumber uint64
	GasUsed     uint64
}

// Confirmed reports whether a receipt with success status was observed.
func (o Outcome) Confirmed() bool { return o.Status == StatusConfirmed }

// Session is the single choke point for on-chain state changes: one signing
// identity bound to one RPC endpoint and chain id.
type Session interface {
	SubmitAndConfirm(ctx context.Context, call Call) (Outcome, error)
	Balance(ctx context.Context, address common.Address) (*big.Int, error)
	Address() common.Address
	ChainID() *big.Int
	Close()
}
