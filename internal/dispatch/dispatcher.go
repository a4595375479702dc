package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	apperrors "aegis-core/internal/errors"
	"aegis-core/internal/web3"
	"aegis-core/internal/web3/contracts"
	"aegis-core/pkg/logger"
)

// Operation labels used in logs, metrics and settlement records.
const (
	OpNativeTransfer = "native_transfer"
	OpTokenTransfer  = "token_transfer"
	OpSetLimit       = "set_limit"
	OpMint           = "mint"
	OpFund           = "fund"
)

// TransferRecord describes a confirmed transfer handed to a Recorder.
type TransferRecord struct {
	Intent    TransferIntent
	Outcome   web3.Outcome
	Operator  common.Address
	Initiator string
}

// Recorder receives every confirmed native or token transfer. It must not
// block for long and cannot fail the request.
type Recorder interface {
	RecordTransfer(ctx context.Context, record TransferRecord)
}

// Observer is notified of every submission attempt.
type Observer interface {
	ObserveSubmission(operation string, status web3.Status, elapsed time.Duration)
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder installs a transfer recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithObserver installs a submission observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// Dispatcher turns validated intents into contract calls and drives them
// through the session.
type Dispatcher struct {
	session  web3.Session
	identity common.Address
	recorder Recorder
	observer Observer
	log      *slog.Logger
}

// New returns a Dispatcher. identity is the address of the identity
// contract that receives mint calls.
func New(session web3.Session, identity common.Address, opts ...Option) (*Dispatcher, error) {
	if session == nil {
		return nil, errors.New("dispatcher requires a chain session")
	}
	d := &Dispatcher{session: session, identity: identity, log: logger.Named("dispatch")}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Transfer relays a native or token transfer through the caller's wallet
// contract. The signing identity is only the relayer: the transaction is
// always addressed to the wallet, never straight to the target.
func (d *Dispatcher) Transfer(ctx context.Context, intent TransferIntent, initiator string) (web3.Outcome, error) {
	var (
		call web3.Call
		err  error
	)
	switch in := intent.(type) {
	case NativeTransfer:
		if in.Amount == nil {
			return web3.Outcome{}, invalidAmount("")
		}
		call = web3.Call{To: in.Wallet, Label: OpNativeTransfer}
		call.Data, err = contracts.PackExecute(in.Target, in.Amount, nil)
	case TokenTransfer:
		if in.Amount == nil {
			return web3.Outcome{}, invalidAmount("")
		}
		call = web3.Call{To: in.Wallet, Label: OpTokenTransfer}
		call.Data, err = contracts.PackExecuteERC20(in.Token, in.Target, in.Amount)
	default:
		return web3.Outcome{}, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("unsupported transfer intent %T", intent))
	}
	if err != nil {
		return web3.Outcome{}, apperrors.Wrap(apperrors.CodeInvalidArgument, err, "encode transfer call")
	}

	outcome, err := d.submit(ctx, call)
	if err != nil {
		return outcome, err
	}
	if d.recorder != nil {
		d.recorder.RecordTransfer(ctx, TransferRecord{
			Intent:    intent,
			Outcome:   outcome,
			Operator:  d.session.Address(),
			Initiator: initiator,
		})
	}
	return outcome, nil
}

// SetLimit calls setLimit(agent, limit) on the rules contract.
func (d *Dispatcher) SetLimit(ctx context.Context, intent LimitIntent) (web3.Outcome, error) {
	if intent.Limit == nil {
		return web3.Outcome{}, invalidAmount("")
	}
	data, err := contracts.PackSetLimit(intent.Agent, intent.Limit)
	if err != nil {
		return web3.Outcome{}, apperrors.Wrap(apperrors.CodeInvalidArgument, err, "encode setLimit call")
	}
	return d.submit(ctx, web3.Call{To: intent.Rules, Data: data, Label: OpSetLimit})
}

// Mint calls mint(recipient, uri) on the fixed identity contract.
func (d *Dispatcher) Mint(ctx context.Context, intent MintIntent) (web3.Outcome, error) {
	data, err := contracts.PackMint(intent.Recipient, intent.URI)
	if err != nil {
		return web3.Outcome{}, apperrors.Wrap(apperrors.CodeInvalidArgument, err, "encode mint call")
	}
	return d.submit(ctx, web3.Call{To: d.identity, Data: data, Label: OpMint})
}

// Fund sends a plain value transfer from the signing identity to the wallet.
func (d *Dispatcher) Fund(ctx context.Context, intent FundIntent) (web3.Outcome, error) {
	if intent.Amount == nil {
		return web3.Outcome{}, invalidAmount("")
	}
	return d.submit(ctx, web3.Call{To: intent.Wallet, Value: intent.Amount, Label: OpFund})
}

// Balance returns the native balance of address in wei.
func (d *Dispatcher) Balance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := ParseAddress("address", address)
	if err != nil {
		return nil, err
	}
	return d.session.Balance(ctx, addr)
}

func (d *Dispatcher) submit(ctx context.Context, call web3.Call) (web3.Outcome, error) {
	start := time.Now()
	outcome, err := d.session.SubmitAndConfirm(ctx, call)
	if d.observer != nil {
		status := outcome.Status
		if status == "" {
			status = "failed"
		}
		d.observer.ObserveSubmission(call.Label, status, time.Since(start))
	}
	if err != nil {
		d.log.Warn("dispatch failed", "operation", call.Label, "to", call.To.Hex(), "error", err)
		return outcome, err
	}
	return outcome, nil
}
