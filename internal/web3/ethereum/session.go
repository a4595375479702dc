package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	apperrors "aegis-core/internal/errors"
	"aegis-core/internal/web3"
	"aegis-core/pkg/logger"
)

const (
	defaultConfirmTimeout = 2 * time.Minute
	defaultPollInterval   = time.Second
)

// Config describes the endpoint and signing identity of a Session.
type Config struct {
	RPCURL         string
	PrivateKey     string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Backend is the subset of the node API a Session needs. Both ethclient and
// the simulated backend client satisfy it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*coretypes.Transaction, bool, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Session owns the process signing identity and its RPC connection.
// Signing and broadcasting are serialized so concurrent callers never race
// for the same nonce; receipt waits run concurrently.
type Session struct {
	backend Backend
	opts    *bind.TransactOpts
	from    common.Address
	chainID *big.Int

	confirmTimeout time.Duration
	pollInterval   time.Duration

	// commit mines a block after each broadcast on simulated chains.
	commit func()
	close  func()
	log    *slog.Logger

	mu sync.Mutex
}

var _ web3.Session = (*Session)(nil)

// NewSession dials cfg.RPCURL, discovers the chain id from the endpoint and
// binds the signing key to it. Any failure is returned; callers treat it as
// fatal.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}
	key, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}

	s, err := newSession(key, chainID, eth, cfg)
	if err != nil {
		eth.Close()
		return nil, err
	}
	s.close = eth.Close
	return s, nil
}

// NewSimulatedSession wraps a go-ethereum simulated backend for tests. Every
// broadcast is followed by a commit so receipts are available immediately.
func NewSimulatedSession(key *ecdsa.PrivateKey, backend *simulated.Backend, cfg Config) (*Session, error) {
	client := backend.Client()
	chainID, err := client.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	s, err := newSession(key, chainID, client, cfg)
	if err != nil {
		return nil, err
	}
	s.commit = func() { backend.Commit() }
	return s, nil
}

func newSession(key *ecdsa.PrivateKey, chainID *big.Int, backend Backend, cfg Config) (*Session, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("创建交易签名器失败: %w", err)
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Session{
		backend:        backend,
		opts:           opts,
		from:           opts.From,
		chainID:        new(big.Int).Set(chainID),
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		log:            logger.Named("chain"),
	}, nil
}

// ParsePrivateKey accepts a hex private key with or without the 0x prefix.
func ParsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, errors.New("未配置签名私钥")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("解析签名私钥失败: %w", err)
	}
	return key, nil
}

// Address returns the signing identity's address.
func (s *Session) Address() common.Address { return s.from }

// ChainID returns a copy of the chain id bound at construction.
func (s *Session) ChainID() *big.Int { return new(big.Int).Set(s.chainID) }

// Close releases the RPC connection.
func (s *Session) Close() {
	if s.close != nil {
		s.close()
	}
}

// Balance returns the native balance of address at the latest block.
func (s *Session) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := s.backend.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeChainFailure, err, "查询余额失败",
			apperrors.WithMetadata("address", address.Hex()))
	}
	return balance, nil
}

// SubmitAndConfirm signs and broadcasts call, then waits up to the confirm
// timeout for a receipt. It never retries. Reverted and dropped transactions
// come with a CHAIN_FAILURE error wrapping web3.ErrReverted or
// web3.ErrDropped; an expired wait or a cancelled ctx yields TIMEOUT.
func (s *Session) SubmitAndConfirm(ctx context.Context, call web3.Call) (web3.Outcome, error) {
	log := s.log.With("operation", call.Label, "from", s.from.Hex(), "to", call.To.Hex())

	tx, err := s.send(ctx, call)
	if err != nil {
		log.Error("交易发送失败", "error", err)
		return web3.Outcome{}, apperrors.Wrap(apperrors.CodeChainFailure, err, "交易发送失败",
			apperrors.WithMetadata("operation", call.Label))
	}

	outcome := web3.Outcome{Hash: tx.Hash()}
	log = log.With("tx_hash", outcome.Hash.Hex())
	log.Info("交易已广播", "nonce", tx.Nonce(), "value", tx.Value().String())

	receipt, status, err := s.waitReceipt(ctx, outcome.Hash)
	outcome.Status = status
	if receipt != nil {
		outcome.GasUsed = receipt.GasUsed
		if receipt.BlockNumber != nil {
			outcome.BlockNumber = receipt.BlockNumber.Uint64()
		}
	}

	meta := []apperrors.Option{
		apperrors.WithMetadata("operation", call.Label),
		apperrors.WithMetadata("tx_hash", outcome.Hash.Hex()),
		apperrors.WithMetadata("status", string(status)),
	}
	switch {
	case err == nil && outcome.Confirmed():
		log.Info("交易已确认", "block", outcome.BlockNumber, "gas_used", outcome.GasUsed)
		return outcome, nil
	case errors.Is(err, web3.ErrConfirmTimeout):
		log.Warn("等待交易确认超时", "timeout", s.confirmTimeout)
		return outcome, apperrors.Wrap(apperrors.CodeTimeout, err, "等待交易确认超时", meta...)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		log.Warn("等待交易确认被取消", "error", err)
		return outcome, apperrors.Wrap(apperrors.CodeTimeout, err, "等待交易确认被取消", meta...)
	default:
		log.Error("交易未确认", "status", status, "error", err)
		return outcome, apperrors.Wrap(apperrors.CodeChainFailure, err, "交易未确认", meta...)
	}
}

// send signs and broadcasts under the session lock. Value transfers without
// calldata go out as plain transfers.
func (s *Session) send(ctx context.Context, call web3.Call) (*coretypes.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := *s.opts
	opts.Context = ctx
	opts.Value = call.Value

	contract := bind.NewBoundContract(call.To, abi.ABI{}, s.backend, s.backend, s.backend)
	var (
		tx  *coretypes.Transaction
		err error
	)
	if len(call.Data) == 0 {
		tx, err = contract.Transfer(&opts)
	} else {
		tx, err = contract.RawTransact(&opts, call.Data)
	}
	if err != nil {
		return nil, err
	}
	if s.commit != nil {
		s.commit()
	}
	return tx, nil
}

// waitReceipt polls for the receipt of hash. A missing receipt for a
// transaction the node no longer knows is reported as dropped.
func (s *Session) waitReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, web3.Status, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(waitCtx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != coretypes.ReceiptStatusSuccessful {
				return receipt, web3.StatusReverted, web3.ErrReverted
			}
			return receipt, web3.StatusConfirmed, nil
		case err == nil || errors.Is(err, gethcore.NotFound):
			_, _, txErr := s.backend.TransactionByHash(waitCtx, hash)
			if errors.Is(txErr, gethcore.NotFound) {
				return nil, web3.StatusDropped, web3.ErrDropped
			}
		default:
			s.log.Debug("查询交易回执失败", "tx_hash", hash.Hex(), "error", err)
		}

		select {
		case <-waitCtx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, web3.StatusTimedOut, ctxErr
			}
			return nil, web3.StatusTimedOut, web3.ErrConfirmTimeout
		case <-ticker.C:
		}
	}
}
