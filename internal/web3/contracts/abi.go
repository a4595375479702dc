// Package contracts holds the ABI fragments of the on-chain contracts the
// daemon talks to and helpers that encode their calls.
package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// WalletABIJSON is the subset of the smart-contract wallet ABI used by the
// relayer. Native transfers go through execute, token transfers through
// executeERC20.
const WalletABIJSON = `[
	{"type":"function","name":"execute","stateMutability":"nonpayable","inputs":[
		{"name":"target","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"executeERC20","stateMutability":"nonpayable","inputs":[
		{"name":"token","type":"address"},
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// RulesABIJSON covers the per-agent spending limit setter.
const RulesABIJSON = `[
	{"type":"function","name":"setLimit","stateMutability":"nonpayable","inputs":[
		{"name":"agent","type":"address"},
		{"name":"limit","type":"uint256"}],"outputs":[]}
]`

// IdentityABIJSON covers the identity token mint entry point.
const IdentityABIJSON = `[
	{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},
		{"name":"uri","type":"string"}],"outputs":[]}
]`

// Method names.
const (
	MethodExecute      = "execute"
	MethodExecuteERC20 = "executeERC20"
	MethodSetLimit     = "setLimit"
	MethodMint         = "mint"
)

var (
	WalletABI   = mustParse(WalletABIJSON)
	RulesABI    = mustParse(RulesABIJSON)
	IdentityABI = mustParse(IdentityABIJSON)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse contract abi: %v", err))
	}
	return parsed
}

// PackExecute encodes wallet.execute(target, value, data).
func PackExecute(target common.Address, value *big.Int, data []byte) ([]byte, error) {
	if data == nil {
		data = []byte{}
	}
	return WalletABI.Pack(MethodExecute, target, value, data)
}

// PackExecuteERC20 encodes wallet.executeERC20(token, to, amount).
func PackExecuteERC20(token, to common.Address, amount *big.Int) ([]byte, error) {
	return WalletABI.Pack(MethodExecuteERC20, token, to, amount)
}

// PackSetLimit encodes rules.setLimit(agent, limit).
func PackSetLimit(agent common.Address, limit *big.Int) ([]byte, error) {
	return RulesABI.Pack(MethodSetLimit, agent, limit)
}

// PackMint encodes identity.mint(to, uri).
func PackMint(to common.Address, uri string) ([]byte, error) {
	return IdentityABI.Pack(MethodMint, to, uri)
}

// Decode splits calldata into the method and its arguments using parsed.
func Decode(parsed abi.ABI, calldata []byte) (*abi.Method, []any, error) {
	if len(calldata) < 4 {
		return nil, nil, fmt.Errorf("calldata too short: %d bytes", len(calldata))
	}
	method, err := parsed.MethodById(calldata[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("unpack %s: %w", method.Name, err)
	}
	return method, args, nil
}
