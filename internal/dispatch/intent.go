package dispatch

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	apperrors "aegis-core/internal/errors"
)

// TransferIntent is either a NativeTransfer or a TokenTransfer. Which one is
// decided once, by ParseTransfer, from the presence of a token address.
type TransferIntent interface {
	transfer()
}

// NativeTransfer moves Amount wei out of the smart-contract Wallet to Target
// through the wallet's execute entry point.
type NativeTransfer struct {
	Wallet common.Address
	Target common.Address
	Amount *big.Int
}

// TokenTransfer moves Amount raw token units of Token out of Wallet to Target
// through the wallet's executeERC20 entry point.
type TokenTransfer struct {
	Wallet common.Address
	Token  common.Address
	Target common.Address
	Amount *big.Int
}

func (NativeTransfer) transfer() {}
func (TokenTransfer) transfer()  {}

// LimitIntent sets the spending limit of Agent on the Rules contract. Limit
// is in wei.
type LimitIntent struct {
	Rules common.Address
	Agent common.Address
	Limit *big.Int
}

// MintIntent mints an identity token for Recipient on the identity contract.
type MintIntent struct {
	Recipient common.Address
	URI       string
}

// FundIntent sends Amount wei from the signing identity to Wallet.
type FundIntent struct {
	Wallet common.Address
	Amount *big.Int
}

// ParseAddress validates a 0x-prefixed 20-byte hex address. field names the
// request field in the error.
func ParseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") || !common.IsHexAddress(raw) {
		return common.Address{}, apperrors.New(apperrors.CodeInvalidAddress, "invalid address for "+field,
			apperrors.WithMetadata("field", field))
	}
	return common.HexToAddress(raw), nil
}

// ParseTransfer builds the transfer intent for a pay request. Without a
// token, amount is a decimal ether string scaled to wei. With a token, amount
// is taken as raw base units and is not scaled.
func ParseTransfer(wallet, target, amount string, token *string) (TransferIntent, error) {
	walletAddr, err := ParseAddress("walletAddress", wallet)
	if err != nil {
		return nil, err
	}
	targetAddr, err := ParseAddress("targetAddress", target)
	if err != nil {
		return nil, err
	}

	if token == nil || strings.TrimSpace(*token) == "" {
		value, err := ParseEther(amount)
		if err != nil {
			return nil, err
		}
		return NativeTransfer{Wallet: walletAddr, Target: targetAddr, Amount: value}, nil
	}

	tokenAddr, err := ParseAddress("tokenAddress", *token)
	if err != nil {
		return nil, err
	}
	value, err := ParseBaseUnits(amount)
	if err != nil {
		return nil, err
	}
	return TokenTransfer{Wallet: walletAddr, Token: tokenAddr, Target: targetAddr, Amount: value}, nil
}

// ParseLimit builds a LimitIntent; limitEth is a decimal ether string.
func ParseLimit(rules, agent, limitEth string) (LimitIntent, error) {
	rulesAddr, err := ParseAddress("rulesContract", rules)
	if err != nil {
		return LimitIntent{}, err
	}
	agentAddr, err := ParseAddress("agentAddress", agent)
	if err != nil {
		return LimitIntent{}, err
	}
	limit, err := ParseEther(limitEth)
	if err != nil {
		return LimitIntent{}, err
	}
	return LimitIntent{Rules: rulesAddr, Agent: agentAddr, Limit: limit}, nil
}

// ParseMint builds a MintIntent.
func ParseMint(recipient, uri string) (MintIntent, error) {
	addr, err := ParseAddress("walletAddress", recipient)
	if err != nil {
		return MintIntent{}, err
	}
	return MintIntent{Recipient: addr, URI: uri}, nil
}

// ParseFund builds a FundIntent; amountEth is a decimal ether string.
func ParseFund(wallet, amountEth string) (FundIntent, error) {
	addr, err := ParseAddress("walletAddress", wallet)
	if err != nil {
		return FundIntent{}, err
	}
	amount, err := ParseEther(amountEth)
	if err != nil {
		return FundIntent{}, err
	}
	return FundIntent{Wallet: addr, Amount: amount}, nil
}
