package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestSelectorsMatchSignatures(t *testing.T) {
	cases := map[string][]byte{
		"execute(address,uint256,bytes)":        WalletABI.Methods[MethodExecute].ID,
		"executeERC20(address,address,uint256)": WalletABI.Methods[MethodExecuteERC20].ID,
		"setLimit(address,uint256)":             RulesABI.Methods[MethodSetLimit].ID,
		"mint(address,string)":                  IdentityABI.Methods[MethodMint].ID,
	}
	for sig, id := range cases {
		require.Equal(t, crypto.Keccak256([]byte(sig))[:4], id, sig)
	}
}

func TestPackExecuteDecodes(t *testing.T) {
	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	value := big.NewInt(42)

	data, err := PackExecute(target, value, nil)
	require.NoError(t, err)

	method, args, err := Decode(WalletABI, data)
	require.NoError(t, err)
	require.Equal(t, MethodExecute, method.Name)
	require.Equal(t, target, args[0].(common.Address))
	require.Equal(t, 0, value.Cmp(args[1].(*big.Int)))
	require.Empty(t, args[2].([]byte))
}

func TestDecodeRejectsShortCalldata(t *testing.T) {
	_, _, err := Decode(WalletABI, []byte{0x01})
	require.Error(t, err)
}
