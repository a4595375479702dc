package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCauseAndCode(t *testing.T) {
	cause := stdErrors.New("receipt missing")
	err := Wrap(CodeChainFailure, cause, "mint failed", WithMetadata("tx_hash", "0xabc"))

	require.True(t, stdErrors.Is(err, cause))
	require.True(t, stdErrors.Is(err, New(CodeChainFailure, "")))
	require.False(t, stdErrors.Is(err, New(CodeInvalidAddress, "")))
	require.Equal(t, CodeChainFailure, CodeOf(fmt.Errorf("outer: %w", err)))
	require.Equal(t, "0xabc", err.Metadata()["tx_hash"])
	require.Contains(t, err.Error(), "[CHAIN_FAILURE] mint failed: receipt missing")
}

func TestDefaultsAndStatus(t *testing.T) {
	require.Equal(t, "invalid address", New(CodeInvalidAddress, "").Message())
	require.Equal(t, "internal error", New(Code("NOPE"), "").Message())
	require.Equal(t, CodeUnknown, CodeOf(stdErrors.New("plain")))

	cases := map[Code]int{
		CodeInvalidAmount:  http.StatusBadRequest,
		CodeUnauthorized:   http.StatusUnauthorized,
		CodeConflict:       http.StatusConflict,
		CodeRateLimited:    http.StatusTooManyRequests,
		CodeChainFailure:   http.StatusBadGateway,
		CodeTimeout:        http.StatusGatewayTimeout,
		CodeStorageFailure: http.StatusInternalServerError,
		Code("NOPE"):       http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, HTTPStatus(code), code)
	}
	require.Equal(t, http.StatusBadGateway, New(CodeChainFailure, "x").Status())
}

func TestMetadataIsCopied(t *testing.T) {
	err := New(CodeInvalidArgument, "bad", WithMetadata("field", "amount"))
	md := err.Metadata()
	md["field"] = "changed"
	require.Equal(t, "amount", err.Metadata()["field"])
	require.Nil(t, New(CodeInvalidArgument, "bad").Metadata())
}
