package dispatch

import (
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	apperrors "aegis-core/internal/errors"
)

const etherDecimals = 18

// ParseBaseUnits parses a raw unsigned integer amount that must fit in 256
// bits. No decimal scaling is applied.
func ParseBaseUnits(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !isDigits(raw) {
		return nil, invalidAmount(raw)
	}
	digits := strings.TrimLeft(raw, "0")
	if digits == "" {
		return new(big.Int), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, invalidAmount(raw)
	}
	return v.ToBig(), nil
}

// ParseEther converts a decimal ether string such as "1.5" into wei. At most
// 18 fractional digits are accepted.
func ParseEther(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	whole, frac, _ := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	if (whole == "0" && frac == "" && raw != "0") || !isDigits(whole) || len(frac) > etherDecimals {
		return nil, invalidAmount(raw)
	}
	if frac != "" && !isDigits(frac) {
		return nil, invalidAmount(raw)
	}
	wei, err := ParseBaseUnits(whole + frac + strings.Repeat("0", etherDecimals-len(frac)))
	if err != nil {
		return nil, invalidAmount(raw)
	}
	return wei, nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	s := new(big.Int).Abs(wei).String()
	if len(s) <= etherDecimals {
		s = strings.Repeat("0", etherDecimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-etherDecimals], strings.TrimRight(s[len(s)-etherDecimals:], "0")
	if wei.Sign() < 0 {
		whole = "-" + whole
	}
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func invalidAmount(raw string) error {
	return apperrors.New(apperrors.CodeInvalidAmount, "invalid amount", apperrors.WithMetadata("amount", raw))
}
