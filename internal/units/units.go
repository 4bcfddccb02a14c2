// Package units converts between wei denominations and common developer encodings.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

type Unit string

const (
	Wei   Unit = "wei"
	Gwei  Unit = "gwei"
	Ether Unit = "ether"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Decimals returns the number of decimal places of a unit relative to wei.
func Decimals(unit Unit) (int, error) {
	switch Unit(strings.ToLower(string(unit))) {
	case Wei:
		return 0, nil
	case Gwei:
		return 9, nil
	case Ether, "eth":
		return 18, nil
	default:
		return 0, fmt.Errorf("unknown unit %q", unit)
	}
}

// FormatUnits renders value scaled down by decimals, trimming trailing zeros.
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		value = new(big.Int)
	}
	if decimals <= 0 {
		return value.String()
	}
	negative := value.Sign() < 0
	digits := new(big.Int).Abs(value).String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	} else {
		out += ".0"
	}
	if negative {
		out = "-" + out
	}
	return out
}

// ParseUnits parses a decimal string and scales it up by decimals.
func ParseUnits(raw string, decimals int) (*big.Int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, ErrInvalidAmount
	}
	negative := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(value, "-")
	whole, frac, _ := strings.Cut(value, ".")
	if whole+frac == "" || !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if len(frac) > decimals {
		if strings.Trim(frac[decimals:], "0") != "" {
			return nil, fmt.Errorf("%w: too many decimal places in %q", ErrInvalidAmount, raw)
		}
		frac = frac[:decimals]
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if negative {
		out.Neg(out)
	}
	return out, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func FormatEther(wei *big.Int) string { return FormatUnits(wei, 18) }

func FormatGwei(wei *big.Int) string { return FormatUnits(wei, 9) }

func ParseEther(raw string) (*big.Int, error) { return ParseUnits(raw, 18) }

// Convert re-expresses a decimal amount from one unit to another.
func Convert(raw string, from, to Unit) (string, error) {
	fromDecimals, err := Decimals(from)
	if err != nil {
		return "", err
	}
	toDecimals, err := Decimals(to)
	if err != nil {
		return "", err
	}
	wei, err := ParseUnits(raw, fromDecimals)
	if err != nil {
		return "", err
	}
	return FormatUnits(wei, toDecimals), nil
}

// HexToDecimal parses a 0x-prefixed (or bare) hex quantity.
func HexToDecimal(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if !strings.HasPrefix(value, "0x") && !strings.HasPrefix(value, "0X") {
		value = "0x" + value
	}
	parsed, ok := math.ParseBig256(value)
	if !ok {
		return "", fmt.Errorf("invalid hex quantity %q", raw)
	}
	return parsed.String(), nil
}

// DecimalToHex renders a base-10 integer as a 0x-prefixed quantity.
func DecimalToHex(raw string) (string, error) {
	parsed, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || parsed.Sign() < 0 {
		return "", fmt.Errorf("invalid decimal %q", raw)
	}
	return hexutil.EncodeBig(parsed), nil
}

// Keccak256Hex hashes text (or 0x-prefixed bytes) and returns the hex digest.
func Keccak256Hex(input string) string {
	if data, err := hexutil.Decode(input); err == nil {
		return crypto.Keccak256Hash(data).Hex()
	}
	return crypto.Keccak256Hash([]byte(input)).Hex()
}

// FunctionSelector returns the 4-byte selector for a canonical signature such
// as "transfer(address,uint256)".
func FunctionSelector(signature string) string {
	sig := strings.ReplaceAll(strings.TrimSpace(signature), " ", "")
	return hexutil.Encode(crypto.Keccak256([]byte(sig))[:4])
}

// ChecksumAddress returns the EIP-55 form of an address.
func ChecksumAddress(raw string) (string, error) {
	if !common.IsHexAddress(raw) {
		return "", fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw).Hex(), nil
}
