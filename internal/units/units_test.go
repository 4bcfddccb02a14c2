package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		value    string
		decimals int
		want     string
	}{
		{"10000000000000000000000", 18, "10000.0"},
		{"1500000000000000000", 18, "1.5"},
		{"1", 18, "0.000000000000000001"},
		{"0", 18, "0.0"},
		{"-2500000000", 9, "-2.5"},
		{"42", 0, "42"},
	}
	for _, tc := range tests {
		value, ok := new(big.Int).SetString(tc.value, 10)
		require.True(t, ok)
		assert.Equal(t, tc.want, FormatUnits(value, tc.decimals), tc.value)
	}
	assert.Equal(t, "0.0", FormatEther(nil))
}

func TestParseUnits(t *testing.T) {
	wei, err := ParseEther("1.5")
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", wei.String())

	wei, err = ParseUnits(".25", 9)
	require.NoError(t, err)
	assert.Equal(t, "250000000", wei.String())

	wei, err = ParseUnits("2.500", 2)
	require.NoError(t, err)
	assert.Equal(t, "250", wei.String())

	_, err = ParseUnits("1.234", 2)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseUnits("abc", 18)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseUnits("", 18)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	wei, err = ParseUnits("-2", 0)
	require.NoError(t, err)
	assert.Equal(t, "-2", wei.String())

	for _, raw := range []string{"--5", "-+5", "+5", "-", ".", "-.", "1.2.3", "1e18", " 1 2"} {
		_, err = ParseUnits(raw, 18)
		assert.ErrorIs(t, err, ErrInvalidAmount, raw)
	}
}

func TestConvert(t *testing.T) {
	out, err := Convert("1", Ether, Gwei)
	require.NoError(t, err)
	assert.Equal(t, "1000000000.0", out)

	out, err = Convert("21000", Gwei, Ether)
	require.NoError(t, err)
	assert.Equal(t, "0.000021", out)

	out, err = Convert("1", Gwei, Wei)
	require.NoError(t, err)
	assert.Equal(t, "1000000000", out)

	_, err = Convert("1", "finney", Wei)
	assert.Error(t, err)
}

func TestHexDecimal(t *testing.T) {
	dec, err := HexToDecimal("0x7a69")
	require.NoError(t, err)
	assert.Equal(t, "31337", dec)

	dec, err = HexToDecimal("ff")
	require.NoError(t, err)
	assert.Equal(t, "255", dec)

	hex, err := DecimalToHex("31337")
	require.NoError(t, err)
	assert.Equal(t, "0x7a69", hex)

	_, err = DecimalToHex("-1")
	assert.Error(t, err)
	_, err = HexToDecimal("0xzz")
	assert.Error(t, err)
}

func TestHashing(t *testing.T) {
	assert.Equal(t, "0xa9059cbb", FunctionSelector("transfer(address, uint256)"))
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", Keccak256Hex("0x"))
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", Keccak256Hex(""))

	addr, err := ChecksumAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", addr)

	_, err = ChecksumAddress("0x1234")
	assert.Error(t, err)
}
