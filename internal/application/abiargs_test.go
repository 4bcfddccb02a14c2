package application

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const argsABI = `[{"type":"function","name":"mixed","stateMutability":"nonpayable","inputs":[
	{"name":"amount","type":"uint256"},
	{"name":"small","type":"uint8"},
	{"name":"delta","type":"int64"},
	{"name":"to","type":"address"},
	{"name":"flag","type":"bool"},
	{"name":"label","type":"string"},
	{"name":"tag","type":"bytes32"},
	{"name":"blob","type":"bytes"},
	{"name":"ids","type":"uint256[]"},
	{"name":"pair","type":"address[2]"}
],"outputs":[]}]`

func TestConvertArgs(t *testing.T) {
	parsed, err := ParseABI([]byte(argsABI))
	require.NoError(t, err)
	method := parsed.Methods["mixed"]

	values, err := ConvertArgs(method.Inputs, []string{
		"1000000000000000000",
		"255",
		"-5",
		devAddress0,
		"on",
		"hello",
		"0x01",
		"0xdeadbeef",
		`[1, "2", "0x03"]`,
		`["` + devAddress0 + `", "` + devAddress1 + `"]`,
	})
	require.NoError(t, err)

	wantAmount, _ := new(big.Int).SetString("1000000000000000000", 10)
	assert.Equal(t, wantAmount, values[0])
	assert.Equal(t, uint8(255), values[1])
	assert.Equal(t, int64(-5), values[2])
	assert.Equal(t, common.HexToAddress(devAddress0), values[3])
	assert.Equal(t, true, values[4])
	assert.Equal(t, "hello", values[5])
	var tag [32]byte
	tag[0] = 1
	assert.Equal(t, tag, values[6])
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, values[7])
	assert.Equal(t, []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}, values[8])
	assert.Equal(t, [2]common.Address{common.HexToAddress(devAddress0), common.HexToAddress(devAddress1)}, values[9])

	_, err = method.Inputs.Pack(values...)
	assert.NoError(t, err)
}

func TestConvertArgsRejectsBadInput(t *testing.T) {
	parsed, err := ParseABI([]byte(argsABI))
	require.NoError(t, err)
	inputs := parsed.Methods["mixed"].Inputs
	valid := []string{"1", "1", "1", devAddress0, "true", "x", "0x", "0x", "[]", `["` + devAddress0 + `","` + devAddress0 + `"]`}

	_, err = ConvertArgs(inputs, valid[:3])
	assert.Error(t, err)

	cases := map[int]string{
		0: "-1",
		1: "256",
		3: "0x123",
		4: "maybe",
		6: "0x" + "11223344556677889900112233445566778899001122334455667788990011223344",
		8: "not json",
		9: `["` + devAddress0 + `"]`,
	}
	for index, bad := range cases {
		args := append([]string(nil), valid...)
		args[index] = bad
		_, err := ConvertArgs(inputs, args)
		assert.Error(t, err, "argument %d = %q", index, bad)
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "42", FormatValue(big.NewInt(42)))
	assert.Equal(t, devAddress0, FormatValue(common.HexToAddress(devAddress0)))
	assert.Equal(t, "0x0102", FormatValue([]byte{1, 2}))
	assert.Equal(t, "0x0100", FormatValue([2]byte{1, 0}))
	assert.Equal(t, "[1, 2]", FormatValue([]*big.Int{big.NewInt(1), big.NewInt(2)}))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "7", FormatValue(uint8(7)))
}
