package application

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// ParseABI parses a JSON ABI definition.
func ParseABI(raw []byte) (abi.ABI, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return abi.ABI{}, errors.New("abi is empty")
	}
	return abi.JSON(bytes.NewReader(raw))
}

// ConvertArgs turns form input strings into the Go values the abi packer
// expects. Arrays are given as JSON arrays.
func ConvertArgs(params abi.Arguments, raw []string) ([]any, error) {
	if len(raw) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(raw))
	}
	out := make([]any, len(params))
	for i, param := range params {
		value, err := convertArg(param.Type, raw[i])
		if err != nil {
			name := param.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("argument %s (%s): %w", name, param.Type.String(), err)
		}
		out[i] = value
	}
	return out, nil
}

func convertArg(t abi.Type, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch t.T {
	case abi.IntTy, abi.UintTy:
		return convertInteger(t, raw)
	case abi.BoolTy:
		switch strings.ToLower(raw) {
		case "true", "1", "on", "yes":
			return true, nil
		case "false", "0", "off", "no", "":
			return false, nil
		}
		return nil, fmt.Errorf("invalid bool %q", raw)
	case abi.StringTy:
		return raw, nil
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid address %q", raw)
		}
		return common.HexToAddress(raw), nil
	case abi.BytesTy:
		return decodeHexArg(raw)
	case abi.FixedBytesTy:
		data, err := decodeHexArg(raw)
		if err != nil {
			return nil, err
		}
		if len(data) > t.Size {
			return nil, fmt.Errorf("value is %d bytes, max %d", len(data), t.Size)
		}
		array := reflect.New(t.GetType()).Elem()
		reflect.Copy(array, reflect.ValueOf(data))
		return array.Interface(), nil
	case abi.SliceTy, abi.ArrayTy:
		return convertList(t, raw)
	default:
		return nil, fmt.Errorf("unsupported type %s", t.String())
	}
}

func convertInteger(t abi.Type, raw string) (any, error) {
	negative := strings.HasPrefix(raw, "-")
	value, ok := math.ParseBig256(strings.TrimPrefix(raw, "-"))
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", raw)
	}
	if negative {
		if t.T == abi.UintTy {
			return nil, fmt.Errorf("negative value for unsigned type")
		}
		value.Neg(value)
	}
	bits := t.Size
	if t.T == abi.UintTy && value.BitLen() > bits {
		return nil, fmt.Errorf("value overflows uint%d", bits)
	}
	if t.T == abi.IntTy {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
		if value.Cmp(limit) >= 0 || value.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("value overflows int%d", bits)
		}
	}
	goType := t.GetType()
	if goType == reflect.TypeOf((*big.Int)(nil)) {
		return value, nil
	}
	if t.T == abi.UintTy {
		return reflect.ValueOf(value.Uint64()).Convert(goType).Interface(), nil
	}
	return reflect.ValueOf(value.Int64()).Convert(goType).Interface(), nil
}

func convertList(t abi.Type, raw string) (any, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("expected a JSON array: %w", err)
	}
	if t.T == abi.ArrayTy && len(items) != t.Size {
		return nil, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
	}
	var list reflect.Value
	if t.T == abi.ArrayTy {
		list = reflect.New(t.GetType()).Elem()
	} else {
		list = reflect.MakeSlice(t.GetType(), len(items), len(items))
	}
	for i, item := range items {
		var text string
		if err := json.Unmarshal(item, &text); err != nil {
			text = string(item)
		}
		value, err := convertArg(*t.Elem, text)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		list.Index(i).Set(reflect.ValueOf(value))
	}
	return list.Interface(), nil
}

func decodeHexArg(raw string) ([]byte, error) {
	if raw == "" {
		return []byte{}, nil
	}
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	return hexutil.Decode(raw)
}

// FormatValue renders a decoded abi value for display.
func FormatValue(value any) string {
	switch v := value.(type) {
	case *big.Int:
		return v.String()
	case common.Address:
		return strings.ToLower(v.Hex())
	case common.Hash:
		return v.Hex()
	case []byte:
		return hexutil.Encode(v)
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		data := make([]byte, rv.Len())
		for i := range data {
			data[i] = byte(rv.Index(i).Uint())
		}
		return hexutil.Encode(data)
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = FormatValue(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(value)
}
