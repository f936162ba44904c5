package command

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	uint256Type    = mustType("uint256")
	int256Type     = mustType("int256")
	addressType    = mustType("address")
	stringType     = mustType("string")
	bytes32Type    = mustType("bytes32")
	bytesType      = mustType("bytes")
	bytesArrayType = mustType("bytes[]")

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	maxInt256  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	minInt256  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))

	decimalsScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

const decimalsPlaces = 18

// Param is one placeholder value taken from the command.
type Param struct {
	Type ParamType
	Text string
	// Value is *big.Int, common.Address, string, [32]byte or []byte.
	Value any
	// ABI is the standalone ABI encoding of Value.
	ABI []byte
}

func encodeParam(t ParamType, text string) (Param, error) {
	var (
		typ   abi.Type
		value any
	)

	switch t {
	case TypeUint:
		v, ok := parseUint(text)
		if !ok {
			return Param{}, fmt.Errorf("not an unsigned 256-bit integer")
		}
		typ, value = uint256Type, v
	case TypeInt:
		v, ok := new(big.Int).SetString(text, 10)
		if !ok || !isDecimal(strings.TrimPrefix(text, "-")) || v.Cmp(minInt256) < 0 || v.Cmp(maxInt256) > 0 {
			return Param{}, fmt.Errorf("not a signed 256-bit integer")
		}
		typ, value = int256Type, v
	case TypeDecimals:
		v, err := parseDecimals(text)
		if err != nil {
			return Param{}, err
		}
		typ, value = uint256Type, v
	case TypeAddress:
		if !has0x(text) || !common.IsHexAddress(text) {
			return Param{}, fmt.Errorf("not a 20-byte hex address")
		}
		typ, value = addressType, common.HexToAddress(text)
	case TypeString:
		typ, value = stringType, text
	case TypeBytes32:
		b, err := hexutil.Decode(text)
		if err != nil || len(b) != 32 {
			return Param{}, fmt.Errorf("not a 32-byte hex value")
		}
		var v [32]byte
		copy(v[:], b)
		typ, value = bytes32Type, v
	case TypeBytes:
		b, err := hexutil.Decode(text)
		if err != nil {
			return Param{}, fmt.Errorf("not a hex byte string: %v", err)
		}
		typ, value = bytesType, b
	default:
		return Param{}, fmt.Errorf("unsupported type %s", t)
	}

	data, err := abi.Arguments{{Type: typ}}.Pack(value)
	if err != nil {
		return Param{}, err
	}
	return Param{Type: t, Text: text, Value: value, ABI: data}, nil
}

// parseUint accepts decimal or 0x-prefixed hex not exceeding 2^256-1.
func parseUint(s string) (*big.Int, bool) {
	var (
		v  *big.Int
		ok bool
	)
	if has0x(s) {
		digits := s[2:]
		if digits == "" || !isHex(digits) {
			return nil, false
		}
		v, ok = new(big.Int).SetString(digits, 16)
	} else {
		if !isDecimal(s) {
			return nil, false
		}
		v, ok = new(big.Int).SetString(s, 10)
	}
	if !ok || v.Cmp(maxUint256) > 0 {
		return nil, false
	}
	return v, true
}

// parseDecimals reads "12.5" as 12.5 * 10^18.
func parseDecimals(s string) (*big.Int, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if !isDecimal(whole) || (frac != "" && !isDecimal(frac)) || strings.HasSuffix(s, ".") {
		return nil, fmt.Errorf("not a decimal number")
	}
	if len(frac) > decimalsPlaces {
		return nil, fmt.Errorf("more than %d decimal places", decimalsPlaces)
	}

	v, _ := new(big.Int).SetString(whole, 10)
	v.Mul(v, decimalsScale)
	if frac != "" {
		f, _ := new(big.Int).SetString(frac+strings.Repeat("0", decimalsPlaces-len(frac)), 10)
		v.Add(v, f)
	}
	if v.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("decimal value overflows uint256")
	}
	return v, nil
}

func has0x(s string) bool { return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') }

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// PackParams ABI-encodes the individually encoded params as bytes[].
func PackParams(params [][]byte) ([]byte, error) {
	return abi.Arguments{{Type: bytesArrayType}}.Pack(params)
}

// UnpackParams reverses PackParams.
func UnpackParams(data []byte) ([][]byte, error) {
	out, err := abi.Arguments{{Type: bytesArrayType}}.Unpack(data)
	if err != nil {
		return nil, err
	}
	params, ok := out[0].([][]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected params type %T", out[0])
	}
	return params, nil
}
