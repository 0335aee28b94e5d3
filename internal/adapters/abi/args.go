package abi

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/trebuchet-org/treb-deploy/internal/domain"
)

var bigIntType = reflect.TypeOf(&big.Int{})

// Encoder builds creation calldata: bytecode followed by the ABI-encoded
// constructor arguments.
type Encoder struct{}

// NewEncoder creates a new constructor argument encoder
func NewEncoder() *Encoder {
	return &Encoder{}
}

// EncodeConstructor converts args against the artifact's constructor inputs
// and appends their encoding to the creation bytecode.
func (e *Encoder) EncodeConstructor(artifact *domain.Artifact, args []any) ([]byte, error) {
	if !artifact.Deployable() {
		name := "<nil>"
		if artifact != nil {
			name = artifact.Name
		}
		return nil, fmt.Errorf("%w: %s has no creation bytecode", domain.ErrInvalidArtifact, name)
	}

	inputs := artifact.ConstructorInputs()
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("%w: constructor of %s takes %d argument(s) %s, got %d",
			domain.ErrArgumentMismatch, artifact.Name, len(inputs), signature(inputs), len(args))
	}

	values := make([]any, len(inputs))
	for i, input := range inputs {
		v, err := ConvertArg(input.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d (%s): %v", domain.ErrArgumentMismatch, i, describe(input), err)
		}
		values[i] = v
	}

	packed, err := inputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode constructor arguments for %s: %v", domain.ErrArgumentMismatch, artifact.Name, err)
	}

	data := make([]byte, 0, len(artifact.Bytecode)+len(packed))
	data = append(data, artifact.Bytecode...)
	return append(data, packed...), nil
}

// ConvertArg converts a plan value (as decoded from YAML or JSON) into the Go
// value go-ethereum expects for t.
func ConvertArg(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		return toAddress(v)

	case abi.BoolTy:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("invalid bool %q", b)
			}
			return parsed, nil
		}
		return nil, typeErr(t, v)

	case abi.StringTy:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, typeErr(t, v)

	case abi.BytesTy:
		return toBytes(v)

	case abi.FixedBytesTy:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) > t.Size {
			return nil, fmt.Errorf("value has %d bytes, %s holds %d", len(b), t, t.Size)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	case abi.IntTy, abi.UintTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		if err := checkRange(t, n); err != nil {
			return nil, err
		}
		goType := t.GetType()
		if goType == bigIntType {
			return n, nil
		}
		if t.T == abi.UintTy {
			return reflect.ValueOf(n.Uint64()).Convert(goType).Interface(), nil
		}
		return reflect.ValueOf(n.Int64()).Convert(goType).Interface(), nil

	case abi.SliceTy:
		items, ok := v.([]any)
		if !ok {
			return nil, typeErr(t, v)
		}
		slice := reflect.MakeSlice(t.GetType(), len(items), len(items))
		for i, item := range items {
			conv, err := ConvertArg(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			slice.Index(i).Set(reflect.ValueOf(conv))
		}
		return slice.Interface(), nil

	case abi.ArrayTy:
		items, ok := v.([]any)
		if !ok {
			return nil, typeErr(t, v)
		}
		if len(items) != t.Size {
			return nil, fmt.Errorf("%s needs %d elements, got %d", t, t.Size, len(items))
		}
		arr := reflect.New(t.GetType()).Elem()
		for i, item := range items {
			conv, err := ConvertArg(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			arr.Index(i).Set(reflect.ValueOf(conv))
		}
		return arr.Interface(), nil

	default:
		return nil, fmt.Errorf("%s arguments are not supported", t)
	}
}

func toAddress(v any) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case string:
		if !common.IsHexAddress(a) {
			return common.Address{}, fmt.Errorf("invalid address %q", a)
		}
		return common.HexToAddress(a), nil
	}
	return common.Address{}, fmt.Errorf("expected address, got %T", v)
}

func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		if !strings.HasPrefix(b, "0x") && !strings.HasPrefix(b, "0X") {
			return nil, fmt.Errorf("bytes must be 0x-prefixed hex, got %q", b)
		}
		decoded, err := hexutil.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("invalid hex %q: %v", b, err)
		}
		return decoded, nil
	}
	return nil, fmt.Errorf("expected hex bytes, got %T", v)
}

func toBigInt(v any) (*big.Int, error) {
	switch n := v.(type) {
	case int:
		return big.NewInt(int64(n)), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.Abs(n) > 1<<53 {
			return nil, fmt.Errorf("%v is not an exact integer (quote large numbers as strings)", n)
		}
		return big.NewInt(int64(n)), nil
	case *big.Int:
		return new(big.Int).Set(n), nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), "_", "")
		parsed, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", n)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("expected integer, got %T", v)
}

func checkRange(t abi.Type, n *big.Int) error {
	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return fmt.Errorf("%s cannot be negative", t)
		}
		if n.BitLen() > t.Size {
			return fmt.Errorf("%s overflows %s", n, t)
		}
		return nil
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	minimum := new(big.Int).Neg(limit)
	if n.Cmp(limit) >= 0 || n.Cmp(minimum) < 0 {
		return fmt.Errorf("%s overflows %s", n, t)
	}
	return nil
}

func typeErr(t abi.Type, v any) error {
	return fmt.Errorf("expected %s, got %T", t, v)
}

func describe(arg abi.Argument) string {
	if arg.Name == "" {
		return arg.Type.String()
	}
	return arg.Type.String() + " " + arg.Name
}

func signature(inputs abi.Arguments) string {
	parts := make([]string, len(inputs))
	for i, in := range inputs {
		parts[i] = describe(in)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
