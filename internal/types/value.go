package types

import (
	"bytes"
	"cmp"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/tobsdb/memdb/internal/dberr"
	"github.com/tobsdb/memdb/pkg"
)

// Normalize converts input to the Go representation stored for columns of
// type t. nil is always accepted.
func Normalize(t FieldType, column string, input any) (any, error) {
	if input == nil {
		return nil, nil
	}
	var (
		val any
		err error
	)
	switch t {
	case FieldTypeInt:
		val, err = normalizeInt(input)
	case FieldTypeFloat:
		val, err = normalizeFloat(input)
	case FieldTypeString:
		val, err = normalizeString(input)
	case FieldTypeBool:
		val, err = normalizeBool(input)
	case FieldTypeDate:
		val, err = normalizeDate(input)
	case FieldTypeDecimal:
		val, err = normalizeDecimal(input)
	case FieldTypeJSON:
		val, err = normalizeJSON(input)
	case FieldTypeBytes:
		val, err = normalizeBytes(input)
	default:
		err = fmt.Errorf("unsupported type %s", t)
	}
	if err != nil {
		return nil, dberr.InvalidValue.New(input, t, column, err)
	}
	return val, nil
}

func normalizeInt(input any) (any, error) {
	switch input := input.(type) {
	case bool:
		return nil, fmt.Errorf("bool is not an integer")
	case string:
		return cast.ToInt64E(input)
	case decimal.Decimal:
		if !input.IsInteger() {
			return nil, fmt.Errorf("%s is not an integer", input)
		}
		return input.IntPart(), nil
	}
	if v, ok := pkg.NumToInt64(input); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot use %T as an integer", input)
}

func normalizeFloat(input any) (any, error) {
	switch input := input.(type) {
	case bool:
		return nil, fmt.Errorf("bool is not a float")
	case json.Number:
		return input.Float64()
	case decimal.Decimal:
		return input.InexactFloat64(), nil
	}
	return cast.ToFloat64E(input)
}

func normalizeString(input any) (any, error) {
	switch input := input.(type) {
	case string:
		return input, nil
	case []byte:
		return string(input), nil
	case json.Number:
		return nil, fmt.Errorf("number is not a string")
	case fmt.Stringer:
		return input.String(), nil
	}
	return nil, fmt.Errorf("cannot use %T as a string", input)
}

func normalizeBool(input any) (any, error) {
	switch input := input.(type) {
	case bool:
		return input, nil
	case string:
		return cast.ToBoolE(input)
	}
	if v, ok := pkg.NumToInt64(input); ok && (v == 0 || v == 1) {
		return v == 1, nil
	}
	return nil, fmt.Errorf("cannot use %T as a bool", input)
}

func normalizeDate(input any) (any, error) {
	switch input := input.(type) {
	case time.Time:
		return input, nil
	case string:
		return cast.ToTimeE(input)
	}
	// numbers are unix milliseconds
	if v, ok := pkg.NumToInt64(input); ok {
		return time.UnixMilli(v).UTC(), nil
	}
	return nil, fmt.Errorf("cannot use %T as a date", input)
}

func normalizeDecimal(input any) (any, error) {
	switch input := input.(type) {
	case decimal.Decimal:
		return input, nil
	case string:
		return decimal.NewFromString(input)
	case json.Number:
		return decimal.NewFromString(input.String())
	case float32:
		return decimal.NewFromFloat32(input), nil
	case float64:
		return decimal.NewFromFloat(input), nil
	}
	if v, ok := pkg.NumToInt64(input); ok {
		return decimal.NewFromInt(v), nil
	}
	return nil, fmt.Errorf("cannot use %T as a decimal", input)
}

// JSON values are stored decoded. Round-tripping through the encoder
// detaches the stored value from the caller's copy.
func normalizeJSON(input any) (any, error) {
	var raw []byte
	switch input := input.(type) {
	case json.RawMessage:
		raw = input
	case []byte:
		raw = input
	default:
		b, err := json.Marshal(input)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeBytes(input any) (any, error) {
	switch input := input.(type) {
	case []byte:
		return bytes.Clone(input), nil
	case string:
		return []byte(input), nil
	}
	return nil, fmt.Errorf("cannot use %T as bytes", input)
}

// CoerceLiteral converts a literal compared against a column of type t.
// Literals that do not convert are returned unchanged and compare as
// unknown at evaluation time.
func CoerceLiteral(t FieldType, literal any) any {
	if literal == nil || t == FieldTypeJSON {
		return literal
	}
	if t == FieldTypeInt {
		// 1.5 against an Int column stays a float
		if _, ok := literal.(string); !ok {
			if _, ok := pkg.NumToInt64(literal); !ok {
				return literal
			}
		}
	}
	v, err := Normalize(t, "", literal)
	if err != nil {
		return literal
	}
	return v
}

type numKind int

const (
	numInt numKind = iota
	numFloat
	numDecimal
)

type number struct {
	kind numKind
	i    int64
	f    float64
	d    decimal.Decimal
}

func toNumber(v any) (number, bool) {
	switch v := v.(type) {
	case bool:
		return number{}, false
	case decimal.Decimal:
		return number{kind: numDecimal, d: v}, true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return number{kind: numInt, i: i}, true
		}
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return number{kind: numDecimal, d: d}, true
		}
		return number{}, false
	case float32:
		return number{kind: numFloat, f: float64(v)}, true
	case float64:
		return number{kind: numFloat, f: v}, true
	}
	if i, ok := pkg.NumToInt64(v); ok {
		return number{kind: numInt, i: i}, true
	}
	return number{}, false
}

func (n number) decimal() decimal.Decimal {
	switch n.kind {
	case numInt:
		return decimal.NewFromInt(n.i)
	case numFloat:
		return decimal.NewFromFloat(n.f)
	}
	return n.d
}

func (n number) float() float64 {
	switch n.kind {
	case numInt:
		return float64(n.i)
	case numDecimal:
		return n.d.InexactFloat64()
	}
	return n.f
}

func compareNumbers(a, b number) int {
	if a.kind == numInt && b.kind == numInt {
		return cmp.Compare(a.i, b.i)
	}
	if a.kind == numDecimal || b.kind == numDecimal {
		return a.decimal().Cmp(b.decimal())
	}
	return cmp.Compare(a.float(), b.float())
}

// Compare orders two non-nil values the way a SQL comparison would.
// ok is false when either side is nil or the values are not comparable.
func Compare(a, b any) (res int, ok bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return compareNumbers(na, nb), true
		}
		return 0, false
	}

	switch a := a.(type) {
	case string:
		switch b := b.(type) {
		case string:
			return strings.Compare(a, b), true
		case time.Time:
			ta, err := cast.ToTimeE(a)
			if err != nil {
				return 0, false
			}
			return ta.Compare(b), true
		case []byte:
			return bytes.Compare([]byte(a), b), true
		}
	case bool:
		if b, ok := b.(bool); ok {
			return compareBool(a, b), true
		}
	case time.Time:
		switch b := b.(type) {
		case time.Time:
			return a.Compare(b), true
		case string:
			tb, err := cast.ToTimeE(b)
			if err != nil {
				return 0, false
			}
			return a.Compare(tb), true
		}
	case []byte:
		switch b := b.(type) {
		case []byte:
			return bytes.Compare(a, b), true
		case string:
			return bytes.Compare(a, []byte(b)), true
		}
	}

	if reflect.DeepEqual(a, b) {
		return 0, true
	}
	return 0, false
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := toNumber(v); ok {
		return 2
	}
	switch v.(type) {
	case bool:
		return 1
	case string:
		return 3
	case time.Time:
		return 4
	case []byte:
		return 5
	}
	return 6
}

// Order is a total order over stored values used for sorting and index
// keys. nil sorts first; values of different kinds sort by kind.
func Order(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	if ra == 0 {
		return 0
	}
	if res, ok := Compare(a, b); ok {
		return res
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Equal reports whether two stored values are the same value. Unlike a SQL
// comparison, nil equals nil.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	res, ok := Compare(a, b)
	return ok && res == 0
}
