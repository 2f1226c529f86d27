package pkg

import (
	"math"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
)

func Filter[T any](items []T, predicate func(T) bool) []T {
	filtered := []T{}
	for _, item := range items {
		if predicate(item) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// Converts a value suspected to be some kind of number to an int.
// Callers hand us ints of every width plus float64 from json decoding.
func NumToInt(num any) int {
	return cast.ToInt(num)
}

// NumToInt64 is the strict variant of NumToInt: it reports whether num was
// an integral number at all.
func NumToInt64(num any) (int64, bool) {
	switch num := num.(type) {
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return cast.ToInt64(num), true
	case uint:
		if uint64(num) <= math.MaxInt64 {
			return int64(num), true
		}
	case uint64:
		if num <= math.MaxInt64 {
			return int64(num), true
		}
	case json.Number:
		if v, err := num.Int64(); err == nil {
			return v, true
		}
		if f, err := num.Float64(); err == nil {
			return floatToInt64(f)
		}
	case float32:
		return floatToInt64(float64(num))
	case float64:
		return floatToInt64(num)
	}
	return 0, false
}

// 2^63 is exactly representable; int64 holds everything below it
func floatToInt64(num float64) (int64, bool) {
	if num != math.Trunc(num) || num < math.MinInt64 || num >= math.MaxInt64 {
		return 0, false
	}
	return int64(num), true
}
