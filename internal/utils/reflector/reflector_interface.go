package reflector

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

var ranges = map[reflect.Kind][2]float64{
	reflect.Uint8:  {0, math.MaxUint8},
	reflect.Uint16: {0, math.MaxUint16},
	reflect.Uint32: {0, math.MaxUint32},
	reflect.Int8:   {math.MinInt8, math.MaxInt8},
	reflect.Int16:  {math.MinInt16, math.MaxInt16},
	reflect.Int32:  {math.MinInt32, math.MaxInt32},
}

// ConvertType converts a decoded JSON value (float64 or numeric string)
// to an integer of kind dstType, rejecting fractions and values out of range.
func ConvertType(value interface{}, dstType reflect.Kind) (interface{}, error) {
	var f float64
	switch valueTyped := value.(type) {
	case float64:
		f = valueTyped
	case string:
		parsed, err := strconv.ParseFloat(valueTyped, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", valueTyped)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}

	if f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", f)
	}

	r, ok := ranges[dstType]
	if !ok {
		return nil, fmt.Errorf("unsupported kind %v", dstType)
	}
	if f < r[0] || f > r[1] {
		return nil, fmt.Errorf("%v out of %v range", f, dstType)
	}

	switch dstType {
	case reflect.Uint8:
		return uint8(f), nil
	case reflect.Uint16:
		return uint16(f), nil
	case reflect.Uint32:
		return uint32(f), nil
	case reflect.Int8:
		return int8(f), nil
	case reflect.Int16:
		return int16(f), nil
	case reflect.Int32:
		return int32(f), nil
	}

	return nil, fmt.Errorf("unsupported kind %v", dstType)
}
