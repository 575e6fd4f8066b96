package changedata

import (
	"fmt"
	"strconv"
)

// defaultKeyToString renders keys as the strings used in the encoded
// form. Strings pass through, integers/floats/bools use their canonical
// decimal form, fmt.Stringers use String(), and anything else is
// rendered with the map's marshal function. Key types whose string form
// is not covered here need Config.KeyToString and Config.KeyFromString.
func defaultKeyToString[K comparable](marshal func(any) ([]byte, error)) func(K) (string, error) {
	return func(k K) (string, error) {
		switch v := any(k).(type) {
		case string:
			return v, nil
		case int:
			return strconv.FormatInt(int64(v), 10), nil
		case int8:
			return strconv.FormatInt(int64(v), 10), nil
		case int16:
			return strconv.FormatInt(int64(v), 10), nil
		case int32:
			return strconv.FormatInt(int64(v), 10), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case uint:
			return strconv.FormatUint(uint64(v), 10), nil
		case uint8:
			return strconv.FormatUint(uint64(v), 10), nil
		case uint16:
			return strconv.FormatUint(uint64(v), 10), nil
		case uint32:
			return strconv.FormatUint(uint64(v), 10), nil
		case uint64:
			return strconv.FormatUint(v, 10), nil
		case bool:
			return strconv.FormatBool(v), nil
		case float32:
			return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), nil
		case fmt.Stringer:
			return v.String(), nil
		default:
			b, err := marshal(k)
			if err != nil {
				return "", fmt.Errorf("marshal key: %w", err)
			}
			return string(b), nil
		}
	}
}

// defaultKeyFromString parses the strings produced by defaultKeyToString
// back into keys. The fallthrough case hands the string to the map's
// unmarshal function, which covers struct keys under the default JSON
// codec.
func defaultKeyFromString[K comparable](unmarshal func([]byte, any) error) func(string) (K, error) {
	return func(s string) (K, error) {
		var k K
		var err error
		switch p := any(&k).(type) {
		case *string:
			*p = s
		case *int:
			*p, err = strconv.Atoi(s)
		case *int8:
			var n int64
			n, err = strconv.ParseInt(s, 10, 8)
			*p = int8(n)
		case *int16:
			var n int64
			n, err = strconv.ParseInt(s, 10, 16)
			*p = int16(n)
		case *int32:
			var n int64
			n, err = strconv.ParseInt(s, 10, 32)
			*p = int32(n)
		case *int64:
			*p, err = strconv.ParseInt(s, 10, 64)
		case *uint:
			var n uint64
			n, err = strconv.ParseUint(s, 10, 64)
			*p = uint(n)
		case *uint8:
			var n uint64
			n, err = strconv.ParseUint(s, 10, 8)
			*p = uint8(n)
		case *uint16:
			var n uint64
			n, err = strconv.ParseUint(s, 10, 16)
			*p = uint16(n)
		case *uint32:
			var n uint64
			n, err = strconv.ParseUint(s, 10, 32)
			*p = uint32(n)
		case *uint64:
			*p, err = strconv.ParseUint(s, 10, 64)
		case *bool:
			*p, err = strconv.ParseBool(s)
		case *float32:
			var f float64
			f, err = strconv.ParseFloat(s, 32)
			*p = float32(f)
		case *float64:
			*p, err = strconv.ParseFloat(s, 64)
		default:
			err = unmarshal([]byte(s), &k)
		}
		if err != nil {
			return k, fmt.Errorf("parse key %q: %w", s, err)
		}
		return k, nil
	}
}
