package types

import (
	"strconv"
)

// ToInt64 converts an interface{} to int64.
// Supports the signed and unsigned integer types and float64/float32.
func ToInt64(v interface{}) int64 {
	switch i := v.(type) {
	case int64:
		return i
	case int:
		return int64(i)
	case int32:
		return int64(i)
	case uint32:
		return int64(i)
	case uint64:
		return int64(i)
	case float64:
		return int64(i)
	case []byte:
		n, _ := strconv.ParseInt(string(i), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(i, 10, 64)
		return n
	default:
		return 0
	}
}

// ToText renders a scanned SQLite value as text. SQLite columns are
// dynamically typed, so a "duration" column can hold TEXT, INTEGER, REAL or
// NULL depending on which tool wrote the row. NULL renders as "".
func ToText(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		if s {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}
