package erp

import (
	"strconv"
	"strings"
)

// FormatKey quotes the values of a record key for use in a URL path.
// "(IVNUM=IN1,KLINE=3)" becomes "(IVNUM='IN1',KLINE=3)"; integers and values
// already quoted are left alone. A bare key is quoted unless it is an integer.
func FormatKey(key string) string {
	if key == "" {
		return key
	}
	if strings.HasPrefix(key, "(") && strings.HasSuffix(key, ")") {
		parts := strings.Split(key[1:len(key)-1], ",")
		for i, part := range parts {
			name, value, ok := strings.Cut(part, "=")
			if !ok {
				continue
			}
			parts[i] = name + "=" + quoteKeyValue(value)
		}
		return "(" + strings.Join(parts, ",") + ")"
	}
	return "(" + quoteKeyValue(key) + ")"
}

func quoteKeyValue(v string) string {
	if isInteger(v) || (len(v) >= 2 && strings.HasPrefix(v, "'") && strings.HasSuffix(v, "'")) {
		return v
	}
	return quote(v)
}

func isInteger(v string) bool {
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

// buildKey joins key field values into a raw key.
func buildKey(fields []string, rec record) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + "=" + rec.str(f)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
