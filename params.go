package alipayauth

import (
	"sort"
	"strings"
)

// FilterParams returns a copy of params without the "sign" entry and
// without entries whose value is empty.
func FilterParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if v == "" || k == "sign" {
			continue
		}
		out[k] = v
	}
	return out
}

// serializeParams sorts the parameters by key in byte order and joins
// them as "key1=value1&key2=value2". Values are written verbatim.
func serializeParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf strings.Builder
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(params[k])
	}
	return buf.String()
}

// Canonicalize builds the canonical query string of params: the filtered
// entries, sorted by key and joined with "&". It is the exact byte
// sequence that is signed, verified and encrypted.
func Canonicalize(params map[string]string) string {
	return serializeParams(FilterParams(params))
}
