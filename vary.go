package onion

import (
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// appendVary merges fields into the Vary header value header. Field names are
// compared case-insensitively and "*" absorbs everything.
func appendVary(header string, fields ...string) (string, error) {
	var parsed []string
	for _, f := range fields {
		parsed = append(parsed, parseFieldList(f)...)
	}
	for _, f := range parsed {
		if f != "*" && !httpguts.ValidHeaderFieldName(f) {
			return "", fmt.Errorf("invalid header field name %q", f)
		}
	}

	if header == "*" {
		return header, nil
	}

	existing := parseFieldList(header)
	for _, f := range append(existing, parsed...) {
		if f == "*" {
			return "*", nil
		}
	}

	val := header
	for _, f := range parsed {
		if httpguts.HeaderValuesContainsToken(existing, f) {
			continue
		}
		existing = append(existing, f)
		if val == "" {
			val = f
		} else {
			val += ", " + f
		}
	}
	return val, nil
}

func parseFieldList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
