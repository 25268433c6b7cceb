package onion

import (
	"mime"
	"path/filepath"
	"strings"
)

// typeAliases resolves the short names handlers use for common types.
var typeAliases = map[string]string{
	"html":       "text/html",
	"htm":        "text/html",
	"text":       "text/plain",
	"txt":        "text/plain",
	"json":       "application/json",
	"bin":        "application/octet-stream",
	"xml":        "application/xml",
	"js":         "text/javascript",
	"css":        "text/css",
	"csv":        "text/csv",
	"urlencoded": "application/x-www-form-urlencoded",
	"form":       "application/x-www-form-urlencoded",
	"multipart":  "multipart/*",
}

// utf8Types get a charset parameter when resolved.
var utf8Types = map[string]bool{
	"application/json":       true,
	"application/javascript": true,
	"application/xml":        true,
}

// ContentTypeFor resolves t to a full Content-Type value. t may be a media
// type ("image/png"), an extension (".png") or an alias ("json"). Text types
// get a utf-8 charset. It returns "" when t cannot be resolved.
func ContentTypeFor(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}

	ct := t
	if !strings.Contains(t, "/") {
		ext := strings.ToLower(strings.TrimPrefix(t, "."))
		if alias, ok := typeAliases[ext]; ok {
			ct = alias
		} else {
			ct = mime.TypeByExtension("." + ext)
		}
		if ct == "" {
			return ""
		}
	}

	if strings.Contains(ct, "charset") || strings.Contains(ct, "*") {
		return ct
	}
	mt := mediaType(ct)
	if strings.HasPrefix(mt, "text/") || utf8Types[mt] {
		return ct + "; charset=utf-8"
	}
	return ct
}

// mediaType strips parameters from a Content-Type value and lowercases it.
func mediaType(ct string) string {
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// ContentDisposition formats an attachment Content-Disposition value for
// filename. Non-ASCII names use the RFC 2231 extended form.
func ContentDisposition(filename string) string {
	if filename == "" {
		return "attachment"
	}
	v := mime.FormatMediaType("attachment", map[string]string{
		"filename": filepath.Base(filename),
	})
	if v == "" {
		return "attachment"
	}
	return v
}

// matchType reports whether the media type actual matches the pattern
// expected. Patterns may be an alias, "type/*", "*/*" or a "+suffix".
func matchType(expected, actual string) bool {
	pattern := normalizeTypePattern(expected)
	if pattern == "" {
		return false
	}

	exp := strings.SplitN(pattern, "/", 2)
	act := strings.SplitN(actual, "/", 2)
	if len(exp) != 2 || len(act) != 2 {
		return false
	}

	if exp[0] != "*" && exp[0] != act[0] {
		return false
	}
	if strings.HasPrefix(exp[1], "*+") {
		return strings.HasSuffix(act[1], exp[1][1:])
	}
	return exp[1] == "*" || exp[1] == act[1]
}

func normalizeTypePattern(t string) string {
	switch {
	case strings.HasPrefix(t, "+"):
		return "*/*" + t
	case strings.Contains(t, "/"):
		return mediaType(t)
	default:
		return mediaType(ContentTypeFor(t))
	}
}
