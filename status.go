package onion

import "net/http"

// StatusEmpty holds the status codes that never carry a response body.
var StatusEmpty = map[int]bool{
	http.StatusNoContent:    true,
	http.StatusResetContent: true,
	http.StatusNotModified:  true,
}

// StatusRedirect holds the redirect-class status codes.
var StatusRedirect = map[int]bool{
	http.StatusMultipleChoices:   true,
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusSeeOther:          true,
	http.StatusUseProxy:          true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

// StatusRetry holds the status codes a client may retry.
var StatusRetry = map[int]bool{
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// IsValidStatus reports whether code is a known HTTP status code.
func IsValidStatus(code int) bool {
	return http.StatusText(code) != ""
}

// StatusText returns the registry text for code, or "" if it is unknown.
func StatusText(code int) string {
	return http.StatusText(code)
}
