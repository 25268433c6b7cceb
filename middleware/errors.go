package middleware

import (
	"errors"
	"net/http"

	"github.com/AchrafSoltani/onion"
)

// errorStatus is the status an error escaping the chain will be answered with.
func errorStatus(err error) int {
	var httpErr *onion.HTTPError
	if errors.As(err, &httpErr) && onion.IsValidStatus(httpErr.Code) {
		return httpErr.Code
	}
	return http.StatusInternalServerError
}
