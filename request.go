package onion

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/munnerz/goautoneg"
)

// Request is a read-only view of the inbound request.
type Request struct {
	raw *http.Request
}

// NewRequest wraps r.
func NewRequest(r *http.Request) *Request {
	return &Request{raw: r}
}

// Raw returns the underlying *http.Request.
func (r *Request) Raw() *http.Request {
	return r.raw
}

// Method returns the request HTTP method.
func (r *Request) Method() string {
	return r.raw.Method
}

// Path returns the request URL path.
func (r *Request) Path() string {
	return r.raw.URL.Path
}

// URL returns a copy of the request URL.
func (r *Request) URL() url.URL {
	return *r.raw.URL
}

// Query returns a query parameter by name.
func (r *Request) Query(name string) string {
	return r.raw.URL.Query().Get(name)
}

// Get returns a request header value. "Referrer" and "Referer" are treated as
// the same field.
func (r *Request) Get(field string) string {
	switch strings.ToLower(field) {
	case "referer", "referrer":
		if v := r.raw.Header.Get("Referrer"); v != "" {
			return v
		}
		return r.raw.Header.Get("Referer")
	default:
		return r.raw.Header.Get(field)
	}
}

// Accepts returns the entry of types that best matches the Accept header.
// Entries may be extensions or aliases ("html", "json") or full media types.
// With no Accept header the first entry is acceptable.
func (r *Request) Accepts(types ...string) (string, bool) {
	if len(types) == 0 {
		return "", false
	}

	header := strings.Join(r.raw.Header.Values("Accept"), ", ")
	if strings.TrimSpace(header) == "" {
		return types[0], true
	}

	offers := make([]string, 0, len(types))
	byOffer := make(map[string]string, len(types))
	for _, t := range types {
		mt := mediaType(ContentTypeFor(t))
		if mt == "" || !strings.Contains(mt, "/") {
			continue
		}
		if _, dup := byOffer[mt]; dup {
			continue
		}
		offers = append(offers, mt)
		byOffer[mt] = t
	}
	if len(offers) == 0 {
		return "", false
	}

	// Each offer takes the quality of its most specific matching clause, so
	// q=0 refuses a type even when a wildcard would match it.
	clauses := goautoneg.ParseAccept(header)
	best, bestQ := "", 0.0
	for _, offer := range offers {
		if q := acceptQuality(clauses, offer); q > bestQ {
			best, bestQ = offer, q
		}
	}
	if best == "" {
		return "", false
	}
	return byOffer[best], true
}

func acceptQuality(clauses []goautoneg.Accept, mediaType string) float64 {
	typ, sub, _ := strings.Cut(mediaType, "/")
	q, specificity := 0.0, -1
	for _, clause := range clauses {
		var s int
		switch {
		case clause.Type == typ && clause.SubType == sub:
			s = 2
		case clause.Type == typ && clause.SubType == "*":
			s = 1
		case clause.Type == "*" && clause.SubType == "*":
			s = 0
		default:
			continue
		}
		if s > specificity {
			q, specificity = clause.Q, s
		}
	}
	return q
}

// RemoteIP returns the client's IP address.
// Checks X-Real-IP, X-Forwarded-For, and falls back to RemoteAddr.
func (r *Request) RemoteIP() string {
	if ip := r.raw.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if xff := r.raw.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}

	addr := r.raw.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
