package onion

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// BodyKind identifies the variant held by a response body.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyText
	BodyBinary
	BodyStream
	BodyJSON
)

func (k BodyKind) String() string {
	switch k {
	case BodyText:
		return "text"
	case BodyBinary:
		return "binary"
	case BodyStream:
		return "stream"
	case BodyJSON:
		return "json"
	default:
		return "none"
	}
}

// Response is the outgoing response state. Every mutator keeps status, body
// and the entity headers consistent with each other, and every mutator is a
// silent no-op once the transport has started writing headers.
//
// A Response is not safe for concurrent use.
type Response struct {
	status         int
	explicitStatus bool
	message        string

	body   any
	kind   BodyKind
	stream *streamBody

	header     http.Header
	headerSent bool

	finishMu   sync.Mutex
	finished   bool
	finalizers []func()
	adopted    []io.Closer
	onError    func(error)
	flush      func()
}

// NewResponse creates a response with status 404 and no body.
func NewResponse() *Response {
	return &Response{
		status: http.StatusNotFound,
		header: make(http.Header),
	}
}

// Status returns the response status code.
func (r *Response) Status() int {
	return r.status
}

// SetStatus sets the status code explicitly. Unknown codes fail with
// ErrInvalidStatus and leave the response untouched. An empty-body status
// clears any body that was set.
func (r *Response) SetStatus(code int) error {
	if r.headerSent {
		return nil
	}
	if !IsValidStatus(code) {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, code)
	}

	r.explicitStatus = true
	r.status = code
	r.message = ""
	if r.body != nil && StatusEmpty[code] {
		r.SetBody(nil)
	}
	return nil
}

// MustSetStatus is like SetStatus but panics on an unknown code.
func (r *Response) MustSetStatus(code int) {
	if err := r.SetStatus(code); err != nil {
		panic(err)
	}
}

// setImplicitStatus changes the status as a side effect of a body change. It
// does not mark the status as explicit.
func (r *Response) setImplicitStatus(code int) {
	r.status = code
	r.message = ""
}

// Message returns the status message, defaulting to the registry text of the
// current status.
func (r *Response) Message() string {
	if r.message != "" {
		return r.message
	}
	return StatusText(r.status)
}

// SetMessage overrides the status message.
func (r *Response) SetMessage(msg string) {
	if r.headerSent {
		return
	}
	r.message = msg
}

// Body returns the response body as it was set.
func (r *Response) Body() any {
	return r.body
}

// BodyKind returns the variant of the current body.
func (r *Response) BodyKind() BodyKind {
	return r.kind
}

// SetBody replaces the response body. The value's shape selects the variant:
//
//	nil        no body; status becomes 204 unless it already forbids a body,
//	           and Content-Type, Content-Length and Transfer-Encoding are removed
//	string     text; Content-Type html or text, Content-Length set
//	[]byte     binary; Content-Type octet-stream, Content-Length set
//	io.Reader  stream; closed when the response finishes, read errors go to
//	           the error handler, Content-Type octet-stream
//	otherwise  JSON-serializable value; Content-Length removed, Content-Type json
//
// Content-Type is only derived when it is not already set. Any non-nil body
// sets status 200 unless a status was set explicitly.
func (r *Response) SetBody(v any) {
	if r.headerSent {
		return
	}

	if b, ok := v.([]byte); ok && b == nil {
		v = nil
	}

	original, originalKind := r.body, r.kind
	r.body = v
	r.stream = nil

	if v == nil {
		r.kind = BodyNone
		if !StatusEmpty[r.status] {
			r.setImplicitStatus(http.StatusNoContent)
		}
		r.Remove("Content-Type")
		r.Remove("Content-Length")
		r.Remove("Transfer-Encoding")
		return
	}

	if !r.explicitStatus {
		r.setImplicitStatus(http.StatusOK)
	}

	setType := r.header.Get("Content-Type") == ""

	switch val := v.(type) {
	case string:
		r.kind = BodyText
		if setType {
			if isMarkup(val) {
				r.SetType("html")
			} else {
				r.SetType("text")
			}
		}
		r.SetLength(int64(len(val)))

	case []byte:
		r.kind = BodyBinary
		if setType {
			r.SetType("bin")
		}
		r.SetLength(int64(len(val)))

	case io.Reader:
		r.kind = BodyStream
		r.stream = r.adoptStream(val)
		if original != nil && !(originalKind == BodyStream && sameValue(original, v)) {
			r.Remove("Content-Length")
		}
		if setType {
			r.SetType("bin")
		}

	default:
		r.kind = BodyJSON
		r.Remove("Content-Length")
		if setType {
			r.SetType("json")
		}
	}
}

func isMarkup(s string) bool {
	return strings.HasPrefix(strings.TrimLeft(s, " \t\r\n\f\v"), "<")
}

func sameValue(a, b any) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// Length returns the Content-Length header when present, otherwise the length
// derived from the body. Streams and empty bodies have no length.
func (r *Response) Length() (int64, bool) {
	if cl := r.header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}

	switch r.kind {
	case BodyText:
		return int64(len(r.body.(string))), true
	case BodyBinary:
		return int64(len(r.body.([]byte))), true
	case BodyJSON:
		data, err := json.Marshal(r.body)
		if err != nil {
			return 0, false
		}
		return int64(len(data)), true
	default:
		return 0, false
	}
}

// SetLength sets the Content-Length header.
func (r *Response) SetLength(n int64) {
	r.Set("Content-Length", strconv.FormatInt(n, 10))
}

// HeaderSent reports whether the transport has started writing the response.
func (r *Response) HeaderSent() bool {
	return r.headerSent
}

// Writable reports whether the response can still be written.
func (r *Response) Writable() bool {
	r.finishMu.Lock()
	defer r.finishMu.Unlock()
	return !r.finished
}

// FlushHeaders asks the transport to commit the status line and headers now.
// Afterwards the response is considered sent.
func (r *Response) FlushHeaders() {
	if r.headerSent {
		return
	}
	if r.flush != nil {
		r.flush()
	}
	r.markHeaderSent()
}

func (r *Response) markHeaderSent() {
	r.headerSent = true
}

// Vary appends fields to the Vary header.
func (r *Response) Vary(fields ...string) error {
	if r.headerSent {
		return nil
	}
	val, err := appendVary(strings.Join(r.header.Values("Vary"), ", "), fields...)
	if err != nil {
		return err
	}
	r.header.Set("Vary", val)
	return nil
}

// Attachment sets Content-Disposition to attachment. When filename is given,
// Content-Type is derived from its extension.
func (r *Response) Attachment(filename string) {
	if filename != "" {
		r.SetType(extension(filename))
	}
	r.Set("Content-Disposition", ContentDisposition(filename))
}

func extension(filename string) string {
	if idx := strings.LastIndex(filename, "."); idx != -1 && !strings.ContainsAny(filename[idx:], `/\`) {
		return filename[idx:]
	}
	return ""
}

// SetType resolves t (media type, extension or alias) and sets Content-Type.
// An unresolvable type removes Content-Type.
func (r *Response) SetType(t string) {
	if ct := ContentTypeFor(t); ct != "" {
		r.Set("Content-Type", ct)
		return
	}
	r.Remove("Content-Type")
}

// Type returns the Content-Type without parameters.
func (r *Response) Type() string {
	ct := r.Get("Content-Type")
	if ct == "" {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
}

// Is reports which of types matches the response Content-Type. Without
// arguments it returns the bare type. Wildcard and "+suffix" patterns return
// the actual type, other patterns return themselves.
func (r *Response) Is(types ...string) (string, bool) {
	actual := mediaType(r.Get("Content-Type"))
	if actual == "" {
		return "", false
	}
	if len(types) == 0 {
		return actual, true
	}
	for _, t := range types {
		if !matchType(t, actual) {
			continue
		}
		if strings.HasPrefix(t, "+") || strings.Contains(t, "*") {
			return actual, true
		}
		return t, true
	}
	return "", false
}

// SetLastModified sets the Last-Modified header.
func (r *Response) SetLastModified(t time.Time) {
	r.Set("Last-Modified", t.UTC().Format(http.TimeFormat))
}

// LastModified parses the Last-Modified header.
func (r *Response) LastModified() (time.Time, bool) {
	v := r.Get("Last-Modified")
	if v == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetETag sets the ETag header, adding quotes unless the value is already a
// quoted or weak tag.
func (r *Response) SetETag(tag string) {
	if !strings.HasPrefix(tag, `"`) && !strings.HasPrefix(tag, `W/"`) {
		tag = `"` + tag + `"`
	}
	r.Set("ETag", tag)
}

// ETag returns the ETag header.
func (r *Response) ETag() string {
	return r.Get("ETag")
}

// Get returns the first value of a response header. Field names are case
// insensitive.
func (r *Response) Get(field string) string {
	return r.header.Get(field)
}

// Values returns all values of a response header.
func (r *Response) Values(field string) []string {
	return r.header.Values(field)
}

// Header returns a copy of the response headers.
func (r *Response) Header() http.Header {
	return r.header.Clone()
}

// Set replaces a header with a single value.
func (r *Response) Set(field, value string) {
	if r.headerSent {
		return
	}
	r.header.Set(field, value)
}

// SetValues replaces a header with an ordered list of values.
func (r *Response) SetValues(field string, values []string) {
	if r.headerSent {
		return
	}
	r.header[http.CanonicalHeaderKey(field)] = append([]string(nil), values...)
}

// SetFields sets several headers at once.
func (r *Response) SetFields(fields map[string]string) {
	for field, value := range fields {
		r.Set(field, value)
	}
}

// Append adds values to a header, keeping any existing values.
func (r *Response) Append(field string, values ...string) {
	if r.headerSent {
		return
	}
	for _, v := range values {
		r.header.Add(field, v)
	}
}

// Remove deletes a header.
func (r *Response) Remove(field string) {
	if r.headerSent {
		return
	}
	r.header.Del(field)
}

// Summary is a diagnostic view of a response. It never holds the body.
type Summary struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Header  http.Header `json:"header"`
}

// Summary returns the status, message and headers of the response.
func (r *Response) Summary() Summary {
	return Summary{
		Status:  r.status,
		Message: r.Message(),
		Header:  r.Header(),
	}
}

// Inspection is a Summary plus the body, for debugging.
type Inspection struct {
	Summary
	Body any `json:"body"`
}

// Inspect returns the Summary together with the body.
func (r *Response) Inspect() Inspection {
	return Inspection{Summary: r.Summary(), Body: r.body}
}

// reset drops headers, body and status so an error response can be built.
// Finalizers of adopted streams stay registered.
func (r *Response) reset() {
	r.header = make(http.Header)
	r.body = nil
	r.kind = BodyNone
	r.stream = nil
	r.explicitStatus = false
	r.message = ""
}

// onFinish registers fn to run once the response is finished, either after it
// was written or when the connection closed early.
func (r *Response) onFinish(fn func()) {
	r.finishMu.Lock()
	if !r.finished {
		r.finalizers = append(r.finalizers, fn)
		r.finishMu.Unlock()
		return
	}
	r.finishMu.Unlock()
	fn()
}

// finish runs the registered finalizers. It may be called from the transport
// goroutine when the connection closes early, and is safe to call repeatedly.
func (r *Response) finish() {
	r.finishMu.Lock()
	if r.finished {
		r.finishMu.Unlock()
		return
	}
	r.finished = true
	fns := r.finalizers
	r.finalizers = nil
	r.finishMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// reader returns the reader the transport should copy a stream body from.
func (r *Response) reader() io.Reader {
	if r.stream == nil {
		return nil
	}
	return r.stream
}

func (r *Response) adoptStream(src io.Reader) *streamBody {
	if c, ok := src.(io.Closer); ok && !r.isAdopted(c) {
		r.adopted = append(r.adopted, c)
		r.onFinish(func() { _ = c.Close() })
	}
	return &streamBody{
		src: src,
		onError: func(err error) {
			if r.onError != nil {
				r.onError(err)
			}
		},
	}
}

// isAdopted reports whether c already has a close finalizer registered.
func (r *Response) isAdopted(c io.Closer) bool {
	for _, a := range r.adopted {
		if sameValue(a, c) {
			return true
		}
	}
	return false
}

// streamBody forwards the first non-EOF read error to onError.
type streamBody struct {
	src     io.Reader
	onError func(error)
	once    sync.Once
}

func (s *streamBody) Read(p []byte) (int, error) {
	n, err := s.src.Read(p)
	if err != nil && err != io.EOF {
		s.once.Do(func() { s.onError(err) })
	}
	return n, err
}
