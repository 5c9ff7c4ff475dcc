package core

import "net/http"

// Response is the envelope for every completed HTTP exchange, successful
// or not. Error status codes still produce a populated Response; only
// transport-level failures do not.
type Response struct {
	// Status is the HTTP status code as received.
	Status int
	// Headers are the response headers as received.
	Headers http.Header
	// Body is the raw response payload before any decoding.
	Body []byte
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}
