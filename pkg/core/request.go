package core

import (
	"fmt"
	"net/url"
	"strings"
)

// QueryParam is one key-value pair of a request query string.
type QueryParam struct {
	Key   string
	Value string
}

// Query holds query parameters in insertion order. Signatures cover the
// encoded query exactly as it is sent, so the order must be stable.
type Query []QueryParam

// Get returns the value for key and whether it is present.
func (q Query) Get(key string) (string, bool) {
	for _, p := range q {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Encode serializes the query in insertion order with URL escaping.
func (q Query) Encode() string {
	if len(q) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// Clone returns an independent copy of the query.
func (q Query) Clone() Query {
	if q == nil {
		return nil
	}
	out := make(Query, len(q))
	copy(out, q)
	return out
}

// Request describes one logical API call before transport concerns are
// applied. It is built per call and treated as immutable once handed to
// the pipeline.
type Request struct {
	Method      string
	Path        string
	Query       Query
	Body        any
	Headers     map[string]string
	Weight      int
	RequireAuth bool
}

func NewRequest(method, path string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Headers: make(map[string]string),
		Weight:  1,
	}
}

// SetQuery appends a query parameter, or updates it in place when the key
// is already present.
func (r *Request) SetQuery(key string, value any) *Request {
	v := fmt.Sprint(value)
	for i, p := range r.Query {
		if p.Key == key {
			r.Query[i].Value = v
			return r
		}
	}
	r.Query = append(r.Query, QueryParam{Key: key, Value: v})
	return r
}

func (r *Request) SetBody(body any) *Request {
	r.Body = body
	return r
}

func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

func (r *Request) SetWeight(weight int) *Request {
	r.Weight = weight
	return r
}

func (r *Request) SetRequireAuth(require bool) *Request {
	r.RequireAuth = require
	return r
}

// PathWithQuery returns the path joined with the encoded query, the form
// some signing schemes hash over.
func (r *Request) PathWithQuery() string {
	enc := r.Query.Encode()
	if enc == "" {
		return r.Path
	}
	return r.Path + "?" + enc
}
