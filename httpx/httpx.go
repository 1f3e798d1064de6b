// Package httpx parses and serializes the HTTP/1.1 wire format:
// request/status line, header lines, Content-Length and chunked body
// framing. It works on plain io.Reader/io.Writer byte streams and knows
// nothing about the reactor or the socket state machine, so it layers
// over tcptoolkit, tlsconn, or any other transport unchanged.
//
// The grammar is strict: CRLF line endings only, no header folding, a
// single ':' separator, version exactly HTTP/1.1.
package httpx

import (
	"errors"
	"fmt"
)

// Method is an HTTP/1.1 request method, restricted to the closed set
// below.
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodTrace   Method = "TRACE"
	MethodOptions Method = "OPTIONS"
	MethodConnect Method = "CONNECT"
	MethodPatch   Method = "PATCH"
)

func validMethod(m Method) bool {
	switch m {
	case MethodGet, MethodHead, MethodPost, MethodPut, MethodDelete,
		MethodTrace, MethodOptions, MethodConnect, MethodPatch:
		return true
	default:
		return false
	}
}

// Version is the only version this parser accepts.
const Version = "HTTP/1.1"

// Transfer identifies how a message body is framed on the wire.
type Transfer int

const (
	TransferNone Transfer = iota
	TransferContentLength
	TransferChunked
)

// Parse errors.
var (
	ErrMalformedStartLine = errors.New("httpx: malformed start line")
	ErrUnsupportedVersion = errors.New("httpx: unsupported HTTP version")
	ErrUnsupportedMethod  = errors.New("httpx: unsupported method")
	ErrMalformedHeader    = errors.New("httpx: malformed header line")
	ErrHeaderFolding      = errors.New("httpx: header folding is not supported")
	ErrLineTooLong        = errors.New("httpx: start line or header line exceeds limit")
	ErrMalformedChunkSize = errors.New("httpx: malformed chunk size")
)

// maxLineLength bounds a single start-line or header-line read, guarding
// against unbounded memory growth from a peer that never sends CRLF.
const maxLineLength = 64 * 1024

// StatusText returns the reason phrase for a status code, falling back
// to a generic phrase for codes this table does not enumerate.
func StatusText(code int) string {
	if t, ok := statusText[code]; ok {
		return t
	}
	return fmt.Sprintf("Status %d", code)
}

var statusText = map[int]string{
	100: "Continue", 101: "Switching Protocols",
	200: "OK", 201: "Created", 202: "Accepted", 204: "No Content", 206: "Partial Content",
	300: "Multiple Choices", 301: "Moved Permanently", 302: "Found", 303: "See Other",
	304: "Not Modified", 307: "Temporary Redirect", 308: "Permanent Redirect",
	400: "Bad Request", 401: "Unauthorized", 403: "Forbidden", 404: "Not Found",
	405: "Method Not Allowed", 408: "Request Timeout", 409: "Conflict", 410: "Gone",
	411: "Length Required", 413: "Payload Too Large", 414: "Request-URI Too Long",
	415: "Unsupported Media Type", 418: "I'm a teapot", 429: "Too Many Requests",
	500: "Internal Server Error", 501: "Not Implemented", 502: "Bad Gateway",
	503: "Service Unavailable", 504: "Gateway Timeout",
}
