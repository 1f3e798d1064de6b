package httpx

import "io"

// Request is a parsed or to-be-serialized HTTP/1.1 request.
type Request struct {
	Method  Method
	Path    string
	Headers *Headers
	// Body is the (possibly nil) request body, already de-chunked by
	// ReadRequest; callers constructing a Request for WriteRequest set
	// Body and ContentLength/Chunked themselves.
	Body io.Reader
	// ContentLength is the framed body length; -1 means Chunked is true
	// instead (the two framings are mutually exclusive).
	ContentLength int64
	Chunked       bool
}

// Response is a parsed or to-be-serialized HTTP/1.1 status line plus
// headers and body.
type Response struct {
	StatusCode int
	Reason     string
	Headers    *Headers
	Body       io.Reader

	ContentLength int64
	Chunked       bool
}

// bodyTransfer inspects ContentLength/Chunked to decide wire framing:
// a body is either Content-Length-framed or chunked, never both.
func bodyTransfer(contentLength int64, chunked bool) Transfer {
	switch {
	case chunked:
		return TransferChunked
	case contentLength >= 0:
		return TransferContentLength
	default:
		return TransferNone
	}
}
