package httpx

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

var crlf = []byte("\r\n")

// readLine reads one CRLF-terminated line from r and returns it without
// the trailing CRLF. A bare LF with no preceding CR is malformed.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			return nil, ErrLineTooLong
		}
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, ErrMalformedStartLine
	}
	return line[:len(line)-2], nil
}

// ReadRequest parses one HTTP/1.1 request from r: request line, headers,
// and (if present) a Content-Length- or chunked-framed body. The
// returned Request's Body must be fully read (or discarded) before the
// next request is read from the same r, exactly as with net/http.
func ReadRequest(r io.Reader) (*Request, error) {
	br := bufio.NewReaderSize(r, maxLineLength)

	line, err := readLine(br)
	if err != nil {
		return nil, err
	}
	method, path, version, err := parseRequestLine(line)
	if err != nil {
		return nil, err
	}

	headers, err := readHeaders(br)
	if err != nil {
		return nil, err
	}

	req := &Request{Method: method, Path: path, Headers: headers}
	_ = version

	contentLength, chunked, err := frameFromHeaders(headers)
	if err != nil {
		return nil, err
	}
	req.ContentLength = contentLength
	req.Chunked = chunked
	req.Body = bodyReader(br, contentLength, chunked)
	return req, nil
}

// ReadResponse parses one HTTP/1.1 status line, headers, and framed
// body from r.
func ReadResponse(r io.Reader) (*Response, error) {
	br := bufio.NewReaderSize(r, maxLineLength)

	line, err := readLine(br)
	if err != nil {
		return nil, err
	}
	status, reason, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}

	headers, err := readHeaders(br)
	if err != nil {
		return nil, err
	}

	resp := &Response{StatusCode: status, Reason: reason, Headers: headers}
	contentLength, chunked, err := frameFromHeaders(headers)
	if err != nil {
		return nil, err
	}
	resp.ContentLength = contentLength
	resp.Chunked = chunked
	resp.Body = bodyReader(br, contentLength, chunked)
	return resp, nil
}

func bodyReader(br *bufio.Reader, contentLength int64, chunked bool) io.Reader {
	switch {
	case chunked:
		return newChunkedReader(br)
	case contentLength > 0:
		return io.LimitReader(br, contentLength)
	default:
		return io.LimitReader(br, 0)
	}
}

// parseRequestLine parses "METHOD SP PATH SP HTTP/1.1": no multi-space,
// version must be exactly HTTP/1.1.
func parseRequestLine(line []byte) (Method, string, string, error) {
	s := string(line)
	parts := strings.Split(s, " ")
	if len(parts) != 3 {
		return "", "", "", ErrMalformedStartLine
	}
	method := Method(parts[0])
	if !validMethod(method) {
		return "", "", "", ErrUnsupportedMethod
	}
	if parts[2] != Version {
		return "", "", "", ErrUnsupportedVersion
	}
	return method, parts[1], parts[2], nil
}

// parseStatusLine parses "HTTP/1.1 SP ddd SP reason".
func parseStatusLine(line []byte) (int, string, error) {
	s := string(line)
	sp := strings.IndexByte(s, ' ')
	if sp < 0 || s[:sp] != Version {
		return 0, "", ErrUnsupportedVersion
	}
	rest := s[sp+1:]
	sp2 := strings.IndexByte(rest, ' ')
	var codeStr, reason string
	if sp2 < 0 {
		codeStr = rest
	} else {
		codeStr = rest[:sp2]
		reason = rest[sp2+1:]
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil || len(codeStr) != 3 {
		return 0, "", ErrMalformedStartLine
	}
	return code, reason, nil
}

// readHeaders reads "Name: Value CRLF" lines until the terminating
// empty line. No multi-line folding (a continuation line starting with
// SP/HTAB is rejected, not merged); `:` is the only separator
// recognized.
func readHeaders(br *bufio.Reader) (*Headers, error) {
	h := NewHeaders()
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			return h, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, ErrHeaderFolding
		}
		colon := indexByte(line, ':')
		if colon < 0 {
			return nil, ErrMalformedHeader
		}
		name := string(line[:colon])
		value := strings.TrimSpace(string(line[colon+1:]))
		if name == "" {
			return nil, ErrMalformedHeader
		}
		h.Add(name, value)
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// frameFromHeaders decides body framing: Transfer-Encoding: chunked
// takes priority over Content-Length when both are present.
func frameFromHeaders(h *Headers) (contentLength int64, chunked bool, err error) {
	if te := h.Get("Transfer-Encoding"); strings.EqualFold(te, "chunked") {
		return -1, true, nil
	}
	if cl := h.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return 0, false, ErrMalformedHeader
		}
		return n, false, nil
	}
	return 0, false, nil
}
